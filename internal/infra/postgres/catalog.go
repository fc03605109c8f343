package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"eduquiz-service/internal/domain"
)

// Catalog reads authored quiz content from Postgres. It is strictly
// read-only; nothing in this service writes catalog tables.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) GetActiveQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := c.pool.QueryRow(ctx,
		`SELECT id, title, category_id, active, public, max_attempts
		 FROM quizzes WHERE id=$1 AND active AND public`, quizID).
		Scan(&quiz.ID, &quiz.Title, &quiz.CategoryID, &quiz.Active, &quiz.Public, &quiz.MaxAttempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Quiz{}, domain.ErrQuizNotFound
		}
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	questions, err := c.GetActiveQuestions(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.Questions = questions
	return quiz, nil
}

func (c *Catalog) GetActiveQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, quiz_id, text, type, points, order_index, active
		 FROM questions WHERE quiz_id=$1 AND active ORDER BY order_index`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	index := make(map[string]int)
	for rows.Next() {
		var q domain.Question
		var qtype string
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Text, &qtype, &q.Points, &q.OrderIndex, &q.Active); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Type = domain.QuestionType(qtype)
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}

	optRows, err := c.pool.Query(ctx,
		`SELECT o.id, o.question_id, o.text, o.correct, o.order_index
		 FROM options o JOIN questions q ON q.id = o.question_id
		 WHERE q.quiz_id=$1 AND q.active ORDER BY o.order_index`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var opt domain.Option
		var questionID string
		if err := optRows.Scan(&opt.ID, &questionID, &opt.Text, &opt.Correct, &opt.OrderIndex); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		if i, ok := index[questionID]; ok {
			questions[i].Options = append(questions[i].Options, opt)
		}
	}
	if err := optRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate options: %w", err)
	}
	return questions, nil
}

// LoadQuiz lets the Catalog double as a loader behind the caches.
func (c *Catalog) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := c.pool.QueryRow(ctx,
		`SELECT id, title, category_id, active, public, max_attempts
		 FROM quizzes WHERE id=$1`, quizID).
		Scan(&quiz.ID, &quiz.Title, &quiz.CategoryID, &quiz.Active, &quiz.Public, &quiz.MaxAttempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Quiz{}, domain.ErrQuizNotFound
		}
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	questions, err := c.GetActiveQuestions(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.Questions = questions
	return quiz, nil
}

// ListActiveQuizzes returns every published quiz with its questions.
func (c *Catalog) ListActiveQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, title, category_id, active, public, max_attempts
		 FROM quizzes WHERE active AND public ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	var quizzes []domain.Quiz
	for rows.Next() {
		var quiz domain.Quiz
		if err := rows.Scan(&quiz.ID, &quiz.Title, &quiz.CategoryID, &quiz.Active, &quiz.Public, &quiz.MaxAttempts); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quizzes: %w", err)
	}

	for i := range quizzes {
		questions, err := c.GetActiveQuestions(ctx, quizzes[i].ID)
		if err != nil {
			return nil, err
		}
		quizzes[i].Questions = questions
	}
	return quizzes, nil
}

// Directory resolves student display names from the students table.
type Directory struct {
	pool *pgxpool.Pool
}

func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

func (d *Directory) DisplayName(ctx context.Context, studentID string) (string, error) {
	var name string
	err := d.pool.QueryRow(ctx, `SELECT display_name FROM students WHERE id=$1`, studentID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return studentID, nil
		}
		return "", fmt.Errorf("load student name: %w", err)
	}
	return name, nil
}
