package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"eduquiz-service/internal/domain"
)

type attemptModel struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID             string     `bun:"id,pk"`
	StudentID      string     `bun:"student_id"`
	QuizID         string     `bun:"quiz_id"`
	StartedAt      time.Time  `bun:"started_at"`
	CompletedAt    *time.Time `bun:"completed_at"`
	Score          int        `bun:"score"`
	MaxScore       int        `bun:"max_score"`
	ElapsedSeconds int        `bun:"elapsed_seconds"`
	Completed      bool       `bun:"completed"`
}

type answerModel struct {
	bun.BaseModel `bun:"table:answers,alias:ans"`

	ID         string    `bun:"id,pk"`
	AttemptID  string    `bun:"attempt_id"`
	QuestionID string    `bun:"question_id"`
	OptionID   string    `bun:"option_id"`
	Text       string    `bun:"text"`
	Correct    bool      `bun:"correct"`
	Points     int       `bun:"points"`
	AnsweredAt time.Time `bun:"answered_at"`
}

type rankingModel struct {
	bun.BaseModel `bun:"table:ranking_entries,alias:r"`

	StudentID      string    `bun:"student_id,pk"`
	CategoryID     string    `bun:"category_id,pk"`
	StudentName    string    `bun:"student_name"`
	TotalScore     int       `bun:"total_score"`
	AttemptCount   int       `bun:"attempt_count"`
	AveragePercent float64   `bun:"average_percent"`
	Rank           int       `bun:"rank"`
	UpdatedAt      time.Time `bun:"updated_at"`
}

type reportModel struct {
	bun.BaseModel `bun:"table:performance_reports,alias:pr"`

	ID             string    `bun:"id,pk"`
	StudentID      string    `bun:"student_id"`
	QuizID         string    `bun:"quiz_id"`
	AttemptID      string    `bun:"attempt_id"`
	TotalQuestions int       `bun:"total_questions"`
	CorrectCount   int       `bun:"correct_count"`
	IncorrectCount int       `bun:"incorrect_count"`
	Percent        float64   `bun:"percent"`
	ElapsedSeconds int       `bun:"elapsed_seconds"`
	CreatedAt      time.Time `bun:"created_at"`
}

// AttemptStore persists attempts and answers in Postgres. Check-then-insert
// paths run inside a transaction: there is no unique constraint on
// (student_id, quiz_id), so the one-attempt rule lives here, while duplicate
// answers are additionally backed by a unique index.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt domain.Attempt) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*attemptModel)(nil)).
			Where("student_id = ?", attempt.StudentID).
			Where("quiz_id = ?", attempt.QuizID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("check existing attempt: %w", err)
		}
		if exists {
			return domain.ErrAttemptExists
		}
		model := toAttemptModel(attempt)
		if _, err := tx.NewInsert().Model(&model).Exec(ctx); err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		return nil
	})
}

func (s *AttemptStore) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	var model attemptModel
	err := s.db.NewSelect().Model(&model).Where("id = ?", attemptID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Attempt{}, domain.ErrAttemptNotFound
		}
		return domain.Attempt{}, fmt.Errorf("load attempt: %w", err)
	}
	return fromAttemptModel(model), nil
}

func (s *AttemptStore) GetAttemptForQuiz(ctx context.Context, studentID, quizID string) (domain.Attempt, error) {
	var model attemptModel
	err := s.db.NewSelect().Model(&model).
		Where("student_id = ?", studentID).
		Where("quiz_id = ?", quizID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Attempt{}, domain.ErrAttemptNotFound
		}
		return domain.Attempt{}, fmt.Errorf("load attempt for quiz: %w", err)
	}
	return fromAttemptModel(model), nil
}

func (s *AttemptStore) AddAnswer(ctx context.Context, answer domain.Answer) (int, error) {
	var newScore int
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		// Lock the attempt row so a racing CompleteAttempt cannot seal it
		// between this check and the score bump.
		var attempt attemptModel
		err := tx.NewSelect().Model(&attempt).
			Column("completed").
			Where("id = ?", answer.AttemptID).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrAttemptNotFound
			}
			return fmt.Errorf("check attempt: %w", err)
		}
		if attempt.Completed {
			return domain.ErrAttemptCompleted
		}

		dup, err := tx.NewSelect().Model((*answerModel)(nil)).
			Where("attempt_id = ?", answer.AttemptID).
			Where("question_id = ?", answer.QuestionID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("check existing answer: %w", err)
		}
		if dup {
			return domain.ErrAlreadyAnswered
		}

		model := toAnswerModel(answer)
		if _, err := tx.NewInsert().Model(&model).Exec(ctx); err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}

		if _, err := tx.NewUpdate().Model((*attemptModel)(nil)).
			Set("score = score + ?", answer.Points).
			Where("id = ?", answer.AttemptID).
			Exec(ctx); err != nil {
			return fmt.Errorf("bump attempt score: %w", err)
		}
		return tx.NewSelect().Model((*attemptModel)(nil)).
			Column("score").
			Where("id = ?", answer.AttemptID).
			Scan(ctx, &newScore)
	})
	if err != nil {
		return 0, err
	}
	return newScore, nil
}

func (s *AttemptStore) ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	var models []answerModel
	err := s.db.NewSelect().Model(&models).
		Where("attempt_id = ?", attemptID).
		Order("answered_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	answers := make([]domain.Answer, 0, len(models))
	for _, m := range models {
		answers = append(answers, fromAnswerModel(m))
	}
	return answers, nil
}

func (s *AttemptStore) CompleteAttempt(ctx context.Context, attemptID string, completedAt time.Time, elapsedSeconds int) (domain.Attempt, error) {
	var sealed domain.Attempt
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*attemptModel)(nil)).
			Set("completed = TRUE").
			Set("completed_at = ?", completedAt).
			Set("elapsed_seconds = ?", elapsedSeconds).
			Where("id = ?", attemptID).
			Where("completed = FALSE").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("seal attempt: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("seal attempt result: %w", err)
		}
		if affected == 0 {
			exists, err := tx.NewSelect().Model((*attemptModel)(nil)).
				Where("id = ?", attemptID).
				Exists(ctx)
			if err != nil {
				return fmt.Errorf("check attempt: %w", err)
			}
			if !exists {
				return domain.ErrAttemptNotFound
			}
			return domain.ErrAttemptCompleted
		}

		var model attemptModel
		if err := tx.NewSelect().Model(&model).Where("id = ?", attemptID).Scan(ctx); err != nil {
			return fmt.Errorf("reload attempt: %w", err)
		}
		sealed = fromAttemptModel(model)
		return nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return sealed, nil
}

func (s *AttemptStore) ListCompletedByCategory(ctx context.Context, studentID, categoryID string) ([]domain.Attempt, error) {
	var models []attemptModel
	err := s.db.NewSelect().Model(&models).
		Join("JOIN quizzes AS q ON q.id = a.quiz_id").
		Where("a.student_id = ?", studentID).
		Where("a.completed = TRUE").
		Where("q.category_id = ?", categoryID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list completed attempts by category: %w", err)
	}
	return fromAttemptModels(models), nil
}

func (s *AttemptStore) ListCompletedByStudent(ctx context.Context, studentID string) ([]domain.Attempt, error) {
	var models []attemptModel
	err := s.db.NewSelect().Model(&models).
		Where("student_id = ?", studentID).
		Where("completed = TRUE").
		Order("completed_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list completed attempts: %w", err)
	}
	return fromAttemptModels(models), nil
}

func (s *AttemptStore) ListByStudent(ctx context.Context, studentID string) ([]domain.Attempt, error) {
	var models []attemptModel
	err := s.db.NewSelect().Model(&models).
		Where("student_id = ?", studentID).
		Order("started_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return fromAttemptModels(models), nil
}

// RankingStore persists the derived ranking table. Category rewrites run
// inside one transaction, serialized per category by an advisory lock, so
// readers never see partial ranks and concurrent upserts cannot lose entries.
type RankingStore struct {
	db *bun.DB
}

func NewRankingStore(db *bun.DB) *RankingStore {
	return &RankingStore{db: db}
}

func (s *RankingStore) ListByCategory(ctx context.Context, categoryID string) ([]domain.RankingEntry, error) {
	var models []rankingModel
	err := s.db.NewSelect().Model(&models).
		Where("category_id = ?", categoryID).
		Order("rank ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ranking entries: %w", err)
	}
	return fromRankingModels(models), nil
}

func (s *RankingStore) ListByStudent(ctx context.Context, studentID string) ([]domain.RankingEntry, error) {
	var models []rankingModel
	err := s.db.NewSelect().Model(&models).
		Where("student_id = ?", studentID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list student ranking entries: %w", err)
	}
	return fromRankingModels(models), nil
}

func (s *RankingStore) UpsertAndRerank(ctx context.Context, entry domain.RankingEntry) ([]domain.RankingEntry, error) {
	var ranked []domain.RankingEntry
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		// Serialize rewrites of the same category, including the case where
		// it has no rows yet to lock.
		if _, err := tx.ExecContext(ctx,
			"SELECT pg_advisory_xact_lock(hashtext(?))", entry.CategoryID); err != nil {
			return fmt.Errorf("lock category ranking: %w", err)
		}

		var models []rankingModel
		if err := tx.NewSelect().Model(&models).
			Where("category_id = ?", entry.CategoryID).
			Scan(ctx); err != nil {
			return fmt.Errorf("load category ranking: %w", err)
		}

		merged := fromRankingModels(models)
		replaced := false
		for i := range merged {
			if merged[i].StudentID == entry.StudentID {
				merged[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, entry)
		}

		ranked = domain.RankEntries(merged)
		return replaceCategoryTx(ctx, tx, entry.CategoryID, ranked)
	})
	if err != nil {
		return nil, err
	}
	return ranked, nil
}

func replaceCategoryTx(ctx context.Context, tx bun.Tx, categoryID string, entries []domain.RankingEntry) error {
	if _, err := tx.NewDelete().Model((*rankingModel)(nil)).
		Where("category_id = ?", categoryID).
		Exec(ctx); err != nil {
		return fmt.Errorf("clear category ranking: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}
	models := make([]rankingModel, 0, len(entries))
	for _, e := range entries {
		models = append(models, toRankingModel(e))
	}
	if _, err := tx.NewInsert().Model(&models).Exec(ctx); err != nil {
		return fmt.Errorf("write category ranking: %w", err)
	}
	return nil
}

// ReportStore appends performance reports; there is no update path.
type ReportStore struct {
	db *bun.DB
}

func NewReportStore(db *bun.DB) *ReportStore {
	return &ReportStore{db: db}
}

func (s *ReportStore) AppendReport(ctx context.Context, report domain.PerformanceReport) error {
	model := toReportModel(report)
	if _, err := s.db.NewInsert().Model(&model).Exec(ctx); err != nil {
		return fmt.Errorf("append report: %w", err)
	}
	return nil
}

func (s *ReportStore) ListByStudent(ctx context.Context, studentID string) ([]domain.PerformanceReport, error) {
	var models []reportModel
	err := s.db.NewSelect().Model(&models).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	reports := make([]domain.PerformanceReport, 0, len(models))
	for _, m := range models {
		reports = append(reports, fromReportModel(m))
	}
	return reports, nil
}

func toAttemptModel(a domain.Attempt) attemptModel {
	return attemptModel{
		ID:             a.ID,
		StudentID:      a.StudentID,
		QuizID:         a.QuizID,
		StartedAt:      a.StartedAt,
		CompletedAt:    a.CompletedAt,
		Score:          a.Score,
		MaxScore:       a.MaxScore,
		ElapsedSeconds: a.ElapsedSeconds,
		Completed:      a.Completed,
	}
}

func fromAttemptModel(m attemptModel) domain.Attempt {
	return domain.Attempt{
		ID:             m.ID,
		StudentID:      m.StudentID,
		QuizID:         m.QuizID,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
		Score:          m.Score,
		MaxScore:       m.MaxScore,
		ElapsedSeconds: m.ElapsedSeconds,
		Completed:      m.Completed,
	}
}

func fromAttemptModels(models []attemptModel) []domain.Attempt {
	attempts := make([]domain.Attempt, 0, len(models))
	for _, m := range models {
		attempts = append(attempts, fromAttemptModel(m))
	}
	return attempts
}

func toAnswerModel(a domain.Answer) answerModel {
	return answerModel{
		ID:         a.ID,
		AttemptID:  a.AttemptID,
		QuestionID: a.QuestionID,
		OptionID:   a.OptionID,
		Text:       a.Text,
		Correct:    a.Correct,
		Points:     a.Points,
		AnsweredAt: a.AnsweredAt,
	}
}

func fromAnswerModel(m answerModel) domain.Answer {
	return domain.Answer{
		ID:         m.ID,
		AttemptID:  m.AttemptID,
		QuestionID: m.QuestionID,
		OptionID:   m.OptionID,
		Text:       m.Text,
		Correct:    m.Correct,
		Points:     m.Points,
		AnsweredAt: m.AnsweredAt,
	}
}

func toRankingModel(e domain.RankingEntry) rankingModel {
	return rankingModel{
		StudentID:      e.StudentID,
		CategoryID:     e.CategoryID,
		StudentName:    e.StudentName,
		TotalScore:     e.TotalScore,
		AttemptCount:   e.AttemptCount,
		AveragePercent: e.AveragePercent,
		Rank:           e.Rank,
		UpdatedAt:      e.UpdatedAt,
	}
}

func fromRankingModels(models []rankingModel) []domain.RankingEntry {
	entries := make([]domain.RankingEntry, 0, len(models))
	for _, m := range models {
		entries = append(entries, domain.RankingEntry{
			StudentID:      m.StudentID,
			CategoryID:     m.CategoryID,
			StudentName:    m.StudentName,
			TotalScore:     m.TotalScore,
			AttemptCount:   m.AttemptCount,
			AveragePercent: m.AveragePercent,
			Rank:           m.Rank,
			UpdatedAt:      m.UpdatedAt,
		})
	}
	return entries
}

func toReportModel(r domain.PerformanceReport) reportModel {
	return reportModel{
		ID:             r.ID,
		StudentID:      r.StudentID,
		QuizID:         r.QuizID,
		AttemptID:      r.AttemptID,
		TotalQuestions: r.TotalQuestions,
		CorrectCount:   r.CorrectCount,
		IncorrectCount: r.IncorrectCount,
		Percent:        r.Percent,
		ElapsedSeconds: r.ElapsedSeconds,
		CreatedAt:      r.CreatedAt,
	}
}

func fromReportModel(m reportModel) domain.PerformanceReport {
	return domain.PerformanceReport{
		ID:             m.ID,
		StudentID:      m.StudentID,
		QuizID:         m.QuizID,
		AttemptID:      m.AttemptID,
		TotalQuestions: m.TotalQuestions,
		CorrectCount:   m.CorrectCount,
		IncorrectCount: m.IncorrectCount,
		Percent:        m.Percent,
		ElapsedSeconds: m.ElapsedSeconds,
		CreatedAt:      m.CreatedAt,
	}
}
