package app

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"eduquiz-service/internal/domain"
)

// CatalogRepository is the read-only view of authored quiz content. Quizzes
// that are missing, inactive, or non-public are reported as not found.
type CatalogRepository interface {
	GetActiveQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	GetActiveQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// AttemptStore persists attempts and their answers. Implementations enforce
// the one-attempt-per-(student, quiz) rule on create and treat a second
// answer for the same (attempt, question) pair as a conflict.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, attempt domain.Attempt) error
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	GetAttemptForQuiz(ctx context.Context, studentID, quizID string) (domain.Attempt, error)
	// AddAnswer atomically inserts the answer and adds its points to the
	// attempt's running score, returning the new score.
	AddAnswer(ctx context.Context, answer domain.Answer) (int, error)
	ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error)
	// CompleteAttempt seals the attempt exactly once; a second call conflicts.
	CompleteAttempt(ctx context.Context, attemptID string, completedAt time.Time, elapsedSeconds int) (domain.Attempt, error)
	ListCompletedByCategory(ctx context.Context, studentID, categoryID string) ([]domain.Attempt, error)
	ListCompletedByStudent(ctx context.Context, studentID string) ([]domain.Attempt, error)
	ListByStudent(ctx context.Context, studentID string) ([]domain.Attempt, error)
}

// ReportStore appends write-once performance summaries.
type ReportStore interface {
	AppendReport(ctx context.Context, report domain.PerformanceReport) error
	ListByStudent(ctx context.Context, studentID string) ([]domain.PerformanceReport, error)
}

// AttemptService owns the attempt lifecycle: start, answer, complete. Ranking
// recompute and report writes are triggered from completion as best-effort
// derived state and never fail the completing call.
type AttemptService struct {
	catalog  CatalogRepository
	attempts AttemptStore
	reports  ReportStore
	ranking  *RankingService
	clock    func() time.Time
}

func NewAttemptService(catalog CatalogRepository, attempts AttemptStore, reports ReportStore, ranking *RankingService) *AttemptService {
	return &AttemptService{
		catalog:  catalog,
		attempts: attempts,
		reports:  reports,
		ranking:  ranking,
		clock:    time.Now,
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *AttemptService) WithClock(now func() time.Time) *AttemptService {
	s.clock = now
	return s
}

// Start creates the single attempt a student gets for a quiz and returns the
// first question with an initial progress snapshot.
func (s *AttemptService) Start(ctx context.Context, studentID, quizID string) (domain.AttemptStarted, error) {
	quiz, err := s.catalog.GetActiveQuiz(ctx, quizID)
	if err != nil {
		return domain.AttemptStarted{}, err
	}
	questions := quiz.ActiveQuestions()
	if len(questions) == 0 {
		return domain.AttemptStarted{}, domain.ErrQuizNotFound
	}

	attempt := domain.Attempt{
		ID:        uuid.NewString(),
		StudentID: studentID,
		QuizID:    quiz.ID,
		StartedAt: s.clock(),
		MaxScore:  len(questions),
	}
	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		return domain.AttemptStarted{}, err
	}

	return domain.AttemptStarted{
		AttemptID:     attempt.ID,
		QuizID:        quiz.ID,
		QuizTitle:     quiz.Title,
		FirstQuestion: questions[0].View(),
		Progress: domain.Progress{
			QuestionIndex:  1,
			TotalQuestions: len(questions),
		},
	}, nil
}

// SubmitAnswer scores and records one answer. Answering the final question
// seals the attempt and returns the final result instead of a next question.
func (s *AttemptService) SubmitAnswer(ctx context.Context, studentID, attemptID string, submission domain.AnswerSubmission) (domain.AnswerOutcome, error) {
	attempt, err := s.ownedAttempt(ctx, studentID, attemptID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if attempt.Completed {
		return domain.AnswerOutcome{}, domain.ErrAttemptCompleted
	}

	quiz, err := s.catalog.GetActiveQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	questions := quiz.ActiveQuestions()
	idx := -1
	for i := range questions {
		if questions[i].ID == submission.QuestionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.AnswerOutcome{}, domain.ErrQuestionNotFound
	}
	question := questions[idx]

	correct, points, err := scoreQuestion(question, submission.OptionID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}

	answer := domain.Answer{
		ID:         uuid.NewString(),
		AttemptID:  attempt.ID,
		QuestionID: question.ID,
		OptionID:   submission.OptionID,
		Text:       submission.Text,
		Correct:    correct,
		Points:     points,
		AnsweredAt: s.clock(),
	}
	if _, err := s.attempts.AddAnswer(ctx, answer); err != nil {
		return domain.AnswerOutcome{}, err
	}

	outcome := domain.AnswerOutcome{
		QuestionID:    question.ID,
		Correct:       correct,
		PointsAwarded: points,
	}
	if correctOpt, ok := question.CorrectOption(); ok {
		outcome.CorrectOptionID = correctOpt.ID
		outcome.CorrectOptionText = correctOpt.Text
	}

	if idx+1 < len(questions) {
		next := questions[idx+1].View()
		outcome.NextQuestion = &next
		return outcome, nil
	}

	// Last question answered: the attempt completes automatically.
	result, err := s.finalize(ctx, attempt.ID, quiz)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	outcome.Completed = true
	outcome.FinalResult = &result
	return outcome, nil
}

// SubmitFullQuiz applies all answers against a previously started attempt in
// one pass and seals it. Mutually exclusive with the per-question path: once
// either completes the attempt, the other conflicts.
func (s *AttemptService) SubmitFullQuiz(ctx context.Context, studentID, quizID string, submissions []domain.AnswerSubmission) (domain.QuizResult, error) {
	quiz, err := s.catalog.GetActiveQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizResult{}, err
	}
	attempt, err := s.attempts.GetAttemptForQuiz(ctx, studentID, quizID)
	if err != nil {
		return domain.QuizResult{}, err
	}
	if attempt.Completed {
		return domain.QuizResult{}, domain.ErrAttemptCompleted
	}

	questions := quiz.ActiveQuestions()
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	// Only the first answer per question counts: duplicates in the payload
	// and questions already answered through the per-question path are
	// skipped, never a mid-batch conflict.
	existing, err := s.attempts.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return domain.QuizResult{}, err
	}
	answered := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		answered[a.QuestionID] = struct{}{}
	}

	// Score everything up front so a configuration error surfaces before any
	// answer is persisted.
	now := s.clock()
	var answers []domain.Answer
	var reviews []domain.AnswerReview
	for _, sub := range submissions {
		question, ok := byID[sub.QuestionID]
		if !ok {
			continue
		}
		if _, dup := answered[question.ID]; dup {
			continue
		}
		answered[question.ID] = struct{}{}
		correct, points, err := scoreQuestion(question, sub.OptionID)
		if err != nil {
			return domain.QuizResult{}, err
		}
		answers = append(answers, domain.Answer{
			ID:         uuid.NewString(),
			AttemptID:  attempt.ID,
			QuestionID: question.ID,
			OptionID:   sub.OptionID,
			Text:       sub.Text,
			Correct:    correct,
			Points:     points,
			AnsweredAt: now,
		})
		review := domain.AnswerReview{
			QuestionID:       question.ID,
			SelectedOptionID: sub.OptionID,
			Correct:          correct,
			PointsAwarded:    points,
		}
		for _, opt := range question.Options {
			if opt.ID == sub.OptionID {
				review.SelectedText = opt.Text
			}
			if opt.Correct {
				review.CorrectOptionID = opt.ID
				review.CorrectOptionText = opt.Text
			}
		}
		reviews = append(reviews, review)
	}

	for _, answer := range answers {
		if _, err := s.attempts.AddAnswer(ctx, answer); err != nil {
			return domain.QuizResult{}, err
		}
	}

	result, err := s.finalize(ctx, attempt.ID, quiz)
	if err != nil {
		return domain.QuizResult{}, err
	}
	return domain.QuizResult{Result: result, Reviews: reviews}, nil
}

// GetProgress derives the attempt's position without changing state.
func (s *AttemptService) GetProgress(ctx context.Context, studentID, attemptID string) (domain.Progress, error) {
	attempt, err := s.ownedAttempt(ctx, studentID, attemptID)
	if err != nil {
		return domain.Progress{}, err
	}
	questions, err := s.catalog.GetActiveQuestions(ctx, attempt.QuizID)
	if err != nil {
		return domain.Progress{}, err
	}
	answers, err := s.attempts.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return domain.Progress{}, err
	}

	total := len(questions)
	answered := len(answers)
	percent := 0.0
	if total > 0 {
		percent = round1(float64(answered) / float64(total) * 100)
	}
	elapsed := attempt.ElapsedSeconds
	if !attempt.Completed {
		elapsed = int(s.clock().Sub(attempt.StartedAt).Seconds())
	}
	return domain.Progress{
		QuestionIndex:  answered + 1,
		TotalQuestions: total,
		PercentDone:    percent,
		CurrentScore:   attempt.Score,
		ElapsedSeconds: elapsed,
	}, nil
}

// Complete seals an attempt without requiring every question to be answered.
func (s *AttemptService) Complete(ctx context.Context, studentID, attemptID string) (domain.Result, error) {
	attempt, err := s.ownedAttempt(ctx, studentID, attemptID)
	if err != nil {
		return domain.Result{}, err
	}
	if attempt.Completed {
		return domain.Result{}, domain.ErrAttemptCompleted
	}
	quiz, err := s.catalog.GetActiveQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Result{}, err
	}
	return s.finalize(ctx, attempt.ID, quiz)
}

// AvailableQuizzes lists active public quizzes with the student's
// completed/remaining status. A quiz with any existing attempt is spent.
func (s *AttemptService) AvailableQuizzes(ctx context.Context, studentID string, quizzes []domain.Quiz) ([]domain.QuizStatus, error) {
	attempts, err := s.attempts.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]domain.Attempt, len(attempts))
	for _, a := range attempts {
		taken[a.QuizID] = a
	}

	statuses := make([]domain.QuizStatus, 0, len(quizzes))
	for _, quiz := range quizzes {
		if !quiz.Active || !quiz.Public {
			continue
		}
		questions := quiz.ActiveQuestions()
		status := domain.QuizStatus{
			QuizID:            quiz.ID,
			Title:             quiz.Title,
			CategoryID:        quiz.CategoryID,
			TotalQuestions:    len(questions),
			MaxScore:          len(questions),
			Available:         true,
			AttemptsRemaining: 1,
		}
		if attempt, ok := taken[quiz.ID]; ok {
			status.Completed = attempt.Completed
			status.Available = false
			status.AttemptsRemaining = 0
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (s *AttemptService) ownedAttempt(ctx context.Context, studentID, attemptID string) (domain.Attempt, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.StudentID != studentID {
		return domain.Attempt{}, domain.ErrNotAttemptOwner
	}
	return attempt, nil
}

// finalize seals the attempt, then writes the performance report and triggers
// the ranking recompute. The derived writes are logged on failure, never
// propagated: the completion itself has already committed.
func (s *AttemptService) finalize(ctx context.Context, attemptID string, quiz domain.Quiz) (domain.Result, error) {
	now := s.clock()
	current, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Result{}, err
	}
	elapsed := int(now.Sub(current.StartedAt).Seconds())
	sealed, err := s.attempts.CompleteAttempt(ctx, attemptID, now, elapsed)
	if err != nil {
		return domain.Result{}, err
	}

	answers, err := s.attempts.ListAnswers(ctx, sealed.ID)
	if err != nil {
		return domain.Result{}, err
	}
	correctCount := 0
	for _, a := range answers {
		if a.Correct {
			correctCount++
		}
	}
	total := len(quiz.ActiveQuestions())

	result := domain.Result{
		AttemptID:      sealed.ID,
		QuizID:         sealed.QuizID,
		Score:          sealed.Score,
		MaxScore:       sealed.MaxScore,
		Percent:        round1(sealed.Percent()),
		TotalQuestions: total,
		CorrectCount:   correctCount,
		IncorrectCount: len(answers) - correctCount,
		ElapsedSeconds: sealed.ElapsedSeconds,
		CompletedAt:    *sealed.CompletedAt,
	}

	report := domain.PerformanceReport{
		ID:             uuid.NewString(),
		StudentID:      sealed.StudentID,
		QuizID:         sealed.QuizID,
		AttemptID:      sealed.ID,
		TotalQuestions: total,
		CorrectCount:   correctCount,
		IncorrectCount: len(answers) - correctCount,
		Percent:        reportPercent(correctCount, total),
		ElapsedSeconds: sealed.ElapsedSeconds,
		CreatedAt:      now,
	}
	if err := s.reports.AppendReport(ctx, report); err != nil {
		log.Printf("append performance report for attempt %s: %v", sealed.ID, err)
	}

	if s.ranking != nil {
		if err := s.ranking.Recompute(ctx, sealed.StudentID, quiz.CategoryID); err != nil {
			log.Printf("recompute ranking for category %s: %v", quiz.CategoryID, err)
		}
	}
	return result, nil
}

func reportPercent(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(correct) / float64(total) * 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
