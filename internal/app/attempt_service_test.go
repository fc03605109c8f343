package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"eduquiz-service/internal/app"
	"eduquiz-service/internal/domain"
	"eduquiz-service/internal/infra/memory"
)

type fixture struct {
	attempts *app.AttemptService
	ranking  *app.RankingService
	stats    *app.StatsService
	store    *memory.AttemptStore
	rankings *memory.RankingStore
	reports  *memory.ReportStore
	clock    *fakeClock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFixture() *fixture {
	catalog := memory.NewStaticCatalog(testQuizzes())
	store := memory.NewAttemptStore(catalog.CategoryOf)
	rankings := memory.NewRankingStore()
	reports := memory.NewReportStore()
	directory := memory.NewStaticDirectory(map[string]string{
		"s1": "Alice",
		"s2": "Bob",
	})
	clock := &fakeClock{now: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)}

	ranking := app.NewRankingService(store, rankings, directory).WithClock(clock.Now)
	attempts := app.NewAttemptService(catalog, store, reports, ranking).WithClock(clock.Now)
	stats := app.NewStatsService(catalog, store, reports, rankings).WithClock(clock.Now)
	return &fixture{
		attempts: attempts,
		ranking:  ranking,
		stats:    stats,
		store:    store,
		rankings: rankings,
		reports:  reports,
		clock:    clock,
	}
}

func testQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:         "quiz-1",
			Title:      "Fractions",
			CategoryID: "cat-math",
			Active:     true,
			Public:     true,
			Questions: []domain.Question{
				singleChoice("q1", "quiz-1", 1, "o1-right", "o1-wrong"),
				singleChoice("q2", "quiz-1", 2, "o2-right", "o2-wrong"),
				singleChoice("q3", "quiz-1", 3, "o3-right", "o3-wrong"),
			},
		},
		"quiz-2": {
			ID:         "quiz-2",
			Title:      "Decimals",
			CategoryID: "cat-math",
			Active:     true,
			Public:     true,
			Questions: []domain.Question{
				singleChoice("q4", "quiz-2", 1, "o4-right", "o4-wrong"),
			},
		},
		"quiz-hidden": {
			ID:         "quiz-hidden",
			Title:      "Draft Quiz",
			CategoryID: "cat-math",
			Active:     true,
			Public:     false,
			Questions: []domain.Question{
				singleChoice("q5", "quiz-hidden", 1, "o5-right", "o5-wrong"),
			},
		},
	}
}

func singleChoice(id, quizID string, order int, rightID, wrongID string) domain.Question {
	return domain.Question{
		ID:         id,
		QuizID:     quizID,
		Text:       "question " + id,
		Type:       domain.QuestionSingleChoice,
		Points:     1,
		OrderIndex: order,
		Active:     true,
		Options: []domain.Option{
			{ID: rightID, Text: "right", Correct: true, OrderIndex: 1},
			{ID: wrongID, Text: "wrong", OrderIndex: 2},
		},
	}
}

func TestStartReturnsFirstQuestionAndSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	started, err := f.attempts.Start(ctx, "s1", "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.FirstQuestion.ID != "q1" {
		t.Fatalf("expected first question q1, got %s", started.FirstQuestion.ID)
	}
	for _, opt := range started.FirstQuestion.Options {
		if opt.Text == "" {
			t.Fatalf("expected option text to survive sanitizing")
		}
	}
	p := started.Progress
	if p.QuestionIndex != 1 || p.TotalQuestions != 3 || p.PercentDone != 0 || p.CurrentScore != 0 || p.ElapsedSeconds != 0 {
		t.Fatalf("unexpected initial progress %+v", p)
	}
}

func TestStartTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	if _, err := f.attempts.Start(ctx, "s1", "quiz-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := f.attempts.Start(ctx, "s1", "quiz-1")
	if !errors.Is(err, domain.ErrAttemptExists) {
		t.Fatalf("expected attempt-exists conflict, got %v", err)
	}
}

func TestStartHiddenQuizIsNotFoundAndCreatesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.attempts.Start(ctx, "s1", "quiz-hidden")
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.store.GetAttemptForQuiz(ctx, "s1", "quiz-hidden"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected no attempt row, got %v", err)
	}

	// A second start must still be possible once the quiz goes public;
	// here we just confirm the unknown-quiz path matches.
	if _, err := f.attempts.Start(ctx, "s1", "quiz-missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found for missing quiz, got %v", err)
	}
}

func TestAnswerFlowScoresAndCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	started, err := f.attempts.Start(ctx, "s1", "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	f.clock.Advance(10 * time.Second)
	out, err := f.attempts.SubmitAnswer(ctx, "s1", started.AttemptID, domain.AnswerSubmission{QuestionID: "q1", OptionID: "o1-right"})
	if err != nil {
		t.Fatalf("submit q1: %v", err)
	}
	if !out.Correct || out.PointsAwarded != 1 {
		t.Fatalf("expected correct 1 point, got %+v", out)
	}
	if out.NextQuestion == nil || out.NextQuestion.ID != "q2" {
		t.Fatalf("expected next question q2, got %+v", out.NextQuestion)
	}

	f.clock.Advance(10 * time.Second)
	out, err = f.attempts.SubmitAnswer(ctx, "s1", started.AttemptID, domain.AnswerSubmission{QuestionID: "q2", OptionID: "o2-wrong"})
	if err != nil {
		t.Fatalf("submit q2: %v", err)
	}
	if out.Correct {
		t.Fatalf("expected q2 incorrect")
	}

	f.clock.Advance(10 * time.Second)
	out, err = f.attempts.SubmitAnswer(ctx, "s1", started.AttemptID, domain.AnswerSubmission{QuestionID: "q3", OptionID: "o3-right"})
	if err != nil {
		t.Fatalf("submit q3: %v", err)
	}
	if !out.Completed || out.FinalResult == nil {
		t.Fatalf("expected automatic completion on last question, got %+v", out)
	}

	final := out.FinalResult
	if final.Score != 2 || final.MaxScore != 3 {
		t.Fatalf("expected 2/3, got %d/%d", final.Score, final.MaxScore)
	}
	if final.Percent != 66.7 {
		t.Fatalf("expected 66.7 percent, got %v", final.Percent)
	}
	if final.ElapsedSeconds != 30 {
		t.Fatalf("expected 30s elapsed, got %d", final.ElapsedSeconds)
	}
	if final.CorrectCount != 2 || final.IncorrectCount != 1 {
		t.Fatalf("expected 2 correct 1 incorrect, got %+v", final)
	}

	// Score equals the sum of awarded points.
	answers, err := f.store.ListAnswers(ctx, started.AttemptID)
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	sum := 0
	for _, a := range answers {
		sum += a.Points
	}
	if sum != final.Score {
		t.Fatalf("answer points sum %d != score %d", sum, final.Score)
	}
}

func TestSubmitAnswerTwiceConflictsAndKeepsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	started, _ := f.attempts.Start(ctx, "s1", "quiz-1")
	if _, err := f.attempts.SubmitAnswer(ctx, "s1", started.AttemptID, domain.AnswerSubmission{QuestionID: "q1", OptionID: "o1-right"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err := f.attempts.SubmitAnswer(ctx, "s1", started.AttemptID, domain.AnswerSubmission{QuestionID: "q1", OptionID: "o1-wrong"})
	if !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected already-answered conflict, got %v", err)
	}

	attempt, err := f.store.GetAttempt(ctx, started.AttemptID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if attempt.Score != 1 {
		t.Fatalf("expected score unchanged at 1, got %d", attempt.Score)
	}
	answers, _ := f.store.ListAnswers(ctx, started.AttemptID)
	if len(answers) != 1 {
		t.Fatalf("expected a single answer row, got %d", len(answers))
	}
}

func TestSubmitAnswerChecksOwnershipAndQuestion(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	started, _ := f.attempts.Start(ctx, "s1", "quiz-1")

	_, err := f.attempts.SubmitAnswer(ctx, "s2", started.AttemptID, domain.AnswerSubmission{QuestionID: "q1", OptionID: "o1-right"})
	if !errors.Is(err, domain.ErrNotAttemptOwner) {
		t.Fatalf("expected ownership error, got %v", err)
	}

	_, err = f.attempts.SubmitAnswer(ctx, "s1", started.AttemptID, domain.AnswerSubmission{QuestionID: "q4", OptionID: "o4-right"})
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question-not-found for foreign question, got %v", err)
	}

	_, err = f.attempts.SubmitAnswer(ctx, "s1", "no-such-attempt", domain.AnswerSubmission{QuestionID: "q1", OptionID: "o1-right"})
	if !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt-not-found, got %v", err)
	}
}

func TestGetProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	started, _ := f.attempts.Start(ctx, "s1", "quiz-1")
	f.clock.Advance(45 * time.Second)
	if _, err := f.attempts.SubmitAnswer(ctx, "s1", started.AttemptID, domain.AnswerSubmission{QuestionID: "q1", OptionID: "o1-right"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	progress, err := f.attempts.GetProgress(ctx, "s1", started.AttemptID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if progress.QuestionIndex != 2 || progress.TotalQuestions != 3 {
		t.Fatalf("expected question 2 of 3, got %+v", progress)
	}
	if progress.PercentDone != 33.3 {
		t.Fatalf("expected 33.3 percent done, got %v", progress.PercentDone)
	}
	if progress.CurrentScore != 1 {
		t.Fatalf("expected current score 1, got %d", progress.CurrentScore)
	}
	if progress.ElapsedSeconds != 45 {
		t.Fatalf("expected 45s elapsed, got %d", progress.ElapsedSeconds)
	}
}

func TestCompleteIsIdempotentConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	started, _ := f.attempts.Start(ctx, "s1", "quiz-1")
	if _, err := f.attempts.SubmitAnswer(ctx, "s1", started.AttemptID, domain.AnswerSubmission{QuestionID: "q1", OptionID: "o1-right"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	result, err := f.attempts.Complete(ctx, "s1", started.AttemptID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.Score != 1 || result.MaxScore != 3 {
		t.Fatalf("expected 1/3 after early completion, got %d/%d", result.Score, result.MaxScore)
	}

	_, err = f.attempts.Complete(ctx, "s1", started.AttemptID)
	if !errors.Is(err, domain.ErrAttemptCompleted) {
		t.Fatalf("expected completed conflict, got %v", err)
	}

	// Ranking state is untouched by the failed second completion.
	list, err := f.ranking.GetRanking(ctx, "cat-math", "")
	if err != nil {
		t.Fatalf("ranking: %v", err)
	}
	if len(list.Entries) != 1 || list.Entries[0].TotalScore != 1 {
		t.Fatalf("expected single entry with total 1, got %+v", list.Entries)
	}

	_, err = f.attempts.SubmitAnswer(ctx, "s1", started.AttemptID, domain.AnswerSubmission{QuestionID: "q2", OptionID: "o2-right"})
	if !errors.Is(err, domain.ErrAttemptCompleted) {
		t.Fatalf("expected completed conflict on late answer, got %v", err)
	}
}

func TestSubmitFullQuiz(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	started, _ := f.attempts.Start(ctx, "s1", "quiz-1")
	f.clock.Advance(time.Minute)

	result, err := f.attempts.SubmitFullQuiz(ctx, "s1", "quiz-1", []domain.AnswerSubmission{
		{QuestionID: "q1", OptionID: "o1-right"},
		{QuestionID: "q2", OptionID: "o2-wrong"},
		{QuestionID: "q3", OptionID: "o3-right"},
	})
	if err != nil {
		t.Fatalf("submit full quiz: %v", err)
	}
	if result.AttemptID != started.AttemptID {
		t.Fatalf("expected the started attempt to be reused")
	}
	if result.Score != 2 || result.MaxScore != 3 {
		t.Fatalf("expected 2/3, got %d/%d", result.Score, result.MaxScore)
	}
	if result.ElapsedSeconds != 60 {
		t.Fatalf("expected 60s elapsed, got %d", result.ElapsedSeconds)
	}
	if len(result.Reviews) != 3 {
		t.Fatalf("expected 3 reviews, got %d", len(result.Reviews))
	}
	if !result.Reviews[0].Correct || result.Reviews[1].Correct {
		t.Fatalf("unexpected review correctness %+v", result.Reviews)
	}
	if result.Reviews[1].CorrectOptionID != "o2-right" {
		t.Fatalf("expected correct option echo, got %+v", result.Reviews[1])
	}
}

func TestSubmitFullQuizSkipsDuplicateAnswers(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	if _, err := f.attempts.Start(ctx, "s1", "quiz-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The payload answers q1 twice; only the first counts and the batch
	// still completes.
	result, err := f.attempts.SubmitFullQuiz(ctx, "s1", "quiz-1", []domain.AnswerSubmission{
		{QuestionID: "q1", OptionID: "o1-right"},
		{QuestionID: "q1", OptionID: "o1-wrong"},
		{QuestionID: "q2", OptionID: "o2-wrong"},
		{QuestionID: "q3", OptionID: "o3-right"},
	})
	if err != nil {
		t.Fatalf("submit full quiz: %v", err)
	}
	if result.Score != 2 || result.MaxScore != 3 {
		t.Fatalf("expected 2/3 with duplicate ignored, got %d/%d", result.Score, result.MaxScore)
	}
	if len(result.Reviews) != 3 {
		t.Fatalf("expected one review per question, got %d", len(result.Reviews))
	}
	if !result.Reviews[0].Correct || result.Reviews[0].SelectedOptionID != "o1-right" {
		t.Fatalf("expected the first q1 answer to stand, got %+v", result.Reviews[0])
	}
}

func TestSubmitFullQuizKeepsEarlierAnswers(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	started, _ := f.attempts.Start(ctx, "s1", "quiz-1")
	if _, err := f.attempts.SubmitAnswer(ctx, "s1", started.AttemptID, domain.AnswerSubmission{QuestionID: "q1", OptionID: "o1-wrong"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// q1 was already answered through the per-question path; the batch's q1
	// is ignored and the recorded wrong answer stands.
	result, err := f.attempts.SubmitFullQuiz(ctx, "s1", "quiz-1", []domain.AnswerSubmission{
		{QuestionID: "q1", OptionID: "o1-right"},
		{QuestionID: "q2", OptionID: "o2-right"},
		{QuestionID: "q3", OptionID: "o3-right"},
	})
	if err != nil {
		t.Fatalf("submit full quiz: %v", err)
	}
	if result.Score != 2 || result.MaxScore != 3 {
		t.Fatalf("expected 2/3 with the earlier q1 kept, got %d/%d", result.Score, result.MaxScore)
	}
	if len(result.Reviews) != 2 {
		t.Fatalf("expected reviews only for the batch-scored questions, got %d", len(result.Reviews))
	}

	answers, _ := f.store.ListAnswers(ctx, started.AttemptID)
	if len(answers) != 3 {
		t.Fatalf("expected 3 answer rows, got %d", len(answers))
	}
	for _, a := range answers {
		if a.QuestionID == "q1" && a.Correct {
			t.Fatalf("expected the original q1 answer to survive, got %+v", a)
		}
	}
}

func TestSubmitFullQuizRequiresStartedAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.attempts.SubmitFullQuiz(ctx, "s1", "quiz-1", []domain.AnswerSubmission{
		{QuestionID: "q1", OptionID: "o1-right"},
	})
	if !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt-not-found, got %v", err)
	}
}

func TestCompletionPathsAreMutuallyExclusive(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	// Per-question completion first, then the whole-quiz path must conflict.
	started, _ := f.attempts.Start(ctx, "s1", "quiz-2")
	if _, err := f.attempts.SubmitAnswer(ctx, "s1", started.AttemptID, domain.AnswerSubmission{QuestionID: "q4", OptionID: "o4-right"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err := f.attempts.SubmitFullQuiz(ctx, "s1", "quiz-2", []domain.AnswerSubmission{
		{QuestionID: "q4", OptionID: "o4-right"},
	})
	if !errors.Is(err, domain.ErrAttemptCompleted) {
		t.Fatalf("expected completed conflict, got %v", err)
	}

	// Whole-quiz completion first, then the per-question path must conflict.
	started2, _ := f.attempts.Start(ctx, "s2", "quiz-2")
	if _, err := f.attempts.SubmitFullQuiz(ctx, "s2", "quiz-2", []domain.AnswerSubmission{
		{QuestionID: "q4", OptionID: "o4-wrong"},
	}); err != nil {
		t.Fatalf("full quiz: %v", err)
	}
	_, err = f.attempts.SubmitAnswer(ctx, "s2", started2.AttemptID, domain.AnswerSubmission{QuestionID: "q4", OptionID: "o4-right"})
	if !errors.Is(err, domain.ErrAttemptCompleted) {
		t.Fatalf("expected completed conflict, got %v", err)
	}
}

func TestCompletionWritesReportOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	started, _ := f.attempts.Start(ctx, "s1", "quiz-2")
	f.clock.Advance(20 * time.Second)
	out, err := f.attempts.SubmitAnswer(ctx, "s1", started.AttemptID, domain.AnswerSubmission{QuestionID: "q4", OptionID: "o4-right"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !out.Completed {
		t.Fatalf("expected completion")
	}

	reports, err := f.reports.ListByStudent(ctx, "s1")
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %d", len(reports))
	}
	r := reports[0]
	if r.AttemptID != started.AttemptID || r.TotalQuestions != 1 || r.CorrectCount != 1 || r.IncorrectCount != 0 {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.Percent != 100 {
		t.Fatalf("expected 100 percent, got %v", r.Percent)
	}
	if r.ElapsedSeconds != 20 {
		t.Fatalf("expected 20s, got %d", r.ElapsedSeconds)
	}
}

func TestAvailableQuizzes(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	started, _ := f.attempts.Start(ctx, "s1", "quiz-2")
	if _, err := f.attempts.SubmitAnswer(ctx, "s1", started.AttemptID, domain.AnswerSubmission{QuestionID: "q4", OptionID: "o4-right"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	catalog := memory.NewStaticCatalog(testQuizzes())
	quizzes, _ := catalog.ListActiveQuizzes(ctx)
	statuses, err := f.attempts.AvailableQuizzes(ctx, "s1", quizzes)
	if err != nil {
		t.Fatalf("available quizzes: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 published quizzes, got %d", len(statuses))
	}
	for _, status := range statuses {
		switch status.QuizID {
		case "quiz-2":
			if status.Available || !status.Completed || status.AttemptsRemaining != 0 {
				t.Fatalf("expected quiz-2 spent, got %+v", status)
			}
		case "quiz-1":
			if !status.Available || status.AttemptsRemaining != 1 {
				t.Fatalf("expected quiz-1 available, got %+v", status)
			}
		default:
			t.Fatalf("unexpected quiz %s", status.QuizID)
		}
	}
}
