package memory

import (
	"context"
	"sync"
	"time"

	"eduquiz-service/internal/domain"
)

// AttemptStore is the in-memory implementation of app.AttemptStore. A single
// mutex gives it the check-then-insert atomicity the transactional store gets
// from the database.
type AttemptStore struct {
	categoryOf func(quizID string) (string, bool)

	mu       sync.RWMutex
	attempts map[string]domain.Attempt
	byPair   map[pairKey]string
	answers  map[string][]domain.Answer
	answered map[answerKey]struct{}
}

type pairKey struct{ studentID, quizID string }

type answerKey struct{ attemptID, questionID string }

// NewAttemptStore builds an AttemptStore. categoryOf resolves a quiz's
// category for the per-category scans; the static catalog's CategoryOf fits.
func NewAttemptStore(categoryOf func(quizID string) (string, bool)) *AttemptStore {
	return &AttemptStore{
		categoryOf: categoryOf,
		attempts:   make(map[string]domain.Attempt),
		byPair:     make(map[pairKey]string),
		answers:    make(map[string][]domain.Answer),
		answered:   make(map[answerKey]struct{}),
	}
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{attempt.StudentID, attempt.QuizID}
	if _, exists := s.byPair[key]; exists {
		return domain.ErrAttemptExists
	}
	s.byPair[key] = attempt.ID
	s.attempts[attempt.ID] = attempt
	return nil
}

func (s *AttemptStore) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptStore) GetAttemptForQuiz(_ context.Context, studentID, quizID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPair[pairKey{studentID, quizID}]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return s.attempts[id], nil
}

func (s *AttemptStore) AddAnswer(_ context.Context, answer domain.Answer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[answer.AttemptID]
	if !ok {
		return 0, domain.ErrAttemptNotFound
	}
	if attempt.Completed {
		return 0, domain.ErrAttemptCompleted
	}
	key := answerKey{answer.AttemptID, answer.QuestionID}
	if _, dup := s.answered[key]; dup {
		return 0, domain.ErrAlreadyAnswered
	}

	s.answered[key] = struct{}{}
	s.answers[answer.AttemptID] = append(s.answers[answer.AttemptID], answer)
	attempt.Score += answer.Points
	s.attempts[attempt.ID] = attempt
	return attempt.Score, nil
}

func (s *AttemptStore) ListAnswers(_ context.Context, attemptID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	answers := make([]domain.Answer, len(s.answers[attemptID]))
	copy(answers, s.answers[attemptID])
	return answers, nil
}

func (s *AttemptStore) CompleteAttempt(_ context.Context, attemptID string, completedAt time.Time, elapsedSeconds int) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if attempt.Completed {
		return domain.Attempt{}, domain.ErrAttemptCompleted
	}

	attempt.Completed = true
	attempt.CompletedAt = &completedAt
	attempt.ElapsedSeconds = elapsedSeconds
	s.attempts[attemptID] = attempt
	return attempt, nil
}

func (s *AttemptStore) ListCompletedByCategory(_ context.Context, studentID, categoryID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var completed []domain.Attempt
	for _, attempt := range s.attempts {
		if attempt.StudentID != studentID || !attempt.Completed {
			continue
		}
		if cat, ok := s.categoryOf(attempt.QuizID); ok && cat == categoryID {
			completed = append(completed, attempt)
		}
	}
	return completed, nil
}

func (s *AttemptStore) ListCompletedByStudent(_ context.Context, studentID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var completed []domain.Attempt
	for _, attempt := range s.attempts {
		if attempt.StudentID == studentID && attempt.Completed {
			completed = append(completed, attempt)
		}
	}
	return completed, nil
}

func (s *AttemptStore) ListByStudent(_ context.Context, studentID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var attempts []domain.Attempt
	for _, attempt := range s.attempts {
		if attempt.StudentID == studentID {
			attempts = append(attempts, attempt)
		}
	}
	return attempts, nil
}

// RankingStore is the in-memory implementation of app.RankingStore. The
// merge-and-rerank and the category swap both happen under one lock, so
// readers never see a half-rewritten category and concurrent upserts cannot
// lose each other's entries.
type RankingStore struct {
	mu       sync.RWMutex
	rankings map[string][]domain.RankingEntry
}

func NewRankingStore() *RankingStore {
	return &RankingStore{rankings: make(map[string][]domain.RankingEntry)}
}

func (s *RankingStore) ListByCategory(_ context.Context, categoryID string) ([]domain.RankingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.RankingEntry, len(s.rankings[categoryID]))
	copy(entries, s.rankings[categoryID])
	return entries, nil
}

func (s *RankingStore) ListByStudent(_ context.Context, studentID string) ([]domain.RankingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []domain.RankingEntry
	for _, category := range s.rankings {
		for _, e := range category {
			if e.StudentID == studentID {
				entries = append(entries, e)
			}
		}
	}
	return entries, nil
}

func (s *RankingStore) UpsertAndRerank(_ context.Context, entry domain.RankingEntry) ([]domain.RankingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.rankings[entry.CategoryID]
	merged := make([]domain.RankingEntry, 0, len(existing)+1)
	replaced := false
	for _, e := range existing {
		if e.StudentID == entry.StudentID {
			merged = append(merged, entry)
			replaced = true
			continue
		}
		merged = append(merged, e)
	}
	if !replaced {
		merged = append(merged, entry)
	}

	ranked := domain.RankEntries(merged)
	s.rankings[entry.CategoryID] = ranked

	out := make([]domain.RankingEntry, len(ranked))
	copy(out, ranked)
	return out, nil
}

func (s *RankingStore) ReplaceCategory(_ context.Context, categoryID string, entries []domain.RankingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replacement := make([]domain.RankingEntry, len(entries))
	copy(replacement, entries)
	s.rankings[categoryID] = replacement
	return nil
}

// ReportStore is the in-memory append-only report log.
type ReportStore struct {
	mu      sync.RWMutex
	reports []domain.PerformanceReport
}

func NewReportStore() *ReportStore {
	return &ReportStore{}
}

func (s *ReportStore) AppendReport(_ context.Context, report domain.PerformanceReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

func (s *ReportStore) ListByStudent(_ context.Context, studentID string) ([]domain.PerformanceReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var reports []domain.PerformanceReport
	for _, r := range s.reports {
		if r.StudentID == studentID {
			reports = append(reports, r)
		}
	}
	return reports, nil
}
