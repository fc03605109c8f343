package app

import (
	"context"
	"sort"
	"time"

	"eduquiz-service/internal/domain"
)

// StatsService derives the student-facing dashboard and performance history
// from attempts, ranking entries, and persisted reports.
type StatsService struct {
	catalog  CatalogRepository
	attempts AttemptStore
	reports  ReportStore
	entries  RankingStore
	clock    func() time.Time
}

func NewStatsService(catalog CatalogRepository, attempts AttemptStore, reports ReportStore, entries RankingStore) *StatsService {
	return &StatsService{
		catalog:  catalog,
		attempts: attempts,
		reports:  reports,
		entries:  entries,
		clock:    time.Now,
	}
}

// WithClock is test-only for deterministic streak computation.
func (s *StatsService) WithClock(now func() time.Time) *StatsService {
	s.clock = now
	return s
}

// Dashboard summarizes the student's standing: completed count, overall
// average, best rank position, accumulated points, streak, and recent quizzes.
func (s *StatsService) Dashboard(ctx context.Context, studentID string) (domain.Dashboard, error) {
	completed, err := s.attempts.ListCompletedByStudent(ctx, studentID)
	if err != nil {
		return domain.Dashboard{}, err
	}

	var percentSum float64
	for _, a := range completed {
		percentSum += a.Percent()
	}
	average := 0.0
	if len(completed) > 0 {
		average = round1(percentSum / float64(len(completed)))
	}

	rankings, err := s.entries.ListByStudent(ctx, studentID)
	if err != nil {
		return domain.Dashboard{}, err
	}
	position := 0
	points := 0
	for _, e := range rankings {
		points += e.TotalScore
		if position == 0 || (e.Rank > 0 && e.Rank < position) {
			position = e.Rank
		}
	}

	recent, err := s.recentQuizzes(ctx, completed)
	if err != nil {
		return domain.Dashboard{}, err
	}

	return domain.Dashboard{
		CompletedQuizzes: len(completed),
		AveragePercent:   average,
		RankPosition:     position,
		TotalPoints:      points,
		StreakDays:       streakDays(completed, s.clock()),
		RecentQuizzes:    recent,
	}, nil
}

// PerformanceHistory lists the student's persisted reports, newest first,
// joined with catalog titles where the quiz is still published.
func (s *StatsService) PerformanceHistory(ctx context.Context, studentID string) ([]domain.PerformanceRecord, error) {
	reports, err := s.reports.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})

	records := make([]domain.PerformanceRecord, 0, len(reports))
	for _, r := range reports {
		record := domain.PerformanceRecord{
			QuizID:         r.QuizID,
			Percent:        r.Percent,
			Score:          r.CorrectCount,
			MaxScore:       r.TotalQuestions,
			ElapsedSeconds: r.ElapsedSeconds,
			CompletedAt:    r.CreatedAt,
		}
		if quiz, err := s.catalog.GetActiveQuiz(ctx, r.QuizID); err == nil {
			record.QuizTitle = quiz.Title
			record.CategoryID = quiz.CategoryID
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *StatsService) recentQuizzes(ctx context.Context, completed []domain.Attempt) ([]domain.RecentQuiz, error) {
	sorted := make([]domain.Attempt, len(completed))
	copy(sorted, completed)
	sort.SliceStable(sorted, func(i, j int) bool {
		return completionTime(sorted[i]).After(completionTime(sorted[j]))
	})
	if len(sorted) > 5 {
		sorted = sorted[:5]
	}

	recent := make([]domain.RecentQuiz, 0, len(sorted))
	for _, a := range sorted {
		line := domain.RecentQuiz{
			QuizID:      a.QuizID,
			Percent:     round1(a.Percent()),
			CompletedAt: completionTime(a),
		}
		if quiz, err := s.catalog.GetActiveQuiz(ctx, a.QuizID); err == nil {
			line.Title = quiz.Title
			line.CategoryID = quiz.CategoryID
		}
		recent = append(recent, line)
	}
	return recent, nil
}

// streakDays counts consecutive days with at least one completed attempt,
// scanning distinct completion dates back from today.
func streakDays(completed []domain.Attempt, now time.Time) int {
	seen := make(map[time.Time]struct{})
	for _, a := range completed {
		day := completionTime(a).UTC().Truncate(24 * time.Hour)
		seen[day] = struct{}{}
	}
	if len(seen) == 0 {
		return 0
	}

	days := make([]time.Time, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	streak := 0
	today := now.UTC().Truncate(24 * time.Hour)
	for _, day := range days {
		if day.Equal(today.AddDate(0, 0, -streak)) {
			streak++
			continue
		}
		break
	}
	return streak
}

func completionTime(a domain.Attempt) time.Time {
	if a.CompletedAt != nil {
		return *a.CompletedAt
	}
	return a.StartedAt
}
