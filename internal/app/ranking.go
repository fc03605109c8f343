package app

import (
	"context"
	"sort"
	"strings"
	"time"

	"eduquiz-service/internal/domain"
)

// RankingStore persists the derived ranking table. UpsertAndRerank folds one
// student's fresh aggregate into the category and rewrites the dense ranks in
// a single atomic operation, so concurrent recomputes can never erase each
// other's entries and readers never observe a partially recomputed category.
type RankingStore interface {
	ListByCategory(ctx context.Context, categoryID string) ([]domain.RankingEntry, error)
	ListByStudent(ctx context.Context, studentID string) ([]domain.RankingEntry, error)
	UpsertAndRerank(ctx context.Context, entry domain.RankingEntry) ([]domain.RankingEntry, error)
}

// StudentDirectory resolves opaque student IDs to display names. Identity is
// issued elsewhere; this is a read-only collaborator.
type StudentDirectory interface {
	DisplayName(ctx context.Context, studentID string) (string, error)
}

// SnapshotCache is an optional read-through cache for category snapshots,
// invalidated on every recompute.
type SnapshotCache interface {
	Get(ctx context.Context, categoryID string) (domain.RankedList, bool)
	Set(ctx context.Context, list domain.RankedList)
	Invalidate(ctx context.Context, categoryID string)
}

// RankingService maintains the per-category ranking table. It is triggered
// synchronously after every attempt completion and rebuilds the triggering
// student's totals plus the dense rank of the whole category.
type RankingService struct {
	attempts  AttemptStore
	entries   RankingStore
	directory StudentDirectory
	cache     SnapshotCache
	feed      *RankingFeed
	clock     func() time.Time
}

func NewRankingService(attempts AttemptStore, entries RankingStore, directory StudentDirectory) *RankingService {
	return &RankingService{
		attempts:  attempts,
		entries:   entries,
		directory: directory,
		feed:      NewRankingFeed(),
		clock:     time.Now,
	}
}

// WithCache installs a snapshot cache in front of category reads.
func (s *RankingService) WithCache(cache SnapshotCache) *RankingService {
	s.cache = cache
	return s
}

// WithClock is test-only for deterministic timestamps.
func (s *RankingService) WithClock(now func() time.Time) *RankingService {
	s.clock = now
	return s
}

// Feed exposes the live snapshot stream for transport subscribers.
func (s *RankingService) Feed() *RankingFeed {
	return s.feed
}

// Recompute re-derives the student's entry from their completed attempts in
// the category; the store folds it in and rebuilds the dense ordering of the
// whole category in one atomic call.
func (s *RankingService) Recompute(ctx context.Context, studentID, categoryID string) error {
	attempts, err := s.attempts.ListCompletedByCategory(ctx, studentID, categoryID)
	if err != nil {
		return err
	}

	now := s.clock()
	entry := domain.RankingEntry{
		StudentID:    studentID,
		CategoryID:   categoryID,
		AttemptCount: len(attempts),
		UpdatedAt:    now,
	}
	var percentSum float64
	for _, a := range attempts {
		entry.TotalScore += a.Score
		percentSum += a.Percent()
	}
	if len(attempts) > 0 {
		entry.AveragePercent = percentSum / float64(len(attempts))
	}
	if s.directory != nil {
		if name, err := s.directory.DisplayName(ctx, studentID); err == nil {
			entry.StudentName = name
		}
	}

	ranked, err := s.entries.UpsertAndRerank(ctx, entry)
	if err != nil {
		return err
	}

	list := domain.RankedList{CategoryID: categoryID, Entries: ranked, UpdatedAt: now}
	if s.cache != nil {
		s.cache.Invalidate(ctx, categoryID)
		s.cache.Set(ctx, list)
	}
	if s.feed != nil {
		s.feed.Publish(categoryID, list)
	}
	return nil
}

// GetRanking returns the category's current ordering, optionally filtered by
// a case-insensitive display-name search. Filtering keeps the stored ranks so
// a search result still shows each student's true position.
func (s *RankingService) GetRanking(ctx context.Context, categoryID, search string) (domain.RankedList, error) {
	var list domain.RankedList
	if s.cache != nil && search == "" {
		if cached, ok := s.cache.Get(ctx, categoryID); ok {
			return cached, nil
		}
	}

	entries, err := s.entries.ListByCategory(ctx, categoryID)
	if err != nil {
		return domain.RankedList{}, err
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Rank < entries[j].Rank })

	if search != "" {
		needle := strings.ToLower(search)
		filtered := entries[:0]
		for _, e := range entries {
			if strings.Contains(strings.ToLower(e.StudentName), needle) ||
				strings.Contains(strings.ToLower(e.StudentID), needle) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	list = domain.RankedList{CategoryID: categoryID, Entries: entries, UpdatedAt: s.clock()}
	if s.cache != nil && search == "" {
		s.cache.Set(ctx, list)
	}
	return list, nil
}

// Position returns the student's rank in the category, zero when unranked.
func (s *RankingService) Position(ctx context.Context, studentID, categoryID string) (int, error) {
	entries, err := s.entries.ListByCategory(ctx, categoryID)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.StudentID == studentID {
			return e.Rank, nil
		}
	}
	return 0, nil
}
