package app

import (
	"sync"

	"eduquiz-service/internal/domain"
)

// RankingFeed fans recomputed category snapshots out to in-process
// subscribers (the websocket transport). Slow subscribers get their stale
// snapshot dropped rather than blocking the publisher.
type RankingFeed struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.RankedList]struct{}
	latest      map[string]domain.RankedList
}

func NewRankingFeed() *RankingFeed {
	return &RankingFeed{
		subscribers: make(map[string]map[chan domain.RankedList]struct{}),
		latest:      make(map[string]domain.RankedList),
	}
}

// Subscribe returns a channel of ranking snapshots for one category. The
// caller must invoke the returned cancel function to avoid leaks. If a
// snapshot already exists it is delivered immediately.
func (f *RankingFeed) Subscribe(categoryID string) (<-chan domain.RankedList, func()) {
	ch := make(chan domain.RankedList, 8)

	f.mu.Lock()
	subs, ok := f.subscribers[categoryID]
	if !ok {
		subs = make(map[chan domain.RankedList]struct{})
		f.subscribers[categoryID] = subs
	}
	subs[ch] = struct{}{}
	initial, hasInitial := f.latest[categoryID]
	f.mu.Unlock()

	if hasInitial {
		ch <- initial
	}

	cancel := func() {
		f.mu.Lock()
		if subs, ok := f.subscribers[categoryID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(f.subscribers, categoryID)
			}
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers a fresh snapshot to every subscriber of the category.
func (f *RankingFeed) Publish(categoryID string, list domain.RankedList) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.latest[categoryID] = list
	for ch := range f.subscribers[categoryID] {
		select {
		case ch <- list:
		default:
			// Drop the stale snapshot so the newest one always lands.
			select {
			case <-ch:
			default:
			}
			ch <- list
		}
	}
}
