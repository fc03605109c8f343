package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"eduquiz-service/internal/domain"
)

// CatalogLoader fetches raw quiz content from a backing store.
type CatalogLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// StaticCatalog is a map-backed catalog for tests and demo mode. It serves
// both as a loader and as a complete catalog repository.
type StaticCatalog struct {
	quizzes map[string]domain.Quiz
}

func NewStaticCatalog(quizzes map[string]domain.Quiz) *StaticCatalog {
	return &StaticCatalog{quizzes: quizzes}
}

func (c *StaticCatalog) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := c.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (c *StaticCatalog) GetActiveQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return activeQuiz(ctx, c, quizID)
}

func (c *StaticCatalog) GetActiveQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	quiz, err := c.GetActiveQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return quiz.ActiveQuestions(), nil
}

// ListActiveQuizzes returns the published quizzes in the static catalog.
func (c *StaticCatalog) ListActiveQuizzes(_ context.Context) ([]domain.Quiz, error) {
	quizzes := make([]domain.Quiz, 0, len(c.quizzes))
	for _, quiz := range c.quizzes {
		if quiz.Active && quiz.Public {
			quizzes = append(quizzes, quiz)
		}
	}
	return quizzes, nil
}

// CategoryOf resolves a quiz's category, for stores that need the mapping.
func (c *StaticCatalog) CategoryOf(quizID string) (string, bool) {
	quiz, ok := c.quizzes[quizID]
	if !ok {
		return "", false
	}
	return quiz.CategoryID, true
}

// CatalogCache caches loaded quizzes with TTL to avoid repeated store hits.
type CatalogCache struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewCatalogCache(loader CatalogLoader, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

func (c *CatalogCache) GetActiveQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return activeQuiz(ctx, c, quizID)
}

func (c *CatalogCache) GetActiveQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	quiz, err := c.GetActiveQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return quiz.ActiveQuestions(), nil
}

func (c *CatalogCache) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[quizID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.quiz, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[quizID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.quiz, nil
		}
		c.mu.RUnlock()

		quiz, err := c.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		c.mu.Lock()
		c.cache[quizID] = cachedQuiz{
			quiz:      quiz,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// activeQuiz loads via the loader and applies the active+public gate.
func activeQuiz(ctx context.Context, loader CatalogLoader, quizID string) (domain.Quiz, error) {
	quiz, err := loader.LoadQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if !quiz.Active || !quiz.Public {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

// StaticDirectory resolves display names from a fixed map; unknown students
// fall back to their ID.
type StaticDirectory struct {
	names map[string]string
}

func NewStaticDirectory(names map[string]string) *StaticDirectory {
	return &StaticDirectory{names: names}
}

func (d *StaticDirectory) DisplayName(_ context.Context, studentID string) (string, error) {
	if name, ok := d.names[studentID]; ok {
		return name, nil
	}
	return studentID, nil
}
