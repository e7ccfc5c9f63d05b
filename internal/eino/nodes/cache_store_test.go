package nodes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rag-gateway/internal/domain/models"
	"rag-gateway/pkg/logger"
)

type mapRepo struct {
	mu      sync.Mutex
	entries map[string]*models.CacheEntry

	getErr error
	putErr error

	deleted []string
}

func newMapRepo() *mapRepo {
	return &mapRepo{entries: make(map[string]*models.CacheEntry)}
}

func (r *mapRepo) Get(_ context.Context, key string) (*models.CacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.entries[key], nil
}

func (r *mapRepo) Put(_ context.Context, entry *models.CacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.putErr != nil {
		return r.putErr
	}
	r.entries[entry.Key] = entry
	return nil
}

func (r *mapRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
	r.deleted = append(r.deleted, key)
	return nil
}

func (r *mapRepo) DeleteExpired(_ context.Context, key string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[key]
	if !ok || !entry.Expired(now) {
		return false, nil
	}
	delete(r.entries, key)
	r.deleted = append(r.deleted, key)
	return true, nil
}

// staleReadRepo 模拟读取之后、清理之前另一个请求写入了新条目
type staleReadRepo struct {
	*mapRepo
	stale *models.CacheEntry
}

func (r *staleReadRepo) Get(context.Context, string) (*models.CacheEntry, error) {
	return r.stale, nil
}

// deleteOnlyRepo 不支持原子清理的仓储
type deleteOnlyRepo struct {
	inner *mapRepo
}

func (r deleteOnlyRepo) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	return r.inner.Get(ctx, key)
}

func (r deleteOnlyRepo) Put(ctx context.Context, entry *models.CacheEntry) error {
	return r.inner.Put(ctx, entry)
}

func (r deleteOnlyRepo) Delete(ctx context.Context, key string) error {
	return r.inner.Delete(ctx, key)
}

func testResult() *models.PipelineResult {
	score := 0.87
	return &models.PipelineResult{
		Query:           "What is Bedrock?",
		Answer:          "A managed service.",
		Sources:         []models.Source{{Title: "guide.pdf", URI: "guide.pdf", Score: &score}},
		ExecutionTimeMs: 1200,
	}
}

func TestCacheStore_PutThenGet(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	repo := newMapRepo()
	store := NewCacheStore(repo, time.Hour, logger.Nop(), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if !store.Put(ctx, "What is Bedrock?", testResult(), 0) {
		t.Fatal("Put() = false, want true")
	}

	// 首尾空白不影响键
	entry, ok := store.Get(ctx, "  What is Bedrock?\n")
	if !ok {
		t.Fatal("Get() miss, want hit")
	}
	if entry.Answer != "A managed service." || len(entry.Sources) != 1 {
		t.Errorf("entry = %+v", entry)
	}
	if entry.TTL != now.Add(time.Hour).Unix() {
		t.Errorf("TTL = %d, want %d", entry.TTL, now.Add(time.Hour).Unix())
	}
}

func TestCacheStore_ExpiredIsMissAndDeleted(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	repo := newMapRepo()
	store := NewCacheStore(repo, time.Hour, logger.Nop(), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	store.Put(ctx, "q", testResult(), 10*time.Second)

	// 恰好到达过期时间也视为过期
	now = now.Add(10 * time.Second)
	if _, ok := store.Get(ctx, "q"); ok {
		t.Fatal("Get() hit on expired entry")
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != models.QueryKey("q") {
		t.Errorf("deleted = %v", repo.deleted)
	}
}

func TestCacheStore_ExpiredPurgeKeepsConcurrentWrite(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := WithClock(func() time.Time { return now })
	inner := newMapRepo()
	ctx := context.Background()

	old := models.NewCacheEntry("q", testResult(), now.Add(-time.Hour), time.Minute)
	fresh := models.NewCacheEntry("q", testResult(), now, time.Hour)
	fresh.Answer = "fresh"
	inner.entries[fresh.Key] = fresh

	store := NewCacheStore(&staleReadRepo{mapRepo: inner, stale: old}, time.Hour, logger.Nop(), clock)
	if _, ok := store.Get(ctx, "q"); ok {
		t.Fatal("Get() hit on expired entry")
	}

	if len(inner.deleted) != 0 {
		t.Errorf("deleted = %v, want none", inner.deleted)
	}
	if got := inner.entries[fresh.Key]; got == nil || got.Answer != "fresh" {
		t.Errorf("fresh entry lost: %+v", got)
	}
}

func TestCacheStore_ExpiredWithoutPurgerLeavesEntry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	inner := newMapRepo()
	store := NewCacheStore(deleteOnlyRepo{inner: inner}, time.Hour, logger.Nop(), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	store.Put(ctx, "q", testResult(), time.Second)
	now = now.Add(time.Minute)

	if _, ok := store.Get(ctx, "q"); ok {
		t.Fatal("Get() hit on expired entry")
	}
	if len(inner.deleted) != 0 {
		t.Errorf("deleted = %v, want none", inner.deleted)
	}
}

func TestCacheStore_FailuresAreSwallowed(t *testing.T) {
	repo := newMapRepo()
	repo.getErr = errors.New("store down")
	repo.putErr = errors.New("store down")
	store := NewCacheStore(repo, time.Hour, logger.Nop())
	ctx := context.Background()

	if _, ok := store.Get(ctx, "q"); ok {
		t.Error("Get() should miss when store fails")
	}
	if store.Put(ctx, "q", testResult(), 0) {
		t.Error("Put() should report false when store fails")
	}
}

func TestCacheStore_Disabled(t *testing.T) {
	repo := newMapRepo()
	store := NewCacheStore(repo, time.Hour, logger.Nop(), WithCacheEnabled(false))
	ctx := context.Background()

	if store.Put(ctx, "q", testResult(), 0) {
		t.Error("Put() should be skipped when disabled")
	}
	if len(repo.entries) != 0 {
		t.Error("disabled store wrote an entry")
	}
	if _, ok := store.Get(ctx, "q"); ok {
		t.Error("Get() should miss when disabled")
	}
}

func TestCacheStore_PutOverwrites(t *testing.T) {
	repo := newMapRepo()
	store := NewCacheStore(repo, time.Hour, logger.Nop())
	ctx := context.Background()

	first := testResult()
	second := testResult()
	second.Answer = "Updated."

	store.Put(ctx, "q", first, 0)
	store.Put(ctx, "q", second, 0)

	entry, ok := store.Lookup(ctx, models.QueryKey("q"))
	if !ok || entry.Answer != "Updated." {
		t.Errorf("entry = %+v, ok = %v", entry, ok)
	}
}
