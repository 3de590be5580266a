package repositorycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-memoize/cache"
	"github.com/goliatone/go-memoize/memoize"
	"github.com/goliatone/go-memoize/pkg/testsupport"
)

// TestUser represents a test entity
type TestUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// mockRepository overrides the methods exercised here; anything else hits the nil
// embedded interface and panics.
type mockRepository struct {
	repository.Repository[*TestUser]

	mu    sync.Mutex
	calls map[string]int
	users map[string]*TestUser
	fail  error
	gate  chan struct{}
}

func newMockRepository(users ...*TestUser) *mockRepository {
	m := &mockRepository{calls: map[string]int{}, users: map[string]*TestUser{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockRepository) record(method string) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method]++
	return m.fail
}

func (m *mockRepository) count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *mockRepository) lookup(id string) (*TestUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *u
	return &copied, nil
}

func (m *mockRepository) Get(ctx context.Context, criteria ...repository.SelectCriteria) (*TestUser, error) {
	if err := m.record("Get"); err != nil {
		return nil, err
	}
	return &TestUser{ID: "first"}, nil
}

func (m *mockRepository) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*TestUser, error) {
	if err := m.record("GetByID"); err != nil {
		return nil, err
	}
	return m.lookup(id)
}

func (m *mockRepository) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*TestUser, error) {
	if err := m.record("GetByIdentifier"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Name == identifier {
			copied := *u
			return &copied, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *mockRepository) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]*TestUser, int, error) {
	if err := m.record("List"); err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*TestUser, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *mockRepository) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	if err := m.record("Count"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *mockRepository) Create(ctx context.Context, record *TestUser, criteria ...repository.InsertCriteria) (*TestUser, error) {
	if err := m.record("Create"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[record.ID] = record
	return record, nil
}

func (m *mockRepository) Update(ctx context.Context, record *TestUser, criteria ...repository.UpdateCriteria) (*TestUser, error) {
	if err := m.record("Update"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[record.ID] = record
	return record, nil
}

func (m *mockRepository) UpdateTx(ctx context.Context, tx bun.IDB, record *TestUser, criteria ...repository.UpdateCriteria) (*TestUser, error) {
	return m.Update(ctx, record, criteria...)
}

func (m *mockRepository) Delete(ctx context.Context, record *TestUser) error {
	if err := m.record("Delete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, record.ID)
	return nil
}

func (m *mockRepository) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	if err := m.record("DeleteWhere"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = map[string]*TestUser{}
	return nil
}

func newCached(t *testing.T, base *mockRepository, mutate ...func(*Config)) *CachedRepository[*TestUser] {
	t.Helper()
	cfg := DefaultConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}
	cached, err := New[*TestUser](base, cfg)
	require.NoError(t, err)
	return cached
}

func TestNew(t *testing.T) {
	t.Run("nil base", func(t *testing.T) {
		_, err := New[*TestUser](nil, DefaultConfig())
		require.Error(t, err)
		assert.ErrorIs(t, err, cache.ErrConfiguration)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxAge = -time.Second
		_, err := New[*TestUser](newMockRepository(), cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, cache.ErrConfiguration)
	})

	t.Run("method names", func(t *testing.T) {
		cached := newCached(t, newMockRepository())
		assert.Equal(t, "test_user.get_by_id", cached.getByID.Name())
		assert.Equal(t, "test_user.get_by_identifier", cached.getByIdentifier.Name())
		assert.Equal(t, "test_user.list", cached.list.Name())
	})
}

func TestCachedRepository_ReadsAreMemoized(t *testing.T) {
	ctx := context.Background()
	base := newMockRepository(&TestUser{ID: "1", Name: "ada"}, &TestUser{ID: "2", Name: "grace"})
	cached := newCached(t, base)

	first, err := cached.GetByID(ctx, "1")
	require.NoError(t, err)
	second, err := cached.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, base.count("GetByID"))

	_, err = cached.GetByID(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 2, base.count("GetByID"))

	byName, err := cached.GetByIdentifier(ctx, "grace")
	require.NoError(t, err)
	assert.Equal(t, "2", byName.ID)
	_, _ = cached.GetByIdentifier(ctx, "grace")
	assert.Equal(t, 1, base.count("GetByIdentifier"))

	records, total, err := cached.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 2, total)
	_, _, _ = cached.List(ctx)
	assert.Equal(t, 1, base.count("List"))

	n, err := cached.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, _ = cached.Count(ctx)
	assert.Equal(t, 1, base.count("Count"))

	_, _ = cached.Get(ctx)
	_, _ = cached.Get(ctx)
	assert.Equal(t, 1, base.count("Get"))

	stats := cached.Stats()
	assert.Equal(t, int64(3), stats["GetByID"].Calls)
	assert.Equal(t, int64(2), stats["GetByID"].Misses)
	assert.Equal(t, int64(1), stats["GetByID"].Hits)
}

func TestCachedRepository_CriteriaArePartOfTheKey(t *testing.T) {
	ctx := context.Background()
	base := newMockRepository(&TestUser{ID: "1"})
	cached := newCached(t, base)

	active := func(q *bun.SelectQuery) *bun.SelectQuery { return q }
	_, _, err := cached.List(ctx)
	require.NoError(t, err)
	_, _, err = cached.List(ctx, active)
	require.NoError(t, err)
	_, _, err = cached.List(ctx, active)
	require.NoError(t, err)

	assert.Equal(t, 2, base.count("List"))
}

func TestCachedRepository_CriteriaBuiltPerCallMiss(t *testing.T) {
	ctx := context.Background()
	base := newMockRepository(&TestUser{ID: "1"})
	cached := newCached(t, base)

	limit := func(n int) repository.SelectCriteria {
		return func(q *bun.SelectQuery) *bun.SelectQuery { return q.Limit(n) }
	}
	_, _, err := cached.List(ctx, limit(10))
	require.NoError(t, err)
	_, _, err = cached.List(ctx, limit(10))
	require.NoError(t, err)
	assert.Equal(t, 2, base.count("List"), "each closure instance is its own key")

	page := limit(10)
	_, _, err = cached.List(ctx, page)
	require.NoError(t, err)
	_, _, err = cached.List(ctx, page)
	require.NoError(t, err)
	assert.Equal(t, 3, base.count("List"), "a reused criteria value hits")
}

func TestCachedRepository_CriteriaAwareSerializer(t *testing.T) {
	ctx := context.Background()
	base := newMockRepository(&TestUser{ID: "1"})
	limit := func(n int) repository.SelectCriteria {
		return func(q *bun.SelectQuery) *bun.SelectQuery { return q.Limit(n) }
	}
	// Keys List calls by criteria count only; enough for a single page size.
	cached := newCached(t, base, func(cfg *Config) {
		cfg.Serializer = cache.SerializerFunc(func(args ...any) (string, error) {
			return fmt.Sprintf("criteria:%d", len(args)), nil
		})
	})

	_, _, err := cached.List(ctx, limit(10))
	require.NoError(t, err)
	_, _, err = cached.List(ctx, limit(10))
	require.NoError(t, err)
	assert.Equal(t, 1, base.count("List"))
}

func TestCachedRepository_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	base := newMockRepository(&TestUser{ID: "1"})
	base.fail = errors.New("connection reset")
	cached := newCached(t, base)

	_, err := cached.GetByID(ctx, "1")
	require.EqualError(t, err, "connection reset")
	assert.Zero(t, cached.getByID.Size())

	base.fail = nil
	user, err := cached.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "1", user.ID)
	assert.Equal(t, 2, base.count("GetByID"))

	base.fail = errors.New("timeout")
	_, _, err = cached.List(ctx)
	require.EqualError(t, err, "timeout")
}

func TestCachedRepository_ConcurrentReadsShareOneQuery(t *testing.T) {
	ctx := context.Background()
	base := newMockRepository(&TestUser{ID: "1"})
	base.gate = make(chan struct{})
	cached := newCached(t, base)

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if u, err := cached.GetByID(ctx, "1"); err == nil && u.ID == "1" {
				ok.Add(1)
			}
		}()
	}

	require.Eventually(t, func() bool {
		return cached.Stats()["GetByID"].Calls == 8
	}, time.Second, time.Millisecond)
	close(base.gate)
	wg.Wait()

	assert.Equal(t, int32(8), ok.Load())
	assert.Equal(t, 1, base.count("GetByID"))
}

// slowMetrics delays every hit and miss so racing readers overlap.
type slowMetrics struct {
	misses atomic.Int32
}

func (m *slowMetrics) SetAmount(int)    {}
func (m *slowMetrics) AddEvictions(int) {}
func (m *slowMetrics) IncHits()         { time.Sleep(time.Millisecond) }

func (m *slowMetrics) IncMisses() {
	time.Sleep(time.Millisecond)
	m.misses.Add(1)
}

func TestCachedRepository_RacingReadersShareOneQuery(t *testing.T) {
	ctx := context.Background()
	base := newMockRepository(&TestUser{ID: "1"})
	metrics := &slowMetrics{}
	cached, err := New[*TestUser](base, DefaultConfig(), memoize.WithMetrics(metrics))
	require.NoError(t, err)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			u, err := cached.GetByID(ctx, "1")
			if assert.NoError(t, err) {
				assert.Equal(t, "1", u.ID)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, base.count("GetByID"))
	assert.Equal(t, int32(1), metrics.misses.Load())
	assert.Equal(t, int64(1), cached.Stats()["GetByID"].Misses)
}

func TestCachedRepository_WritesInvalidate(t *testing.T) {
	ctx := context.Background()

	t.Run("create clears lists and counts", func(t *testing.T) {
		base := newMockRepository(&TestUser{ID: "1", Name: "ada"})
		cached := newCached(t, base)

		_, _ = cached.GetByID(ctx, "1")
		_, _ = cached.Count(ctx)
		_, _, _ = cached.List(ctx)

		_, err := cached.Create(ctx, &TestUser{ID: "2", Name: "grace"})
		require.NoError(t, err)

		n, err := cached.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		records, _, _ := cached.List(ctx)
		assert.Len(t, records, 2)
		_, _ = cached.GetByID(ctx, "1")

		assert.Equal(t, 2, base.count("Count"))
		assert.Equal(t, 2, base.count("List"))
		assert.Equal(t, 1, base.count("GetByID"))
	})

	t.Run("update forgets only the changed record", func(t *testing.T) {
		base := newMockRepository(&TestUser{ID: "1", Name: "ada"}, &TestUser{ID: "2", Name: "grace"})
		cached := newCached(t, base)

		_, _ = cached.GetByID(ctx, "1")
		_, _ = cached.GetByID(ctx, "2")
		_, _ = cached.GetByIdentifier(ctx, "ada")

		_, err := cached.Update(ctx, &TestUser{ID: "1", Name: "ada"})
		require.NoError(t, err)

		assert.False(t, cached.getByID.Has("1"))
		assert.True(t, cached.getByID.Has("2"))
		assert.False(t, cached.getByIdentifier.Has("ada"))

		user, err := cached.GetByID(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, "ada", user.Name)
		assert.Equal(t, 3, base.count("GetByID"))
	})

	t.Run("transactional update", func(t *testing.T) {
		base := newMockRepository(&TestUser{ID: "1", Name: "ada"})
		cached := newCached(t, base)

		_, _ = cached.GetByID(ctx, "1")
		_, err := cached.UpdateTx(ctx, nil, &TestUser{ID: "1", Name: "lovelace"})
		require.NoError(t, err)

		user, err := cached.GetByID(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, "lovelace", user.Name)
	})

	t.Run("delete forgets the record", func(t *testing.T) {
		base := newMockRepository(&TestUser{ID: "1", Name: "ada"})
		cached := newCached(t, base)

		_, err := cached.GetByID(ctx, "1")
		require.NoError(t, err)
		require.NoError(t, cached.Delete(ctx, &TestUser{ID: "1"}))

		_, err = cached.GetByID(ctx, "1")
		assert.EqualError(t, err, "not found")
	})

	t.Run("criteria delete clears everything", func(t *testing.T) {
		base := newMockRepository(&TestUser{ID: "1", Name: "ada"})
		cached := newCached(t, base)

		_, _ = cached.GetByID(ctx, "1")
		_, _ = cached.Count(ctx)
		require.NoError(t, cached.DeleteWhere(ctx))

		assert.Zero(t, cached.getByID.Size())
		assert.Zero(t, cached.count.Size())
	})

	t.Run("failed writes keep the cache", func(t *testing.T) {
		base := newMockRepository(&TestUser{ID: "1", Name: "ada"})
		cached := newCached(t, base)

		_, _ = cached.GetByID(ctx, "1")
		base.fail = errors.New("constraint violation")
		_, err := cached.Update(ctx, &TestUser{ID: "1"})
		require.Error(t, err)

		assert.True(t, cached.getByID.Has("1"))
	})
}

func TestCachedRepository_WithoutCache(t *testing.T) {
	ctx := context.Background()
	base := newMockRepository(&TestUser{ID: "1"})
	cached := newCached(t, base)

	direct := WithoutCache(ctx)
	_, _ = cached.GetByID(direct, "1")
	_, _ = cached.GetByID(direct, "1")
	_, _ = cached.Count(direct)

	assert.Equal(t, 2, base.count("GetByID"))
	assert.Zero(t, cached.getByID.Size())
	assert.Zero(t, cached.count.Size())
}

func TestCachedRepository_Expiration(t *testing.T) {
	ctx := context.Background()
	sched := testsupport.NewManualScheduler()
	base := newMockRepository(&TestUser{ID: "1"})
	cached := newCached(t, base, func(c *Config) {
		c.MaxAge = time.Minute
		c.Scheduler = sched
	})

	_, err := cached.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.True(t, cached.getByID.Has("1"))

	sched.Advance(time.Minute)
	assert.False(t, cached.getByID.Has("1"))

	_, err = cached.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 2, base.count("GetByID"))
}

func TestCachedRepository_MaxSize(t *testing.T) {
	ctx := context.Background()
	base := newMockRepository(&TestUser{ID: "1"}, &TestUser{ID: "2"}, &TestUser{ID: "3"})
	cached := newCached(t, base, func(c *Config) { c.MaxSize = 2 })

	for _, id := range []string{"1", "2", "3"} {
		_, err := cached.GetByID(ctx, id)
		require.NoError(t, err)
	}

	assert.Equal(t, [][]any{{"3"}, {"2"}}, cached.getByID.Keys())
	assert.Equal(t, int64(1), cached.Stats()["GetByID"].Evictions)
}

func TestCachedRepository_Invalidate(t *testing.T) {
	ctx := context.Background()
	base := newMockRepository(&TestUser{ID: "1", Name: "ada"})
	cached := newCached(t, base)

	_, _ = cached.Get(ctx)
	_, _ = cached.GetByID(ctx, "1")
	_, _ = cached.GetByIdentifier(ctx, "ada")
	_, _, _ = cached.List(ctx)
	_, _ = cached.Count(ctx)

	cached.Invalidate()

	for name, f := range map[string]interface{ Size() int }{
		"get":             cached.get,
		"getByID":         cached.getByID,
		"getByIdentifier": cached.getByIdentifier,
		"list":            cached.list,
		"count":           cached.count,
	} {
		assert.Zerof(t, f.Size(), "%s still holds entries", name)
	}
}

func TestExtractField(t *testing.T) {
	type plain struct{ Code string }
	type numeric struct{ Id int }

	tests := []struct {
		name   string
		record any
		fields []string
		want   string
		ok     bool
	}{
		{"pointer", &TestUser{ID: "7"}, []string{"ID"}, "7", true},
		{"value", TestUser{Name: "ada"}, []string{"Identifier", "Name"}, "ada", true},
		{"numeric id", numeric{Id: 42}, []string{"ID", "Id"}, "42", true},
		{"fallback order", plain{Code: "x"}, []string{"Name", "Code"}, "x", true},
		{"missing", plain{}, []string{"ID"}, "", false},
		{"nil pointer", (*TestUser)(nil), []string{"ID"}, "", false},
		{"not a struct", "text", []string{"ID"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractField(tt.record, tt.fields...)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
