package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cyclemap/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockNetworkRepository is a mock of NetworkRepository
type MockNetworkRepository struct {
	mock.Mock
}

func (m *MockNetworkRepository) ListNetworks(ctx context.Context) ([]domain.Network, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Network), args.Error(1)
}

func (m *MockNetworkRepository) GetNetwork(ctx context.Context, id string) (*domain.NetworkDetails, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.NetworkDetails), args.Error(1)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRepo(upstream *MockNetworkRepository) (*CachedNetworkRepository, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}
	repo := NewCachedNetworkRepository(
		upstream,
		NewMemoryRepository(16, zap.NewNop()),
		NetworkCacheOptions{
			KeyPrefix: "test",
			ListTTL:   time.Hour,
			DetailTTL: 10 * time.Minute,
			MaxStale:  time.Hour,
		},
		nil,
		zap.NewNop(),
	)
	repo.now = clock.Now
	return repo, clock
}

var testNetworks = []domain.Network{
	{ID: "bicing", Name: "Bicing", Location: domain.Location{City: "Barcelona", Country: "ES", Latitude: 41.38, Longitude: 2.17}},
}

func TestCachedNetworkRepository_ListNetworks(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh entry is served without upstream call", func(t *testing.T) {
		upstream := &MockNetworkRepository{}
		upstream.On("ListNetworks", mock.Anything).Return(testNetworks, nil).Once()
		repo, clock := newTestRepo(upstream)

		first, err := repo.ListNetworks(ctx)
		require.NoError(t, err)
		assert.Equal(t, testNetworks, first)

		clock.Advance(30 * time.Minute)
		second, err := repo.ListNetworks(ctx)
		require.NoError(t, err)
		assert.Equal(t, testNetworks, second)

		upstream.AssertNumberOfCalls(t, "ListNetworks", 1)
	})

	t.Run("stale entry is served and refreshed in background", func(t *testing.T) {
		upstream := &MockNetworkRepository{}
		updated := []domain.Network{{ID: "velib", Name: "Vélib'"}}
		upstream.On("ListNetworks", mock.Anything).Return(testNetworks, nil).Once()
		upstream.On("ListNetworks", mock.Anything).Return(updated, nil)
		repo, clock := newTestRepo(upstream)

		_, err := repo.ListNetworks(ctx)
		require.NoError(t, err)

		clock.Advance(90 * time.Minute)
		stale, err := repo.ListNetworks(ctx)
		require.NoError(t, err)
		assert.Equal(t, testNetworks, stale)

		require.Eventually(t, func() bool {
			got, err := repo.ListNetworks(ctx)
			return err == nil && len(got) == 1 && got[0].ID == "velib"
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("expired entry blocks on upstream", func(t *testing.T) {
		upstream := &MockNetworkRepository{}
		upstream.On("ListNetworks", mock.Anything).Return(testNetworks, nil).Once()
		upstream.On("ListNetworks", mock.Anything).Return(nil, errors.New("upstream down")).Once()
		repo, clock := newTestRepo(upstream)

		_, err := repo.ListNetworks(ctx)
		require.NoError(t, err)

		clock.Advance(3 * time.Hour)
		networks, err := repo.ListNetworks(ctx)
		assert.Nil(t, networks)
		assert.EqualError(t, err, "upstream down")
	})

	t.Run("upstream error is propagated on miss", func(t *testing.T) {
		upstream := &MockNetworkRepository{}
		upstream.On("ListNetworks", mock.Anything).Return(nil, errors.New("boom")).Once()
		repo, _ := newTestRepo(upstream)

		_, err := repo.ListNetworks(ctx)
		assert.Error(t, err)
	})
}

func TestCachedNetworkRepository_GetNetwork(t *testing.T) {
	ctx := context.Background()

	t.Run("cached per id", func(t *testing.T) {
		upstream := &MockNetworkRepository{}
		details := &domain.NetworkDetails{
			Network:  testNetworks[0],
			Stations: []domain.Station{{ID: "s1", Name: "Gran Via", FreeBikes: 3}},
		}
		upstream.On("GetNetwork", mock.Anything, "bicing").Return(details, nil).Once()
		repo, clock := newTestRepo(upstream)

		got, err := repo.GetNetwork(ctx, "bicing")
		require.NoError(t, err)
		assert.Equal(t, details, got)

		clock.Advance(5 * time.Minute)
		again, err := repo.GetNetwork(ctx, "bicing")
		require.NoError(t, err)
		assert.Equal(t, 3, again.Stations[0].FreeBikes)

		upstream.AssertNumberOfCalls(t, "GetNetwork", 1)
	})

	t.Run("concurrent misses share one upstream call", func(t *testing.T) {
		var calls int32
		release := make(chan struct{})
		upstream := &MockNetworkRepository{}
		upstream.On("GetNetwork", mock.Anything, "bicing").
			Run(func(args mock.Arguments) {
				atomic.AddInt32(&calls, 1)
				<-release
			}).
			Return(&domain.NetworkDetails{Network: testNetworks[0]}, nil)
		repo, _ := newTestRepo(upstream)

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.GetNetwork(ctx, "bicing")
				assert.NoError(t, err)
			}()
		}

		require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestCachedNetworkRepository_RefreshNetworks(t *testing.T) {
	ctx := context.Background()
	upstream := &MockNetworkRepository{}
	upstream.On("ListNetworks", mock.Anything).Return(testNetworks, nil).Twice()
	repo, _ := newTestRepo(upstream)

	require.NoError(t, repo.RefreshNetworks(ctx))
	got, err := repo.ListNetworks(ctx)
	require.NoError(t, err)
	assert.Equal(t, testNetworks, got)

	require.NoError(t, repo.RefreshNetworks(ctx))
	upstream.AssertNumberOfCalls(t, "ListNetworks", 2)
}

func TestCachedNetworkRepository_SharedFetchOutlivesFirstCaller(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var fetchCtxErr atomic.Value

	upstream := &MockNetworkRepository{}
	upstream.On("ListNetworks", mock.Anything).Run(func(args mock.Arguments) {
		close(started)
		<-release
		fetchCtx := args.Get(0).(context.Context)
		fetchCtxErr.Store(fmt.Sprint(fetchCtx.Err()))
	}).Return(testNetworks, nil).Once()
	repo, _ := newTestRepo(upstream)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := repo.ListNetworks(firstCtx)
		firstErr <- err
	}()
	<-started

	secondResult := make(chan []domain.Network, 1)
	go func() {
		networks, err := repo.ListNetworks(context.Background())
		assert.NoError(t, err)
		secondResult <- networks
	}()
	// второй клиент присоединяется к той же загрузке
	time.Sleep(20 * time.Millisecond)

	// первый клиент отключился, пока апстрим ещё отвечает
	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	select {
	case networks := <-secondResult:
		assert.Equal(t, testNetworks, networks)
	case <-time.After(time.Second):
		t.Fatal("second caller did not get the shared result")
	}
	assert.Equal(t, "<nil>", fetchCtxErr.Load())

	// результат попал в кеш, апстрим больше не вызывается
	cached, err := repo.ListNetworks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testNetworks, cached)
	upstream.AssertNumberOfCalls(t, "ListNetworks", 1)
}
