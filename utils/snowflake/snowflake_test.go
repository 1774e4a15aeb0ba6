package snowflake

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock 手动推进的时钟
type fakeClock struct {
	ms atomic.Int64
}

func newFakeClock(t time.Time) *fakeClock {
	c := &fakeClock{}
	c.ms.Store(t.UnixMilli())
	return c
}

func (c *fakeClock) Now() time.Time          { return time.UnixMilli(c.ms.Load()) }
func (c *fakeClock) Advance(d time.Duration) { c.ms.Add(d.Milliseconds()) }

func TestNewGenerator(t *testing.T) {
	tests := []struct {
		name     string
		workerID int64
		wantErr  error
	}{
		{"zero worker", 0, nil},
		{"max worker", MaxWorkerID, nil},
		{"negative worker", -1, ErrInvalidWorkerID},
		{"worker too large", MaxWorkerID + 1, ErrInvalidWorkerID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGenerator(tt.workerID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, g)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, g)
		})
	}
}

func TestNextID_Parse(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	g, err := NewGenerator(7, WithClock(clock.Now))
	require.NoError(t, err)

	id1, err := g.NextID()
	require.NoError(t, err)
	id2, err := g.NextID()
	require.NoError(t, err)

	ts, worker, seq := Parse(id1)
	assert.Equal(t, clock.Now().UnixMilli(), ts)
	assert.Equal(t, int64(7), worker)
	assert.Equal(t, int64(0), seq)

	_, _, seq2 := Parse(id2)
	assert.Equal(t, int64(1), seq2)
	assert.Equal(t, clock.Now().UTC(), Time(id2))
}

func TestNextID_ThreadSafety(t *testing.T) {
	g, err := NewGenerator(1)
	require.NoError(t, err)

	const goroutines, perGoroutine = 16, 500
	var mu sync.Mutex
	seen := make(map[int64]struct{}, goroutines*perGoroutine)

	var wg sync.WaitGroup
	for range goroutines {
		wg.Go(func() {
			local := make([]int64, 0, perGoroutine)
			for range perGoroutine {
				id, err := g.NextID()
				if err != nil {
					t.Error(err)
					return
				}
				local = append(local, id)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
		})
	}
	wg.Wait()
	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestSequenceOverflowWaitsForNextMillisecond(t *testing.T) {
	clock := newFakeClock(time.Now())
	g, err := NewGenerator(1, WithClock(clock.Now))
	require.NoError(t, err)

	for range sequenceMask + 1 {
		_, err := g.NextID()
		require.NoError(t, err)
	}

	done := make(chan int64)
	go func() {
		id, _ := g.NextID()
		done <- id
	}()

	select {
	case <-done:
		t.Fatal("NextID should block until the clock advances")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(time.Millisecond)
	select {
	case id := <-done:
		ts, _, seq := Parse(id)
		assert.Equal(t, clock.Now().UnixMilli(), ts)
		assert.Equal(t, int64(0), seq)
	case <-time.After(time.Second):
		t.Fatal("NextID did not resume after clock advanced")
	}
}

func TestClockMovedBackwards(t *testing.T) {
	clock := newFakeClock(time.Now())
	g, err := NewGenerator(1, WithClock(clock.Now))
	require.NoError(t, err)

	first, err := g.NextID()
	require.NoError(t, err)

	t.Run("large jump is rejected", func(t *testing.T) {
		clock.Advance(-time.Second)
		_, err := g.NextID()
		assert.ErrorIs(t, err, ErrClockMovedBackwards)
		clock.Advance(time.Second)
	})

	t.Run("small drift is absorbed", func(t *testing.T) {
		clock.Advance(-2 * time.Millisecond)
		go func() {
			time.Sleep(10 * time.Millisecond)
			clock.Advance(2 * time.Millisecond)
		}()
		id, err := g.NextID()
		require.NoError(t, err)
		assert.Greater(t, id, first)
	})
}

func BenchmarkNextID(b *testing.B) {
	g, _ := NewGenerator(1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = g.NextID()
	}
}
