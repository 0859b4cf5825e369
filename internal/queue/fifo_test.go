package queue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intelliqueue/internal/domain"
)

func TestFIFOOrder(t *testing.T) {
	q := NewFIFO()
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(fmt.Sprintf("t%d", i)))
	}
	assert.Equal(t, 10, q.Depth())

	for i := 0; i < 10; i++ {
		id, ok := q.DequeueFront()
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("t%d", i), id)
	}
	_, ok := q.DequeueFront()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Depth())
}

func TestRequeueGoesToTail(t *testing.T) {
	q := NewFIFO()
	require.NoError(t, q.Enqueue("a"))
	require.NoError(t, q.Enqueue("b"))
	require.NoError(t, q.Enqueue("c"))

	head, _ := q.DequeueFront()
	require.Equal(t, "a", head)
	require.NoError(t, q.Enqueue(head))

	assert.Equal(t, []string{"b", "c", "a"}, q.IDs())
}

func TestDuplicateEntry(t *testing.T) {
	q := NewFIFO()
	require.NoError(t, q.Enqueue("a"))
	err := q.Enqueue("a")
	assert.ErrorIs(t, err, domain.ErrDuplicateEntry)
	assert.Equal(t, 1, q.Depth())

	_, _ = q.DequeueFront()
	assert.False(t, q.Contains("a"))
	assert.NoError(t, q.Enqueue("a"), "a dequeued id may be enqueued again")
}

func TestReset(t *testing.T) {
	q := NewFIFO()
	_ = q.Enqueue("a")
	_ = q.Enqueue("b")
	q.Reset()
	assert.Equal(t, 0, q.Depth())
	assert.False(t, q.Contains("a"))
	assert.NoError(t, q.Enqueue("a"))
}

func TestConcurrentProducersSingleConsumer(t *testing.T) {
	q := NewFIFO()
	const producers, perProducer = 8, 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, q.Enqueue(fmt.Sprintf("p%d-%d", p, i)))
			}
		}(p)
	}

	seen := map[string]bool{}
	lastByProducer := map[int]int{}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	drain := func() {
		for {
			id, ok := q.DequeueFront()
			if !ok {
				return
			}
			var p, i int
			_, err := fmt.Sscanf(id, "p%d-%d", &p, &i)
			require.NoError(t, err)
			if last, ok := lastByProducer[p]; ok {
				assert.Greater(t, i, last, "per-producer order must be preserved")
			}
			lastByProducer[p] = i
			assert.False(t, seen[id])
			seen[id] = true
		}
	}

	for {
		select {
		case <-done:
			drain()
			assert.Len(t, seen, producers*perProducer)
			return
		default:
			drain()
		}
	}
}
