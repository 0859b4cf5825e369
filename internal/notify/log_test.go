package notify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intelliqueue/internal/domain"
)

func TestAppendAndList(t *testing.T) {
	l := NewLog(DefaultCapacity)
	first := l.Append(domain.NotificationInfo, "one", "")
	second := l.Append(domain.NotificationSuccess, "two", "tsk_1")

	list := l.List()
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0], "most recent first")
	assert.Equal(t, first, list[1])
	assert.Equal(t, "tsk_1", list[0].TaskID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.Timestamp.IsZero())
}

func TestCapacityBound(t *testing.T) {
	l := NewLog(DefaultCapacity)
	var oldest domain.Notification
	for i := 0; i < DefaultCapacity; i++ {
		n := l.Append(domain.NotificationInfo, fmt.Sprintf("msg %d", i), "")
		if i == 0 {
			oldest = n
		}
	}
	require.Equal(t, DefaultCapacity, l.Len())
	assert.Equal(t, oldest, l.List()[DefaultCapacity-1])

	newest := l.Append(domain.NotificationInfo, "msg 100", "")
	list := l.List()
	assert.Len(t, list, DefaultCapacity)
	assert.Equal(t, newest, list[0])
	for _, n := range list {
		assert.NotEqual(t, oldest.ID, n.ID, "oldest entry must be evicted")
	}
	assert.Equal(t, "msg 1", list[DefaultCapacity-1].Message)
}

func TestWrapAroundKeepsOrder(t *testing.T) {
	l := NewLog(3)
	for i := 0; i < 7; i++ {
		l.Append(domain.NotificationInfo, fmt.Sprintf("%d", i), "")
	}
	var msgs []string
	for _, n := range l.List() {
		msgs = append(msgs, n.Message)
	}
	assert.Equal(t, []string{"6", "5", "4"}, msgs)
}

func TestClear(t *testing.T) {
	l := NewLog(5)
	l.Append(domain.NotificationError, "x", "")
	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.List())

	n := l.Append(domain.NotificationInfo, "after", "")
	assert.Equal(t, []domain.Notification{n}, l.List())
}

func TestZeroCapacityUsesDefault(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewLog(0).Cap())
}
