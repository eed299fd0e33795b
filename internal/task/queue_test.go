package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyQueueOrdersBackupsFirst(t *testing.T) {
	q := NewReadyQueue()
	t0 := &Task{JobID: "j1", Index: 0}
	t1 := &Task{JobID: "j1", Index: 1}

	q.Push(t0, false)
	q.Push(t1, true) // backup, later index, should still come first

	got, isBackup, ok := q.Pop()
	require.True(t, ok)
	assert.True(t, isBackup)
	assert.Equal(t, 1, got.Index)

	got, isBackup, ok = q.Pop()
	require.True(t, ok)
	assert.False(t, isBackup)
	assert.Equal(t, 0, got.Index)

	_, _, ok = q.Pop()
	assert.False(t, ok)
}

func TestReadyQueueRoundRobinsAcrossJobs(t *testing.T) {
	q := NewReadyQueue()
	a0 := &Task{JobID: "a", Index: 0}
	a1 := &Task{JobID: "a", Index: 1}
	b0 := &Task{JobID: "b", Index: 0}

	q.Push(a0, false)
	q.Push(a1, false)
	q.Push(b0, false)

	first, _, _ := q.Pop()
	second, _, _ := q.Pop()
	assert.NotEqual(t, first.JobID, second.JobID, "round robin should alternate jobs before revisiting one")
}

func TestReadyQueueRemoveJob(t *testing.T) {
	q := NewReadyQueue()
	q.Push(&Task{JobID: "j1", Index: 0}, false)
	q.Push(&Task{JobID: "j1", Index: 1}, false)
	q.Push(&Task{JobID: "j2", Index: 0}, false)

	q.RemoveJob("j1")
	assert.Equal(t, 1, q.Len())

	got, _, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "j2", got.JobID)
}
