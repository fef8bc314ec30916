package jobcentre

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawJob(t *testing.T, s string) json.RawMessage {
	t.Helper()
	return json.RawMessage(s)
}

func TestGetReturnsHighestPriority(t *testing.T) {
	b := NewBroker()
	b.Put("q1", 1, rawJob(t, `{"a":1}`))
	highID := b.Put("q1", 10, rawJob(t, `{"a":2}`))

	j, ok := b.Get(context.Background(), []string{"q1"}, false, "w1")
	require.True(t, ok)
	assert.Equal(t, highID, j.id)
}

func TestGetTiesBreakByLowerID(t *testing.T) {
	b := NewBroker()
	first := b.Put("q1", 5, rawJob(t, `{}`))
	b.Put("q1", 5, rawJob(t, `{}`))

	j, ok := b.Get(context.Background(), []string{"q1"}, false, "w1")
	require.True(t, ok)
	assert.Equal(t, first, j.id)
}

func TestGetAcrossMultipleQueues(t *testing.T) {
	b := NewBroker()
	b.Put("low", 1, rawJob(t, `{}`))
	id := b.Put("high", 99, rawJob(t, `{}`))

	j, ok := b.Get(context.Background(), []string{"low", "high"}, false, "w1")
	require.True(t, ok)
	assert.Equal(t, id, j.id)
}

func TestGetNoJobWithoutWait(t *testing.T) {
	b := NewBroker()
	_, ok := b.Get(context.Background(), []string{"empty"}, false, "w1")
	assert.False(t, ok)
}

func TestGetWaitsUntilPut(t *testing.T) {
	b := NewBroker()
	result := make(chan *job, 1)
	go func() {
		j, ok := b.Get(context.Background(), []string{"q"}, true, "w1")
		if ok {
			result <- j
		} else {
			result <- nil
		}
	}()

	time.Sleep(20 * time.Millisecond) // give the waiter time to register
	id := b.Put("q", 1, rawJob(t, `{}`))

	select {
	case j := <-result:
		require.NotNil(t, j)
		assert.Equal(t, id, j.id)
	case <-time.After(time.Second):
		t.Fatal("Get never returned after Put")
	}
}

func TestGetWaitCancelledByContext(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan bool, 1)
	go func() {
		_, ok := b.Get(ctx, []string{"q"}, true, "w1")
		result <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Get never returned after context cancel")
	}
}

func TestDeleteUnknownJobIsNoJob(t *testing.T) {
	b := NewBroker()
	assert.False(t, b.Delete(999))
}

func TestDeleteReleasesHold(t *testing.T) {
	b := NewBroker()
	id := b.Put("q", 1, rawJob(t, `{}`))
	_, ok := b.Get(context.Background(), []string{"q"}, false, "w1")
	require.True(t, ok)

	assert.True(t, b.Delete(id))
	assert.Equal(t, abortNoJob, b.Abort(id, "w1")) // deleted job can't be aborted
}

func TestDeleteOfReadyJobIsNeverReturnedByGet(t *testing.T) {
	b := NewBroker()
	id := b.Put("q", 1, rawJob(t, `{}`))

	assert.True(t, b.Delete(id))

	_, ok := b.Get(context.Background(), []string{"q"}, false, "w1")
	assert.False(t, ok, "deleted READY job must not be handed out by Get")
}

func TestAbortByNonHolderIsForbidden(t *testing.T) {
	b := NewBroker()
	id := b.Put("q", 1, rawJob(t, `{}`))
	_, ok := b.Get(context.Background(), []string{"q"}, false, "w1")
	require.True(t, ok)

	assert.Equal(t, abortForbidden, b.Abort(id, "w2"))
}

func TestAbortReturnsJobToQueue(t *testing.T) {
	b := NewBroker()
	id := b.Put("q", 7, rawJob(t, `{}`))
	_, ok := b.Get(context.Background(), []string{"q"}, false, "w1")
	require.True(t, ok)

	assert.Equal(t, abortOK, b.Abort(id, "w1"))

	j, ok := b.Get(context.Background(), []string{"q"}, false, "w2")
	require.True(t, ok)
	assert.Equal(t, id, j.id)
	assert.EqualValues(t, 7, j.pri)
}

func TestReleaseWorkerReopensAllHeldJobs(t *testing.T) {
	b := NewBroker()
	id1 := b.Put("q", 1, rawJob(t, `{}`))
	id2 := b.Put("q", 2, rawJob(t, `{}`))
	_, _ = b.Get(context.Background(), []string{"q"}, false, "w1")
	_, _ = b.Get(context.Background(), []string{"q"}, false, "w1")

	b.ReleaseWorker("w1")

	seen := map[int64]bool{}
	for i := 0; i < 2; i++ {
		j, ok := b.Get(context.Background(), []string{"q"}, false, "w2")
		require.True(t, ok)
		seen[j.id] = true
	}
	assert.True(t, seen[id1])
	assert.True(t, seen[id2])
}
