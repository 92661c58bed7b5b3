package watcher

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/obby/fs-coalescer/internal/patterns"
	"github.com/obby/fs-coalescer/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_CollapsesBurst(t *testing.T) {
	d := NewDebouncer(50*time.Millisecond, 0)
	defer d.Stop()

	var calls atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger(func() { calls.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, d.Pending())
}

func TestDebouncer_MaxWait(t *testing.T) {
	d := NewDebouncer(100*time.Millisecond, 150*time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	start := time.Now()
	var firedAfter atomic.Int64
	fn := func() {
		if calls.Add(1) == 1 {
			firedAfter.Store(int64(time.Since(start)))
		}
	}

	// Keep triggering well past maxWait; the quiet period never arrives.
	for time.Since(start) < 400*time.Millisecond {
		d.Trigger(fn)
		time.Sleep(20 * time.Millisecond)
	}

	require.GreaterOrEqual(t, calls.Load(), int32(1))
	assert.Less(t, time.Duration(firedAfter.Load()), 350*time.Millisecond)
}

func TestDebouncer_Stop(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, 0)

	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Trigger(func() { calls.Add(1) })

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestEventBuffer_PushAggregates(t *testing.T) {
	b := NewEventBuffer(time.Hour, time.Hour)
	defer b.Close()

	b.Push(queue.NewDeleted("/p/old/a.txt"))
	b.Push(queue.NewCreated("/p/new/a.txt"))
	b.Push(queue.NewChanged("/p/b.txt"))
	b.Push(queue.NewChanged("/p/b.txt"))

	assert.Equal(t, []queue.Event{
		queue.NewRenamed("/p/old/a.txt", "/p/new/a.txt"),
		queue.NewChanged("/p/b.txt"),
	}, b.Snapshot())
	assert.Equal(t, 2, b.Len())
}

func TestEventBuffer_Flush(t *testing.T) {
	b := NewEventBuffer(time.Hour, time.Hour)
	defer b.Close()

	assert.False(t, b.Flush(), "empty buffer emits nothing")

	b.Push(queue.NewChanged("/p/a"))
	require.True(t, b.Flush())
	b.Push(queue.NewChanged("/p/b"))
	require.True(t, b.Flush())

	first := <-b.Batches()
	second := <-b.Batches()
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, []queue.Event{queue.NewChanged("/p/a")}, first.Events)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, []queue.Event{queue.NewChanged("/p/b")}, second.Events)
	assert.Equal(t, 0, b.Len())
}

func TestEventBuffer_DebouncedFlush(t *testing.T) {
	b := NewEventBuffer(30*time.Millisecond, time.Second)
	defer b.Close()

	b.Push(queue.NewCreated("/p/a"))
	b.Push(queue.NewChanged("/p/a"))

	select {
	case batch := <-b.Batches():
		assert.Equal(t, []queue.Event{{Kind: queue.Created, Path: "/p/a", OldPath: "/p/a"}}, batch.Events)
	case <-time.After(time.Second):
		t.Fatal("no batch flushed")
	}
}

func TestEventBuffer_Prune(t *testing.T) {
	b := NewEventBuffer(time.Hour, time.Hour)
	defer b.Close()

	b.Push(queue.NewChanged("/p/dir/a"))
	b.Push(queue.NewChanged("/p/dir/b"))
	b.Push(queue.NewChanged("/p/other"))

	assert.Equal(t, 2, b.Prune(patterns.Under("/p/dir")))
	assert.Equal(t, []queue.Event{queue.NewChanged("/p/other")}, b.Snapshot())
}

func TestEventBuffer_CloseFlushesAndCloses(t *testing.T) {
	b := NewEventBuffer(time.Hour, time.Hour)
	b.Push(queue.NewChanged("/p/a"))
	b.Close()

	batch, ok := <-b.Batches()
	require.True(t, ok)
	assert.Len(t, batch.Events, 1)

	_, ok = <-b.Batches()
	assert.False(t, ok)

	b.Push(queue.NewChanged("/p/b"))
	assert.Equal(t, 0, b.Len(), "pushes after close are ignored")
	b.Close()
}
