package hub

import (
	"context"
	"testing"
	"time"

	"github.com/obby/fs-coalescer/internal/queue"
	"github.com/obby/fs-coalescer/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg, ok := <-c.Send:
		require.True(t, ok, "client channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestClient_IsSubscribed(t *testing.T) {
	h := NewHub()
	c := h.NewClient()
	assert.True(t, c.IsSubscribed("created"), "no topics means everything")

	c.Subscribe("deleted")
	assert.True(t, c.IsSubscribed("deleted"))
	assert.False(t, c.IsSubscribed("created"))

	c.Subscribe(AllTopics)
	assert.True(t, c.IsSubscribed("created"))

	c.Unsubscribe(AllTopics)
	c.Unsubscribe("deleted")
	assert.True(t, c.IsSubscribed("renamed"))
}

func TestClient_Narrow(t *testing.T) {
	h := NewHub()
	c := h.NewClient()
	c.Subscribe("renamed")

	msg := Message{Seq: 4, Events: []queue.Event{
		queue.NewChanged("/p/a"),
		queue.NewRenamed("/p/b", "/p/c"),
	}}
	narrowed := c.Narrow(msg)
	assert.Equal(t, uint64(4), narrowed.Seq)
	assert.Equal(t, []queue.Event{queue.NewRenamed("/p/b", "/p/c")}, narrowed.Events)
	assert.Len(t, msg.Events, 2, "original message untouched")
}

func TestNewClient_UniqueIDs(t *testing.T) {
	h := NewHub()
	assert.NotEqual(t, h.NewClient().ID, h.NewClient().ID)
}

func TestHub_BroadcastFiltersByKind(t *testing.T) {
	h, _ := runHub(t)

	all := h.NewClient()
	deletes := h.NewClient()
	deletes.Subscribe("deleted")
	h.Register(all)
	h.Register(deletes)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	h.Broadcast(Message{Seq: 1, Events: []queue.Event{queue.NewChanged("/p/a")}})
	h.Broadcast(Message{Seq: 2, Events: []queue.Event{queue.NewDeleted("/p/a")}})

	assert.Equal(t, uint64(1), receive(t, all).Seq)
	assert.Equal(t, uint64(2), receive(t, all).Seq)

	// The changed-only batch is skipped entirely for the deletes client.
	msg := receive(t, deletes)
	assert.Equal(t, uint64(2), msg.Seq)
	assert.Equal(t, []queue.Event{queue.NewDeleted("/p/a")}, msg.Events)
}

func TestHub_UnregisterClosesClient(t *testing.T) {
	h, _ := runHub(t)

	c := h.NewClient()
	h.Register(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	h.Unregister(c)
	_, ok := <-c.Send
	assert.False(t, ok)
	assert.Equal(t, 0, h.ClientCount())

	// A second unregister is harmless.
	h.Unregister(c)
}

func TestHub_SlowClientIsDisconnected(t *testing.T) {
	h, _ := runHub(t)

	c := h.NewClient()
	h.Register(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i <= cap(c.Send); i++ {
		h.Broadcast(Message{Seq: uint64(i + 1), Events: []queue.Event{queue.NewChanged("/p/a")}})
	}

	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	h, cancel := runHub(t)

	c := h.NewClient()
	h.Register(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-h.Done()

	_, ok := <-c.Send
	assert.False(t, ok)

	// Calls after shutdown do not block.
	h.Register(h.NewClient())
	h.Broadcast(Message{})
	h.Unregister(c)
}

func TestPump(t *testing.T) {
	h, _ := runHub(t)

	c := h.NewClient()
	h.Register(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	batches := make(chan watcher.Batch, 2)
	batches <- watcher.Batch{Seq: 7, Events: []queue.Event{queue.NewCreated("/p/new")}}
	close(batches)

	done := make(chan struct{})
	go func() {
		Pump(context.Background(), batches, h)
		close(done)
	}()

	msg := receive(t, c)
	assert.Equal(t, uint64(7), msg.Seq)
	assert.Equal(t, []queue.Event{queue.NewCreated("/p/new")}, msg.Events)
	assert.False(t, msg.SentAt.IsZero())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not return after batches closed")
	}
}
