package ws

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestHub_PublishWhileClientsLeave churns registrations while publishers run.
// A send on a channel closed by unregister would panic. Run with -race.
func TestHub_PublishWhileClientsLeave(t *testing.T) {
	h := New(nil)

	var stop atomic.Bool
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				h.Publish("alice", map[string]int{"n": 1})
			}
		}()
	}

	for i := 0; i < 20000; i++ {
		c := &client{send: make(chan []byte, 1)}
		h.register("alice", c)
		h.unregister("alice", c)
	}

	stop.Store(true)
	wg.Wait()
	assert.Zero(t, h.Count("alice"))
}

func TestHub_PublishAfterCloseAll(t *testing.T) {
	h := New(nil)
	c := &client{send: make(chan []byte, 1)}
	h.register("alice", c)

	h.closeAll()

	assert.NotPanics(t, func() { h.Publish("alice", "late") })
	_, open := <-c.send
	assert.False(t, open, "closeAll closes the send channel")
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	h := New(nil)
	c := &client{send: make(chan []byte, 1)}
	h.register("alice", c)

	h.Publish("alice", 1)
	h.Publish("alice", 2)

	assert.Zero(t, h.Count("alice"))
	<-c.send
	_, open := <-c.send
	assert.False(t, open)
}
