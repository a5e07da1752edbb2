package api

import (
	"testing"
)

func TestHubDispatchDropsStalledClient(t *testing.T) {
	t.Parallel()
	h := NewHub(testLogger())

	healthy := &Client{hub: h, send: make(chan []byte, 4)}
	stalled := &Client{hub: h, send: make(chan []byte, 1)}
	stalled.send <- []byte("backlog") // buffer full, next send cannot land
	h.clients[healthy] = true
	h.clients[stalled] = true

	h.dispatch([]byte("event"))

	if _, ok := h.clients[stalled]; ok {
		t.Error("stalled client still registered")
	}
	if _, ok := h.clients[healthy]; !ok {
		t.Error("healthy client was dropped")
	}
	if got := len(healthy.send); got != 1 {
		t.Errorf("healthy client buffered %d messages, want 1", got)
	}

	<-stalled.send // drain the backlog
	if _, ok := <-stalled.send; ok {
		t.Error("stalled client's channel was not closed")
	}
}
