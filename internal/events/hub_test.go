package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWriter struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (w *recordingWriter) WriteEvent(ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("connection gone")
	}
	w.events = append(w.events, ev)
	return nil
}

func (w *recordingWriter) Ping() error { return nil }

func (w *recordingWriter) recorded() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Event, len(w.events))
	copy(out, w.events)
	return out
}

func waitForEvents(t *testing.T, w *recordingWriter, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := w.recorded(); len(events) >= n {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, got %d", n, len(w.recorded()))
	return nil
}

func newTestHub() *Hub {
	return NewHub(zap.NewNop(), 16)
}

func TestBroadcastReachesAllRoomSessions(t *testing.T) {
	hub := newTestHub()
	defer func() { _ = hub.Shutdown(context.Background()) }()

	w1, w2 := &recordingWriter{}, &recordingWriter{}
	require.NotNil(t, hub.AddSession("s1", "u1", w1))
	require.NotNil(t, hub.AddSession("s2", "u2", w2))
	require.True(t, hub.Join("s1", "lobby"))
	require.True(t, hub.Join("s2", "lobby"))

	delivered := hub.BroadcastToRoom("lobby", Event{Type: MessageCreated, Payload: "hello"})
	assert.Equal(t, 2, delivered)

	for _, w := range []*recordingWriter{w1, w2} {
		events := waitForEvents(t, w, 1)
		assert.Equal(t, MessageCreated, events[0].Type)
	}
}

func TestBroadcastSkipsOtherRooms(t *testing.T) {
	hub := newTestHub()
	defer func() { _ = hub.Shutdown(context.Background()) }()

	inRoom, elsewhere := &recordingWriter{}, &recordingWriter{}
	hub.AddSession("s1", "u1", inRoom)
	hub.AddSession("s2", "u2", elsewhere)
	hub.Join("s1", "lobby")
	hub.Join("s2", "garden")

	delivered := hub.BroadcastToRoom("lobby", Event{Type: MessageCreated})
	assert.Equal(t, 1, delivered)

	waitForEvents(t, inRoom, 1)
	assert.Empty(t, elsewhere.recorded())
}

func TestBroadcastPreservesOrder(t *testing.T) {
	hub := newTestHub()
	defer func() { _ = hub.Shutdown(context.Background()) }()

	w := &recordingWriter{}
	hub.AddSession("s1", "u1", w)
	hub.Join("s1", "lobby")

	hub.BroadcastToRoom("lobby", Event{Type: MessageCreated, Payload: 1})
	hub.BroadcastToRoom("lobby", Event{Type: MessageUpdated, Payload: 2})
	hub.BroadcastToRoom("lobby", Event{Type: MessageRemoved, Payload: 3})

	events := waitForEvents(t, w, 3)
	assert.Equal(t, []string{MessageCreated, MessageUpdated, MessageRemoved},
		[]string{events[0].Type, events[1].Type, events[2].Type})
}

func TestJoinMovesSessionBetweenRooms(t *testing.T) {
	hub := newTestHub()
	defer func() { _ = hub.Shutdown(context.Background()) }()

	hub.AddSession("s1", "u1", &recordingWriter{})
	hub.Join("s1", "lobby")
	require.Equal(t, 1, hub.RoomSessionCount("lobby"))

	hub.Join("s1", "garden")
	assert.Equal(t, 0, hub.RoomSessionCount("lobby"))
	assert.Equal(t, 1, hub.RoomSessionCount("garden"))
}

func TestJoinUnknownSession(t *testing.T) {
	hub := newTestHub()
	assert.False(t, hub.Join("missing", "lobby"))
}

func TestRemoveSessionLeavesRoom(t *testing.T) {
	hub := newTestHub()
	defer func() { _ = hub.Shutdown(context.Background()) }()

	hub.AddSession("s1", "u1", &recordingWriter{})
	hub.Join("s1", "lobby")

	hub.RemoveSession("s1")
	assert.Equal(t, 0, hub.SessionCount())
	assert.Equal(t, 0, hub.RoomSessionCount("lobby"))

	// Removing twice is harmless.
	hub.RemoveSession("s1")

	delivered := hub.BroadcastToRoom("lobby", Event{Type: MessageCreated})
	assert.Equal(t, 0, delivered)
}

func TestSendToSession(t *testing.T) {
	hub := newTestHub()
	defer func() { _ = hub.Shutdown(context.Background()) }()

	w1, w2 := &recordingWriter{}, &recordingWriter{}
	hub.AddSession("s1", "u1", w1)
	hub.AddSession("s2", "u2", w2)
	hub.Join("s1", "lobby")
	hub.Join("s2", "lobby")

	require.True(t, hub.SendToSession("s1", Event{Type: ModerationNotice}))
	assert.False(t, hub.SendToSession("missing", Event{Type: ModerationNotice}))

	waitForEvents(t, w1, 1)
	assert.Empty(t, w2.recorded())
}

func TestShutdownRejectsNewSessions(t *testing.T) {
	hub := newTestHub()
	hub.AddSession("s1", "u1", &recordingWriter{})

	require.NoError(t, hub.Shutdown(context.Background()))
	assert.Equal(t, 0, hub.SessionCount())
	assert.Nil(t, hub.AddSession("s2", "u2", &recordingWriter{}))
}

func TestBroadcastRacingDisconnect(t *testing.T) {
	hub := newTestHub()
	defer func() { _ = hub.Shutdown(context.Background()) }()

	// A session dropping while broadcasts are in flight must never take the
	// broadcasting goroutine down with it.
	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("s%d", i)
		hub.AddSession(id, "u1", &recordingWriter{})
		hub.Join(id, "lobby")

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				hub.BroadcastToRoom("lobby", Event{Type: MessageCreated})
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.RemoveSession(id)
		}()
		wg.Wait()
	}

	assert.Equal(t, 0, hub.SessionCount())
}

func TestSendToSessionRacingShutdown(t *testing.T) {
	hub := newTestHub()

	hub.AddSession("s1", "u1", &recordingWriter{})
	hub.Join("s1", "lobby")

	var wg sync.WaitGroup
	for j := 0; j < 4; j++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.SendToSession("s1", Event{Type: ModerationNotice})
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = hub.Shutdown(context.Background())
	}()
	wg.Wait()
}

func TestWriteFailureStopsPump(t *testing.T) {
	hub := newTestHub()
	defer func() { _ = hub.Shutdown(context.Background()) }()

	w := &recordingWriter{fail: true}
	hub.AddSession("s1", "u1", w)
	hub.Join("s1", "lobby")

	// The enqueue itself still succeeds; the pump drops the connection on the
	// write error without panicking.
	delivered := hub.BroadcastToRoom("lobby", Event{Type: MessageCreated})
	assert.Equal(t, 1, delivered)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, w.recorded())
}
