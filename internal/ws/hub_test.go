package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeClient builds a client with no underlying connection; Send only
// touches the queue as long as the buffer never fills.
func newFakeClient(userID uint) *Client {
	return &Client{
		ID:     "test",
		UserID: userID,
		send:   make(chan []byte, 64),
		done:   make(chan struct{}),
	}
}

func drain(c *Client) []Event {
	var events []Event
	for {
		select {
		case data := <-c.send:
			var evt Event
			if err := json.Unmarshal(data, &evt); err == nil {
				events = append(events, evt)
			}
		default:
			return events
		}
	}
}

func TestBroadcastReachesAllGroupMembers(t *testing.T) {
	hub := NewHub()
	a := newFakeClient(1)
	b := newFakeClient(2)
	other := newFakeClient(3)

	hub.Join(10, a)
	hub.Join(10, b)
	hub.Join(20, other)

	hub.Broadcast(10, Event{Type: EventTurnChanged})

	require.Len(t, drain(a), 1)
	require.Len(t, drain(b), 1)
	assert.Empty(t, drain(other), "other groups must not receive the event")
}

func TestBroadcastExceptSkipsSender(t *testing.T) {
	hub := NewHub()
	sender := newFakeClient(1)
	peer := newFakeClient(2)

	hub.Join(10, sender)
	hub.Join(10, peer)

	hub.BroadcastExcept(10, sender, Event{Type: EventTimerAlert})

	assert.Empty(t, drain(sender))
	events := drain(peer)
	require.Len(t, events, 1)
	assert.Equal(t, EventTimerAlert, events[0].Type)
}

func TestBroadcastPreservesOrder(t *testing.T) {
	hub := NewHub()
	c := newFakeClient(1)
	hub.Join(10, c)

	hub.Broadcast(10, Event{Type: EventRotationStarted})
	hub.Broadcast(10, Event{Type: EventTurnChanged})
	hub.Broadcast(10, Event{Type: EventRotationEnded})

	events := drain(c)
	require.Len(t, events, 3)
	assert.Equal(t, EventRotationStarted, events[0].Type)
	assert.Equal(t, EventTurnChanged, events[1].Type)
	assert.Equal(t, EventRotationEnded, events[2].Type)
}

func TestLeaveAndRemoveClient(t *testing.T) {
	hub := NewHub()
	c := newFakeClient(1)

	hub.Join(10, c)
	hub.Join(20, c)
	assert.ElementsMatch(t, []uint{10, 20}, hub.Sessions(c))

	hub.Leave(10, c)
	assert.ElementsMatch(t, []uint{20}, hub.Sessions(c))
	hub.Broadcast(10, Event{Type: EventTurnChanged})
	assert.Empty(t, drain(c))

	hub.RemoveClient(c)
	assert.Empty(t, hub.Sessions(c))
	hub.Broadcast(20, Event{Type: EventTurnChanged})
	assert.Empty(t, drain(c))
}

func TestRejoinIsIdempotent(t *testing.T) {
	hub := NewHub()
	c := newFakeClient(1)

	hub.Join(10, c)
	hub.Join(10, c)

	hub.Broadcast(10, Event{Type: EventTurnChanged})
	assert.Len(t, drain(c), 1)
}
