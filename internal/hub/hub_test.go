package hub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastReachesEveryConnection(t *testing.T) {
	h := NewHub()
	a := make(Client, 1)
	b := make(Client, 1)
	h.Subscribe(1, a)
	h.Subscribe(1, b)

	h.Broadcast([]uint{1}, ChangeEvent{Schema: "public", Table: "tasks", Type: ChangeInsert})

	for _, c := range []Client{a, b} {
		select {
		case raw := <-c:
			var ev ChangeEvent
			require.NoError(t, json.Unmarshal(raw, &ev))
			assert.Equal(t, "tasks", ev.Table)
			assert.Equal(t, ChangeInsert, ev.Type)
		default:
			t.Fatal("connection did not receive the event")
		}
	}
}

func TestBroadcastDeduplicatesUsers(t *testing.T) {
	h := NewHub()
	c := make(Client, 4)
	h.Subscribe(1, c)

	h.Broadcast([]uint{1, 1, 1}, ChangeEvent{Table: "friends", Type: ChangeDelete})

	assert.Len(t, c, 1, "a client sees each event once")
}

func TestBroadcastSkipsUnsubscribedUsers(t *testing.T) {
	h := NewHub()
	c := make(Client, 1)
	id := h.Subscribe(2, c)
	h.Unsubscribe(2, id)

	h.Broadcast([]uint{2}, ChangeEvent{Table: "tasks", Type: ChangeUpdate})

	_, open := <-c
	assert.False(t, open, "unsubscribe closes the channel")
}

func TestBroadcastDropsOnFullChannel(t *testing.T) {
	h := NewHub()
	c := make(Client, 1)
	h.Subscribe(3, c)

	h.Broadcast([]uint{3}, ChangeEvent{Table: "tasks", Type: ChangeInsert})
	// The channel is full now; a second broadcast must not block.
	h.Broadcast([]uint{3}, ChangeEvent{Table: "tasks", Type: ChangeUpdate})

	assert.Len(t, c, 1)
}
