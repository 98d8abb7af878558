package websocket

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchpulse/tips-service/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient(id string, buffer int, leagueIDs ...string) *Client {
	return &Client{
		ID:        id,
		LeagueIDs: leagueIDs,
		Send:      make(chan []byte, buffer),
		LastSeen:  time.Now(),
	}
}

func TestHub_DropsFullBufferClientWithoutStalling(t *testing.T) {
	hub := NewTipHub(testLogger())
	go hub.Run()

	// The welcome message fills the one-slot buffer, so the broadcast below
	// cannot be queued and the client must be dropped from inside the loop.
	stuck := newTestClient("stuck", 1)
	stuck.Hub = hub
	hub.register <- stuck

	require.Eventually(t, func() bool { return hub.GetConnectionCount() == 1 },
		time.Second, 10*time.Millisecond)

	hub.BroadcastTip("", &models.Tip{Title: "first"})

	require.Eventually(t, func() bool { return hub.GetConnectionCount() == 0 },
		time.Second, 10*time.Millisecond, "full-buffer client is dropped")

	// The loop must stay responsive: a later registration still gets its
	// welcome message.
	healthy := newTestClient("healthy", 16)
	healthy.Hub = hub
	hub.register <- healthy

	select {
	case raw := <-healthy.Send:
		var msg TipMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "connected", msg.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("hub stopped processing registrations after a full-buffer send")
	}
}

func TestHub_EvictsStaleClientsWithoutRunLoop(t *testing.T) {
	hub := NewTipHub(testLogger())

	stale := newTestClient("stale", 4)
	fresh := newTestClient("fresh", 4)
	hub.registerClient(stale)
	hub.registerClient(fresh)
	stale.LastSeen = time.Now().Add(-3 * time.Minute)

	// Eviction runs on the hub goroutine; it must complete inline rather
	// than handing the client back to the loop it is part of.
	done := make(chan struct{})
	go func() {
		hub.evictStaleClients()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stale-client eviction blocked")
	}

	assert.Equal(t, 1, hub.GetConnectionCount())
	_, open := <-stale.Send // welcome, then closed
	assert.True(t, open)
}

func TestHub_LeagueBroadcastReachesFilteredAndUnfilteredClients(t *testing.T) {
	hub := NewTipHub(testLogger())

	premier := newTestClient("premier", 4, "league-1")
	other := newTestClient("other", 4, "league-2")
	all := newTestClient("all", 4)
	for _, client := range []*Client{premier, other, all} {
		hub.registerClient(client)
		<-client.Send // drain the welcome message
	}

	hub.broadcastMessage(&TipMessage{
		Type:      "tip_created",
		Data:      &models.Tip{Title: "Weekend double"},
		LeagueID:  "league-1",
		Timestamp: time.Now(),
	})

	assert.Len(t, premier.Send, 1)
	assert.Len(t, all.Send, 1)
	assert.Len(t, other.Send, 0)
}
