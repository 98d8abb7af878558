package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/matchpulse/tips-service/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now (should be restricted in production)
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client represents one WebSocket subscriber for published tips.
type Client struct {
	ID        string
	LeagueIDs []string // Leagues this client is interested in; empty means all
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *TipHub
	LastSeen  time.Time
}

// TipHub maintains active WebSocket connections and pushes newly persisted
// tips to subscribers.
type TipHub struct {
	clients       map[*Client]bool
	leagueClients map[string][]*Client
	broadcast     chan *TipMessage
	register      chan *Client
	unregister    chan *Client
	logger        *logrus.Logger
	mutex         sync.RWMutex
}

// TipMessage is the envelope sent to clients.
type TipMessage struct {
	Type      string      `json:"type"` // "tip_created", "connected", "pong", "error"
	Data      interface{} `json:"data"`
	LeagueID  string      `json:"league_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewTipHub creates a tip broadcast hub.
func NewTipHub(logger *logrus.Logger) *TipHub {
	return &TipHub{
		clients:       make(map[*Client]bool),
		leagueClients: make(map[string][]*Client),
		broadcast:     make(chan *TipMessage, 256),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		logger:        logger,
	}
}

// Run starts the hub loop. It handles registration, broadcast fan-out, and
// stale-client eviction.
func (h *TipHub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-ticker.C:
			h.evictStaleClients()
		}
	}
}

func (h *TipHub) registerClient(client *Client) {
	h.mutex.Lock()
	h.clients[client] = true
	for _, leagueID := range client.LeagueIDs {
		h.leagueClients[leagueID] = append(h.leagueClients[leagueID], client)
	}
	total := len(h.clients)
	h.mutex.Unlock()

	h.logger.WithFields(logrus.Fields{
		"client_id":     client.ID,
		"league_ids":    client.LeagueIDs,
		"total_clients": total,
	}).Info("Tip feed client connected")

	welcome := &TipMessage{
		Type:      "connected",
		Data:      map[string]interface{}{"message": "Connected to tip feed"},
		Timestamp: time.Now(),
	}
	if !h.sendToClient(client, welcome) {
		h.unregisterClient(client)
	}
}

func (h *TipHub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	close(client.Send)

	for _, leagueID := range client.LeagueIDs {
		subscribers := h.leagueClients[leagueID]
		for i, c := range subscribers {
			if c == client {
				h.leagueClients[leagueID] = append(subscribers[:i], subscribers[i+1:]...)
				break
			}
		}
		if len(h.leagueClients[leagueID]) == 0 {
			delete(h.leagueClients, leagueID)
		}
	}

	h.logger.WithFields(logrus.Fields{
		"client_id":     client.ID,
		"total_clients": len(h.clients),
	}).Info("Tip feed client disconnected")
}

// broadcastMessage delivers a message to league subscribers when a league is
// set, otherwise to every connected client.
func (h *TipHub) broadcastMessage(message *TipMessage) {
	h.mutex.RLock()
	var targets []*Client
	if message.LeagueID != "" {
		targets = append(targets, h.leagueClients[message.LeagueID]...)
		// Clients with no league filter receive everything.
		for client := range h.clients {
			if len(client.LeagueIDs) == 0 {
				targets = append(targets, client)
			}
		}
	} else {
		for client := range h.clients {
			targets = append(targets, client)
		}
	}
	h.mutex.RUnlock()

	for _, client := range targets {
		if !h.sendToClient(client, message) {
			// Send channel full; drop the connection. This runs on the hub
			// goroutine, so it must not go through the unregister channel.
			h.unregisterClient(client)
		}
	}
}

// sendToClient queues a message without blocking. It reports false when the
// client's buffer is full and the connection should be dropped.
func (h *TipHub) sendToClient(client *Client, message *TipMessage) bool {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal WebSocket message")
		return true
	}

	select {
	case client.Send <- data:
		client.LastSeen = time.Now()
		return true
	default:
		return false
	}
}

func (h *TipHub) evictStaleClients() {
	h.mutex.RLock()
	now := time.Now()
	stale := []*Client{}
	for client := range h.clients {
		if now.Sub(client.LastSeen) > 2*time.Minute {
			stale = append(stale, client)
		}
	}
	h.mutex.RUnlock()

	for _, client := range stale {
		h.unregisterClient(client)
	}

	if len(stale) > 0 {
		h.logger.WithField("stale_clients", len(stale)).Debug("Removed stale tip feed clients")
	}
}

// HandleWebSocket upgrades an HTTP request to a tip feed subscription.
// Optional "leagues" query parameter is a comma-separated league ID filter.
func (h *TipHub) HandleWebSocket(c *gin.Context) {
	var leagueIDs []string
	if raw := c.Query("leagues"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				leagueIDs = append(leagueIDs, id)
			}
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade tip feed connection")
		return
	}

	client := &Client{
		ID:        c.ClientIP() + "-" + time.Now().Format("150405.000"),
		LeagueIDs: leagueIDs,
		Conn:      conn,
		Send:      make(chan []byte, 256),
		Hub:       h,
		LastSeen:  time.Now(),
	}

	client.Hub.register <- client

	go client.writePump()
	go client.readPump()
}

// BroadcastTip pushes a newly persisted tip to subscribers. leagueID may be
// empty for cross-league accumulators, which reach every client.
func (h *TipHub) BroadcastTip(leagueID string, tip *models.Tip) {
	h.broadcast <- &TipMessage{
		Type:      "tip_created",
		Data:      tip,
		LeagueID:  leagueID,
		Timestamp: time.Now(),
	}
}

// GetConnectionCount returns the number of active connections.
func (h *TipHub) GetConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// GetHubStats returns hub statistics for the metrics endpoint.
func (h *TipHub) GetHubStats() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	leagueStats := make(map[string]int)
	for leagueID, clients := range h.leagueClients {
		leagueStats[leagueID] = len(clients)
	}

	return map[string]interface{}{
		"total_clients":      len(h.clients),
		"leagues_tracked":    len(h.leagueClients),
		"league_subscribers": leagueStats,
	}
}

// readPump pumps messages from the connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		c.LastSeen = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.WithError(err).Error("Tip feed WebSocket error")
			}
			break
		}

		c.handleIncomingMessage(message)
		c.LastSeen = time.Now()
	}
}

// writePump pumps messages from the hub to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.logger.WithError(err).Error("Failed to write tip feed message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleIncomingMessage processes subscription changes and pings from
// the client.
func (c *Client) handleIncomingMessage(message []byte) {
	var clientMsg map[string]interface{}
	if err := json.Unmarshal(message, &clientMsg); err != nil {
		c.Hub.logger.WithError(err).Warn("Failed to parse tip feed client message")
		return
	}

	msgType, ok := clientMsg["type"].(string)
	if !ok {
		return
	}

	switch msgType {
	case "subscribe_league":
		if leagueID, ok := clientMsg["league_id"].(string); ok && leagueID != "" {
			c.Hub.mutex.Lock()
			found := false
			for _, id := range c.LeagueIDs {
				if id == leagueID {
					found = true
					break
				}
			}
			if !found {
				c.LeagueIDs = append(c.LeagueIDs, leagueID)
				c.Hub.leagueClients[leagueID] = append(c.Hub.leagueClients[leagueID], c)
			}
			c.Hub.mutex.Unlock()

			c.Hub.logger.WithFields(logrus.Fields{
				"client_id": c.ID,
				"league_id": leagueID,
			}).Debug("Client subscribed to league")
		}

	case "unsubscribe_league":
		if leagueID, ok := clientMsg["league_id"].(string); ok && leagueID != "" {
			c.Hub.mutex.Lock()
			for i, id := range c.LeagueIDs {
				if id == leagueID {
					c.LeagueIDs = append(c.LeagueIDs[:i], c.LeagueIDs[i+1:]...)
					break
				}
			}
			subscribers := c.Hub.leagueClients[leagueID]
			for i, client := range subscribers {
				if client == c {
					c.Hub.leagueClients[leagueID] = append(subscribers[:i], subscribers[i+1:]...)
					break
				}
			}
			c.Hub.mutex.Unlock()

			c.Hub.logger.WithFields(logrus.Fields{
				"client_id": c.ID,
				"league_id": leagueID,
			}).Debug("Client unsubscribed from league")
		}

	case "ping":
		response := &TipMessage{
			Type:      "pong",
			Data:      map[string]interface{}{"timestamp": time.Now().Unix()},
			Timestamp: time.Now(),
		}
		c.Hub.sendToClient(c, response)
	}
}
