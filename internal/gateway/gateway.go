package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"spades-live/internal/codec"
	"spades-live/internal/lobby"
	"spades-live/internal/room"
	"spades-live/spades"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: Restrict in production
	},
}

// Connection represents one WebSocket client.
type Connection struct {
	ID       string
	Identity spades.Identity
	Conn     *websocket.Conn
	Send     chan []byte
	Gateway  *Gateway
	LastPing time.Time

	// Current room association.
	GameID string
	Room   *room.Room
}

// Gateway manages WebSocket connections and dispatches client commands.
type Gateway struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	userConns   map[string]*Connection // identity ID -> connection
	nextConnID  uint64
	lobby       *lobby.Lobby
}

func New(lby *lobby.Lobby) *Gateway {
	return &Gateway{
		connections: make(map[string]*Connection),
		userConns:   make(map[string]*Connection),
		lobby:       lby,
	}
}

// HandleWebSocket upgrades the request and starts the connection pumps.
// Identity comes from query parameters; wire real auth in front of this
// handler when one exists.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] Upgrade error: %v", err)
		return
	}

	g.mu.Lock()
	g.nextConnID++
	connID := fmt.Sprintf("conn_%d", g.nextConnID)

	id := identityFromRequest(r, g.nextConnID)
	c := &Connection{
		ID:       connID,
		Identity: id,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		Gateway:  g,
		LastPing: time.Now(),
	}
	var resumeRoom *room.Room
	if prev := g.userConns[id.ID]; prev != nil {
		// Second connection for the same user supersedes the first and
		// inherits its room association, so a reconnect picks the game
		// back up without a fresh join_game.
		c.GameID = prev.GameID
		c.Room = prev.Room
		resumeRoom = prev.Room
		prev.Conn.Close()
	}
	g.connections[connID] = c
	g.userConns[id.ID] = c
	g.mu.Unlock()

	log.Printf("[Gateway] Client connected: %s (user=%s), total: %d", connID, id.ID, len(g.connections))

	go c.readPump()
	go c.writePump()

	if resumeRoom != nil {
		if err := resumeRoom.SubmitEvent(room.Event{Type: room.EventConnResume, Identity: id}); err != nil {
			log.Printf("[Gateway] Resume for %s failed: %v", id.ID, err)
		}
	}
}

func identityFromRequest(r *http.Request, fallback uint64) spades.Identity {
	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("user_id"))
	if id == "" {
		id = fmt.Sprintf("guest_%d", fallback)
	}
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		name = id
	}
	return spades.Identity{ID: id, Name: name, Image: strings.TrimSpace(q.Get("image"))}
}

func (c *Connection) readPump() {
	defer func() {
		c.Gateway.removeConnection(c)
		c.Conn.Close()
		// A superseded connection must not mark the user offline while
		// its replacement is live.
		if c.Room != nil && !c.Gateway.hasUserConn(c.Identity.ID) {
			c.Room.SubmitEvent(room.Event{Type: room.EventConnLost, Identity: c.Identity})
		}
	}()

	c.Conn.SetReadLimit(65536)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		c.LastPing = time.Now()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Gateway] Read error: %v", err)
			}
			break
		}
		if messageType == websocket.TextMessage {
			c.handleMessage(message)
		}
	}
}

func (c *Connection) handleMessage(data []byte) {
	var env codec.ClientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("[Gateway] Failed to unmarshal from user %s: %v", c.Identity.ID, err)
		c.sendError("", fmt.Errorf("invalid message format"))
		return
	}

	log.Printf("[Gateway] Received from user %s: type=%s game=%s", c.Identity.ID, env.Type, env.GameID)

	switch env.Type {
	case codec.TypeCreateGame:
		c.handleCreateGame(&env)
	case codec.TypeJoinGame:
		c.handleJoinGame(&env)
	case codec.TypeLeaveGame:
		c.handleLeaveGame(&env)
	case codec.TypeStartGame:
		c.handleStartGame(&env)
	case codec.TypeMakeBid:
		c.handleMakeBid(&env)
	case codec.TypePlayCard:
		c.handlePlayCard(&env)
	case codec.TypeGetGame:
		c.handleGetGame(&env)
	case codec.TypeGetGames:
		c.handleGetGames()
	default:
		c.sendError(env.GameID, fmt.Errorf("unknown command type %q", env.Type))
	}
}

func (c *Connection) handleCreateGame(env *codec.ClientEnvelope) {
	var rules *spades.Rules
	if env.Rules != nil {
		r := codec.RulesFromWire(*env.Rules)
		rules = &r
	}
	r, err := c.Gateway.lobby.CreateGame(rules)
	if err != nil {
		c.sendError("", err)
		return
	}

	seat := 0
	if env.Seat != nil {
		seat = *env.Seat
	}
	if err := r.SubmitEvent(room.Event{Type: room.EventJoin, Identity: c.Identity, Seat: seat}); err != nil {
		c.sendError(r.ID, err)
		return
	}
	c.GameID = r.ID
	c.Room = r
	log.Printf("[Gateway] User %s created game %s", c.Identity.ID, r.ID)
	c.Gateway.lobby.BroadcastGames()
}

func (c *Connection) handleJoinGame(env *codec.ClientEnvelope) {
	r, err := c.Gateway.lobby.Get(env.GameID)
	if err != nil {
		c.sendError(env.GameID, err)
		return
	}
	if env.Seat == nil {
		c.sendError(env.GameID, fmt.Errorf("join requires a seat: %w", spades.ErrSeatNotFound))
		return
	}
	if err := r.SubmitEvent(room.Event{Type: room.EventJoin, Identity: c.Identity, Seat: *env.Seat}); err != nil {
		c.sendError(env.GameID, err)
		return
	}
	c.GameID = r.ID
	c.Room = r
	log.Printf("[Gateway] User %s joined game %s seat %d", c.Identity.ID, r.ID, *env.Seat)
	c.Gateway.lobby.BroadcastGames()
}

func (c *Connection) handleLeaveGame(env *codec.ClientEnvelope) {
	r := c.resolveRoom(env.GameID)
	if r == nil {
		c.sendError(env.GameID, codec.ErrGameNotFound)
		return
	}
	if err := r.SubmitEvent(room.Event{Type: room.EventLeave, Identity: c.Identity}); err != nil {
		c.sendError(r.ID, err)
		return
	}
	c.GameID = ""
	c.Room = nil
	c.Gateway.lobby.BroadcastGames()
}

func (c *Connection) handleStartGame(env *codec.ClientEnvelope) {
	r := c.resolveRoom(env.GameID)
	if r == nil {
		c.sendError(env.GameID, codec.ErrGameNotFound)
		return
	}
	if err := r.SubmitEvent(room.Event{Type: room.EventStart, Identity: c.Identity}); err != nil {
		c.sendError(r.ID, err)
		return
	}
	c.Gateway.lobby.BroadcastGames()
}

func (c *Connection) handleMakeBid(env *codec.ClientEnvelope) {
	r := c.resolveRoom(env.GameID)
	if r == nil {
		c.sendError(env.GameID, codec.ErrGameNotFound)
		return
	}
	if env.Bid == nil {
		c.sendError(r.ID, fmt.Errorf("bid value missing: %w", spades.ErrInvalidValue))
		return
	}
	if err := r.SubmitEvent(room.Event{Type: room.EventBid, Identity: c.Identity, Bid: *env.Bid}); err != nil {
		c.sendError(r.ID, err)
	}
}

func (c *Connection) handlePlayCard(env *codec.ClientEnvelope) {
	r := c.resolveRoom(env.GameID)
	if r == nil {
		c.sendError(env.GameID, codec.ErrGameNotFound)
		return
	}
	if env.Card == nil {
		c.sendError(r.ID, fmt.Errorf("card missing: %w", spades.ErrIllegalPlay))
		return
	}
	played, err := codec.CardFromWire(*env.Card)
	if err != nil {
		c.sendError(r.ID, fmt.Errorf("%v: %w", err, spades.ErrIllegalPlay))
		return
	}
	if err := r.SubmitEvent(room.Event{Type: room.EventPlay, Identity: c.Identity, Card: played}); err != nil {
		c.sendError(r.ID, err)
	}
}

// handleGetGame is the resync pull: the room replies with a fresh
// authoritative frame for this viewer.
func (c *Connection) handleGetGame(env *codec.ClientEnvelope) {
	r := c.resolveRoom(env.GameID)
	if r == nil {
		c.sendError(env.GameID, codec.ErrGameNotFound)
		return
	}
	if err := r.SubmitEvent(room.Event{Type: room.EventResync, Identity: c.Identity}); err != nil {
		c.sendError(r.ID, err)
	}
}

func (c *Connection) handleGetGames() {
	env := c.Gateway.lobby.GamesEnvelope()
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[Gateway] marshal games_update failed: %v", err)
		return
	}
	c.deliver(data)
}

// resolveRoom prefers the explicit game_id, falling back to the
// connection's current room.
func (c *Connection) resolveRoom(gameID string) *room.Room {
	if gameID != "" {
		r, err := c.Gateway.lobby.Get(gameID)
		if err != nil {
			return nil
		}
		return r
	}
	return c.Room
}

func (c *Connection) sendError(gameID string, err error) {
	env := codec.WrapError(gameID, err)
	data, marshalErr := json.Marshal(env)
	if marshalErr != nil {
		log.Printf("[Gateway] marshal error frame failed: %v", marshalErr)
		return
	}
	c.deliver(data)
}

func (c *Connection) deliver(data []byte) {
	select {
	case c.Send <- data:
	default:
		// Drop if buffer full
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(30 * time.Second)
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

func (g *Gateway) removeConnection(c *Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.connections, c.ID)
	if g.userConns[c.Identity.ID] == c {
		delete(g.userConns, c.Identity.ID)
	}
	log.Printf("[Gateway] Client disconnected: %s, total: %d", c.ID, len(g.connections))
}

func (g *Gateway) hasUserConn(userID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.userConns[userID] != nil
}

// SendToUser delivers a frame to one user's connection.
func (g *Gateway) SendToUser(userID string, data []byte) {
	g.mu.RLock()
	c := g.userConns[userID]
	g.mu.RUnlock()

	if c != nil {
		c.deliver(data)
	}
}

// Broadcast delivers a frame to every connection.
func (g *Gateway) Broadcast(message []byte) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.connections {
		select {
		case c.Send <- message:
		default:
			// Drop message if buffer full
		}
	}
}
