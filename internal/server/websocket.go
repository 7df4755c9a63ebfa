// Package server exposes the real-time websocket channel: proposals in,
// ordered events and replays out.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/openxword/crossword-server/internal/authority"
	"github.com/openxword/crossword-server/internal/broadcast"
	"github.com/openxword/crossword-server/internal/config"
	"github.com/openxword/crossword-server/internal/game"
	"github.com/openxword/crossword-server/internal/repository"
	"github.com/openxword/crossword-server/internal/session"
	"github.com/openxword/crossword-server/internal/stats"
	"go.uber.org/zap"
)

// WebSocketServer terminates client connections and bridges them to the
// ordering authority and the broadcast manager.
type WebSocketServer struct {
	cfg         config.WebSocketConfig
	maxSessions int

	logger     *zap.Logger
	authority  *authority.Authority
	broadcast  *broadcast.Manager
	sessionMgr *session.Manager
	collector  *stats.Collector
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// NewWebSocketServer creates the websocket front end.
func NewWebSocketServer(
	cfg config.ServerConfig,
	auth *authority.Authority,
	bcast *broadcast.Manager,
	sessionMgr *session.Manager,
	collector *stats.Collector,
	logger *zap.Logger,
) *WebSocketServer {
	s := &WebSocketServer{
		cfg:         cfg.WebSocket,
		maxSessions: cfg.MaxSessions,
		logger:      logger,
		authority:   auth,
		broadcast:   bcast,
		sessionMgr:  sessionMgr,
		collector:   collector,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if cfg.WebSocket.AllowAllOrigins {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
		},
	}
	return s
}

// Start serves websocket connections until Shutdown.
func (s *WebSocketServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleConnection)
	mux.HandleFunc("/sessions/stats", s.handleStats)
	mux.HandleFunc("/sessions/info", s.handleInfo)

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: mux,
	}

	s.logger.Info("starting websocket server", zap.String("address", s.cfg.Address))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("websocket server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and drains existing ones.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *WebSocketServer) handleConnection(w http.ResponseWriter, r *http.Request) {
	if s.maxSessions > 0 && s.sessionMgr.Count() >= s.maxSessions {
		s.logger.Warn("connection refused, session limit reached",
			zap.Int("max_sessions", s.maxSessions),
		)
		http.Error(w, "server full", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	clientID := uuid.NewString()
	sess := s.sessionMgr.CreateSession(clientID, r.RemoteAddr)

	client := &client{
		id:     clientID,
		server: s,
		sess:   sess,
		conn:   conn,
		send:   make(chan ServerMessage, s.cfg.SendBufferSize),
		done:   make(chan struct{}),
	}

	sess.OnDisconnect(client.teardown)

	s.logger.Debug("client connected",
		zap.String("client_id", clientID),
		zap.String("remote", r.RemoteAddr),
	)

	go client.writePump()
	client.readPump()
}

// handleStats serves the session's aggregate summary from the event log.
func (s *WebSocketServer) handleStats(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session query parameter is required", http.StatusBadRequest)
		return
	}

	summary, err := s.collector.Summarize(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		s.logger.Error("stats summary failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		SolveTimeSeconds float64         `json:"solveTimeSeconds"`
		Checked          []game.Position `json:"checked"`
		Revealed         []game.Position `json:"revealed"`
		SymbolicChecks   int             `json:"symbolicChecks"`
		Events           int             `json:"events"`
	}{
		SolveTimeSeconds: summary.SolveTime.Seconds(),
		Checked:          summary.Checked,
		Revealed:         summary.Revealed,
		SymbolicChecks:   summary.SymbolicChecks,
		Events:           summary.Events,
	})
}

// handleInfo serves puzzle metadata without folding the full log.
func (s *WebSocketServer) handleInfo(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session query parameter is required", http.StatusBadRequest)
		return
	}

	info, err := s.authority.GameInfo(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, authority.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		s.logger.Error("game info lookup failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}

// client is one websocket connection.
type client struct {
	id     string
	server *WebSocketServer
	sess   *session.Session
	conn   *websocket.Conn
	send   chan ServerMessage

	mu   sync.Mutex
	sub  *broadcast.Subscription
	done chan struct{}
	once sync.Once
}

// readPump consumes client messages until the connection drops.
func (c *client) readPump() {
	defer c.teardown()

	cfg := c.server.cfg
	c.conn.SetReadLimit(cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.sess.UpdateActivity()
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Debug("websocket read error",
					zap.String("client_id", c.id),
					zap.Error(err),
				)
			}
			return
		}
		c.sess.UpdateActivity()

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reject("", "", "malformed message")
			continue
		}

		switch {
		case msg.Subscribe != nil:
			c.handleSubscribe(*msg.Subscribe)
		case msg.Propose != nil:
			c.handlePropose(*msg.Propose)
		default:
			c.reject("", "", "empty message")
		}
	}
}

// writePump pushes queued server messages and keepalive pings.
func (c *client) writePump() {
	cfg := c.server.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// handleSubscribe attaches the client to a game session: replay first, then
// live events, with no gap or duplicate between them.
func (c *client) handleSubscribe(msg SubscribeMessage) {
	if msg.SessionID == "" {
		c.reject("", "", "sessionId is required")
		return
	}

	c.detach()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	history, sub, err := c.server.broadcast.Subscribe(ctx, msg.SessionID, c.id, msg.AfterSeq)
	if err != nil {
		c.server.logger.Warn("subscribe failed",
			zap.String("client_id", c.id),
			zap.String("session_id", msg.SessionID),
			zap.Error(err),
		)
		c.reject(msg.SessionID, "", "subscribe failed")
		return
	}

	wire, err := toWireEvents(history)
	if err != nil {
		c.server.broadcast.Unsubscribe(msg.SessionID, c.id)
		c.reject(msg.SessionID, "", "replay encoding failed")
		return
	}

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	c.sess.SetGameID(msg.SessionID)

	c.enqueue(ServerMessage{Replay: wire})
	go c.forward(sub)
}

// forward relays the subscription's live events into the send queue.
func (c *client) forward(sub *broadcast.Subscription) {
	for {
		select {
		case evt, ok := <-sub.C():
			if !ok {
				if sub.Lost() {
					// The client fell behind; it must resubscribe with its
					// last applied sequence.
					c.server.logger.Warn("subscription lost",
						zap.String("client_id", c.id),
						zap.String("session_id", sub.SessionID),
					)
					c.teardown()
				}
				return
			}
			wire, err := toWireEvent(evt)
			if err != nil {
				c.server.logger.Error("event encoding failed", zap.Error(err))
				continue
			}
			c.enqueue(ServerMessage{Ordered: &wire})
		case <-c.done:
			return
		}
	}
}

// handlePropose validates the event shape, then submits it for ordering.
// Shape errors come back as rejections; ordered events reach the client via
// its subscription like everyone else's.
func (c *client) handlePropose(msg ProposeMessage) {
	if msg.SessionID == "" {
		c.reject("", msg.Type, "sessionId is required")
		return
	}

	params, err := game.DecodeParams(game.Type(msg.Type), msg.Params)
	if err != nil {
		c.reject(msg.SessionID, msg.Type, err.Error())
		return
	}

	// The connection remembers its participant: proposals may omit the user
	// id after the first one names it.
	userID := msg.UserID
	if userID == "" {
		userID = c.sess.UserID()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err = c.server.authority.Propose(ctx, msg.SessionID, authority.Proposed{
		Type:   game.Type(msg.Type),
		UserID: userID,
		Params: params,
	})
	if err != nil {
		switch {
		case errors.Is(err, authority.ErrMustCreateFirst),
			errors.Is(err, authority.ErrAlreadyCreated):
			c.reject(msg.SessionID, msg.Type, err.Error())
		default:
			c.server.logger.Error("propose failed",
				zap.String("client_id", c.id),
				zap.String("session_id", msg.SessionID),
				zap.String("type", msg.Type),
				zap.Error(err),
			)
			c.reject(msg.SessionID, msg.Type, "internal error")
		}
		return
	}
	if msg.UserID != "" {
		c.sess.SetUserID(msg.UserID)
	}
}

func (c *client) reject(sessionID, eventType, reason string) {
	c.enqueue(ServerMessage{Rejected: &Rejection{
		SessionID: sessionID,
		Type:      eventType,
		Reason:    reason,
	}})
}

// enqueue queues a message without blocking the caller; an overflowing queue
// closes the connection.
func (c *client) enqueue(msg ServerMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		c.server.logger.Warn("client send queue full, disconnecting",
			zap.String("client_id", c.id),
		)
		c.teardown()
	}
}

func (c *client) detach() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub != nil {
		c.server.broadcast.Unsubscribe(sub.SessionID, c.id)
	}
}

// teardown releases everything tied to the connection. The event log is
// untouched: disconnecting performs no state rollback.
func (c *client) teardown() {
	c.once.Do(func() {
		close(c.done)
		c.detach()
		c.server.sessionMgr.RemoveSession(c.id)
		_ = c.conn.Close()
	})
}
