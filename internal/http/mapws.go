package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-ops/internal/mapview"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxEvent   = 4096
)

// wsSink is a map session's connection to the browser.
type wsSink struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func (s *wsSink) Send(msg mapview.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return websocket.ErrCloseSent
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

func (s *wsSink) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return websocket.ErrCloseSent
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (s *wsSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return s.conn.Close()
}

// SessionRegistry tracks live map connections so shutdown can close them;
// hijacked connections are not closed by http.Server.Shutdown.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*wsSink
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*wsSink)}
}

func (r *SessionRegistry) add(id string, s *wsSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = s
}

func (r *SessionRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every registered connection.
func (r *SessionRegistry) CloseAll() {
	r.mu.RLock()
	sinks := make([]*wsSink, 0, len(r.sessions))
	for _, s := range r.sessions {
		sinks = append(sinks, s)
	}
	r.mu.RUnlock()
	for _, s := range sinks {
		_ = s.Close()
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range s.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// pageURL is the dashboard map URL the session mirrors: the websocket query
// minus the token.
func pageURL(r *http.Request) *url.URL {
	q := r.URL.Query()
	q.Del("access_token")
	return &url.URL{Path: "/map", RawQuery: q.Encode()}
}

func (s *Server) handleMapWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.logger.Warn("map websocket upgrade failed", "error", err)
		return
	}
	sink := &wsSink{conn: conn}
	id := newID()
	s.Sessions.add(id, sink)
	defer s.Sessions.remove(id)

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	logger := s.logger.With("map_session", id, "user_id", identityFrom(r.Context()).UserID)
	sess := mapview.NewSession(s.Store, sink, pageURL(r), s.Map, logger)

	go s.readEvents(ctx, cancel, conn, sess)
	go keepAlive(ctx, sink)

	logger.Info("map session opened")
	if err := sess.Run(ctx); err != nil {
		logger.Warn("map session ended", "error", err)
		return
	}
	logger.Info("map session closed")
}

// readEvents forwards client events to the session until the connection
// fails, then cancels the session.
func (s *Server) readEvents(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sess *mapview.Session) {
	defer cancel()
	conn.SetReadLimit(maxEvent)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("map websocket read", "error", err)
			}
			return
		}
		var ev mapview.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Debug("map event dropped", "error", err)
			continue
		}
		if err := sess.Dispatch(ctx, ev); err != nil {
			return
		}
	}
}

func keepAlive(ctx context.Context, sink *wsSink) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := sink.ping(); err != nil {
				return
			}
		}
	}
}
