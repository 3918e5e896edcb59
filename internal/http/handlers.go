package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-ops/internal/ai"
	"github.com/example/ride-ops/internal/auth"
	"github.com/example/ride-ops/internal/ingest"
	"github.com/example/ride-ops/internal/mapview"
	"github.com/example/ride-ops/internal/models"
	"github.com/example/ride-ops/internal/notify"
	"github.com/example/ride-ops/internal/payments"
	"github.com/example/ride-ops/internal/storage"
)

// Scanner runs a match scan for one site request.
type Scanner interface {
	Scan(ctx context.Context, requestID string) (*models.SiteTripRequest, error)
}

// Copywriter proposes marketing copy.
type Copywriter interface {
	SuggestCopy(ctx context.Context, prompt, extra string) ([]ai.Suggestion, error)
}

// ReadyCheck is one dependency probed by /ready.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps are the collaborators the API is built from. Optional providers may
// be nil; their routes then answer 503.
type Deps struct {
	Store          storage.Store
	Matcher        Scanner
	Auth           *auth.Service
	AI             Copywriter
	Mailer         notify.Sender
	Payments       payments.Refunder
	Audit          ingest.Auditor
	Map            mapview.CanvasOptions
	AllowedOrigins []string
	Ready          []ReadyCheck
}

type Server struct {
	Deps
	Sessions *SessionRegistry

	logger   *slog.Logger
	mux      *mux.Router
	upgrader websocket.Upgrader
}

func NewServer(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Mailer == nil {
		deps.Mailer = notify.Discard{}
	}
	if deps.Audit == nil {
		deps.Audit = ingest.NopAuditor{}
	}
	s := &Server{Deps: deps, Sessions: NewSessionRegistry(), logger: logger, mux: mux.NewRouter()}
	s.upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096, CheckOrigin: s.checkOrigin}
	s.registerMiddleware()
	s.routes()
	return s
}

var (
	staffRoles   = []models.Role{models.RoleAdmin, models.RoleSupport, models.RoleMarketing}
	supportRoles = []models.Role{models.RoleAdmin, models.RoleSupport}
	adminRoles   = []models.Role{models.RoleAdmin}
	copyRoles    = []models.Role{models.RoleAdmin, models.RoleMarketing}
)

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())

	api := s.mux.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/me", s.handleMe).Methods("GET")

	api.HandleFunc("/trips", s.require(s.handleListTrips, staffRoles...)).Methods("GET")
	api.HandleFunc("/trips/{id}", s.require(s.handleGetTrip, staffRoles...)).Methods("GET")
	api.HandleFunc("/trips/{id}/passengers", s.require(s.handleTripPassengers, staffRoles...)).Methods("GET")

	api.HandleFunc("/requests", s.require(s.handleListRequests, staffRoles...)).Methods("GET")
	api.HandleFunc("/requests/{id}", s.require(s.handleGetRequest, staffRoles...)).Methods("GET")
	api.HandleFunc("/requests/{id}/status", s.require(s.handleRequestStatus, supportRoles...)).Methods("POST")
	api.HandleFunc("/requests/{id}/scan", s.require(s.handleRequestScan, supportRoles...)).Methods("POST")

	api.HandleFunc("/users", s.require(s.handleListUsers, supportRoles...)).Methods("GET")
	api.HandleFunc("/users/{id}/role", s.require(s.handleUserRole, adminRoles...)).Methods("POST")
	api.HandleFunc("/users/{id}/active", s.require(s.handleUserActive, adminRoles...)).Methods("POST")
	api.HandleFunc("/users/{id}", s.require(s.handleDeleteUser, adminRoles...)).Methods("DELETE")

	api.HandleFunc("/transactions", s.require(s.handleListTransactions, supportRoles...)).Methods("GET")
	api.HandleFunc("/transactions/{id}/refund", s.require(s.handleRefund, adminRoles...)).Methods("POST")

	api.HandleFunc("/tickets", s.require(s.handleListTickets, supportRoles...)).Methods("GET")
	api.HandleFunc("/tickets/{id}", s.require(s.handleGetTicket, supportRoles...)).Methods("GET")
	api.HandleFunc("/tickets/{id}/comments", s.require(s.handleAddComment, supportRoles...)).Methods("POST")

	api.HandleFunc("/marketing/suggestions", s.require(s.handleSuggestions, copyRoles...)).Methods("POST")

	ws := s.mux.PathPrefix("/ws").Subrouter()
	ws.Use(s.authMiddleware)
	ws.HandleFunc("/map", s.require(s.handleMapWS, staffRoles...)).Methods("GET")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// actionResponse is the envelope of every mutating endpoint.
type actionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAction(w http.ResponseWriter, status int, msg string, data any) {
	writeJSON(w, status, actionResponse{Success: status < 400, Message: msg, Data: data})
}

// writeError maps store errors onto status codes; anything unexpected is
// logged and reported as a 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeAction(w, http.StatusNotFound, "not found", nil)
		return
	}
	s.logger.Error("request failed", "route", routeTemplate(r), "request_id", requestIDFromContext(r.Context()), "error", err)
	writeAction(w, http.StatusInternalServerError, "internal error", nil)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// audit publishes an admin action. Failures are logged and never surface to
// the caller.
func (s *Server) audit(r *http.Request, action, target, detail string) {
	ev := models.AuditEvent{Actor: identityFrom(r.Context()).UserID, Action: action, Target: target, Detail: detail, At: time.Now().UTC()}
	if err := s.Audit.Publish(context.WithoutCancel(r.Context()), ev); err != nil {
		s.logger.Warn("audit publish failed", "action", action, "target", target, "error", err)
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, c := range s.Ready {
		if err := c.Check(ctx); err != nil {
			s.logger.Warn("readiness check failed", "check", c.Name, "error", err)
			http.Error(w, c.Name+" not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(200)
	w.Write([]byte("ready"))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, identityFrom(r.Context()))
}

func (s *Server) handleListTrips(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.TripFilter{DriverID: strings.TrimSpace(q.Get("driver"))}
	if st := strings.ToUpper(strings.TrimSpace(q.Get("status"))); st != "" && st != mapview.StatusAll {
		f.Status = models.TripStatus(st)
		if !f.Status.Valid() {
			writeAction(w, http.StatusBadRequest, "unknown trip status", nil)
			return
		}
	}
	trips, err := s.Store.ListTrips(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trips)
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	t, err := s.Store.GetTrip(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleTripPassengers(w http.ResponseWriter, r *http.Request) {
	p, err := s.Store.TripPassengers(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if p == nil {
		p = []models.Person{}
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	var f storage.RequestFilter
	if st := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))); st != "" {
		f.Status = models.RequestStatus(st)
		if !f.Status.Valid() {
			writeAction(w, http.StatusBadRequest, "unknown request status", nil)
			return
		}
	}
	reqs, err := s.Store.ListRequests(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.Store.GetRequest(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleRequestStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status models.RequestStatus `json:"status"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeAction(w, http.StatusBadRequest, "invalid body", nil)
		return
	}
	body.Status = models.RequestStatus(strings.ToUpper(string(body.Status)))
	if !body.Status.Valid() {
		writeAction(w, http.StatusBadRequest, "unknown request status", nil)
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.Store.UpdateRequestStatus(r.Context(), id, body.Status); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit(r, "request.status", id, string(body.Status))
	writeAction(w, http.StatusOK, "status updated", nil)
}

func (s *Server) handleRequestScan(w http.ResponseWriter, r *http.Request) {
	if s.Matcher == nil {
		writeAction(w, http.StatusServiceUnavailable, "matching is not configured", nil)
		return
	}
	id := mux.Vars(r)["id"]
	req, err := s.Matcher.Scan(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit(r, "request.scan", id, "")
	writeAction(w, http.StatusOK, "scan complete", req)
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
