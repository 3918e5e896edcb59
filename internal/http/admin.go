package httpapi

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/ride-ops/internal/ai"
	"github.com/example/ride-ops/internal/models"
	"github.com/example/ride-ops/internal/notify"
	"github.com/example/ride-ops/internal/storage"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.Store.ListUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleUserRole(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Role models.Role `json:"role"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeAction(w, http.StatusBadRequest, "invalid body", nil)
		return
	}
	body.Role = models.Role(strings.ToLower(string(body.Role)))
	if !body.Role.Valid() {
		writeAction(w, http.StatusBadRequest, "unknown role", nil)
		return
	}
	id := mux.Vars(r)["id"]
	if id == identityFrom(r.Context()).UserID && body.Role != models.RoleAdmin {
		writeAction(w, http.StatusBadRequest, "you cannot remove your own admin role", nil)
		return
	}
	if err := s.Store.SetUserRole(r.Context(), id, body.Role); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit(r, "user.role", id, string(body.Role))
	writeAction(w, http.StatusOK, "role updated", nil)
}

func (s *Server) handleUserActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active *bool `json:"active"`
	}
	if err := decodeBody(w, r, &body); err != nil || body.Active == nil {
		writeAction(w, http.StatusBadRequest, "invalid body", nil)
		return
	}
	id := mux.Vars(r)["id"]
	if id == identityFrom(r.Context()).UserID && !*body.Active {
		writeAction(w, http.StatusBadRequest, "you cannot deactivate yourself", nil)
		return
	}
	if err := s.Store.SetUserActive(r.Context(), id, *body.Active); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit(r, "user.active", id, strconv.FormatBool(*body.Active))
	writeAction(w, http.StatusOK, "user updated", nil)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == identityFrom(r.Context()).UserID {
		writeAction(w, http.StatusBadRequest, "you cannot delete yourself", nil)
		return
	}
	if err := s.Store.DeleteUser(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit(r, "user.delete", id, "")
	writeAction(w, http.StatusOK, "user deleted", nil)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := s.Store.ListTransactions(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	if s.Payments == nil {
		writeAction(w, http.StatusServiceUnavailable, "payments are not configured", nil)
		return
	}
	id := mux.Vars(r)["id"]
	tx, err := s.Store.GetTransaction(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tx.Status != models.TxSucceeded || tx.PaymentIntentID == "" {
		writeAction(w, http.StatusBadRequest, fmt.Sprintf("transaction is %s and cannot be refunded", tx.Status), nil)
		return
	}
	refundID, err := s.Payments.Refund(r.Context(), tx.PaymentIntentID)
	if err != nil {
		s.logger.Error("refund failed", "transaction_id", id, "error", err)
		writeAction(w, http.StatusBadGateway, "payment provider rejected the refund", nil)
		return
	}
	if err := s.Store.MarkRefunded(r.Context(), id, refundID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit(r, "transaction.refund", id, refundID)
	writeAction(w, http.StatusOK, "refund issued", map[string]string{"refund_id": refundID})
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	f := storage.TicketFilter{Status: models.TicketStatus(strings.ToLower(r.URL.Query().Get("status")))}
	tickets, err := s.Store.ListTickets(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := s.Store.GetTicket(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Body string `json:"body"`
	}
	if err := decodeBody(w, r, &body); err != nil || strings.TrimSpace(body.Body) == "" {
		writeAction(w, http.StatusBadRequest, "comment body is required", nil)
		return
	}
	ticket, err := s.Store.GetTicket(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c := &models.Comment{TicketID: ticket.ID, AuthorEmail: identityFrom(r.Context()).Email, Body: strings.TrimSpace(body.Body)}
	if err := s.Store.AddComment(r.Context(), c); err != nil {
		s.writeError(w, r, err)
		return
	}
	if ticket.RequesterEmail != "" {
		go s.notifyRequester(ticket, *c)
	}
	writeAction(w, http.StatusCreated, "comment added", c)
}

// notifyRequester emails the ticket owner about a staff reply. It runs
// detached from the request; failures are only logged.
func (s *Server) notifyRequester(t *models.Ticket, c models.Comment) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	msg := notify.Message{
		To:      t.RequesterEmail,
		Subject: "Re: " + t.Subject,
		HTML:    "<p>" + strings.ReplaceAll(html.EscapeString(c.Body), "\n", "<br>") + "</p>",
	}
	if err := s.Mailer.Send(ctx, msg); err != nil {
		s.logger.Warn("ticket reply email failed", "ticket_id", t.ID, "error", err)
	}
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	if s.AI == nil {
		writeAction(w, http.StatusServiceUnavailable, "marketing assistant is not configured", nil)
		return
	}
	var body struct {
		Prompt  string `json:"prompt"`
		Context string `json:"context"`
	}
	if err := decodeBody(w, r, &body); err != nil || strings.TrimSpace(body.Prompt) == "" {
		writeAction(w, http.StatusBadRequest, "prompt is required", nil)
		return
	}
	out, err := s.AI.SuggestCopy(r.Context(), body.Prompt, body.Context)
	if err != nil {
		msg := "marketing assistant is unavailable"
		if errors.Is(err, ai.ErrMalformedResponse) {
			msg = "marketing assistant returned an unusable answer"
		}
		s.logger.Warn("suggest copy failed", "error", err)
		writeAction(w, http.StatusBadGateway, msg, nil)
		return
	}
	writeAction(w, http.StatusOK, fmt.Sprintf("%d suggestions", len(out)), out)
}
