package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/weddary/weddary/internal/http/httperr"
	"github.com/weddary/weddary/internal/oauth/flow"
	"github.com/weddary/weddary/internal/oauth/provider"
	mailsvc "github.com/weddary/weddary/internal/mail"
	"github.com/weddary/weddary/internal/observability/logger"
)

// MailSender is the outbound send dependency.
type MailSender interface {
	Send(ctx context.Context, eventID int64, p provider.ID, msg mailsvc.Message) error
}

// MailHandlers exposes the admin test-send endpoint.
type MailHandlers struct {
	sender MailSender
}

func NewMailHandlers(s MailSender) *MailHandlers {
	return &MailHandlers{sender: s}
}

type testSendRequest struct {
	Provider string `json:"provider"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

type testSendResponse struct {
	Success bool `json:"success"`
	Queued  bool `json:"queued"`
}

// TestSend handles POST /events/{eventId}/mail/test. It proves an event's
// connection end to end by sending one real message.
func (h *MailHandlers) TestSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("mail.test"))

	eventID, err := strconv.ParseInt(chi.URLParam(r, "eventId"), 10, 64)
	if err != nil || eventID <= 0 {
		httperr.WriteError(w, r, httperr.ErrInvalidEventID)
		return
	}

	var req testSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.WriteError(w, r, httperr.ErrInvalidJSON.WithCause(err))
		return
	}
	p, ok := provider.Parse(req.Provider)
	if !ok {
		httperr.WriteError(w, r, httperr.ErrInvalidJSON.WithDetails("provider must be gmail or outlook"))
		return
	}
	if _, err := mail.ParseAddress(req.To); err != nil {
		httperr.WriteError(w, r, httperr.ErrInvalidJSON.WithDetails("to must be a valid email address"))
		return
	}

	if err := h.sender.Send(ctx, eventID, p, mailsvc.Message{
		To:      req.To,
		Subject: req.Subject,
		Body:    req.Body,
	}); err != nil {
		var fe *flow.Error
		if errors.As(err, &fe) {
			writeFlowError(w, r, err)
			return
		}
		httperr.WriteError(w, r, httperr.ErrMailSend.WithCause(err))
		return
	}

	log.Info("test message sent", logger.EventID(eventID), logger.Provider(string(p)))
	httperr.WriteJSON(w, http.StatusOK, testSendResponse{Success: true, Queued: true})
}
