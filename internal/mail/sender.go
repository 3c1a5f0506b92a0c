// Package mail sends messages through a connected Gmail or Outlook account
// using the event's stored OAuth credential.
package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	gomail "github.com/go-mail/mail"

	"github.com/weddary/weddary/internal/oauth/flow"
	"github.com/weddary/weddary/internal/oauth/httpclient"
	"github.com/weddary/weddary/internal/oauth/provider"
	"github.com/weddary/weddary/internal/observability/logger"
)

// Deps wires the sender.
type Deps struct {
	Flow *flow.Service
	HTTP *httpclient.Client

	// Profiles overrides the static registry. Test hook.
	Profiles func(provider.ID) (*provider.Profile, bool)
}

// Sender assembles RFC 822 messages and submits them through the provider's
// send API. Token freshness is the orchestrator's problem, not ours.
type Sender struct {
	flow     *flow.Service
	http     *httpclient.Client
	profiles func(provider.ID) (*provider.Profile, bool)
}

func New(d Deps) *Sender {
	profiles := d.Profiles
	if profiles == nil {
		profiles = provider.Get
	}
	return &Sender{flow: d.Flow, http: d.HTTP, profiles: profiles}
}

// Message is a plain-text outbound message.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Send submits msg through the event's connected account for p. The From
// address is always the connected account; providers reject spoofed senders.
func (s *Sender) Send(ctx context.Context, eventID int64, p provider.ID, msg Message) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("mail"), logger.EventID(eventID), logger.Provider(string(p)))

	profile, ok := s.profiles(p)
	if !ok {
		return fmt.Errorf("mail: unknown provider %q", p)
	}

	st, err := s.flow.CheckStatus(ctx, eventID, p)
	if err != nil {
		return err
	}
	token, err := s.flow.FreshAccessToken(ctx, eventID, p)
	if err != nil {
		return err
	}

	mime, err := buildMIME(st.Account, msg)
	if err != nil {
		return fmt.Errorf("mail: assemble message: %w", err)
	}

	switch p {
	case provider.Gmail:
		err = s.sendGmail(ctx, profile, token, mime)
	case provider.Outlook:
		err = s.sendOutlook(ctx, profile, token, mime)
	default:
		err = fmt.Errorf("mail: unknown provider %q", p)
	}
	if err != nil {
		return err
	}

	log.Info("message sent", logger.Account(st.Account), logger.Any("to", msg.To))
	return nil
}

// buildMIME renders the message as RFC 822 text.
func buildMIME(from string, msg Message) ([]byte, error) {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sendGmail posts to users/me/messages/send with the base64url raw payload
// the Gmail API expects.
func (s *Sender) sendGmail(ctx context.Context, profile *provider.Profile, token string, mime []byte) error {
	payload, err := json.Marshal(map[string]string{
		"raw": base64.RawURLEncoding.EncodeToString(mime),
	})
	if err != nil {
		return err
	}
	if _, err := s.http.PostWithBearer(ctx, profile.SendEndpoint, token, "application/json", payload); err != nil {
		return fmt.Errorf("mail: gmail send: %w", err)
	}
	return nil
}

// sendOutlook posts the base64 MIME to Graph's sendMail, which accepts a
// raw message when the content type is text/plain.
func (s *Sender) sendOutlook(ctx context.Context, profile *provider.Profile, token string, mime []byte) error {
	payload := []byte(base64.StdEncoding.EncodeToString(mime))
	if _, err := s.http.PostWithBearer(ctx, profile.SendEndpoint, token, "text/plain", payload); err != nil {
		return fmt.Errorf("mail: outlook send: %w", err)
	}
	return nil
}
