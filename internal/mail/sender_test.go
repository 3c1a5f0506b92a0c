package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/weddary/weddary/internal/credential"
	"github.com/weddary/weddary/internal/oauth/flow"
	"github.com/weddary/weddary/internal/oauth/httpclient"
	"github.com/weddary/weddary/internal/oauth/provider"
	"github.com/weddary/weddary/internal/security/oauthstate"
	"github.com/weddary/weddary/internal/security/secretbox"
	"github.com/weddary/weddary/internal/store/memory"
)

const testEventID = 7

type sendRecorder struct {
	auth        string
	contentType string
	body        []byte
}

func newTestSender(t *testing.T, pid provider.ID) (*Sender, *sendRecorder) {
	t.Helper()

	rec := &sendRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.auth = r.Header.Get("Authorization")
		rec.contentType = r.Header.Get("Content-Type")
		rec.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 3)
	}
	box, err := secretbox.New(key)
	if err != nil {
		t.Fatal(err)
	}

	st := memory.New()
	st.AddEvent(testEventID)

	encAccess, _ := box.Encrypt("fresh-token")
	encRefresh, _ := box.Encrypt("R1")
	future := time.Now().Add(time.Hour)
	if err := st.Merge(context.Background(), testEventID, pid, credential.Patch{
		AccessToken:  &encAccess,
		RefreshToken: &encRefresh,
		TokenExpiry:  &future,
		AccountEmail: credential.StrPtr("couple@example.com"),
		Enabled:      credential.BoolPtr(true),
	}); err != nil {
		t.Fatal(err)
	}

	profiles := func(id provider.ID) (*provider.Profile, bool) {
		base, ok := provider.Get(id)
		if !ok {
			return nil, false
		}
		p := *base
		p.SendEndpoint = srv.URL + "/send"
		return &p, true
	}

	svc := flow.New(flow.Deps{
		Store:    st,
		Events:   st,
		Box:      box,
		States:   oauthstate.NewSigner([]byte("mail-test-state-signing-secret!!"), 0),
		HTTP:     httpclient.New(httpclient.WithBackoffBase(time.Millisecond)),
		Profiles: profiles,
	})

	return New(Deps{
		Flow:     svc,
		HTTP:     httpclient.New(httpclient.WithBackoffBase(time.Millisecond)),
		Profiles: profiles,
	}), rec
}

func TestSend_Gmail(t *testing.T) {
	t.Parallel()
	s, rec := newTestSender(t, provider.Gmail)

	err := s.Send(context.Background(), testEventID, provider.Gmail, Message{
		To:      "guest@example.org",
		Subject: "Save the date",
		Body:    "See you in June.",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if rec.auth != "Bearer fresh-token" {
		t.Fatalf("authorization = %q", rec.auth)
	}
	if !strings.Contains(rec.contentType, "application/json") {
		t.Fatalf("content type = %q", rec.contentType)
	}

	var payload struct {
		Raw string `json:"raw"`
	}
	if err := json.Unmarshal(rec.body, &payload); err != nil {
		t.Fatalf("gmail payload must be JSON: %v", err)
	}
	mime, err := base64.RawURLEncoding.DecodeString(payload.Raw)
	if err != nil {
		t.Fatalf("raw must be base64url: %v", err)
	}
	for _, want := range []string{
		"From: couple@example.com",
		"To: guest@example.org",
		"Subject: Save the date",
		"See you in June.",
	} {
		if !strings.Contains(string(mime), want) {
			t.Fatalf("MIME missing %q:\n%s", want, mime)
		}
	}
}

func TestSend_Outlook(t *testing.T) {
	t.Parallel()
	s, rec := newTestSender(t, provider.Outlook)

	err := s.Send(context.Background(), testEventID, provider.Outlook, Message{
		To:      "guest@example.org",
		Subject: "Save the date",
		Body:    "See you in June.",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if !strings.Contains(rec.contentType, "text/plain") {
		t.Fatalf("content type = %q", rec.contentType)
	}
	mime, err := base64.StdEncoding.DecodeString(string(rec.body))
	if err != nil {
		t.Fatalf("outlook body must be base64 MIME: %v", err)
	}
	if !strings.Contains(string(mime), "To: guest@example.org") {
		t.Fatalf("MIME missing recipient:\n%s", mime)
	}
}

func TestSend_NotConfigured(t *testing.T) {
	t.Parallel()
	s, _ := newTestSender(t, provider.Gmail)

	err := s.Send(context.Background(), testEventID, provider.Outlook, Message{
		To: "guest@example.org",
	})
	var fe *flow.Error
	if !errors.As(err, &fe) || fe.Kind != flow.KindNotConfigured {
		t.Fatalf("expected KindNotConfigured, got %v", err)
	}
}
