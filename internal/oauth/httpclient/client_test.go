package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func testClient() *Client {
	return New(WithBackoffBase(time.Millisecond), WithTimeout(2*time.Second))
}

func TestPostForm_RetriesOn5xx(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	body, err := testClient().PostForm(context.Background(), srv.URL, url.Values{"grant_type": {"refresh_token"}})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", body)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestPostForm_DoesNotRetry4xx(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"redirect_uri_mismatch"}`))
	}))
	defer srv.Close()

	_, err := testClient().PostForm(context.Background(), srv.URL, url.Values{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Fatalf("status: %d", apiErr.Status)
	}
	if apiErr.Body != `{"error":"redirect_uri_mismatch"}` {
		t.Fatalf("provider body must be preserved: %q", apiErr.Body)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", got)
	}
}

func TestPostForm_ExhaustsRetriesOn5xx(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"server_error"}`))
	}))
	defer srv.Close()

	_, err := testClient().PostForm(context.Background(), srv.URL, url.Values{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError after exhaustion, got %v", err)
	}
	if apiErr.Status != http.StatusInternalServerError {
		t.Fatalf("status: %d", apiErr.Status)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected full retry budget of 3, got %d", got)
	}
}

func TestGetWithBearer_SendsAuthorization(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"email":"a@b.com"}`))
	}))
	defer srv.Close()

	body, err := testClient().GetWithBearer(context.Background(), srv.URL, "tok-123")
	if err != nil {
		t.Fatalf("GetWithBearer err: %v", err)
	}
	if string(body) != `{"email":"a@b.com"}` {
		t.Fatalf("body: %s", body)
	}
}
