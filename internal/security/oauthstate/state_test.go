package oauthstate

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

var testSecret = []byte("state-signing-secret-for-tests!!")

func TestGenerateVerify_RoundTrip(t *testing.T) {
	t.Parallel()
	s := NewSigner(testSecret, 0)

	tok, err := s.Generate("gmail", 7)
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	st, ok := s.Verify(tok)
	if !ok {
		t.Fatalf("expected valid state")
	}
	if st.Provider != "gmail" || st.EventID != 7 {
		t.Fatalf("state content mismatch: %+v", st)
	}
	if len(st.Nonce) < 32 { // 16 random bytes hex-encoded
		t.Fatalf("nonce too short: %q", st.Nonce)
	}
	if st.Signature == "" {
		t.Fatalf("signature not exposed")
	}
}

func TestVerify_TamperedToken(t *testing.T) {
	t.Parallel()
	s := NewSigner(testSecret, 0)
	tok, err := s.Generate("outlook", 42)
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}

	// Flip one character inside the decoded payload and re-encode.
	raw, _ := base64.RawURLEncoding.DecodeString(tok)
	b := []byte(string(raw))
	i := strings.IndexByte(string(b), ':') + 1
	if b[i] == 'o' {
		b[i] = 'g'
	} else {
		b[i] = 'o'
	}
	tampered := base64.RawURLEncoding.EncodeToString(b)

	if _, ok := s.Verify(tampered); ok {
		t.Fatalf("tampered state must be invalid")
	}
}

func TestVerify_GarbageInputs(t *testing.T) {
	t.Parallel()
	s := NewSigner(testSecret, 0)
	for _, tok := range []string{
		"",
		"not-base64!!!",
		base64.RawURLEncoding.EncodeToString([]byte("too:few:fields")),
		base64.RawURLEncoding.EncodeToString([]byte("a:b:c:d:e:f")),
		base64.RawURLEncoding.EncodeToString([]byte("nonce:gmail:notanint:123:sig")),
	} {
		if _, ok := s.Verify(tok); ok {
			t.Fatalf("expected invalid for %q", tok)
		}
	}
}

func TestVerify_Expiry(t *testing.T) {
	t.Parallel()
	now := time.Now()
	clock := now
	s := NewSigner(testSecret, 1*time.Second).WithClock(func() time.Time { return clock })

	tok, err := s.Generate("gmail", 7)
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if _, ok := s.Verify(tok); !ok {
		t.Fatalf("fresh state must verify")
	}

	clock = now.Add(2 * time.Second)
	if _, ok := s.Verify(tok); ok {
		t.Fatalf("state must be invalid after ttl elapses")
	}
}

func TestVerify_CrossTenantSignature(t *testing.T) {
	t.Parallel()
	s := NewSigner(testSecret, 0)
	other := NewSigner([]byte("another-32-byte-signing-secret!!"), 0)

	tok, err := other.Generate("gmail", 7)
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if _, ok := s.Verify(tok); ok {
		t.Fatalf("state signed with a different secret must be invalid")
	}
}
