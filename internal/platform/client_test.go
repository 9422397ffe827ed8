package platform

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/support-gateway/internal/config"
)

func TestSendMessageRemembersNonce(t *testing.T) {
	var got outboundMessage
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("unmarshal outbound body: %v", err)
		}
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c, err := NewClient(config.GatewayConfig{
		APIBaseURL: srv.URL, Token: "tok", AuthMode: "bot",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("build client: %v", err)
	}

	res, err := c.SendMessage(context.Background(), "chan-1", "привет")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.OK {
		t.Fatalf("unexpected status %d", res.Status)
	}
	if authHeader != "Bot tok" {
		t.Fatalf("unexpected auth header %q", authHeader)
	}
	if got.Nonce == "" {
		t.Fatalf("outbound message must carry a nonce")
	}
	if !c.OwnsNonce(got.Nonce) {
		t.Fatalf("client must recognize its own outbound nonce")
	}
	if c.OwnsNonce("someone-else") {
		t.Fatalf("foreign nonce must not be recognized")
	}
}

func TestNonceLedgerEvictsOldest(t *testing.T) {
	c, err := NewClient(config.GatewayConfig{}, zap.NewNop())
	if err != nil {
		t.Fatalf("build client: %v", err)
	}

	first := c.NextNonce()
	c.rememberNonce(first)
	for i := 0; i < nonceCap; i++ {
		c.rememberNonce(c.NextNonce())
	}
	if c.OwnsNonce(first) {
		t.Fatalf("oldest nonce must age out of the ledger")
	}
}
