package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/orivon/pagerelay/internal/token"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "app-1", "secret-1", zap.NewNop())
}

func TestExchangeForLongLivedToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/access_token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("grant_type") != "fb_exchange_token" || q.Get("fb_exchange_token") != "short-tok" {
			t.Errorf("unexpected query %v", q)
		}
		if q.Get("client_id") != "app-1" || q.Get("client_secret") != "secret-1" {
			t.Errorf("app credentials not sent: %v", q)
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "long-tok"})
	})

	got, err := client.ExchangeForLongLivedToken(context.Background(), "short-tok")
	if err != nil {
		t.Fatalf("ExchangeForLongLivedToken: %v", err)
	}
	if got != "long-tok" {
		t.Fatalf("expected long-tok, got %q", got)
	}
}

func TestMintChannelToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/page-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("access_token") != "owner-tok" {
			t.Errorf("owner token not sent: %v", r.URL.Query())
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "page-tok"})
	})

	got, err := client.MintChannelToken(context.Background(), "page-1", "owner-tok")
	if err != nil {
		t.Fatalf("MintChannelToken: %v", err)
	}
	if got != "page-tok" {
		t.Fatalf("expected page-tok, got %q", got)
	}
}

func TestFetchAccountInfo(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/page-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("fields") != "id,name" {
			t.Errorf("unexpected fields %q", r.URL.Query().Get("fields"))
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "page-1", "name": "Acme Flowers"})
	})

	info, err := client.FetchAccountInfo(context.Background(), "page-1", "page-tok")
	if err != nil {
		t.Fatalf("FetchAccountInfo: %v", err)
	}
	if info.AccountID != "page-1" || info.DisplayName != "Acme Flowers" {
		t.Fatalf("unexpected account info %+v", info)
	}
}

func TestSendReturnsProviderMessageID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/page-1/messages" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var payload struct {
			Recipient struct {
				ID string `json:"id"`
			} `json:"recipient"`
			Message struct {
				Text string `json:"text"`
			} `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decoding send payload: %v", err)
		}
		if payload.Recipient.ID != "user-1" || payload.Message.Text != "hello" {
			t.Errorf("unexpected payload %+v", payload)
		}
		json.NewEncoder(w).Encode(map[string]string{"recipient_id": "user-1", "message_id": "m-out-1"})
	})

	mid, err := client.Send(context.Background(), "page-1", "page-tok", "user-1", "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if mid != "m-out-1" {
		t.Fatalf("expected m-out-1, got %q", mid)
	}
}

func TestOAuthRejectionMapsToCredentialInvalid(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"message": "Error validating access token",
				"type":    "OAuthException",
				"code":    190,
			},
		})
	})

	_, err := client.ExchangeForLongLivedToken(context.Background(), "revoked-tok")
	if !errors.Is(err, token.ErrCredentialInvalid) {
		t.Fatalf("expected ErrCredentialInvalid, got %v", err)
	}

	_, err = client.MintChannelToken(context.Background(), "page-1", "revoked-tok")
	if !errors.Is(err, token.ErrCredentialInvalid) {
		t.Fatalf("expected ErrCredentialInvalid, got %v", err)
	}
}

func TestServerErrorIsNotTerminal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"message": "transient", "type": "ServerError", "code": 2},
		})
	})

	_, err := client.ExchangeForLongLivedToken(context.Background(), "tok")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, token.ErrCredentialInvalid) {
		t.Fatal("5xx must not mark the credential terminally invalid")
	}
}
