package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orivon/pagerelay/internal/models"
	"github.com/orivon/pagerelay/internal/storage"
	"github.com/orivon/pagerelay/internal/tenant"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// maxBodySize bounds webhook request bodies. The provider batches at most
// 1000 updates per delivery, which stays well under 1 MB.
const maxBodySize = 1 << 20

// ackBody is the fixed acknowledgment the provider expects on accepted
// deliveries.
const ackBody = "EVENT_RECEIVED"

// Handler consumes one canonical event in tenant context.
type Handler interface {
	HandleEvent(ctx context.Context, t *models.Tenant, ev models.Event) error
}

// Router is the webhook boundary: it authenticates deliveries, answers the
// subscription handshake, deduplicates events, and fans them out to the
// handler. A structurally valid, signed batch is always acknowledged 200,
// regardless of per-event processing outcomes; the provider retries whole
// batches and the idempotency check absorbs redelivery.
type Router struct {
	verifyToken  string
	appSecret    string
	resolver     *tenant.Resolver
	messages     storage.MessageStore
	handler      Handler
	eventTimeout time.Duration
	logger       *zap.Logger
}

func NewRouter(verifyToken, appSecret string, resolver *tenant.Resolver, messages storage.MessageStore, handler Handler, eventTimeout time.Duration, logger *zap.Logger) *Router {
	if eventTimeout <= 0 {
		eventTimeout = 10 * time.Second
	}
	return &Router{
		verifyToken:  verifyToken,
		appSecret:    appSecret,
		resolver:     resolver,
		messages:     messages,
		handler:      handler,
		eventTimeout: eventTimeout,
		logger:       logger,
	}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rt.handleVerification(w, r)
	case http.MethodPost:
		rt.handleDelivery(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleVerification answers the provider's subscription handshake: echo the
// challenge iff the verify token matches.
func (rt *Router) handleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "" || challenge == "" {
		http.Error(w, "Missing verification parameters", http.StatusBadRequest)
		return
	}

	if mode != "subscribe" || token != rt.verifyToken {
		rt.logger.Warn("Webhook verification failed", zap.String("mode", mode))
		http.Error(w, "Invalid verification token", http.StatusForbidden)
		return
	}

	rt.logger.Info("Webhook verification successful")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

func (rt *Router) handleDelivery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}

	// Signature check runs before any parsing.
	signature := r.Header.Get("X-Hub-Signature-256")
	if signature == "" || !rt.verifySignature(body, signature) {
		rt.logger.Warn("Webhook delivery rejected: invalid signature")
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		rt.logger.Warn("Webhook delivery rejected: malformed payload", zap.Error(err))
		http.Error(w, "Malformed payload", http.StatusBadRequest)
		return
	}
	if env.Object != "page" && env.Object != "instagram" {
		rt.logger.Warn("Webhook delivery rejected: unsupported object", zap.String("object", env.Object))
		http.Error(w, "Unsupported webhook object", http.StatusBadRequest)
		return
	}

	requestID := uuid.New().String()
	events := Normalize(&env)
	rt.logger.Info("Webhook delivery accepted",
		zap.String("request_id", requestID),
		zap.String("object", env.Object),
		zap.Int("entries", len(env.Entry)),
		zap.Int("events", len(events)))

	if err := rt.dispatch(r.Context(), requestID, events); err != nil {
		// Per-event failures are internal; the provider still gets its ack
		// and redelivers if it wants, which the dedup check absorbs.
		rt.logger.Error("Webhook batch completed with failures",
			zap.String("request_id", requestID),
			zap.Error(err))
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ackBody)
}

// dispatch fans the batch out, one goroutine per canonical event in provider
// order, each bounded by the per-event timeout, and joins before returning
// the aggregated failures.
func (rt *Router) dispatch(ctx context.Context, requestID string, events []models.Event) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)

	for _, ev := range events {
		ev := ev
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rt.dispatchOne(ctx, ev); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return errs
}

func (rt *Router) dispatchOne(parent context.Context, ev models.Event) error {
	ctx, cancel := context.WithTimeout(parent, rt.eventTimeout)
	defer cancel()

	t, err := rt.resolver.Resolve(ctx, ev.PageID)
	if err != nil {
		// Misconfiguration or an unlinked account: drop, report, never retry.
		rt.logger.Warn("Dropping event for unresolvable page",
			zap.String("page_id", ev.PageID),
			zap.Error(err))
		return nil
	}

	if ev.IsMessage() || ev.Kind == models.EventEcho {
		direction := models.DirectionReceived
		if ev.Kind == models.EventEcho {
			direction = models.DirectionSent
		}
		exists, err := rt.messages.MessageExists(ctx, t.ID, ev.ProviderMessageID, direction)
		if err != nil {
			return fmt.Errorf("idempotency check for %s: %w", ev.ProviderMessageID, err)
		}
		if exists {
			rt.logger.Debug("Skipping already-processed message",
				zap.String("tenant_id", t.ID),
				zap.String("provider_message_id", ev.ProviderMessageID))
			return nil
		}
	}

	if err := rt.handler.HandleEvent(ctx, t, ev); err != nil {
		return fmt.Errorf("event %s (%s): %w", ev.ProviderMessageID, ev.Kind, err)
	}
	return nil
}

// verifySignature validates X-Hub-Signature-256 ("sha256=<hex>") against the
// HMAC-SHA256 of the body, in constant time.
func (rt *Router) verifySignature(body []byte, header string) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}

	received, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(rt.appSecret))
	mac.Write(body)
	return hmac.Equal(received, mac.Sum(nil))
}
