package http

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"bankconn/internal/domain/banksync"
	"bankconn/internal/shared/auth"
)

// WebhookSecretHeader carries the shared secret configured at the aggregator.
const WebhookSecretHeader = "X-Webhook-Secret"

const maxWebhookBody = 1 << 20

//go:embed webhook_schema.json
var webhookSchemaJSON []byte

// EventHandler processes one decoded webhook event. Implemented by
// *banksync.WebhookIngestor.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev banksync.Event) (*banksync.Ack, error)
}

// WebhookHandler receives aggregator push notifications.
type WebhookHandler struct {
	events   EventHandler
	verifier *auth.SecretVerifier
	schema   *jsonschema.Schema
}

// NewWebhookHandler compiles the payload schema. A nil or empty verifier
// disables the secret check.
func NewWebhookHandler(events EventHandler, verifier *auth.SecretVerifier) (*WebhookHandler, error) {
	schema, err := compileWebhookSchema()
	if err != nil {
		return nil, err
	}
	return &WebhookHandler{events: events, verifier: verifier, schema: schema}, nil
}

func compileWebhookSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(webhookSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse webhook schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("webhook_schema.json", doc); err != nil {
		return nil, fmt.Errorf("failed to add webhook schema: %w", err)
	}
	schema, err := c.Compile("webhook_schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile webhook schema: %w", err)
	}
	return schema, nil
}

type webhookPayload struct {
	Event   string `json:"event"`
	EventID string `json:"eventId"`
	ID      string `json:"id"`
	ItemID  string `json:"itemId"`
}

// HandleWebhook acknowledges every event it could process, including
// irrelevant types and unknown items. Only internal failures return 500 so
// the aggregator re-delivers.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.verifier.Verify(r.Header.Get(WebhookSecretHeader)); err != nil {
		log.Printf("Webhook rejected from %s: %v", r.RemoteAddr, err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	payload, err := h.decode(body)
	if err != nil {
		log.Printf("Webhook rejected: %v", err)
		http.Error(w, "Invalid webhook payload", http.StatusBadRequest)
		return
	}

	ev := banksync.Event{ID: payload.EventID, Type: payload.Event, ItemID: payload.ItemID}
	if ev.ID == "" {
		ev.ID = payload.ID
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	ack, err := h.events.HandleEvent(r.Context(), ev)
	if err != nil {
		log.Printf("Webhook %s (%s) for item %s failed: %v", ev.ID, ev.Type, ev.ItemID, err)
		http.Error(w, "Failed to process webhook", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ack)
}

func (h *WebhookHandler) decode(body []byte) (*webhookPayload, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	if err := h.schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
