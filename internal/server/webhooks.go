package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"redacted/internal/config"
	"redacted/internal/events"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	defaultWebhookQueue   = 256
)

type webhookDelivery struct {
	hook config.WebhookConfig
	evt  events.Event
}

// WebhookDispatcher posts bus events to configured webhooks from a single
// background worker.
type WebhookDispatcher struct {
	hooks  []config.WebhookConfig
	client *http.Client
	logger *log.Logger
	queue  chan webhookDelivery
	subs   []*events.Subscription
	done   chan struct{}
	once   sync.Once

	mu     sync.RWMutex
	closed bool
}

// StartWebhooks subscribes active hooks to the broker. It returns nil when no
// hook is active.
func StartWebhooks(broker events.Broker, hooks []config.WebhookConfig, logger *log.Logger) *WebhookDispatcher {
	var active []config.WebhookConfig
	for _, hook := range hooks {
		if hook.Active() {
			active = append(active, hook)
		}
	}
	if broker == nil || len(active) == 0 {
		return nil
	}
	if logger == nil {
		logger = log.Default()
	}
	d := &WebhookDispatcher{
		hooks:  active,
		client: &http.Client{Timeout: defaultWebhookTimeout},
		logger: logger,
		queue:  make(chan webhookDelivery, defaultWebhookQueue),
		done:   make(chan struct{}),
	}
	for _, typ := range events.Types {
		d.subs = append(d.subs, broker.Subscribe(typ, d.enqueue))
	}
	go d.run()
	return d
}

func (d *WebhookDispatcher) enqueue(ctx context.Context, evt events.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	for _, hook := range d.hooks {
		if !newEventFilter(hook.Events).match(string(evt.EventType())) {
			continue
		}
		select {
		case d.queue <- webhookDelivery{hook: hook, evt: evt}:
		default:
			d.logger.Printf("webhook: queue full, dropped %s for %s", evt.EventType(), hook.URL)
		}
	}
}

func (d *WebhookDispatcher) run() {
	defer close(d.done)
	for del := range d.queue {
		if err := d.postEvent(context.Background(), del.hook, del.evt); err != nil {
			d.logger.Printf("webhook: deliver to %s failed: %v", del.hook.URL, err)
		}
	}
}

// Stop unsubscribes and waits for queued deliveries to finish.
func (d *WebhookDispatcher) Stop() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		for _, sub := range d.subs {
			sub.End()
		}
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
		<-d.done
	})
}

type webhookEvent struct {
	Type     string          `json:"type"`
	GameID   string          `json:"game_id"`
	PlayerID string          `json:"player_id,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

func eventPlayerID(evt events.Event) string {
	switch e := evt.(type) {
	case events.PlayerJoinedGame:
		return e.PlayerID
	case events.NewAssignment:
		return e.PlayerID
	}
	return ""
}

func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (d *WebhookDispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, evt events.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	data, err := json.Marshal(webhookEvent{
		Type:     string(evt.EventType()),
		GameID:   evt.GameID(),
		PlayerID: eventPlayerID(evt),
		Payload:  payload,
	})
	if err != nil {
		return err
	}
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if timeout != d.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Redacted-Event", string(evt.EventType()))
	req.Header.Set("X-Redacted-Game", evt.GameID())
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Redacted-Signature", signPayload(hook.Secret, data))
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(names []string) eventFilter {
	if len(names) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(names))
	for _, evt := range names {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
