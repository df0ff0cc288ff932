package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"testing"
	"time"

	"redacted/internal/config"
	"redacted/internal/engine"
	"redacted/internal/events"
	"redacted/internal/repo"
)

type receivedHook struct {
	header http.Header
	body   []byte
}

func newHookReceiver(t *testing.T) (string, <-chan receivedHook) {
	t.Helper()
	got := make(chan receivedHook, 16)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- receivedHook{header: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusNoContent)
	})}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
	return "http://" + ln.Addr().String() + "/hook", got
}

func TestWebhooksDeliverFilteredEvents(t *testing.T) {
	url, got := newHookReceiver(t)
	logger := log.New(io.Discard, "", 0)
	bus := events.NewBus(logger)
	disabled := false
	d := StartWebhooks(bus, []config.WebhookConfig{
		{URL: url, Events: []string{"PlayerJoinedGame"}, Secret: "s3cret"},
		{URL: url, Enabled: &disabled},
	}, logger)
	if d == nil {
		t.Fatalf("expected a dispatcher")
	}
	e := engine.New(repo.NewMemoryGames(), bus, config.Default(), logger)
	ctx := context.Background()
	summary, _ := e.CreateGame(ctx, 1)
	for _, p := range []string{"p1", "p2", "p3", "p4"} {
		if _, err := e.JoinGame(ctx, summary.ID, p); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	if err := e.StartGame(ctx, summary.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	d.Stop()

	for i := 0; i < 4; i++ {
		select {
		case hook := <-got:
			if hook.header.Get("X-Redacted-Event") != "PlayerJoinedGame" {
				t.Fatalf("unexpected event %s", hook.header.Get("X-Redacted-Event"))
			}
			if hook.header.Get("X-Redacted-Signature") != signPayload("s3cret", hook.body) {
				t.Fatalf("bad signature")
			}
			var evt webhookEvent
			if err := json.Unmarshal(hook.body, &evt); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if evt.GameID != summary.ID || evt.Type != "PlayerJoinedGame" || evt.PlayerID == "" {
				t.Fatalf("event = %+v", evt)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for delivery %d", i)
		}
	}
	select {
	case hook := <-got:
		t.Fatalf("unexpected extra delivery: %s", string(hook.body))
	default:
	}
	if bus.Subscribers(events.TypeNewAssignment) != 0 {
		t.Fatalf("dispatcher left subscriptions behind")
	}
}

func TestStartWebhooksWithoutActiveHooks(t *testing.T) {
	disabled := false
	if d := StartWebhooks(events.NewBus(nil), []config.WebhookConfig{{URL: "http://x", Enabled: &disabled}}, nil); d != nil {
		t.Fatalf("expected no dispatcher")
	}
	var d *WebhookDispatcher
	d.Stop()
}
