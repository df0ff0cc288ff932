package server

import (
	"context"
	"log"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"

	"redacted/internal/assignment"
	"redacted/internal/engine"
	"redacted/internal/events"
)

const (
	streamBuffer = 64
	qrSize       = 320
)

// watchGame streams the player's assignments and joins to the game as
// stream messages. The first message is the player's current assignment.
func watchGame(ctx context.Context, e engine.Engine, logger *log.Logger, gameID, playerID string) (<-chan streamMessage, func(), error) {
	out := make(chan streamMessage, streamBuffer)
	push := func(m streamMessage) {
		select {
		case out <- m:
		default:
			logger.Printf("stream: dropped %s for game=%s player=%s", m.Type, gameID, playerID)
		}
	}
	joinSub, err := e.WatchForOtherPlayers(ctx, gameID, playerID, func(pj events.PlayerJoinedGame) {
		push(streamMessage{Type: string(events.TypePlayerJoinedGame), Data: PlayerJoinedMessage{
			GameID:          pj.Game,
			PlayerID:        pj.PlayerID,
			NumberOfPlayers: pj.NumberOfPlayers,
		}})
	})
	if err != nil {
		return nil, nil, err
	}
	assignSub, err := e.WatchAssignment(ctx, gameID, playerID, func(a assignment.Assignment) {
		push(newAssignmentMessage(gameID, playerID, a))
	})
	if err != nil {
		joinSub.End()
		return nil, nil, err
	}
	stop := func() {
		assignSub.End()
		joinSub.End()
	}
	return out, stop, nil
}

func newAssignmentMessage(gameID, playerID string, a assignment.Assignment) streamMessage {
	return streamMessage{Type: string(events.TypeNewAssignment), Data: NewAssignmentMessage{
		GameID:     gameID,
		PlayerID:   playerID,
		Assignment: assignmentResponse(a),
	}}
}

func errorBody(se huma.StatusError) apiErrorBody {
	if ae, ok := se.(*apiError); ok {
		return ae.Body
	}
	return apiErrorBody{Code: defaultCodeForStatus(se.GetStatus()), Message: se.Error()}
}

func registerEventStream(api huma.API, cfg Config) {
	sse.Register(api, huma.Operation{
		OperationID: "game-events",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/events",
		Summary:     "Stream assignment and player events",
		Errors:      gameErrors,
	}, map[string]any{
		string(events.TypePlayerJoinedGame): PlayerJoinedMessage{},
		string(events.TypeNewAssignment):    NewAssignmentMessage{},
		"error":                             apiErrorBody{},
	}, func(ctx context.Context, input *gamePath, send sse.Sender) {
		p, ok := principalFromContext(ctx)
		if !ok {
			send.Data(apiErrorBody{Code: "unauthorized", Message: "authentication required"})
			return
		}
		msgs, stop, err := watchGame(ctx, cfg.Engine, cfg.logger(), input.GameID, p.PlayerID)
		if err != nil {
			send.Data(errorBody(handleError(err)))
			return
		}
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-msgs:
				if err := send.Data(m.Data); err != nil {
					return
				}
			}
		}
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func registerWebSocket(r chi.Router, basePath string, cfg Config) {
	r.Get(path.Join(basePath, "games/{game_id}/ws"), func(w http.ResponseWriter, req *http.Request) {
		p, ok := principalFromContext(req.Context())
		if !ok {
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
			return
		}
		gameID := chi.URLParam(req, "game_id")
		ctx, cancel := context.WithCancel(req.Context())
		defer cancel()
		msgs, stop, err := watchGame(ctx, cfg.Engine, cfg.logger(), gameID, p.PlayerID)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		defer stop()
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			cfg.logger().Println("upgrade error:", err)
			return
		}
		defer conn.Close()
		go readPump(conn, cancel)
		writePump(ctx, conn, msgs)
	})
}

// readPump discards client frames and cancels the stream once the peer goes
// away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, msgs <-chan streamMessage) {
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case m := <-msgs:
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		}
	}
}

// registerQRCode serves a PNG QR code of the game's join link.
func registerQRCode(r chi.Router, basePath string, cfg Config) {
	r.Get(path.Join(basePath, "games/{game_id}/qr.png"), func(w http.ResponseWriter, req *http.Request) {
		gameID := chi.URLParam(req, "game_id")
		if _, err := cfg.Engine.Summary(req.Context(), gameID); err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		png, err := qrcode.Encode(joinURL(cfg.PublicURL, req, gameID), qrcode.Medium, qrSize)
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "qr generation failed", nil))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	})
}

func joinURL(publicURL string, r *http.Request, gameID string) string {
	base := strings.TrimRight(publicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/game/" + gameID
}
