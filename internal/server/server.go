package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"redacted/internal/assignment"
	"redacted/internal/engine"
	"redacted/internal/failure"
	"redacted/internal/words"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	// PublicURL is the externally reachable origin used in join links.
	PublicURL string
	Auth      AuthConfig
	Logger    *log.Logger
	Verbose   bool
}

func (c Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"illegal_state"`
	Message string         `json:"message" example:"player p1 is assigned to censor story 2, not 1"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"story_index\":1}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Redacted API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Auth.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	if cfg.Verbose {
		router.Use(requestLogger(cfg.logger()))
	}
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Redacted API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerSessions(group, cfg.Auth)
	registerGames(group, cfg.Engine)
	registerStories(group, cfg.Engine)
	registerEventStream(group, cfg)
	registerWebSocket(router, basePath, cfg)
	registerQRCode(router, basePath, cfg)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Printf("http: %s %s took=%s", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	switch failure.CodeOf(err) {
	case failure.NotFound:
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case failure.IllegalState:
		return newAPIError(http.StatusConflict, "illegal_state", err.Error(), nil)
	case failure.IllegalArgument:
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case failure.Conflict:
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newAPIError(http.StatusServiceUnavailable, "unavailable", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
	}
	oas.Security = security
	public := map[string]bool{
		path.Join("/", basePath, "health"):   true,
		path.Join("/", basePath, "sessions"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Redacted API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Create a session with POST /sessions, then authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSessions(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/sessions",
		Summary:       "Start a player session",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body *CreateSessionRequest `json:"body,omitempty" required:"false"`
	}) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		playerID := ""
		if input.Body != nil {
			playerID = strings.TrimSpace(input.Body.PlayerID)
		}
		if playerID == "" {
			playerID = newPlayerID()
		}
		s, err := authCfg.Sessions.StartNewSession(ctx, playerID)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := signSessionToken(authCfg, s, time.Now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body SessionResponse `json:"body"`
		}{Body: SessionResponse{Token: token, PlayerID: s.UserID, SessionID: s.ID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current player",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body SessionResponse `json:"body"`
		}{Body: SessionResponse{PlayerID: p.PlayerID, SessionID: p.SessionID}}, nil
	})
}

type gamePath struct {
	GameID string `path:"game_id"`
}

var gameErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

func registerGames(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-game",
		Method:        http.MethodPost,
		Path:          "/games",
		Summary:       "Create game",
		DefaultStatus: http.StatusCreated,
		Errors:        gameErrors,
	}, func(ctx context.Context, input *struct {
		Body *CreateGameRequest `json:"body,omitempty" required:"false"`
	}) (*struct {
		Body GameResponse `json:"body"`
	}, error) {
		entries := 0
		if input.Body != nil {
			entries = input.Body.EntriesPerStory
		}
		s, err := e.CreateGame(ctx, entries)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GameResponse `json:"body"`
		}{Body: gameResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-game",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}",
		Summary:     "Get game",
		Errors:      gameErrors,
	}, func(ctx context.Context, input *gamePath) (*struct {
		Body GameResponse `json:"body"`
	}, error) {
		s, err := e.Summary(ctx, input.GameID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GameResponse `json:"body"`
		}{Body: gameResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "join-game",
		Method:      http.MethodPut,
		Path:        "/games/{game_id}/players/me",
		Summary:     "Join game as the current player",
		Errors:      gameErrors,
	}, func(ctx context.Context, input *gamePath) (*struct {
		Body JoinResponse `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.JoinGame(ctx, input.GameID, playerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JoinResponse `json:"body"`
		}{Body: joinResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "start-game",
		Method:        http.MethodPost,
		Path:          "/games/{game_id}/start",
		Summary:       "Start game",
		DefaultStatus: http.StatusNoContent,
		Errors:        gameErrors,
	}, func(ctx context.Context, input *gamePath) (*struct{}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireParticipant(ctx, e, input.GameID, playerID); err != nil {
			return nil, handleError(err)
		}
		if err := e.StartGame(ctx, input.GameID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-assignment",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/assignment",
		Summary:     "Current assignment of the current player",
		Errors:      gameErrors,
	}, func(ctx context.Context, input *gamePath) (*struct {
		Body AssignmentResponse `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Assignment(ctx, input.GameID, playerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentResponse `json:"body"`
		}{Body: assignmentResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-history",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/history",
		Summary:     "Game history records",
		Errors:      gameErrors,
	}, func(ctx context.Context, input *gamePath) (*struct {
		Body HistoryResponse `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireParticipant(ctx, e, input.GameID, playerID); err != nil {
			return nil, handleError(err)
		}
		h, err := e.History(ctx, input.GameID)
		if err != nil {
			return nil, handleError(err)
		}
		resp, err := historyResponse(h)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HistoryResponse `json:"body"`
		}{Body: resp}, nil
	})
}

// requireParticipant hides games from players who have not joined them.
func requireParticipant(ctx context.Context, e engine.Engine, gameID, playerID string) error {
	s, err := e.Summary(ctx, gameID)
	if err != nil {
		return err
	}
	for _, p := range s.Players {
		if p == playerID {
			return nil
		}
	}
	return failure.NotFoundf("player %s is not in game %s", playerID, gameID)
}

func registerStories(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-story",
		Method:        http.MethodPost,
		Path:          "/games/{game_id}/stories",
		Summary:       "Start a story",
		DefaultStatus: http.StatusCreated,
		Errors:        gameErrors,
	}, func(ctx context.Context, input *struct {
		GameID string            `path:"game_id"`
		Body   StartStoryRequest `json:"body"`
	}) (*struct {
		Body AssignmentResponse `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		next, err := e.StartStory(ctx, input.GameID, playerID, input.Body.Content)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentResponse `json:"body"`
		}{Body: assignmentResponse(next)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "censor-story",
		Method:      http.MethodPost,
		Path:        "/games/{game_id}/stories/{story_index}/censor",
		Summary:     "Censor words of the latest entry",
		Errors:      gameErrors,
	}, func(ctx context.Context, input *struct {
		GameID     string             `path:"game_id"`
		StoryIndex int                `path:"story_index" minimum:"0"`
		Body       CensorStoryRequest `json:"body"`
	}) (*struct {
		Body AssignmentResponse `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		next, err := e.CensorStory(ctx, input.GameID, playerID, input.StoryIndex, input.Body.WordIndices)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentResponse `json:"body"`
		}{Body: assignmentResponse(next)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "repair-story",
		Method:      http.MethodPost,
		Path:        "/games/{game_id}/stories/{story_index}/repair",
		Summary:     "Repair the censored words of the latest entry",
		Errors:      gameErrors,
	}, func(ctx context.Context, input *struct {
		GameID     string             `path:"game_id"`
		StoryIndex int                `path:"story_index" minimum:"0"`
		Body       RepairStoryRequest `json:"body"`
	}) (*struct {
		Body AssignmentResponse `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		current, err := e.Assignment(ctx, input.GameID, playerID)
		if err != nil {
			return nil, handleError(err)
		}
		if rc, ok := current.(assignment.RepairingCensoredStory); ok && rc.StoryIndex == input.StoryIndex {
			if !words.ValidReplacements(len(rc.CensoredRanges), input.Body.Replacements) {
				return nil, newAPIError(http.StatusBadRequest, "bad_request",
					fmt.Sprintf("expected %d single-word replacements", len(rc.CensoredRanges)),
					map[string]any{"censored_ranges": len(rc.CensoredRanges)})
			}
		}
		next, err := e.RepairCensoredStory(ctx, input.GameID, playerID, input.StoryIndex, input.Body.Replacements)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentResponse `json:"body"`
		}{Body: assignmentResponse(next)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "continue-story",
		Method:        http.MethodPost,
		Path:          "/games/{game_id}/stories/{story_index}/entries",
		Summary:       "Continue a repaired story",
		DefaultStatus: http.StatusCreated,
		Errors:        gameErrors,
	}, func(ctx context.Context, input *struct {
		GameID     string               `path:"game_id"`
		StoryIndex int                  `path:"story_index" minimum:"0"`
		Body       ContinueStoryRequest `json:"body"`
	}) (*struct {
		Body AssignmentResponse `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		next, err := e.ContinueStory(ctx, input.GameID, playerID, input.StoryIndex, input.Body.Content)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentResponse `json:"body"`
		}{Body: assignmentResponse(next)}, nil
	})
}
