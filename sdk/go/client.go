package redactedsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Redacted HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Session is returned when a player session starts.
type Session struct {
	Token     string `json:"token"`
	PlayerID  string `json:"player_id"`
	SessionID string `json:"session_id"`
}

// Game summarizes a game.
type Game struct {
	ID              string   `json:"id"`
	EntriesPerStory int      `json:"entries_per_story"`
	Players         []string `json:"players"`
	NumberOfPlayers int      `json:"number_of_players"`
	HasStarted      bool     `json:"has_started"`
	HasEnded        bool     `json:"has_ended"`
	StoryCount      int      `json:"story_count"`
	Records         int      `json:"records"`
}

// StoryEntry is one finished entry shown when reading stories.
type StoryEntry struct {
	Content string   `json:"content"`
	Censors [][2]int `json:"censors"`
	Players []string `json:"players"`
}

// Assignment is the tagged form of a player's current task. Type is one of
// awaitingGameStart, startingStory, redactingStory, repairingCensoredStory,
// continuingStory, readingStories or awaitingAssignment.
type Assignment struct {
	Type           string         `json:"type"`
	Content        *string        `json:"content,omitempty"`
	StoryIndex     *int           `json:"storyIndex,omitempty"`
	CensoredRanges [][2]int       `json:"censoredRanges,omitempty"`
	Stories        [][]StoryEntry `json:"stories,omitempty"`
}

// Joined is returned when joining a game.
type Joined struct {
	GameID          string     `json:"game_id"`
	PlayerID        string     `json:"player_id"`
	NumberOfPlayers int        `json:"number_of_players"`
	HasStarted      bool       `json:"has_started"`
	Assignment      Assignment `json:"assignment"`
}

// HistoryRecord is one modification of a game.
type HistoryRecord struct {
	Seq     int             `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// History lists the modifications of a game.
type History struct {
	GameID          string          `json:"game_id"`
	EntriesPerStory int             `json:"entries_per_story"`
	Records         []HistoryRecord `json:"records"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// StartSession starts a session for playerID and uses its token for later
// calls. An empty playerID lets the server pick one.
func (c *Client) StartSession(ctx context.Context, playerID string) (Session, error) {
	var body any
	if playerID != "" {
		body = map[string]any{"player_id": playerID}
	}
	var resp Session
	if err := c.do(ctx, http.MethodPost, "sessions", body, &resp); err != nil {
		return Session{}, err
	}
	c.BearerToken = resp.Token
	return resp, nil
}

// CreateGame creates a game. entriesPerStory 0 uses the server default.
func (c *Client) CreateGame(ctx context.Context, entriesPerStory int) (Game, error) {
	var resp Game
	err := c.do(ctx, http.MethodPost, "games", map[string]any{"entries_per_story": entriesPerStory}, &resp)
	return resp, err
}

// Game fetches a game summary.
func (c *Client) Game(ctx context.Context, gameID string) (Game, error) {
	var resp Game
	err := c.do(ctx, http.MethodGet, gamePath(gameID, ""), nil, &resp)
	return resp, err
}

// Join joins the game as the session's player.
func (c *Client) Join(ctx context.Context, gameID string) (Joined, error) {
	var resp Joined
	err := c.do(ctx, http.MethodPut, gamePath(gameID, "players/me"), nil, &resp)
	return resp, err
}

// StartGame starts a game with at least four players.
func (c *Client) StartGame(ctx context.Context, gameID string) error {
	return c.do(ctx, http.MethodPost, gamePath(gameID, "start"), nil, nil)
}

// Assignment returns the session player's current assignment.
func (c *Client) Assignment(ctx context.Context, gameID string) (Assignment, error) {
	var resp Assignment
	err := c.do(ctx, http.MethodGet, gamePath(gameID, "assignment"), nil, &resp)
	return resp, err
}

func (c *Client) StartStory(ctx context.Context, gameID, content string) (Assignment, error) {
	var resp Assignment
	err := c.do(ctx, http.MethodPost, gamePath(gameID, "stories"), map[string]any{"content": content}, &resp)
	return resp, err
}

func (c *Client) CensorStory(ctx context.Context, gameID string, storyIndex int, wordIndices []int) (Assignment, error) {
	var resp Assignment
	endpoint := gamePath(gameID, fmt.Sprintf("stories/%d/censor", storyIndex))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"word_indices": wordIndices}, &resp)
	return resp, err
}

func (c *Client) RepairStory(ctx context.Context, gameID string, storyIndex int, replacements []string) (Assignment, error) {
	var resp Assignment
	endpoint := gamePath(gameID, fmt.Sprintf("stories/%d/repair", storyIndex))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"replacements": replacements}, &resp)
	return resp, err
}

func (c *Client) ContinueStory(ctx context.Context, gameID string, storyIndex int, content string) (Assignment, error) {
	var resp Assignment
	endpoint := gamePath(gameID, fmt.Sprintf("stories/%d/entries", storyIndex))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"content": content}, &resp)
	return resp, err
}

// History returns the game's modification log.
func (c *Client) History(ctx context.Context, gameID string) (History, error) {
	var resp History
	err := c.do(ctx, http.MethodGet, gamePath(gameID, "history"), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func gamePath(gameID, p string) string {
	endpoint := "games/" + url.PathEscape(gameID)
	if p != "" {
		endpoint += "/" + strings.TrimLeft(p, "/")
	}
	return endpoint
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if bp := strings.Trim(c.BasePath, "/"); bp != "" {
		base += "/" + bp
	}
	return base
}
