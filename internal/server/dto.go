package server

import (
	"encoding/json"

	"redacted/internal/assignment"
	"redacted/internal/engine"
	"redacted/internal/game"
	"redacted/internal/words"
)

// Request payloads

type CreateSessionRequest struct {
	PlayerID string `json:"player_id,omitempty" doc:"Reuse a player id; a new one is generated when empty"`
}

type CreateGameRequest struct {
	EntriesPerStory int `json:"entries_per_story,omitempty" minimum:"0" doc:"Entries per story; 0 uses the server default"`
}

type StartStoryRequest struct {
	Content string `json:"content" minLength:"1"`
}

type CensorStoryRequest struct {
	WordIndices []int `json:"word_indices" minItems:"1" maxItems:"3"`
}

type RepairStoryRequest struct {
	Replacements []string `json:"replacements" minItems:"1"`
}

type ContinueStoryRequest struct {
	Content string `json:"content" minLength:"1"`
}

// Response payloads

type SessionResponse struct {
	Token     string `json:"token"`
	PlayerID  string `json:"player_id"`
	SessionID string `json:"session_id"`
}

type GameResponse struct {
	ID              string   `json:"id"`
	EntriesPerStory int      `json:"entries_per_story"`
	Players         []string `json:"players"`
	NumberOfPlayers int      `json:"number_of_players"`
	HasStarted      bool     `json:"has_started"`
	HasEnded        bool     `json:"has_ended"`
	StoryCount      int      `json:"story_count"`
	Records         int      `json:"records"`
}

type JoinResponse struct {
	GameID          string             `json:"game_id"`
	PlayerID        string             `json:"player_id"`
	NumberOfPlayers int                `json:"number_of_players"`
	HasStarted      bool               `json:"has_started"`
	Assignment      AssignmentResponse `json:"assignment"`
}

// AssignmentResponse is the tagged wire form of an assignment.
type AssignmentResponse struct {
	Type           string                    `json:"type" enum:"awaitingGameStart,startingStory,redactingStory,repairingCensoredStory,continuingStory,readingStories,awaitingAssignment"`
	Content        *string                   `json:"content,omitempty"`
	StoryIndex     *int                      `json:"storyIndex,omitempty"`
	CensoredRanges []words.Range             `json:"censoredRanges,omitempty"`
	Stories        [][]assignment.StoryEntry `json:"stories,omitempty"`
}

type HistoryRecordResponse struct {
	Seq     int             `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type HistoryResponse struct {
	GameID          string                  `json:"game_id"`
	EntriesPerStory int                     `json:"entries_per_story"`
	Records         []HistoryRecordResponse `json:"records"`
}

type PlayerAssignmentResponse struct {
	PlayerID   string             `json:"player_id"`
	Assignment AssignmentResponse `json:"assignment"`
}

// Stream payloads, shared by SSE and WebSocket.

type PlayerJoinedMessage struct {
	GameID          string `json:"gameId"`
	PlayerID        string `json:"playerId"`
	NumberOfPlayers int    `json:"numberOfPlayers"`
}

type NewAssignmentMessage struct {
	GameID     string             `json:"gameId"`
	PlayerID   string             `json:"playerId"`
	Assignment AssignmentResponse `json:"assignment"`
}

type streamMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func assignmentResponse(a assignment.Assignment) AssignmentResponse {
	w := assignment.Encode(a)
	return AssignmentResponse{
		Type:           string(w.Type),
		Content:        w.Content,
		StoryIndex:     w.StoryIndex,
		CensoredRanges: w.CensoredRanges,
		Stories:        w.Stories,
	}
}

func gameResponse(s engine.Summary) GameResponse {
	return GameResponse{
		ID:              s.ID,
		EntriesPerStory: s.EntriesPerStory,
		Players:         nonNilSlice(s.Players),
		NumberOfPlayers: s.NumberOfPlayers,
		HasStarted:      s.HasStarted,
		HasEnded:        s.HasEnded,
		StoryCount:      s.StoryCount,
		Records:         s.Records,
	}
}

func joinResponse(j engine.GameJoined) JoinResponse {
	return JoinResponse{
		GameID:          j.GameID,
		PlayerID:        j.PlayerID,
		NumberOfPlayers: j.NumberOfPlayers,
		HasStarted:      j.HasStarted,
		Assignment:      assignmentResponse(j.Assignment),
	}
}

func historyResponse(h game.History) (HistoryResponse, error) {
	resp := HistoryResponse{
		GameID:          h.Created.GameID,
		EntriesPerStory: h.Created.EntriesPerStory,
		Records:         make([]HistoryRecordResponse, 0, len(h.Records)),
	}
	for i, rec := range h.Records {
		payload, err := game.EncodeRecord(rec)
		if err != nil {
			return HistoryResponse{}, err
		}
		resp.Records = append(resp.Records, HistoryRecordResponse{
			Seq:     i + 1,
			Type:    string(rec.Type()),
			Payload: payload,
		})
	}
	return resp, nil
}

func nonNilSlice(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
