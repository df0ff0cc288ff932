package game

import (
	"encoding/json"
	"fmt"

	"redacted/internal/assignment"
	"redacted/internal/failure"
)

// RecordType names a history record on the wire and in storage.
type RecordType string

const (
	RecordGameCreated         RecordType = "GameCreated"
	RecordPlayerAdded         RecordType = "PlayerAdded"
	RecordGameStarted         RecordType = "GameStarted"
	RecordStoryStarted        RecordType = "StoryStarted"
	RecordStoryCensored       RecordType = "StoryCensored"
	RecordStoryCensorRepaired RecordType = "StoryCensorRepaired"
	RecordStoryContinued      RecordType = "StoryContinued"
)

// Record is a successful modification of a game. Applying the records of a
// game in order to a fresh game rebuilds it.
type Record interface {
	Type() RecordType
	apply(g *Game) error
}

// GameCreated heads every history.
type GameCreated struct {
	GameID          string `json:"gameId"`
	EntriesPerStory int    `json:"entriesPerStory"`
}

type PlayerAdded struct {
	PlayerID string `json:"playerId"`
}

type GameStarted struct{}

type StoryStarted struct {
	PlayerID string `json:"playerId"`
	Content  string `json:"content"`
}

type StoryCensored struct {
	PlayerID    string `json:"playerId"`
	StoryIndex  int    `json:"storyIndex"`
	WordIndices []int  `json:"wordIndices"`
}

type StoryCensorRepaired struct {
	PlayerID     string   `json:"playerId"`
	StoryIndex   int      `json:"storyIndex"`
	Replacements []string `json:"replacements"`
}

type StoryContinued struct {
	PlayerID   string `json:"playerId"`
	StoryIndex int    `json:"storyIndex"`
	Content    string `json:"content"`
}

func (PlayerAdded) Type() RecordType         { return RecordPlayerAdded }
func (GameStarted) Type() RecordType         { return RecordGameStarted }
func (StoryStarted) Type() RecordType        { return RecordStoryStarted }
func (StoryCensored) Type() RecordType       { return RecordStoryCensored }
func (StoryCensorRepaired) Type() RecordType { return RecordStoryCensorRepaired }
func (StoryContinued) Type() RecordType      { return RecordStoryContinued }

func (r PlayerAdded) apply(g *Game) error { return g.AddPlayer(r.PlayerID) }
func (r GameStarted) apply(g *Game) error { return g.Start() }

func (r StoryStarted) apply(g *Game) error {
	_, err := g.StartStory(r.PlayerID, r.Content)
	return err
}

func (r StoryCensored) apply(g *Game) error {
	_, err := g.CensorStory(r.PlayerID, r.StoryIndex, r.WordIndices)
	return err
}

func (r StoryCensorRepaired) apply(g *Game) error {
	_, err := g.RepairCensoredStory(r.PlayerID, r.StoryIndex, r.Replacements)
	return err
}

func (r StoryContinued) apply(g *Game) error {
	_, err := g.ContinueStory(r.PlayerID, r.StoryIndex, r.Content)
	return err
}

func cloneRecord(r Record) Record {
	switch v := r.(type) {
	case StoryCensored:
		v.WordIndices = append([]int(nil), v.WordIndices...)
		return v
	case StoryCensorRepaired:
		v.Replacements = append([]string(nil), v.Replacements...)
		return v
	default:
		return r
	}
}

// History is the creation parameters of a game followed by every successful
// modification in the order it happened.
type History struct {
	Created GameCreated
	Records []Record
}

// Len counts the GameCreated header plus every record.
func (h History) Len() int { return 1 + len(h.Records) }

// History returns a copy of the game's history.
func (g *Game) History() History {
	h := History{
		Created: GameCreated{GameID: g.id, EntriesPerStory: g.entriesPerStory},
		Records: make([]Record, len(g.records)),
	}
	for i, r := range g.records {
		h.Records[i] = cloneRecord(r)
	}
	return h
}

// Replay rebuilds a game by applying every record of h to a fresh game.
func Replay(h History) (*Game, error) {
	g := New(h.Created.GameID, h.Created.EntriesPerStory)
	for i, r := range h.Records {
		if err := cloneRecord(r).apply(g); err != nil {
			return nil, fmt.Errorf("replay game %s record %d (%s): %w", h.Created.GameID, i+1, r.Type(), err)
		}
	}
	return g, nil
}

// Copy returns a deep copy of g sharing no mutable state with it.
func (g *Game) Copy() *Game {
	cp := &Game{
		id:              g.id,
		entriesPerStory: g.entriesPerStory,
		players:         append([]string(nil), g.players...),
		started:         g.started,
		queues:          make(map[string][]assignment.Assignment, len(g.queues)),
		stories:         make([]*Story, len(g.stories)),
		records:         make([]Record, len(g.records)),
	}
	for p, q := range g.queues {
		cq := make([]assignment.Assignment, len(q))
		for i, a := range q {
			cq[i] = assignment.Clone(a)
		}
		cp.queues[p] = cq
	}
	for i, s := range g.stories {
		cp.stories[i] = s.clone()
	}
	for i, r := range g.records {
		cp.records[i] = cloneRecord(r)
	}
	return cp
}

// EncodeRecord returns the JSON payload of r.
func EncodeRecord(r Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", r.Type(), err)
	}
	return data, nil
}

// DecodeRecord parses a payload produced by EncodeRecord.
func DecodeRecord(t RecordType, payload []byte) (Record, error) {
	var r Record
	var err error
	switch t {
	case RecordPlayerAdded:
		var v PlayerAdded
		err = json.Unmarshal(payload, &v)
		r = v
	case RecordGameStarted:
		r = GameStarted{}
	case RecordStoryStarted:
		var v StoryStarted
		err = json.Unmarshal(payload, &v)
		r = v
	case RecordStoryCensored:
		var v StoryCensored
		err = json.Unmarshal(payload, &v)
		r = v
	case RecordStoryCensorRepaired:
		var v StoryCensorRepaired
		err = json.Unmarshal(payload, &v)
		r = v
	case RecordStoryContinued:
		var v StoryContinued
		err = json.Unmarshal(payload, &v)
		r = v
	default:
		return nil, failure.IllegalArgumentf("unknown record type %q", t)
	}
	if err != nil {
		return nil, failure.Wrap(failure.IllegalArgument, fmt.Sprintf("decode %s", t), err)
	}
	return r, nil
}
