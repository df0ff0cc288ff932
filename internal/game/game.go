// Package game implements the rotation and validation rules of a Redacted game.
//
// Every player holds a queue of assignments. Acting on the head of the queue
// pops it and pushes the story's next assignment onto the following player's
// queue, so stories travel around the table in join order.
package game

import (
	"strings"

	"redacted/internal/assignment"
	"redacted/internal/failure"
	"redacted/internal/words"
)

const (
	DefaultEntriesPerStory = 6
	MinPlayers             = 4
	MinStartingWords       = 1
	MinCensoredWords       = 1
	MaxCensoredWords       = 3
	MinContinuationWords   = 2
)

// PlayerAssignment pairs a player with an assignment.
type PlayerAssignment struct {
	PlayerID   string
	Assignment assignment.Assignment
}

// Game is the aggregate for one session. It is not safe for concurrent use;
// callers serialize operations per game.
type Game struct {
	id              string
	entriesPerStory int
	players         []string
	started         bool
	queues          map[string][]assignment.Assignment
	stories         []*Story
	records         []Record
}

// New creates an empty game. A non-positive entriesPerStory selects
// DefaultEntriesPerStory.
func New(id string, entriesPerStory int) *Game {
	if entriesPerStory <= 0 {
		entriesPerStory = DefaultEntriesPerStory
	}
	return &Game{
		id:              id,
		entriesPerStory: entriesPerStory,
		queues:          make(map[string][]assignment.Assignment),
	}
}

// CanStart reports whether a game with the given number of players can start.
func CanStart(numberOfPlayers int, started bool) bool {
	return !started && numberOfPlayers >= MinPlayers
}

func (g *Game) ID() string           { return g.id }
func (g *Game) EntriesPerStory() int { return g.entriesPerStory }
func (g *Game) NumberOfPlayers() int { return len(g.players) }
func (g *Game) HasStarted() bool     { return g.started }
func (g *Game) StoryCount() int      { return len(g.stories) }

// Players returns player ids in join order.
func (g *Game) Players() []string {
	return append([]string(nil), g.players...)
}

func (g *Game) HasPlayer(playerID string) bool {
	for _, p := range g.players {
		if p == playerID {
			return true
		}
	}
	return false
}

// HasEnded reports whether every player has started a story and every story
// is finished.
func (g *Game) HasEnded() bool {
	if !g.started || len(g.stories) != len(g.players) {
		return false
	}
	for _, s := range g.stories {
		if !s.IsFinished() {
			return false
		}
	}
	return true
}

// AddPlayer appends a player to the seating order.
func (g *Game) AddPlayer(playerID string) error {
	if strings.TrimSpace(playerID) == "" {
		return failure.IllegalArgumentf("player id required")
	}
	if g.HasPlayer(playerID) {
		return failure.IllegalArgumentf("player %s already in game %s", playerID, g.id)
	}
	if g.started {
		return failure.IllegalStatef("game %s has already started", g.id)
	}
	g.players = append(g.players, playerID)
	g.records = append(g.records, PlayerAdded{PlayerID: playerID})
	return nil
}

// Start hands every player a StartingStory assignment.
func (g *Game) Start() error {
	if g.started {
		return failure.IllegalStatef("game %s has already started", g.id)
	}
	if !CanStart(len(g.players), g.started) {
		return failure.IllegalArgumentf("game %s needs at least %d players, has %d", g.id, MinPlayers, len(g.players))
	}
	g.started = true
	for _, p := range g.players {
		g.queues[p] = []assignment.Assignment{assignment.StartingStory{}}
	}
	g.records = append(g.records, GameStarted{})
	return nil
}

// Story returns a copy of the story at index.
func (g *Game) Story(index int) (*Story, error) {
	s, err := g.story(index)
	if err != nil {
		return nil, err
	}
	return s.clone(), nil
}

// Stories returns copies of all stories in start order.
func (g *Game) Stories() []*Story {
	out := make([]*Story, len(g.stories))
	for i, s := range g.stories {
		out[i] = s.clone()
	}
	return out
}

func (g *Game) story(index int) (*Story, error) {
	if index < 0 || index >= len(g.stories) {
		return nil, failure.NotFoundf("story %d not found in game %s", index, g.id)
	}
	return g.stories[index], nil
}

func (g *Game) requirePlayer(playerID string) error {
	if !g.HasPlayer(playerID) {
		return failure.NotFoundf("player %s not found in game %s", playerID, g.id)
	}
	return nil
}

// Assignment returns the player's current assignment.
func (g *Game) Assignment(playerID string) (assignment.Assignment, error) {
	if err := g.requirePlayer(playerID); err != nil {
		return nil, err
	}
	return assignment.Clone(g.current(playerID)), nil
}

func (g *Game) current(playerID string) assignment.Assignment {
	if !g.started {
		return assignment.AwaitingGameStart{}
	}
	if g.HasEnded() {
		return assignment.ReadingStories{Stories: g.readingStories()}
	}
	if q := g.queues[playerID]; len(q) > 0 {
		return q[0]
	}
	return assignment.AwaitingAssignment{}
}

// PlayerAssignments lists every player's current assignment in join order.
func (g *Game) PlayerAssignments() []PlayerAssignment {
	out := make([]PlayerAssignment, 0, len(g.players))
	for _, p := range g.players {
		out = append(out, PlayerAssignment{PlayerID: p, Assignment: assignment.Clone(g.current(p))})
	}
	return out
}

func (g *Game) readingStories() [][]assignment.StoryEntry {
	out := make([][]assignment.StoryEntry, 0, len(g.stories))
	for _, s := range g.stories {
		entries := make([]assignment.StoryEntry, 0, len(s.entries))
		for _, e := range s.entries {
			content := e.InitialContent
			if e.RepairedContent != nil {
				content = *e.RepairedContent
			}
			entries = append(entries, assignment.StoryEntry{
				Content: content,
				Censors: e.readingCensors(),
				Players: append([]string(nil), e.Contributors...),
			})
		}
		out = append(out, entries)
	}
	return out
}

func (g *Game) nextPlayer(playerID string) string {
	for i, p := range g.players {
		if p == playerID {
			return g.players[(i+1)%len(g.players)]
		}
	}
	return ""
}

// advance pops the acting player's current assignment and queues next for the
// following player. The following player is returned when next became their
// current assignment.
func (g *Game) advance(playerID string, next assignment.Assignment) *PlayerAssignment {
	if q := g.queues[playerID]; len(q) > 0 {
		g.queues[playerID] = q[1:]
	}
	nextID := g.nextPlayer(playerID)
	g.queues[nextID] = append(g.queues[nextID], next)
	if len(g.queues[nextID]) == 1 {
		return &PlayerAssignment{PlayerID: nextID, Assignment: assignment.Clone(next)}
	}
	return nil
}

// StartStory writes the first entry of a new story.
func (g *Game) StartStory(playerID, content string) (*PlayerAssignment, error) {
	if err := g.requirePlayer(playerID); err != nil {
		return nil, err
	}
	if words.Count(content) < MinStartingWords {
		return nil, failure.IllegalArgumentf("a story must start with at least %d word", MinStartingWords)
	}
	next, err := assignment.Match(g.current(playerID), assignment.Cases[assignment.Assignment]{
		StartingStory: func() (assignment.Assignment, error) {
			index := len(g.stories)
			g.stories = append(g.stories, newStory(index, g.entriesPerStory, playerID, content))
			return assignment.RedactingStory{Content: content, StoryIndex: index}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	g.records = append(g.records, StoryStarted{PlayerID: playerID, Content: content})
	return g.advance(playerID, next), nil
}

// CensorStory blanks between MinCensoredWords and MaxCensoredWords words of the
// story's latest entry.
func (g *Game) CensorStory(playerID string, storyIndex int, wordIndices []int) (*PlayerAssignment, error) {
	if err := g.requirePlayer(playerID); err != nil {
		return nil, err
	}
	s, err := g.story(storyIndex)
	if err != nil {
		return nil, err
	}
	if n := len(wordIndices); n < MinCensoredWords || n > MaxCensoredWords {
		return nil, failure.IllegalArgumentf("censor between %d and %d words, got %d", MinCensoredWords, MaxCensoredWords, n)
	}
	next, err := assignment.Match(g.current(playerID), assignment.Cases[assignment.Assignment]{
		RedactingStory: func(a assignment.RedactingStory) (assignment.Assignment, error) {
			if a.StoryIndex != storyIndex {
				return nil, failure.IllegalStatef("player %s is assigned to censor story %d, not %d", playerID, a.StoryIndex, storyIndex)
			}
			censored, ranges, err := s.censor(playerID, wordIndices)
			if err != nil {
				return nil, err
			}
			return assignment.RepairingCensoredStory{Content: censored, StoryIndex: storyIndex, CensoredRanges: ranges}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	g.records = append(g.records, StoryCensored{PlayerID: playerID, StoryIndex: storyIndex, WordIndices: append([]int(nil), wordIndices...)})
	return g.advance(playerID, next), nil
}

// RepairCensoredStory fills the censored words of the story's latest entry.
func (g *Game) RepairCensoredStory(playerID string, storyIndex int, replacements []string) (*PlayerAssignment, error) {
	if err := g.requirePlayer(playerID); err != nil {
		return nil, err
	}
	s, err := g.story(storyIndex)
	if err != nil {
		return nil, err
	}
	next, err := assignment.Match(g.current(playerID), assignment.Cases[assignment.Assignment]{
		RepairingCensoredStory: func(a assignment.RepairingCensoredStory) (assignment.Assignment, error) {
			if a.StoryIndex != storyIndex {
				return nil, failure.IllegalStatef("player %s is assigned to repair story %d, not %d", playerID, a.StoryIndex, storyIndex)
			}
			if len(replacements) != len(a.CensoredRanges) {
				return nil, failure.IllegalArgumentf("expected %d replacements, got %d", len(a.CensoredRanges), len(replacements))
			}
			repaired, err := s.repair(playerID, replacements)
			if err != nil {
				return nil, err
			}
			if !s.IsFinished() {
				return assignment.ContinuingStory{Content: repaired, StoryIndex: storyIndex}, nil
			}
			if g.HasEnded() {
				return assignment.ReadingStories{Stories: g.readingStories()}, nil
			}
			return assignment.AwaitingAssignment{}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	g.records = append(g.records, StoryCensorRepaired{PlayerID: playerID, StoryIndex: storyIndex, Replacements: append([]string(nil), replacements...)})
	return g.advance(playerID, next), nil
}

// ContinueStory appends a new entry after the story's repaired latest entry.
func (g *Game) ContinueStory(playerID string, storyIndex int, content string) (*PlayerAssignment, error) {
	if err := g.requirePlayer(playerID); err != nil {
		return nil, err
	}
	s, err := g.story(storyIndex)
	if err != nil {
		return nil, err
	}
	if n := words.Count(content); n < MinContinuationWords {
		return nil, failure.IllegalArgumentf("a continuation needs at least %d words, got %d", MinContinuationWords, n)
	}
	next, err := assignment.Match(g.current(playerID), assignment.Cases[assignment.Assignment]{
		ContinuingStory: func(a assignment.ContinuingStory) (assignment.Assignment, error) {
			if a.StoryIndex != storyIndex {
				return nil, failure.IllegalStatef("player %s is assigned to continue story %d, not %d", playerID, a.StoryIndex, storyIndex)
			}
			if err := s.extend(playerID, content); err != nil {
				return nil, err
			}
			return assignment.RedactingStory{Content: content, StoryIndex: storyIndex}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	g.records = append(g.records, StoryContinued{PlayerID: playerID, StoryIndex: storyIndex, Content: content})
	return g.advance(playerID, next), nil
}
