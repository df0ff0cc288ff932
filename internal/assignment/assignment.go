// Package assignment models what a player is expected to do next.
package assignment

import (
	"redacted/internal/failure"
	"redacted/internal/words"
)

// Kind names an assignment variant. The values double as the wire "type" tag.
type Kind string

const (
	KindAwaitingGameStart      Kind = "awaitingGameStart"
	KindStartingStory          Kind = "startingStory"
	KindRedactingStory         Kind = "redactingStory"
	KindRepairingCensoredStory Kind = "repairingCensoredStory"
	KindContinuingStory        Kind = "continuingStory"
	KindReadingStories         Kind = "readingStories"
	KindAwaitingAssignment     Kind = "awaitingAssignment"
)

// Assignment is one of the variant types declared in this package.
type Assignment interface {
	Kind() Kind
	sealed()
}

// AwaitingGameStart is every player's assignment before the game starts.
type AwaitingGameStart struct{}

// StartingStory asks the player to write the first entry of a new story.
type StartingStory struct{}

// RedactingStory asks the player to censor words of the latest entry.
type RedactingStory struct {
	Content    string
	StoryIndex int
}

// RepairingCensoredStory asks the player to fill the censored ranges of Content.
type RepairingCensoredStory struct {
	Content        string
	StoryIndex     int
	CensoredRanges []words.Range
}

// ContinuingStory asks the player to append an entry after Content.
type ContinuingStory struct {
	Content    string
	StoryIndex int
}

// ReadingStories is every player's assignment once the game has ended.
type ReadingStories struct {
	Stories [][]StoryEntry
}

// AwaitingAssignment means the player has nothing to do right now.
type AwaitingAssignment struct{}

// StoryEntry is a finished entry as shown when reading stories.
type StoryEntry struct {
	Content string        `json:"content"`
	Censors []words.Range `json:"censors"`
	Players []string      `json:"players"`
}

func (AwaitingGameStart) Kind() Kind      { return KindAwaitingGameStart }
func (StartingStory) Kind() Kind          { return KindStartingStory }
func (RedactingStory) Kind() Kind         { return KindRedactingStory }
func (RepairingCensoredStory) Kind() Kind { return KindRepairingCensoredStory }
func (ContinuingStory) Kind() Kind        { return KindContinuingStory }
func (ReadingStories) Kind() Kind         { return KindReadingStories }
func (AwaitingAssignment) Kind() Kind     { return KindAwaitingAssignment }

func (AwaitingGameStart) sealed()      {}
func (StartingStory) sealed()          {}
func (RedactingStory) sealed()         {}
func (RepairingCensoredStory) sealed() {}
func (ContinuingStory) sealed()        {}
func (ReadingStories) sealed()         {}
func (AwaitingAssignment) sealed()     {}

// Cases holds one handler per variant. Match fails with an IllegalState error
// for any variant whose handler is nil, so callers only spell out the variants
// they accept.
type Cases[T any] struct {
	AwaitingGameStart      func() (T, error)
	StartingStory          func() (T, error)
	RedactingStory         func(RedactingStory) (T, error)
	RepairingCensoredStory func(RepairingCensoredStory) (T, error)
	ContinuingStory        func(ContinuingStory) (T, error)
	ReadingStories         func(ReadingStories) (T, error)
	AwaitingAssignment     func() (T, error)
}

// Match dispatches a to the matching handler in c.
func Match[T any](a Assignment, c Cases[T]) (T, error) {
	var zero T
	switch v := a.(type) {
	case AwaitingGameStart:
		if c.AwaitingGameStart != nil {
			return c.AwaitingGameStart()
		}
	case StartingStory:
		if c.StartingStory != nil {
			return c.StartingStory()
		}
	case RedactingStory:
		if c.RedactingStory != nil {
			return c.RedactingStory(v)
		}
	case RepairingCensoredStory:
		if c.RepairingCensoredStory != nil {
			return c.RepairingCensoredStory(v)
		}
	case ContinuingStory:
		if c.ContinuingStory != nil {
			return c.ContinuingStory(v)
		}
	case ReadingStories:
		if c.ReadingStories != nil {
			return c.ReadingStories(v)
		}
	case AwaitingAssignment:
		if c.AwaitingAssignment != nil {
			return c.AwaitingAssignment()
		}
	case nil:
		return zero, failure.IllegalStatef("no assignment")
	default:
		return zero, failure.IllegalStatef("unknown assignment %T", a)
	}
	return zero, illegal(a)
}

func illegal(a Assignment) error {
	switch v := a.(type) {
	case RedactingStory:
		return failure.IllegalStatef("illegal state: %s { storyIndex: %d }", v.Kind(), v.StoryIndex)
	case RepairingCensoredStory:
		return failure.IllegalStatef("illegal state: %s { storyIndex: %d }", v.Kind(), v.StoryIndex)
	case ContinuingStory:
		return failure.IllegalStatef("illegal state: %s { storyIndex: %d, content: %s }", v.Kind(), v.StoryIndex, v.Content)
	default:
		return failure.IllegalStatef("illegal state: %s", a.Kind())
	}
}

// Clone returns a deep copy of a.
func Clone(a Assignment) Assignment {
	switch v := a.(type) {
	case RepairingCensoredStory:
		v.CensoredRanges = append([]words.Range(nil), v.CensoredRanges...)
		return v
	case ReadingStories:
		return ReadingStories{Stories: CloneStories(v.Stories)}
	default:
		return a
	}
}

// CloneStories deep copies a list of stories.
func CloneStories(stories [][]StoryEntry) [][]StoryEntry {
	if stories == nil {
		return nil
	}
	out := make([][]StoryEntry, len(stories))
	for i, story := range stories {
		entries := make([]StoryEntry, len(story))
		for j, e := range story {
			entries[j] = StoryEntry{
				Content: e.Content,
				Censors: append([]words.Range(nil), e.Censors...),
				Players: append([]string(nil), e.Players...),
			}
		}
		out[i] = entries
	}
	return out
}

// StoryIndex returns the story an assignment refers to, if any.
func StoryIndex(a Assignment) (int, bool) {
	switch v := a.(type) {
	case RedactingStory:
		return v.StoryIndex, true
	case RepairingCensoredStory:
		return v.StoryIndex, true
	case ContinuingStory:
		return v.StoryIndex, true
	}
	return 0, false
}

