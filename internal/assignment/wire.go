package assignment

import (
	"encoding/json"

	"redacted/internal/failure"
	"redacted/internal/words"
)

// Wire is the JSON form of an assignment shared by the API, the event streams
// and webhooks. Fields other than Type are present only for the variants that
// carry them.
type Wire struct {
	Type           Kind           `json:"type" enum:"awaitingGameStart,startingStory,redactingStory,repairingCensoredStory,continuingStory,readingStories,awaitingAssignment"`
	Content        *string        `json:"content,omitempty"`
	StoryIndex     *int           `json:"storyIndex,omitempty"`
	CensoredRanges []words.Range  `json:"censoredRanges,omitempty"`
	Stories        [][]StoryEntry `json:"stories,omitempty"`
}

// Encode converts a to its wire form.
func Encode(a Assignment) Wire {
	switch v := a.(type) {
	case RedactingStory:
		return Wire{Type: v.Kind(), Content: &v.Content, StoryIndex: &v.StoryIndex}
	case RepairingCensoredStory:
		return Wire{
			Type:           v.Kind(),
			Content:        &v.Content,
			StoryIndex:     &v.StoryIndex,
			CensoredRanges: append([]words.Range{}, v.CensoredRanges...),
		}
	case ContinuingStory:
		return Wire{Type: v.Kind(), Content: &v.Content, StoryIndex: &v.StoryIndex}
	case ReadingStories:
		stories := CloneStories(v.Stories)
		if stories == nil {
			stories = [][]StoryEntry{}
		}
		return Wire{Type: v.Kind(), Stories: stories}
	case nil:
		return Wire{Type: KindAwaitingAssignment}
	default:
		return Wire{Type: a.Kind()}
	}
}

// Decode converts a wire form back into an assignment.
func Decode(w Wire) (Assignment, error) {
	switch w.Type {
	case KindAwaitingGameStart:
		return AwaitingGameStart{}, nil
	case KindStartingStory:
		return StartingStory{}, nil
	case KindAwaitingAssignment:
		return AwaitingAssignment{}, nil
	case KindReadingStories:
		return ReadingStories{Stories: CloneStories(w.Stories)}, nil
	case KindRedactingStory, KindContinuingStory, KindRepairingCensoredStory:
		if w.Content == nil || w.StoryIndex == nil {
			return nil, failure.IllegalArgumentf("%s requires content and storyIndex", w.Type)
		}
		switch w.Type {
		case KindRedactingStory:
			return RedactingStory{Content: *w.Content, StoryIndex: *w.StoryIndex}, nil
		case KindContinuingStory:
			return ContinuingStory{Content: *w.Content, StoryIndex: *w.StoryIndex}, nil
		}
		if w.CensoredRanges == nil {
			return nil, failure.IllegalArgumentf("%s requires censoredRanges", w.Type)
		}
		return RepairingCensoredStory{
			Content:        *w.Content,
			StoryIndex:     *w.StoryIndex,
			CensoredRanges: append([]words.Range(nil), w.CensoredRanges...),
		}, nil
	default:
		return nil, failure.IllegalArgumentf("unknown assignment type %q", w.Type)
	}
}

// Marshal encodes a as JSON.
func Marshal(a Assignment) ([]byte, error) {
	return json.Marshal(Encode(a))
}

// Unmarshal decodes JSON produced by Marshal.
func Unmarshal(data []byte) (Assignment, error) {
	var w Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, failure.Wrap(failure.IllegalArgument, "invalid assignment json", err)
	}
	return Decode(w)
}
