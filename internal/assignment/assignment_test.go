package assignment

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"redacted/internal/failure"
	"redacted/internal/words"
)

func TestMatchDefaultsToIllegalState(t *testing.T) {
	cases := Cases[int]{
		RedactingStory: func(a RedactingStory) (int, error) { return a.StoryIndex, nil },
	}
	got, err := Match[int](RedactingStory{Content: "x", StoryIndex: 2}, cases)
	if err != nil || got != 2 {
		t.Fatalf("Match redacting = %d, %v", got, err)
	}
	_, err = Match[int](ContinuingStory{Content: "once upon", StoryIndex: 1}, cases)
	if !errors.Is(err, failure.ErrIllegalState) {
		t.Fatalf("expected illegal state, got %v", err)
	}
	if !strings.Contains(err.Error(), "continuingStory") || !strings.Contains(err.Error(), "once upon") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	_, err = Match[int](nil, cases)
	if !errors.Is(err, failure.ErrIllegalState) {
		t.Fatalf("expected illegal state for nil, got %v", err)
	}
}

func TestMatchEveryVariant(t *testing.T) {
	name := func(k Kind) func() (Kind, error) { return func() (Kind, error) { return k, nil } }
	cases := Cases[Kind]{
		AwaitingGameStart:      name(KindAwaitingGameStart),
		StartingStory:          name(KindStartingStory),
		RedactingStory:         func(RedactingStory) (Kind, error) { return KindRedactingStory, nil },
		RepairingCensoredStory: func(RepairingCensoredStory) (Kind, error) { return KindRepairingCensoredStory, nil },
		ContinuingStory:        func(ContinuingStory) (Kind, error) { return KindContinuingStory, nil },
		ReadingStories:         func(ReadingStories) (Kind, error) { return KindReadingStories, nil },
		AwaitingAssignment:     name(KindAwaitingAssignment),
	}
	for _, a := range allVariants() {
		got, err := Match(a, cases)
		if err != nil {
			t.Fatalf("Match(%T): %v", a, err)
		}
		if got != a.Kind() {
			t.Fatalf("Match(%T) = %s", a, got)
		}
	}
}

func allVariants() []Assignment {
	return []Assignment{
		AwaitingGameStart{},
		StartingStory{},
		RedactingStory{Content: "Once upon a time", StoryIndex: 0},
		RepairingCensoredStory{Content: "Once      a time", StoryIndex: 3, CensoredRanges: []words.Range{{5, 9}}},
		ContinuingStory{Content: "Once upon a time", StoryIndex: 1},
		ReadingStories{Stories: [][]StoryEntry{{{Content: "Once upon a time", Censors: []words.Range{{5, 9}}, Players: []string{"a", "b", "c"}}}}},
		AwaitingAssignment{},
	}
}

func TestWireCodecRoundTrip(t *testing.T) {
	for _, a := range allVariants() {
		data, err := Marshal(a)
		if err != nil {
			t.Fatalf("marshal %T: %v", a, err)
		}
		back, err := Unmarshal(data)
		if err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if !reflect.DeepEqual(back, a) {
			t.Fatalf("round trip %T: got %#v want %#v", a, back, a)
		}
	}
}

func TestWireShape(t *testing.T) {
	data, err := Marshal(RepairingCensoredStory{Content: "a  c", StoryIndex: 0, CensoredRanges: []words.Range{{2, 3}}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"repairingCensoredStory","content":"a  c","storyIndex":0,"censoredRanges":[[2,3]]}`
	if string(data) != want {
		t.Fatalf("wire = %s, want %s", data, want)
	}
	data, _ = Marshal(AwaitingGameStart{})
	if string(data) != `{"type":"awaitingGameStart"}` {
		t.Fatalf("wire = %s", data)
	}
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	for _, in := range []string{
		`{"type":"dancing"}`,
		`{"type":"redactingStory","content":"x"}`,
		`{"type":"repairingCensoredStory","content":"x","storyIndex":1}`,
		`not json`,
	} {
		if _, err := Unmarshal([]byte(in)); !errors.Is(err, failure.ErrIllegalArgument) {
			t.Fatalf("Unmarshal(%s) err = %v", in, err)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := RepairingCensoredStory{Content: "x", CensoredRanges: []words.Range{{0, 1}}}
	cp := Clone(orig).(RepairingCensoredStory)
	cp.CensoredRanges[0] = words.Range{4, 5}
	if orig.CensoredRanges[0] != (words.Range{0, 1}) {
		t.Fatalf("clone shares ranges")
	}
	reading := ReadingStories{Stories: [][]StoryEntry{{{Content: "x", Players: []string{"p"}}}}}
	rc := Clone(reading).(ReadingStories)
	rc.Stories[0][0].Players[0] = "q"
	if reading.Stories[0][0].Players[0] != "p" {
		t.Fatalf("clone shares players")
	}
}
