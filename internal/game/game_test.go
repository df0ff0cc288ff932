package game_test

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"redacted/internal/assignment"
	"redacted/internal/failure"
	"redacted/internal/game"
	"redacted/internal/words"
)

var fourPlayers = []string{"player-1", "player-2", "player-3", "player-4"}

func newGame(t *testing.T, entriesPerStory int, players ...string) *game.Game {
	t.Helper()
	g := game.New("game-1", entriesPerStory)
	for _, p := range players {
		if err := g.AddPlayer(p); err != nil {
			t.Fatalf("add player %s: %v", p, err)
		}
	}
	return g
}

func startedGame(t *testing.T, entriesPerStory int) *game.Game {
	t.Helper()
	g := newGame(t, entriesPerStory, fourPlayers...)
	if err := g.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return g
}

func mustAssignment(t *testing.T, g *game.Game, playerID string) assignment.Assignment {
	t.Helper()
	a, err := g.Assignment(playerID)
	if err != nil {
		t.Fatalf("assignment for %s: %v", playerID, err)
	}
	return a
}

func expectCode(t *testing.T, err error, code failure.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if failure.CodeOf(err) != code {
		t.Fatalf("expected %s error, got %v", code, err)
	}
}

// startAll starts one story per player in the given order.
func startAll(t *testing.T, g *game.Game, order ...string) {
	t.Helper()
	names := map[string]string{"player-1": "one", "player-2": "two", "player-3": "three", "player-4": "four"}
	for _, p := range order {
		if _, err := g.StartStory(p, fmt.Sprintf("Player %s initial story content", names[p])); err != nil {
			t.Fatalf("start story for %s: %v", p, err)
		}
	}
}

func TestAssignmentsBeforeStart(t *testing.T) {
	g := newGame(t, 0, fourPlayers...)
	if g.EntriesPerStory() != game.DefaultEntriesPerStory {
		t.Fatalf("entries per story = %d", g.EntriesPerStory())
	}
	for _, p := range fourPlayers {
		if _, ok := mustAssignment(t, g, p).(assignment.AwaitingGameStart); !ok {
			t.Fatalf("%s should await game start", p)
		}
	}
	_, err := g.Assignment("player-5")
	expectCode(t, err, failure.NotFound)
	if g.HasEnded() {
		t.Fatalf("unstarted game cannot have ended")
	}
}

func TestStartRequiresFourPlayers(t *testing.T) {
	g := newGame(t, 1, fourPlayers[:3]...)
	if game.CanStart(g.NumberOfPlayers(), g.HasStarted()) {
		t.Fatalf("three players should not be able to start")
	}
	expectCode(t, g.Start(), failure.IllegalArgument)
	if g.HasStarted() {
		t.Fatalf("failed start changed state")
	}
	if err := g.AddPlayer("player-4"); err != nil {
		t.Fatalf("add player: %v", err)
	}
	if err := g.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, pa := range g.PlayerAssignments() {
		if _, ok := pa.Assignment.(assignment.StartingStory); !ok {
			t.Fatalf("%s got %T, want StartingStory", pa.PlayerID, pa.Assignment)
		}
	}
	expectCode(t, g.Start(), failure.IllegalState)
	if len(g.History().Records) != 5 {
		t.Fatalf("history records = %d", len(g.History().Records))
	}
}

func TestAddPlayer(t *testing.T) {
	g := newGame(t, 1, fourPlayers...)
	expectCode(t, g.AddPlayer("player-1"), failure.IllegalArgument)
	expectCode(t, g.AddPlayer(" "), failure.IllegalArgument)
	if g.NumberOfPlayers() != 4 {
		t.Fatalf("players = %d", g.NumberOfPlayers())
	}
	if err := g.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectCode(t, g.AddPlayer("player-5"), failure.IllegalState)
	if !reflect.DeepEqual(g.Players(), fourPlayers) {
		t.Fatalf("players = %v", g.Players())
	}
}

func TestStartStory(t *testing.T) {
	g := startedGame(t, 1)
	unlocked, err := g.StartStory("player-1", "Initial story content")
	if err != nil {
		t.Fatalf("start story: %v", err)
	}
	if unlocked != nil {
		t.Fatalf("player-2 still has to start a story, got %+v", unlocked)
	}
	if _, ok := mustAssignment(t, g, "player-1").(assignment.AwaitingAssignment); !ok {
		t.Fatalf("player-1 should be waiting")
	}
	_, err = g.StartStory("player-1", "Another story")
	expectCode(t, err, failure.IllegalState)
	_, err = g.StartStory("player-5", "Another story")
	expectCode(t, err, failure.NotFound)
	_, err = g.StartStory("player-2", "?!")
	expectCode(t, err, failure.IllegalArgument)

	if _, err := g.StartStory("player-2", "Second story content"); err != nil {
		t.Fatalf("start story: %v", err)
	}
	want := assignment.RedactingStory{Content: "Initial story content", StoryIndex: 0}
	if got := mustAssignment(t, g, "player-2"); !reflect.DeepEqual(got, want) {
		t.Fatalf("player-2 assignment = %#v, want %#v", got, want)
	}
}

func TestStartStoryUnlocksWaitingPlayer(t *testing.T) {
	g := startedGame(t, 1)
	startAll(t, g, "player-2")
	unlocked, err := g.StartStory("player-1", "Player one initial story content")
	if err != nil {
		t.Fatalf("start story: %v", err)
	}
	want := &game.PlayerAssignment{
		PlayerID:   "player-2",
		Assignment: assignment.RedactingStory{Content: "Player one initial story content", StoryIndex: 1},
	}
	if !reflect.DeepEqual(unlocked, want) {
		t.Fatalf("unlocked = %#v, want %#v", unlocked, want)
	}
}

func TestCensorAssignsNextPlayerToRepair(t *testing.T) {
	g := startedGame(t, 1)
	startAll(t, g, "player-4", "player-1", "player-2", "player-3")

	if _, err := g.CensorStory("player-2", 1, []int{0}); err != nil {
		t.Fatalf("censor story 1: %v", err)
	}
	unlocked, err := g.CensorStory("player-1", 0, []int{1})
	if err != nil {
		t.Fatalf("censor story 0: %v", err)
	}
	want := &game.PlayerAssignment{
		PlayerID: "player-2",
		Assignment: assignment.RepairingCensoredStory{
			Content:        "Player      initial story content",
			StoryIndex:     0,
			CensoredRanges: []words.Range{{7, 11}},
		},
	}
	if !reflect.DeepEqual(unlocked, want) {
		t.Fatalf("unlocked = %#v, want %#v", unlocked, want)
	}
}

func TestCensorDoesNotUnlockBusyPlayer(t *testing.T) {
	g := startedGame(t, 1)
	startAll(t, g, "player-4", "player-1", "player-2", "player-3")
	unlocked, err := g.CensorStory("player-1", 0, []int{1})
	if err != nil {
		t.Fatalf("censor: %v", err)
	}
	if unlocked != nil {
		t.Fatalf("player-2 is still censoring, got %+v", unlocked)
	}
}

func TestCensorQueuesRepairForActingPlayer(t *testing.T) {
	g := startedGame(t, 1)
	startAll(t, g, "player-4", "player-1", "player-2", "player-3")
	if _, err := g.CensorStory("player-4", 3, []int{2}); err != nil {
		t.Fatalf("censor story 3: %v", err)
	}
	if _, err := g.CensorStory("player-1", 0, []int{1}); err != nil {
		t.Fatalf("censor story 0: %v", err)
	}
	want := assignment.RepairingCensoredStory{
		Content:        "Player three         story content",
		StoryIndex:     3,
		CensoredRanges: []words.Range{{13, 20}},
	}
	if got := mustAssignment(t, g, "player-1"); !reflect.DeepEqual(got, want) {
		t.Fatalf("player-1 assignment = %#v, want %#v", got, want)
	}
}

func TestCensorValidation(t *testing.T) {
	for _, indices := range [][]int{{0}, {0, 1}, {0, 1, 2}} {
		g := startedGame(t, 1)
		startAll(t, g, "player-4", "player-1", "player-2", "player-3")
		if _, err := g.CensorStory("player-1", 0, indices); err != nil {
			t.Fatalf("censor %v: %v", indices, err)
		}
	}

	cases := []struct {
		name    string
		player  string
		story   int
		indices []int
		code    failure.Code
	}{
		{"no indices", "player-1", 0, nil, failure.IllegalArgument},
		{"four indices", "player-1", 0, []int{0, 1, 2, 3}, failure.IllegalArgument},
		{"out of range", "player-1", 0, []int{5}, failure.IllegalArgument},
		{"negative", "player-1", 0, []int{-1}, failure.IllegalArgument},
		{"duplicate", "player-1", 0, []int{1, 1}, failure.IllegalArgument},
		{"unknown story", "player-1", 5, []int{0}, failure.NotFound},
		{"unknown player", "player-5", 0, []int{0}, failure.NotFound},
		{"assigned to another story", "player-1", 1, []int{0}, failure.IllegalState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := startedGame(t, 1)
			startAll(t, g, "player-4", "player-1", "player-2", "player-3")
			before := g.Copy()
			_, err := g.CensorStory(tc.player, tc.story, tc.indices)
			expectCode(t, err, tc.code)
			assertSameGame(t, g, before)
		})
	}

	g := startedGame(t, 1)
	startAll(t, g, "player-4", "player-1", "player-2", "player-3")
	if _, err := g.CensorStory("player-1", 0, []int{0}); err != nil {
		t.Fatalf("censor: %v", err)
	}
	_, err := g.CensorStory("player-1", 0, []int{0})
	expectCode(t, err, failure.IllegalState)
}

func TestCensorSortsIndices(t *testing.T) {
	g := startedGame(t, 1)
	startAll(t, g, "player-4", "player-1", "player-2", "player-3")
	if _, err := g.CensorStory("player-2", 1, []int{0}); err != nil {
		t.Fatalf("censor: %v", err)
	}
	unlocked, err := g.CensorStory("player-1", 0, []int{3, 1})
	if err != nil {
		t.Fatalf("censor: %v", err)
	}
	repairing := unlocked.Assignment.(assignment.RepairingCensoredStory)
	if !reflect.DeepEqual(repairing.CensoredRanges, []words.Range{{7, 11}, {20, 25}}) {
		t.Fatalf("ranges = %v", repairing.CensoredRanges)
	}
	story, err := g.Story(0)
	if err != nil {
		t.Fatalf("story: %v", err)
	}
	if got := story.Entries()[0].Redaction.WordIndices; !reflect.DeepEqual(got, []int{1, 3}) {
		t.Fatalf("redaction = %v", got)
	}
}

// censorAll starts and censors every story of a one-entry game, leaving each
// player with a repair assignment.
func censorAll(t *testing.T, g *game.Game) {
	t.Helper()
	startAll(t, g, "player-1", "player-2", "player-3", "player-4")
	steps := []struct {
		player string
		story  int
		words  []int
	}{
		{"player-1", 3, []int{2}},
		{"player-2", 0, []int{1}},
		{"player-3", 1, []int{2}},
		{"player-4", 2, []int{2}},
	}
	for _, s := range steps {
		if _, err := g.CensorStory(s.player, s.story, s.words); err != nil {
			t.Fatalf("%s censor story %d: %v", s.player, s.story, err)
		}
	}
}

func TestRepairValidation(t *testing.T) {
	g := startedGame(t, 1)
	censorAll(t, g)
	_, err := g.RepairCensoredStory("player-1", 2, []string{"a", "b"})
	expectCode(t, err, failure.IllegalArgument)
	_, err = g.RepairCensoredStory("player-1", 3, []string{"a"})
	expectCode(t, err, failure.IllegalState)
	_, err = g.RepairCensoredStory("player-1", 9, []string{"a"})
	expectCode(t, err, failure.NotFound)
	_, err = g.RepairCensoredStory("player-9", 2, []string{"a"})
	expectCode(t, err, failure.NotFound)
}

func TestReadingStoriesAtEndOfGame(t *testing.T) {
	g := startedGame(t, 1)
	censorAll(t, g)
	if _, ok := mustAssignment(t, g, "player-1").(assignment.RepairingCensoredStory); !ok {
		t.Fatalf("player-1 should be repairing")
	}
	repairs := []struct {
		player string
		story  int
	}{{"player-1", 2}, {"player-2", 3}, {"player-3", 0}}
	for _, r := range repairs {
		if _, err := g.RepairCensoredStory(r.player, r.story, []string{"replacement"}); err != nil {
			t.Fatalf("%s repair story %d: %v", r.player, r.story, err)
		}
		if g.HasEnded() {
			t.Fatalf("game ended early")
		}
	}
	if _, ok := mustAssignment(t, g, "player-1").(assignment.AwaitingAssignment); !ok {
		t.Fatalf("player-1 should await the end of the game, got %T", mustAssignment(t, g, "player-1"))
	}
	unlocked, err := g.RepairCensoredStory("player-4", 1, []string{"replacement"})
	if err != nil {
		t.Fatalf("final repair: %v", err)
	}
	if !g.HasEnded() {
		t.Fatalf("game should have ended")
	}
	if unlocked == nil || unlocked.PlayerID != "player-1" {
		t.Fatalf("unlocked = %+v", unlocked)
	}
	want := []string{
		"Player replacement initial story content",
		"Player two replacement story content",
		"Player three replacement story content",
		"Player four replacement story content",
	}
	for _, pa := range g.PlayerAssignments() {
		reading, ok := pa.Assignment.(assignment.ReadingStories)
		if !ok {
			t.Fatalf("%s got %T, want ReadingStories", pa.PlayerID, pa.Assignment)
		}
		if len(reading.Stories) != 4 {
			t.Fatalf("stories = %d", len(reading.Stories))
		}
		for i, story := range reading.Stories {
			if len(story) != 1 || story[0].Content != want[i] {
				t.Fatalf("story %d = %+v, want %q", i, story, want[i])
			}
			if len(story[0].Players) != 3 {
				t.Fatalf("story %d players = %v", i, story[0].Players)
			}
		}
	}
	first := mustAssignment(t, g, "player-2").(assignment.ReadingStories).Stories[0][0]
	if !reflect.DeepEqual(first.Censors, []words.Range{{7, 18}}) {
		t.Fatalf("censors = %v", first.Censors)
	}
	if !reflect.DeepEqual(first.Players, []string{"player-1", "player-2", "player-3"}) {
		t.Fatalf("players = %v", first.Players)
	}
	_, err = g.ContinueStory("player-1", 0, "more words here")
	expectCode(t, err, failure.IllegalState)
}

func TestReadingCensorsFollowCensoredWordIndices(t *testing.T) {
	g := startedGame(t, 1)
	censorAll(t, g)
	repairs := []struct {
		player       string
		story        int
		replacements []string
	}{
		{"player-1", 2, []string{"replacement"}},
		{"player-2", 3, []string{"replacement"}},
		{"player-3", 0, []string{"big red"}},
		{"player-4", 1, []string{"replacement"}},
	}
	for _, r := range repairs {
		if _, err := g.RepairCensoredStory(r.player, r.story, r.replacements); err != nil {
			t.Fatalf("%s repair story %d: %v", r.player, r.story, err)
		}
	}
	if !g.HasEnded() {
		t.Fatalf("game should have ended")
	}
	first := mustAssignment(t, g, "player-1").(assignment.ReadingStories).Stories[0][0]
	if first.Content != "Player big red initial story content" {
		t.Fatalf("content = %q", first.Content)
	}
	if !reflect.DeepEqual(first.Censors, []words.Range{{7, 10}}) {
		t.Fatalf("censors = %v", first.Censors)
	}
}

func TestContinueStory(t *testing.T) {
	g := startedGame(t, 2)
	censorAll(t, g)
	unlocked, err := g.RepairCensoredStory("player-1", 2, []string{"tale"})
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if unlocked != nil {
		t.Fatalf("player-2 is busy repairing, got %+v", unlocked)
	}
	if _, err := g.RepairCensoredStory("player-2", 3, []string{"tale"}); err != nil {
		t.Fatalf("repair: %v", err)
	}
	want := assignment.ContinuingStory{Content: "Player three tale story content", StoryIndex: 2}
	if got := mustAssignment(t, g, "player-2"); !reflect.DeepEqual(got, want) {
		t.Fatalf("player-2 assignment = %#v, want %#v", got, want)
	}

	_, err = g.ContinueStory("player-2", 2, "one")
	expectCode(t, err, failure.IllegalArgument)
	_, err = g.ContinueStory("player-2", 3, "two words")
	expectCode(t, err, failure.IllegalState)
	_, err = g.ContinueStory("player-2", 7, "two words")
	expectCode(t, err, failure.NotFound)

	if _, err := g.ContinueStory("player-2", 2, "And then it rained"); err != nil {
		t.Fatalf("continue: %v", err)
	}
	story, _ := g.Story(2)
	entries := story.Entries()
	if len(entries) != 2 || entries[1].InitialContent != "And then it rained" {
		t.Fatalf("entries = %+v", entries)
	}
	if !reflect.DeepEqual(entries[1].Contributors, []string{"player-2"}) {
		t.Fatalf("contributors = %v", entries[1].Contributors)
	}
}

// autoplay drives every actionable assignment until the game ends.
func autoplay(t *testing.T, g *game.Game) {
	t.Helper()
	for step := 0; step < 10000 && !g.HasEnded(); step++ {
		progressed := false
		for _, pa := range g.PlayerAssignments() {
			var err error
			switch a := pa.Assignment.(type) {
			case assignment.StartingStory:
				_, err = g.StartStory(pa.PlayerID, "once upon a time for "+pa.PlayerID)
			case assignment.RedactingStory:
				_, err = g.CensorStory(pa.PlayerID, a.StoryIndex, []int{0, 2})
			case assignment.RepairingCensoredStory:
				replacements := make([]string, len(a.CensoredRanges))
				for i := range replacements {
					replacements[i] = "fixed"
				}
				_, err = g.RepairCensoredStory(pa.PlayerID, a.StoryIndex, replacements)
			case assignment.ContinuingStory:
				_, err = g.ContinueStory(pa.PlayerID, a.StoryIndex, "and then "+pa.PlayerID+" spoke")
			default:
				continue
			}
			if err != nil {
				t.Fatalf("%s on %T: %v", pa.PlayerID, pa.Assignment, err)
			}
			progressed = true
		}
		if !progressed && !g.HasEnded() {
			t.Fatalf("game stalled at step %d: %+v", step, g.PlayerAssignments())
		}
	}
	if !g.HasEnded() {
		t.Fatalf("game did not end")
	}
}

func TestRotationCompletesEveryStory(t *testing.T) {
	for _, tc := range []struct {
		players int
		entries int
	}{{4, 1}, {4, 6}, {5, 3}, {7, 2}} {
		t.Run(fmt.Sprintf("%dp_%de", tc.players, tc.entries), func(t *testing.T) {
			var players []string
			for i := 1; i <= tc.players; i++ {
				players = append(players, fmt.Sprintf("player-%d", i))
			}
			g := newGame(t, tc.entries, players...)
			if err := g.Start(); err != nil {
				t.Fatalf("start: %v", err)
			}
			autoplay(t, g)
			for _, s := range g.Stories() {
				if !s.IsFinished() {
					t.Fatalf("story %d unfinished", s.Index())
				}
				for _, e := range s.Entries() {
					if len(e.Contributors) != 3 {
						t.Fatalf("story %d contributors = %v", s.Index(), e.Contributors)
					}
				}
			}
			if want := 1 + tc.players + 1 + tc.players*(3*tc.entries); g.History().Len() != want {
				t.Fatalf("history length = %d, want %d", g.History().Len(), want)
			}
		})
	}
}

func assertSameGame(t *testing.T, got, want *game.Game) {
	t.Helper()
	if !reflect.DeepEqual(got.PlayerAssignments(), want.PlayerAssignments()) {
		t.Fatalf("assignments differ:\n got %+v\nwant %+v", got.PlayerAssignments(), want.PlayerAssignments())
	}
	if !reflect.DeepEqual(got.Stories(), want.Stories()) {
		t.Fatalf("stories differ")
	}
	if !reflect.DeepEqual(got.History(), want.History()) {
		t.Fatalf("history differs:\n got %+v\nwant %+v", got.History(), want.History())
	}
	if got.HasStarted() != want.HasStarted() || got.HasEnded() != want.HasEnded() {
		t.Fatalf("lifecycle differs")
	}
}

func TestReplayRebuildsGame(t *testing.T) {
	g := startedGame(t, 2)
	censorAll(t, g)
	if _, err := g.RepairCensoredStory("player-1", 2, []string{"tale"}); err != nil {
		t.Fatalf("repair: %v", err)
	}
	replayed, err := game.Replay(g.History())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	assertSameGame(t, replayed, g)

	finished := startedGame(t, 2)
	autoplay(t, finished)
	replayed, err = game.Replay(finished.History())
	if err != nil {
		t.Fatalf("replay finished: %v", err)
	}
	assertSameGame(t, replayed, finished)
}

func TestReplayRejectsInvalidHistory(t *testing.T) {
	h := game.History{
		Created: game.GameCreated{GameID: "g", EntriesPerStory: 1},
		Records: []game.Record{game.PlayerAdded{PlayerID: "a"}, game.GameStarted{}},
	}
	_, err := game.Replay(h)
	if !errors.Is(err, failure.ErrIllegalArgument) {
		t.Fatalf("expected illegal argument, got %v", err)
	}
}

func TestCopyIsIndependent(t *testing.T) {
	g := startedGame(t, 1)
	startAll(t, g, "player-4", "player-1", "player-2", "player-3")
	cp := g.Copy()
	assertSameGame(t, cp, g)

	if _, err := cp.CensorStory("player-1", 0, []int{1}); err != nil {
		t.Fatalf("censor copy: %v", err)
	}
	if _, ok := mustAssignment(t, g, "player-1").(assignment.RedactingStory); !ok {
		t.Fatalf("original changed by copy")
	}
	story, _ := g.Story(0)
	if story.Entries()[0].IsCensored() {
		t.Fatalf("original story censored through copy")
	}
	if len(g.History().Records) == len(cp.History().Records) {
		t.Fatalf("copy history should have grown independently")
	}
}

func TestRecordCodec(t *testing.T) {
	g := startedGame(t, 1)
	autoplay(t, g)
	h := g.History()
	decoded := game.History{Created: h.Created}
	for _, r := range h.Records {
		payload, err := game.EncodeRecord(r)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		back, err := game.DecodeRecord(r.Type(), payload)
		if err != nil {
			t.Fatalf("decode %s: %v", r.Type(), err)
		}
		decoded.Records = append(decoded.Records, back)
	}
	replayed, err := game.Replay(decoded)
	if err != nil {
		t.Fatalf("replay decoded: %v", err)
	}
	assertSameGame(t, replayed, g)

	if _, err := game.DecodeRecord("Dancing", []byte(`{}`)); !errors.Is(err, failure.ErrIllegalArgument) {
		t.Fatalf("unknown record err = %v", err)
	}
}
