package game

import (
	"sort"

	"redacted/internal/failure"
	"redacted/internal/words"
)

// Redaction records which words of an entry were censored.
type Redaction struct {
	Type        string `json:"type"`
	WordIndices []int  `json:"wordIndices"`
}

// Entry is one passage of a story: written by one player, censored by the
// next and repaired by the one after.
type Entry struct {
	InitialContent  string
	Redaction       *Redaction
	RepairedContent *string
	Contributors    []string
}

func (e Entry) IsCensored() bool { return e.Redaction != nil }
func (e Entry) IsRepaired() bool { return e.RepairedContent != nil }

func (e Entry) clone() Entry {
	out := Entry{
		InitialContent: e.InitialContent,
		Contributors:   append([]string(nil), e.Contributors...),
	}
	if e.Redaction != nil {
		out.Redaction = &Redaction{Type: e.Redaction.Type, WordIndices: append([]int(nil), e.Redaction.WordIndices...)}
	}
	if e.RepairedContent != nil {
		repaired := *e.RepairedContent
		out.RepairedContent = &repaired
	}
	return out
}

// Story is an ordered list of entries. Stories are only mutated through Game.
type Story struct {
	index   int
	limit   int
	entries []Entry
}

func newStory(index, limit int, playerID, content string) *Story {
	return &Story{
		index: index,
		limit: limit,
		entries: []Entry{{
			InitialContent: content,
			Contributors:   []string{playerID},
		}},
	}
}

func (s *Story) Index() int { return s.index }

// Entries returns a copy of the story's entries.
func (s *Story) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.clone()
	}
	return out
}

// IsFinished reports whether the story holds its full number of entries and
// every one of them has been repaired.
func (s *Story) IsFinished() bool {
	if len(s.entries) != s.limit {
		return false
	}
	for _, e := range s.entries {
		if !e.IsRepaired() {
			return false
		}
	}
	return true
}

func (s *Story) latest() *Entry {
	return &s.entries[len(s.entries)-1]
}

func (s *Story) clone() *Story {
	cp := &Story{index: s.index, limit: s.limit}
	cp.entries = make([]Entry, len(s.entries))
	for i, e := range s.entries {
		cp.entries[i] = e.clone()
	}
	return cp
}

// censoredRanges resolves word indices against content. Indices come back
// sorted ascending with their ranges in the same order.
func censoredRanges(content string, wordIndices []int) ([]int, []words.Range, error) {
	available := words.Ranges(content)
	sorted := append([]int(nil), wordIndices...)
	sort.Ints(sorted)
	ranges := make([]words.Range, 0, len(sorted))
	for i, idx := range sorted {
		if idx < 0 || idx >= len(available) {
			return nil, nil, failure.IllegalArgumentf("word index %d out of bounds (%d words)", idx, len(available))
		}
		if i > 0 && sorted[i-1] == idx {
			return nil, nil, failure.IllegalArgumentf("word index %d censored twice", idx)
		}
		ranges = append(ranges, available[idx])
	}
	return sorted, ranges, nil
}

// censor blanks the selected words of the latest entry and returns the
// censored content with the blanked ranges.
func (s *Story) censor(playerID string, wordIndices []int) (string, []words.Range, error) {
	latest := s.latest()
	if latest.IsCensored() {
		return "", nil, failure.IllegalStatef("story %d: latest entry is already censored", s.index)
	}
	sorted, ranges, err := censoredRanges(latest.InitialContent, wordIndices)
	if err != nil {
		return "", nil, err
	}
	latest.Redaction = &Redaction{Type: "censor", WordIndices: sorted}
	latest.Contributors = append(latest.Contributors, playerID)
	return words.Blank(latest.InitialContent, ranges), ranges, nil
}

// repair fills the censored ranges of the latest entry with replacements and
// returns the repaired content.
func (s *Story) repair(playerID string, replacements []string) (string, error) {
	latest := s.latest()
	if !latest.IsCensored() {
		return "", failure.IllegalStatef("story %d: latest entry is not censored", s.index)
	}
	if latest.IsRepaired() {
		return "", failure.IllegalStatef("story %d: latest entry is already repaired", s.index)
	}
	_, ranges, err := censoredRanges(latest.InitialContent, latest.Redaction.WordIndices)
	if err != nil {
		return "", err
	}
	if len(replacements) != len(ranges) {
		return "", failure.IllegalArgumentf("expected %d replacements, got %d", len(ranges), len(replacements))
	}
	repaired, _ := words.Substitute(words.Blank(latest.InitialContent, ranges), ranges, replacements)
	latest.RepairedContent = &repaired
	latest.Contributors = append(latest.Contributors, playerID)
	return repaired, nil
}

// readingCensors locates the censored word indices inside the repaired
// content. Indices past the end of the repaired content are skipped.
func (e Entry) readingCensors() []words.Range {
	if e.Redaction == nil || e.RepairedContent == nil {
		return []words.Range{}
	}
	available := words.Ranges(*e.RepairedContent)
	out := make([]words.Range, 0, len(e.Redaction.WordIndices))
	for _, idx := range e.Redaction.WordIndices {
		if idx < len(available) {
			out = append(out, available[idx])
		}
	}
	return out
}

// extend appends a new entry written by playerID.
func (s *Story) extend(playerID, content string) error {
	if s.IsFinished() {
		return failure.IllegalStatef("story %d is finished", s.index)
	}
	if len(s.entries) >= s.limit {
		return failure.IllegalStatef("story %d already has %d entries", s.index, s.limit)
	}
	if !s.latest().IsRepaired() {
		return failure.IllegalStatef("story %d: latest entry is not repaired", s.index)
	}
	s.entries = append(s.entries, Entry{
		InitialContent: content,
		Contributors:   []string{playerID},
	})
	return nil
}
