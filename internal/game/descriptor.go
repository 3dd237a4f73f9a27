// Package game is the discovery game session engine: one two-player,
// turn-timed state machine parameterized by family descriptors.
//
// A Descriptor is data: the question bank, round count and time budget,
// the answer type, the reveal policy, the scorer and the badge rule. The
// Engine never branches on a family id.
package game

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tbourn/go-dating-realtime/internal/apperr"
	"github.com/tbourn/go-dating-realtime/internal/config"
)

// AnswerType is the value domain of one answer.
type AnswerType string

const (
	AnswerBinary    AnswerType = "binary"    // true|false
	AnswerTwoOption AnswerType = "twoOption" // "A"|"B"
	AnswerVoice     AnswerType = "voice"     // clip url + transcript
)

// RevealPolicy controls when answers become visible.
type RevealPolicy string

const (
	// RevealSimultaneous reveals a round once both answered or time ran out.
	RevealSimultaneous RevealPolicy = "simultaneous"
	// RevealAsync has no rounds: players answer privately in any order.
	RevealAsync RevealPolicy = "async"
)

// DiscussionPolicy decides when a finished session enters discussion.
type DiscussionPolicy string

const (
	DiscussOnFirstVoiceNote DiscussionPolicy = "onFirstVoiceNote"
	DiscussOnCompletion     DiscussionPolicy = "onCompletion"
)

// Question is one immutable bank entry.
type Question struct {
	ID       string   `json:"id"`
	Category string   `json:"category"`
	Text     string   `json:"text"`
	Options  []string `json:"options,omitempty"`
	Spice    int      `json:"spice,omitempty"`
	Hint     string   `json:"hint,omitempty"`
}

// RoundScore is the outcome of one revealed round. Points are indexed by
// player (0 = player1, 1 = player2).
type RoundScore struct {
	Outcome      string
	Points       [2]int
	BothAnswered bool
	Matched      bool
}

// Scorer scores one round. A nil value is a timeout.
type Scorer func(v1, v2 *string) RoundScore

// BadgeRule awards badges to one player from their rollups and the
// session-level results.
type BadgeRule func(p PlayerTally, r ResultsView) []string

// PlayerTally is what a badge rule sees about one player.
type PlayerTally struct {
	Answered int
	TimedOut int
	Yes      int
	Points   int
}

// ResultsView is what a badge rule sees about the session.
type ResultsView struct {
	TotalRounds          int
	CompatibilityPercent float64
}

// Descriptor defines one game family.
type Descriptor struct {
	ID         string
	Name       string
	Bank       []Question
	Rounds     int
	RoundTime  time.Duration
	InviteTTL  time.Duration
	Deadline   time.Duration // async families: time to finish after accept
	AnswerType AnswerType
	Reveal     RevealPolicy
	Discussion DiscussionPolicy
	Score      Scorer
	Badges     BadgeRule
	Disabled   bool

	byID map[string]*Question
}

// Event namespaces an event name with the family id.
func (d *Descriptor) Event(name string) string { return d.ID + ":" + name }

// Timed reports whether rounds have deadlines.
func (d *Descriptor) Timed() bool { return d.Reveal == RevealSimultaneous }

// Question resolves a bank entry by id.
func (d *Descriptor) Question(id string) (*Question, bool) {
	if d.byID == nil {
		d.index()
	}
	q, ok := d.byID[id]
	return q, ok
}

func (d *Descriptor) index() {
	d.byID = make(map[string]*Question, len(d.Bank))
	for i := range d.Bank {
		d.byID[d.Bank[i].ID] = &d.Bank[i]
	}
}

// Normalize validates a raw client answer and returns its stored form.
func (d *Descriptor) Normalize(raw json.RawMessage) (string, error) {
	switch d.AnswerType {
	case AnswerBinary:
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return fmt.Sprint(b), nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "true", "yes", "i have":
				return "true", nil
			case "false", "no", "i haven't", "i have not":
				return "false", nil
			}
		}
		return "", apperr.Invalidf("answer must be true or false")
	case AnswerTwoOption:
		var n int
		if err := json.Unmarshal(raw, &n); err == nil && (n == 0 || n == 1) {
			return string(rune('A' + n)), nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			switch strings.ToUpper(strings.TrimSpace(s)) {
			case "A":
				return "A", nil
			case "B":
				return "B", nil
			}
		}
		return "", apperr.Invalidf("answer must be A or B")
	}
	return "", apperr.Invalidf("this game takes voice responses")
}

// Decode turns a stored answer into its wire value.
func (d *Descriptor) Decode(v string) any {
	if d.AnswerType == AnswerBinary {
		return v == "true"
	}
	return v
}

// Families is the registry of enabled descriptors.
type Families map[string]*Descriptor

// Get returns an enabled family.
func (f Families) Get(id string) (*Descriptor, error) {
	d, ok := f[id]
	if !ok || d.Disabled {
		return nil, apperr.Invalidf("unknown game %q", id)
	}
	return d, nil
}

// IDs returns the enabled family ids in sorted order.
func (f Families) IDs() []string {
	out := make([]string, 0, len(f))
	for id, d := range f {
		if !d.Disabled {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// DefaultFamilies returns fresh copies of the built-in descriptors.
func DefaultFamilies() Families {
	out := Families{}
	for _, d := range []*Descriptor{nhie(), wyr(), thisOrThat(), scenario()} {
		d.index()
		out[d.ID] = d
	}
	return out
}

// ApplyOverrides tunes descriptors from the families file. Rounds are
// capped at the bank size.
func (f Families) ApplyOverrides(over map[string]config.FamilyOverride) {
	for id, o := range over {
		d, ok := f[id]
		if !ok {
			continue
		}
		if o.Rounds > 0 {
			d.Rounds = min(o.Rounds, len(d.Bank))
		}
		if o.RoundTime > 0 {
			d.RoundTime = o.RoundTime
		}
		if o.InviteTTL > 0 {
			d.InviteTTL = o.InviteTTL
		}
		d.Disabled = o.Disabled
	}
}

func nhie() *Descriptor {
	return &Descriptor{
		ID:         "nhie",
		Name:       "Never Have I Ever",
		Bank:       nhieBank,
		Rounds:     30,
		RoundTime:  15 * time.Second,
		InviteTTL:  24 * time.Hour,
		AnswerType: AnswerBinary,
		Reveal:     RevealSimultaneous,
		Discussion: DiscussOnFirstVoiceNote,
		Score:      scoreBinary,
		Badges:     nhieBadges,
	}
}

func wyr() *Descriptor {
	return &Descriptor{
		ID:         "wyr",
		Name:       "Would You Rather",
		Bank:       wyrBank,
		Rounds:     15,
		RoundTime:  15 * time.Second,
		InviteTTL:  24 * time.Hour,
		AnswerType: AnswerTwoOption,
		Reveal:     RevealSimultaneous,
		Discussion: DiscussOnFirstVoiceNote,
		Score:      scoreTwoOption,
		Badges:     choiceBadges,
	}
}

func thisOrThat() *Descriptor {
	return &Descriptor{
		ID:         "thisorthat",
		Name:       "This or That",
		Bank:       thisOrThatBank,
		Rounds:     15,
		RoundTime:  10 * time.Second,
		InviteTTL:  24 * time.Hour,
		AnswerType: AnswerTwoOption,
		Reveal:     RevealSimultaneous,
		Discussion: DiscussOnFirstVoiceNote,
		Score:      scoreTwoOption,
		Badges:     choiceBadges,
	}
}

func scenario() *Descriptor {
	return &Descriptor{
		ID:         "scenario",
		Name:       "What Would You Do",
		Bank:       scenarioBank,
		Rounds:     15,
		InviteTTL:  72 * time.Hour,
		Deadline:   72 * time.Hour,
		AnswerType: AnswerVoice,
		Reveal:     RevealAsync,
		Discussion: DiscussOnCompletion,
		Badges:     scenarioBadges,
	}
}
