// Package types defines the shared data structures for the response rules engine.
// This package contains only type definitions and the FilterFunc adapter. No logic.
package types

// ResponseKind is the action a Response performs when chosen.
type ResponseKind string

const (
	KindNone     ResponseKind = ""
	KindScene    ResponseKind = "scene"
	KindSentence ResponseKind = "sentence"
	KindSpeak    ResponseKind = "speak"
	KindResponse ResponseKind = "response" // redirect into another group
	KindPrint    ResponseKind = "print"
)

// Matcher is a compiled comparison predicate. Exactly one of range mode
// (UseMin/UseMax) or equality mode is active.
type Matcher struct {
	Valid     bool
	UseMin    bool
	MinEquals bool
	MinVal    float64
	UseMax    bool
	MaxEquals bool
	MaxVal    float64
	NotEqual  bool
	IsNumeric bool
	Token     string // resolved token (enumerations substituted)
	Raw       string // last raw clause as written
}

// Criteria is one match test. A leaf has Key/Value/Matcher populated; a
// composite has Children populated. Never both.
type Criteria struct {
	Name     string
	Key      string
	Value    string
	Matcher  Matcher
	Weight   float64
	Required bool
	Children []int // handles into Defs.Criteria
}

// Interval is a randomizable duration in seconds: Start + [0, Range].
type Interval struct {
	Start float64
	Range float64
}

// ResponseParams carries the playback parameters of a response.
type ResponseParams struct {
	PreDelay        Interval
	Delay           Interval
	RespeakDelay    Interval
	WeaponDelay     Interval
	Odds            int
	SoundLevel      string
	SpeakOnce       bool
	NoScene         bool
	StopOnNonIdle   bool
	HasPreDelay     bool
	HasDelay        bool
	HasRespeakDelay bool
	HasWeaponDelay  bool
	HasOdds         bool
	HasSoundLevel   bool
}

// Response is one action in a ResponseGroup.
type Response struct {
	Kind      ResponseKind
	Value     string
	Weight    float64
	Params    ResponseParams
	Depletion int // equals the group's Generation once used this generation
	First     bool
	Last      bool
}

// ResponseGroup is a named pool of alternative responses.
type ResponseGroup struct {
	Name                string
	Responses           []Response
	Params              ResponseParams // group-level defaults
	Sequential          bool
	NoRepeat            bool
	DepleteBeforeRepeat bool // false when "permitrepeats"
	CurrentIndex        int
	Generation          int
	Enabled             bool
	HasFirst            bool
	HasLast             bool
}

// Rule is the unit of matching.
type Rule struct {
	Name                string
	Criteria            []int // handles into Defs.Criteria
	Groups              []int // handles into Defs.Groups
	MatchOnce           bool
	Enabled             bool
	Contexts            []string
	ApplyContextToWorld bool
}

// Match is the outcome of a successful FindBestResponse.
type Match struct {
	Rule                string
	Group               string
	Response            Response
	Contexts            []string
	ApplyContextToWorld bool
}

// CriteriaSet is the caller's query: ordered (name, value, weight) triples.
// Find returns -1 when the name is absent.
type CriteriaSet interface {
	Len() int
	Find(name string) int
	Name(index int) string
	Value(index int) (string, bool)
	Weight(index int) float64
}

// Random is the injected random source. RandomFloat draws from [lo, hi),
// RandomInt from [lo, hi].
type Random interface {
	RandomFloat(lo, hi float64) float64
	RandomInt(lo, hi int) int
}

// Filter rejects responses the caller cannot play right now.
type Filter interface {
	IsValidResponse(kind ResponseKind, value string) bool
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(kind ResponseKind, value string) bool

// IsValidResponse calls f.
func (f FilterFunc) IsValidResponse(kind ResponseKind, value string) bool {
	return f(kind, value)
}

// Enums resolves "[Group::Key]" enumeration references.
type Enums interface {
	LookupEnumeration(name string) (float64, bool)
}
