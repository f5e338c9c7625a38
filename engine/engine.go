// Package engine provides System, the response rules facade that wires
// together loading, rule selection, response selection and instancing.
package engine

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nathoo/responserules/engine/dialogue"
	"github.com/nathoo/responserules/engine/effects"
	"github.com/nathoo/responserules/engine/instance"
	"github.com/nathoo/responserules/engine/rules"
	"github.com/nathoo/responserules/engine/save"
	"github.com/nathoo/responserules/engine/state"
	"github.com/nathoo/responserules/loader"
	"github.com/nathoo/responserules/types"
)

// Options configures a System.
type Options struct {
	// FS resolves the root script and #include paths.
	FS fs.FS
	// Base is the directory #include names are relative to. Empty uses the
	// directory of the root script.
	Base string
	// Seed seeds the deterministic RNG.
	Seed int64
	// Random replaces the seeded RNG. Save is unavailable when set.
	Random types.Random
	Logger *zap.Logger
}

// System holds one set of response dictionaries and their runtime state.
// All methods are safe for concurrent use.
type System struct {
	mu     sync.Mutex
	defs   *state.Defs
	rng    *RNG
	random types.Random
	log    *zap.Logger
	fsys   fs.FS
	base   string
	script string

	instances map[uuid.UUID]*System
}

// ResponseInfo is one entry of GetAllResponses.
type ResponseInfo struct {
	Group    string
	Response types.Response
}

// New creates an empty system.
func New(opts Options) *System {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &System{
		defs:      state.NewDefs(),
		log:       log,
		fsys:      opts.FS,
		base:      opts.Base,
		instances: map[uuid.UUID]*System{},
	}
	if opts.Random != nil {
		s.random = opts.Random
	} else {
		s.rng = NewRNG(opts.Seed)
		s.random = s.rng
	}
	return s
}

// LoadRuleSet rebuilds the dictionaries from the script at name. When the
// script cannot be read the current dictionaries are kept. Fatal parse
// problems are returned, but the entries parsed before them are installed.
func (s *System) LoadRuleSet(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.base
	if base == "" {
		base = path.Dir(name)
	}
	l := loader.New(s.fsys, base, s.log)
	defs, err := l.LoadFile(name)
	if defs == nil {
		s.log.Error("response rules not loaded", zap.String("script", name), zap.Error(err))
		return err
	}
	s.defs = defs
	s.script = name
	return err
}

// LoadFromBuffer rebuilds the dictionaries from text. #include directives
// are resolved against the system's file system.
func (s *System) LoadFromBuffer(name, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := loader.New(s.fsys, s.base, s.log)
	defs, err := l.LoadBuffer(name, text)
	s.defs = defs
	s.script = name
	return err
}

// Reload clears the system and loads the last script again.
func (s *System) Reload() error {
	s.mu.Lock()
	name := s.script
	s.mu.Unlock()

	if name == "" {
		return errors.New("no script loaded")
	}
	s.Clear()
	return s.LoadRuleSet(name)
}

// Clear empties every dictionary and releases all instances.
func (s *System) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = state.NewDefs()
	s.instances = map[uuid.UUID]*System{}
}

// FindBestResponse scores every rule against set, picks the best, and
// selects one of its responses. filter may be nil. ok is false when no rule
// matched or no response could be chosen; that is a normal outcome.
func (s *System) FindBestResponse(set types.CriteriaSet, filter types.Filter) (types.Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 1. Best rule.
	ri, ok := rules.FindBestRule(s.defs, set, s.random, s.log)
	if !ok {
		return types.Match{}, false
	}
	rule, _ := s.defs.Rule(ri)

	// 2. A matchonce rule never wins again.
	if rule.MatchOnce {
		rule.Enabled = false
	}

	// 3. Random group, then that group's own policy.
	sel, ok, err := dialogue.SelectForRule(s.defs, rule, s.random, filter, s.log)
	if err != nil {
		s.log.Warn("response selection failed", zap.String("rule", rule.Name), zap.Error(err))
	}
	if !ok {
		return types.Match{}, false
	}

	g, _ := s.defs.Group(sel.Group)
	return types.Match{
		Rule:                rule.Name,
		Group:               g.Name,
		Response:            g.Responses[sel.Index],
		Contexts:            append([]string(nil), rule.Contexts...),
		ApplyContextToWorld: rule.ApplyContextToWorld,
	}, true
}

// Explain returns every rule that scores against set, best first.
func (s *System) Explain(set types.CriteriaSet) []rules.Scored {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rules.ScoreAll(s.defs, set, s.log)
}

// GetAllResponses lists every non-redirect response in dictionary order.
func (s *System) GetAllResponses() []ResponseInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ResponseInfo
	for _, g := range s.defs.Groups {
		for _, r := range g.Responses {
			if r.Kind == types.KindResponse {
				continue
			}
			out = append(out, ResponseInfo{Group: g.Name, Response: r})
		}
	}
	return out
}

// Precache asks p to load every scene and sound the dictionaries reference.
func (s *System) Precache(p effects.Precacher) effects.PrecacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return effects.Precache(s.defs, p)
}

// DumpRules writes one line per rule.
func (s *System) DumpRules(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.defs
	for _, r := range d.Rules {
		var flags []string
		if !r.Enabled {
			flags = append(flags, "disabled")
		}
		if r.MatchOnce {
			flags = append(flags, "matchonce")
		}
		if r.ApplyContextToWorld {
			flags = append(flags, "world")
		}
		line := r.Name
		if len(flags) > 0 {
			line += " [" + strings.Join(flags, ",") + "]"
		}
		line += " criteria=" + strings.Join(criteriaNames(d, r.Criteria), ",")
		line += " responses=" + strings.Join(groupNames(d, r.Groups), ",")
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// DumpDictionary writes every dictionary table.
func (s *System) DumpDictionary(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.defs
	var b strings.Builder

	fmt.Fprintf(&b, "Enumerations (%d)\n", len(d.Enumerations))
	for _, k := range d.EnumerationKeys() {
		fmt.Fprintf(&b, "  %s = %g\n", k, d.Enumerations[k])
	}

	fmt.Fprintf(&b, "Criteria (%d)\n", len(d.Criteria))
	for _, c := range d.Criteria {
		fmt.Fprintf(&b, "  %s", c.Name)
		if len(c.Children) > 0 {
			fmt.Fprintf(&b, " { %s }", strings.Join(criteriaNames(d, c.Children), " "))
		} else {
			fmt.Fprintf(&b, " %s %q", c.Key, c.Value)
		}
		if c.Required {
			b.WriteString(" required")
		}
		if c.Weight != 1 {
			fmt.Fprintf(&b, " weight %g", c.Weight)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Responses (%d)\n", len(d.Groups))
	for _, g := range d.Groups {
		var flags []string
		if g.Sequential {
			flags = append(flags, "sequential")
		}
		if g.NoRepeat {
			flags = append(flags, "norepeat")
		}
		if !g.DepleteBeforeRepeat {
			flags = append(flags, "permitrepeats")
		}
		if !g.Enabled {
			flags = append(flags, "disabled")
		}
		fmt.Fprintf(&b, "  %s", g.Name)
		if len(flags) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(flags, ","))
		}
		b.WriteString("\n")
		for _, r := range g.Responses {
			fmt.Fprintf(&b, "    %s %q weight %g", r.Kind, r.Value, r.Weight)
			if r.First {
				b.WriteString(" displayfirst")
			}
			if r.Last {
				b.WriteString(" displaylast")
			}
			if p := effects.FormatParams(r.Params); p != "" {
				b.WriteString(" " + p)
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "Rules (%d)\n", len(d.Rules))
	for _, r := range d.Rules {
		fmt.Fprintf(&b, "  %s criteria=%s responses=%s\n", r.Name,
			strings.Join(criteriaNames(d, r.Criteria), ","),
			strings.Join(groupNames(d, r.Groups), ","))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// NewInstance builds an independent system from the rules of s whose loose
// score against set reaches threshold. The instance stays registered under
// the returned id until ReleaseInstance.
func (s *System) NewInstance(set types.CriteriaSet, threshold float64) (uuid.UUID, *System) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defs := instance.Build(s.defs, set, threshold, s.log)
	seed := int64(s.random.RandomInt(0, math.MaxInt32))
	inst := &System{
		defs:      defs,
		rng:       NewRNG(seed),
		log:       s.log,
		fsys:      s.fsys,
		base:      s.base,
		script:    s.script,
		instances: map[uuid.UUID]*System{},
	}
	inst.random = inst.rng

	id := uuid.New()
	s.instances[id] = inst
	s.log.Debug("instance created", zap.String("id", id.String()), zap.Int("rules", len(defs.Rules)))
	return id, inst
}

// Instance returns a registered instance.
func (s *System) Instance(id uuid.UUID) (*System, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	return inst, ok
}

// Instances returns the registered instance ids in string order.
func (s *System) Instances() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(s.instances))
	for id := range s.instances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// ReleaseInstance forgets an instance. It reports whether id was registered.
func (s *System) ReleaseInstance(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[id]; !ok {
		return false
	}
	delete(s.instances, id)
	return true
}

// Save serializes the runtime selection state and the RNG position.
func (s *System) Save() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng == nil {
		return nil, errors.New("save requires the built-in RNG")
	}
	return save.Save(s.defs, s.script, s.rng.Seed(), s.rng.Position())
}

// Restore applies saved runtime state onto the loaded dictionaries and
// rewinds the RNG. Entries that no longer match are reported as skipped.
func (s *System) Restore(data []byte) ([]string, error) {
	sd, err := save.Load(data)
	if err != nil {
		return nil, fmt.Errorf("loading save: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.script != "" && sd.Script != s.script {
		s.log.Warn("save was made with another script",
			zap.String("saved", sd.Script), zap.String("loaded", s.script))
	}
	skipped := save.ApplySave(s.defs, sd)
	s.RestoreRNG(sd.RNGSeed, sd.RNGPosition)
	return skipped, nil
}

// RestoreRNG re-creates the RNG from seed and advances to the saved position.
// Callers hold s.mu.
func (s *System) RestoreRNG(seed int64, position int64) {
	s.rng = RestoreRNG(seed, position)
	s.random = s.rng
}

// Stats summarizes the loaded dictionaries.
type Stats struct {
	Script       string
	Rules        int
	Criteria     int
	Groups       int
	Enumerations int
	RNGPosition  int64
}

// Stats returns counts for status displays.
func (s *System) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Script:       s.script,
		Rules:        len(s.defs.Rules),
		Criteria:     len(s.defs.Criteria),
		Groups:       len(s.defs.Groups),
		Enumerations: len(s.defs.Enumerations),
	}
	if s.rng != nil {
		st.RNGPosition = s.rng.Position()
	}
	return st
}

// Script returns the name of the last loaded script.
func (s *System) Script() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.script
}

func criteriaNames(d *state.Defs, handles []int) []string {
	names := make([]string, 0, len(handles))
	for _, h := range handles {
		if c, ok := d.Criterion(h); ok {
			names = append(names, c.Name)
		}
	}
	return names
}

func groupNames(d *state.Defs, handles []int) []string {
	names := make([]string, 0, len(handles))
	for _, h := range handles {
		if g, ok := d.Group(h); ok {
			names = append(names, g.Name)
		}
	}
	return names
}
