package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nathoo/responserules/engine"
	"github.com/nathoo/responserules/engine/effects"
	"github.com/nathoo/responserules/engine/events"
	"github.com/nathoo/responserules/engine/parser"
	"github.com/nathoo/responserules/engine/state"
	"github.com/nathoo/responserules/types"
)

// Output is the result of one input line.
type Output struct {
	Lines  []string
	System bool // meta-command output rather than a response
	Quit   bool
}

// Session is the state shared by the plain and terminal front ends: the
// system being queried, the remembered facts of the world and the speaker,
// and the meta-command settings.
type Session struct {
	System *engine.System

	// WorldBase and SpeakerBase are fixed facts, typically from Lua facts
	// scripts. Applied contexts accumulate in World and Speaker on top.
	WorldBase   *state.Facts
	SpeakerBase *state.Facts
	World       *events.Memory
	Speaker     *events.Memory

	Gender    string
	SaveDir   string
	Threshold float64
	Trace     bool
	Log       *zap.Logger

	LastRule string

	active   *engine.System
	activeID uuid.UUID
}

// NewSession creates a session over sys.
func NewSession(sys *engine.System, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		System:      sys,
		WorldBase:   state.NewFacts(),
		SpeakerBase: state.NewFacts(),
		World:       events.NewMemory(nil),
		Speaker:     events.NewMemory(nil),
		Gender:      "male",
		SaveDir:     "saves",
		Threshold:   1,
		Log:         log,
	}
}

// Target returns the system queries go to: the active instance, or the
// master system.
func (s *Session) Target() *engine.System {
	if s.active != nil {
		if _, ok := s.System.Instance(s.activeID); ok {
			return s.active
		}
		// A reload cleared the registry.
		s.active, s.activeID = nil, uuid.Nil
	}
	return s.System
}

// InstanceID returns the active instance id, or uuid.Nil.
func (s *Session) InstanceID() uuid.UUID {
	return s.activeID
}

// Facts builds the criteria set of a query: world facts, then speaker
// facts, then the query's own facts, later ones replacing earlier ones.
func (s *Session) Facts(query *state.Facts) *state.Facts {
	set := s.WorldBase.Clone()
	set.Merge(s.World.Facts())
	set.Merge(s.SpeakerBase)
	set.Merge(s.Speaker.Facts())
	set.Merge(query)
	return set
}

// Exec runs one input line: a meta-command when it starts with '/',
// otherwise a query.
func (s *Session) Exec(input string) Output {
	input = strings.TrimSpace(input)
	if input == "" {
		return Output{}
	}
	if strings.HasPrefix(input, "/") {
		lines, quit := s.meta(input)
		return Output{Lines: lines, System: true, Quit: quit}
	}
	return Output{Lines: s.Query(input)}
}

// Query answers a query line of facts.
func (s *Session) Query(input string) []string {
	query, err := parser.ParseFacts(input)
	if err != nil {
		return []string{fmt.Sprintf("Bad query: %v", err)}
	}
	set := s.Facts(query)
	target := s.Target()

	var output []string
	if s.Trace {
		output = append(output, s.explain(target, set)...)
	}

	m, ok := target.FindBestResponse(set, nil)
	if !ok {
		s.Log.Debug("no response", zap.Stringer("facts", set))
		return append(output, "(no response)")
	}
	s.LastRule = m.Rule
	m.Response.Value = effects.Interpolate(m.Response.Value, set, s.Gender)

	if s.Trace {
		output = append(output, fmt.Sprintf("[trace] rule %s, group %s", m.Rule, m.Group))
	}
	output = append(output, effects.Render(m)...)
	for _, err := range events.Dispatch(m, s.Speaker, s.World) {
		output = append(output, fmt.Sprintf("[error] %v", err))
	}
	return output
}

// explain lists the scoring rules for set, best first.
func (s *Session) explain(target *engine.System, set types.CriteriaSet) []string {
	scored := target.Explain(set)
	lines := []string{fmt.Sprintf("[trace] facts: %s", set)}
	if len(scored) == 0 {
		return append(lines, "[trace] no rule scores")
	}
	for i, sc := range scored {
		if i == 5 {
			lines = append(lines, fmt.Sprintf("[trace]   ... %d more", len(scored)-i))
			break
		}
		lines = append(lines, fmt.Sprintf("[trace]   %-24s %.3f", sc.Name, sc.Score))
	}
	return lines
}

// meta dispatches meta-commands. Returns output lines and the quit flag.
func (s *Session) meta(input string) ([]string, bool) {
	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}

	switch cmd {
	case "/quit", "/exit":
		return []string{"Goodbye."}, true
	case "/help":
		return helpLines(), false
	case "/dump":
		return s.dump(s.Target().DumpDictionary), false
	case "/rules":
		return s.dump(s.Target().DumpRules), false
	case "/all":
		return s.cmdAll(), false
	case "/precache":
		return s.cmdPrecache(), false
	case "/reload":
		return s.cmdReload(), false
	case "/save":
		return s.cmdSave(arg), false
	case "/load":
		return s.cmdLoad(arg), false
	case "/facts":
		return s.cmdFacts(), false
	case "/set":
		return s.cmdSet(args), false
	case "/clear":
		return s.cmdClear(arg), false
	case "/instance":
		return s.cmdInstance(strings.Join(args, " ")), false
	case "/gender":
		if arg != "" {
			s.Gender = arg
		}
		return []string{fmt.Sprintf("Gender: %s.", s.Gender)}, false
	case "/trace":
		s.Trace = !s.Trace
		if s.Trace {
			return []string{"Trace output enabled."}, false
		}
		return []string{"Trace output disabled."}, false
	default:
		return []string{fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd)}, false
	}
}

func (s *Session) dump(fn func(io.Writer) error) []string {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return []string{fmt.Sprintf("Dump failed: %v", err)}
	}
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
}

func (s *Session) cmdAll() []string {
	all := s.Target().GetAllResponses()
	if len(all) == 0 {
		return []string{"No responses loaded."}
	}
	lines := make([]string, 0, len(all))
	for _, r := range all {
		rendered := effects.Render(types.Match{Group: r.Group, Response: r.Response})
		lines = append(lines, fmt.Sprintf("%s: %s", r.Group, rendered[0]))
	}
	return lines
}

func (s *Session) cmdPrecache() []string {
	rec := &effects.Recorder{}
	stats := s.Target().Precache(rec)
	lines := []string{fmt.Sprintf("Precached %d scene(s) and %d sound(s).", stats.Scenes, stats.Sounds)}
	if s.Trace {
		for _, sc := range rec.Scenes {
			lines = append(lines, "[trace]   scene "+sc)
		}
		for _, snd := range rec.Sounds {
			lines = append(lines, "[trace]   sound "+snd)
		}
	}
	return lines
}

func (s *Session) cmdReload() []string {
	s.leaveInstance()
	err := s.System.Reload()
	st := s.System.Stats()
	if err != nil {
		return []string{
			fmt.Sprintf("Reload reported problems: %v", err),
			fmt.Sprintf("%d rule(s) loaded from %s.", st.Rules, st.Script),
		}
	}
	return []string{fmt.Sprintf("Reloaded %s: %d rule(s).", st.Script, st.Rules)}
}

func (s *Session) savePath(name string) string {
	if name == "" {
		name = "quicksave"
	}
	return filepath.Join(s.SaveDir, name+".json")
}

func (s *Session) cmdSave(name string) []string {
	data, err := s.Target().Save()
	if err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}
	if err := os.MkdirAll(s.SaveDir, 0o755); err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}
	path := s.savePath(name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}
	return []string{fmt.Sprintf("Selection state saved to %s.", path)}
}

func (s *Session) cmdLoad(name string) []string {
	path := s.savePath(name)
	data, err := os.ReadFile(path)
	if err != nil {
		return []string{fmt.Sprintf("Load failed: %v", err)}
	}
	skipped, err := s.Target().Restore(data)
	if err != nil {
		return []string{fmt.Sprintf("Load failed: %v", err)}
	}
	lines := []string{fmt.Sprintf("Selection state loaded from %s.", path)}
	for _, sk := range skipped {
		lines = append(lines, "  skipped "+sk)
	}
	return lines
}

func (s *Session) cmdFacts() []string {
	return []string{
		fmt.Sprintf("World:   %s", joinFacts(s.WorldBase, s.World.Facts())),
		fmt.Sprintf("Speaker: %s", joinFacts(s.SpeakerBase, s.Speaker.Facts())),
	}
}

func joinFacts(base, live *state.Facts) string {
	f := base.Clone()
	f.Merge(live)
	if f.Len() == 0 {
		return "(none)"
	}
	return f.String()
}

// cmdSet handles "/set world|speaker key=value ...".
func (s *Session) cmdSet(args []string) []string {
	if len(args) < 2 {
		return []string{"Usage: /set world|speaker key=value ..."}
	}
	mem, err := s.memory(args[0])
	if err != nil {
		return []string{err.Error()}
	}
	facts, err := parser.Parse(strings.Join(args[1:], " "))
	if err != nil {
		return []string{fmt.Sprintf("Bad facts: %v", err)}
	}
	ctxs := make([]events.Context, 0, len(facts))
	for _, f := range facts {
		ctxs = append(ctxs, events.Context{Key: f.Name, Value: f.Value})
	}
	mem.Apply(ctxs)
	return []string{fmt.Sprintf("Set %d fact(s) on the %s.", len(ctxs), strings.ToLower(args[0]))}
}

func (s *Session) cmdClear(which string) []string {
	switch strings.ToLower(which) {
	case "":
		s.World.Clear()
		s.Speaker.Clear()
		return []string{"Cleared world and speaker memory."}
	default:
		mem, err := s.memory(which)
		if err != nil {
			return []string{err.Error()}
		}
		mem.Clear()
		return []string{fmt.Sprintf("Cleared %s memory.", strings.ToLower(which))}
	}
}

func (s *Session) memory(which string) (*events.Memory, error) {
	switch strings.ToLower(which) {
	case "world":
		return s.World, nil
	case "speaker":
		return s.Speaker, nil
	}
	return nil, errors.New("expected world or speaker")
}

// cmdInstance handles "/instance key=value ...", which builds an instance
// and sends queries to it, and "/instance off", which releases it.
func (s *Session) cmdInstance(arg string) []string {
	switch strings.ToLower(arg) {
	case "":
		if s.active == nil {
			return []string{"Querying the master system."}
		}
		st := s.active.Stats()
		return []string{fmt.Sprintf("Querying instance %s (%d rule(s)).", s.activeID, st.Rules)}
	case "off", "master":
		if s.active == nil {
			return []string{"No instance active."}
		}
		id := s.activeID
		s.leaveInstance()
		return []string{fmt.Sprintf("Released instance %s.", id)}
	}

	query, err := parser.ParseFacts(arg)
	if err != nil {
		return []string{fmt.Sprintf("Bad facts: %v", err)}
	}
	s.leaveInstance()
	id, inst := s.System.NewInstance(s.Facts(query), s.Threshold)
	s.active, s.activeID = inst, id
	return []string{fmt.Sprintf("Instance %s: %d rule(s) at threshold %g.", id, inst.Stats().Rules, s.Threshold)}
}

// Reloaded releases the active instance after the master was reloaded
// outside the session. It returns the released id, or uuid.Nil.
func (s *Session) Reloaded() uuid.UUID {
	id := s.activeID
	s.leaveInstance()
	return id
}

func (s *Session) leaveInstance() {
	if s.active == nil {
		return
	}
	s.System.ReleaseInstance(s.activeID)
	s.active, s.activeID = nil, uuid.Nil
}

func helpLines() []string {
	return []string{
		"Queries:",
		"  concept=TLK_HURT health=20 who=alyx@2",
		"      Facts as key=value or key:value, optional @weight.",
		"      World and speaker memory are added underneath.",
		"",
		"Commands:",
		"  /dump                  Dump every dictionary",
		"  /rules                 List rules",
		"  /all                   List every response",
		"  /precache              Precache scenes and sounds",
		"  /reload                Reload the script",
		"  /save [name]           Save selection state (default: quicksave)",
		"  /load [name]           Load selection state (default: quicksave)",
		"  /facts                 Show world and speaker facts",
		"  /set world|speaker k=v Remember facts",
		"  /clear [world|speaker] Forget remembered facts",
		"  /instance [k=v ...|off] Query an instanced copy",
		"  /gender [male|female]  Gender used for $gender",
		"  /trace                 Toggle rule scoring output",
		"  /help                  Show this help",
		"  /quit                  Exit",
	}
}
