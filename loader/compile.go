package loader

import (
	"fmt"
	"io/fs"
	"path"

	"go.uber.org/zap"

	"github.com/nathoo/responserules/engine/matcher"
	"github.com/nathoo/responserules/engine/resolve"
	"github.com/nathoo/responserules/engine/state"
	"github.com/nathoo/responserules/types"
)

// Default "defaultdelay" interval, in seconds.
const (
	DefaultMinDelay = 2.8
	DefaultMaxDelay = 3.2
)

var responseKinds = map[string]types.ResponseKind{
	"scene":    types.KindScene,
	"sentence": types.KindSentence,
	"speak":    types.KindSpeak,
	"response": types.KindResponse,
	"print":    types.KindPrint,
}

// ruleKeywords end a "criteria"/"response" name list inside a rule body.
var ruleKeywords = map[string]bool{
	"}":                   true,
	"matchonce":           true,
	"applycontexttoworld": true,
	"applycontext":        true,
	"response":            true,
	"criteria":            true,
	"criterion":           true,
}

// compiler consumes tokens into dictionaries.
type compiler struct {
	tok  *Tokenizer
	defs *state.Defs
	fsys fs.FS
	base string
	log  *zap.Logger
	diag *LoadError
	anon int
}

// errEOF aborts the entry being parsed when its buffer runs out.
type errEOF struct{ what string }

func (e errEOF) Error() string { return "unexpected end of file in " + e.what }

// run parses every buffer on the tokenizer stack until all are exhausted.
func (c *compiler) run() {
	for c.tok.Depth() > 0 {
		token, ok := c.tok.ParseToken()
		if !ok {
			c.tok.Pop()
			continue
		}

		var err error
		switch state.Fold(token) {
		case "#include":
			err = c.parseInclude()
		case "response":
			err = c.parseResponse()
		case "criterion", "criteria":
			err = c.parseCriterion()
		case "rule":
			err = c.parseRule()
		case "enumeration":
			err = c.parseEnumeration()
		default:
			err = fmt.Errorf("unknown entry type %q, expecting 'response', 'criterion', 'enumeration' or 'rule'", token)
		}

		if err != nil {
			// Fatal for the current file; entries parsed so far are kept.
			c.fatal(err.Error())
			c.tok.Pop()
		}
	}
}

// next returns the next token of the current buffer.
func (c *compiler) next(what string) (string, error) {
	token, ok := c.tok.ParseToken()
	if !ok {
		return "", errEOF{what: what}
	}
	return token, nil
}

func (c *compiler) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.diag.Warnings = append(c.diag.Warnings, c.where()+msg)
	c.log.Warn(msg, zap.String("file", c.tok.File()), zap.Int("offset", c.tok.Offset()))
}

func (c *compiler) fatal(msg string) {
	c.diag.Errors = append(c.diag.Errors, c.where()+msg)
	c.log.Error(msg, zap.String("file", c.tok.File()), zap.Int("offset", c.tok.Offset()))
}

func (c *compiler) where() string {
	return fmt.Sprintf("%s(offset:%d): ", c.tok.File(), c.tok.Offset())
}

// parseInclude pushes the named script. Files already included are skipped.
func (c *compiler) parseInclude() error {
	name, err := c.next("#include")
	if err != nil {
		return err
	}
	full := path.Join(c.base, name)
	if !c.tok.MarkIncluded(full) {
		return nil
	}
	if c.fsys == nil {
		c.warn("cannot include %s: no file system", full)
		return nil
	}
	data, err := fs.ReadFile(c.fsys, full)
	if err != nil {
		c.warn("unable to load #included script %s: %v", full, err)
		return nil
	}
	c.tok.Push(full, string(data))
	return nil
}

// parseEnumeration reads: enumeration NAME { KEY VALUE ... }
func (c *compiler) parseEnumeration() error {
	name, err := c.next("enumeration")
	if err != nil {
		return err
	}
	open, err := c.next("enumeration " + name)
	if err != nil {
		return err
	}
	if open != "{" {
		return fmt.Errorf("expecting '{' in enumeration %s, got %q", name, open)
	}

	for {
		key, err := c.next("enumeration " + name)
		if err != nil {
			return err
		}
		if key == "}" {
			return nil
		}
		value, err := c.next("enumeration " + name)
		if err != nil {
			return err
		}
		c.defs.AddEnumeration(name, key, matcher.Atof(value))
	}
}

// parseResponse reads a response group in braced or single-entry form.
func (c *compiler) parseResponse() error {
	name, err := c.next("response")
	if err != nil {
		return err
	}
	what := "response " + name

	group := types.ResponseGroup{
		Name:                name,
		Params:              types.ResponseParams{Odds: 100},
		DepleteBeforeRepeat: true,
		Generation:          1,
		Enabled:             true,
	}

	for {
		token, err := c.next(what)
		if err != nil {
			return err
		}

		if token == "{" {
			if err := c.parseResponseBody(&group, what); err != nil {
				return err
			}
			break
		}

		ok, err := c.parseParam(&group.Params, token, what)
		if err != nil {
			return err
		}
		if ok {
			continue
		}

		// Single response without braces.
		if err := c.parseOneResponse(&group, token, what); err != nil {
			return err
		}
		break
	}

	if _, isNew := c.defs.AddGroup(group); !isNew {
		c.warn("response group %s defined more than once; lookups use the first definition", name)
	}
	return nil
}

func (c *compiler) parseResponseBody(group *types.ResponseGroup, what string) error {
	for {
		token, err := c.next(what)
		if err != nil {
			return err
		}
		switch state.Fold(token) {
		case "}":
			return nil
		case "permitrepeats":
			group.DepleteBeforeRepeat = false
		case "sequential":
			group.Sequential = true
		case "norepeat":
			group.NoRepeat = true
		default:
			if err := c.parseOneResponse(group, token, what); err != nil {
				return err
			}
		}
	}
}

// parseOneResponse reads: KIND VALUE {modifier}* up to the end of the line.
func (c *compiler) parseOneResponse(group *types.ResponseGroup, kindToken, what string) error {
	value, err := c.next(what)
	if err != nil {
		return err
	}

	kind, known := responseKinds[state.Fold(kindToken)]
	r := types.Response{
		Kind:   kind,
		Value:  value,
		Weight: 1,
		Params: group.Params,
	}

	for c.tok.TokenWaiting() {
		token, err := c.next(what)
		if err != nil {
			return err
		}
		switch state.Fold(token) {
		case "weight":
			w, err := c.next(what)
			if err != nil {
				return err
			}
			r.Weight = matcher.Atof(w)
			continue
		case "displayfirst":
			r.First = true
			group.HasFirst = true
			continue
		case "displaylast":
			r.Last = true
			group.HasLast = true
			continue
		}
		ok, err := c.parseParam(&r.Params, token, what)
		if err != nil {
			return err
		}
		if !ok {
			c.tok.Unget()
			break
		}
	}

	if !known {
		c.warn("%s: unknown response type %q, entry %q skipped", what, kindToken, value)
		return nil
	}
	group.Responses = append(group.Responses, r)
	return nil
}

// parseParam applies a playback parameter. It reports false when token is
// not a parameter keyword.
func (c *compiler) parseParam(p *types.ResponseParams, token, what string) (bool, error) {
	arg := func() (string, error) { return c.next(what) }

	switch state.Fold(token) {
	case "predelay":
		v, err := arg()
		if err != nil {
			return true, err
		}
		p.HasPreDelay = true
		p.PreDelay = readInterval(v)
	case "nodelay":
		p.HasDelay = true
		p.Delay = types.Interval{}
	case "defaultdelay":
		p.HasDelay = true
		p.Delay = types.Interval{Start: DefaultMinDelay, Range: DefaultMaxDelay - DefaultMinDelay}
	case "delay":
		v, err := arg()
		if err != nil {
			return true, err
		}
		p.HasDelay = true
		p.Delay = readInterval(v)
	case "speakonce":
		p.SpeakOnce = true
	case "noscene":
		p.NoScene = true
	case "stop_on_nonidle":
		p.StopOnNonIdle = true
	case "odds":
		v, err := arg()
		if err != nil {
			return true, err
		}
		p.HasOdds = true
		p.Odds = clamp(int(matcher.Atof(v)), 0, 100)
	case "respeakdelay":
		v, err := arg()
		if err != nil {
			return true, err
		}
		p.HasRespeakDelay = true
		p.RespeakDelay = readInterval(v)
	case "weapondelay":
		v, err := arg()
		if err != nil {
			return true, err
		}
		p.HasWeaponDelay = true
		p.WeaponDelay = readInterval(v)
	case "soundlevel":
		v, err := arg()
		if err != nil {
			return true, err
		}
		p.HasSoundLevel = true
		p.SoundLevel = v
	default:
		return false, nil
	}
	return true, nil
}

// parseCriterion reads either a leaf (KEY VALUE with optional required/weight
// modifiers) or a braced body of existing criterion names and KEY VALUE leaves.
func (c *compiler) parseCriterion() error {
	name, err := c.next("criterion")
	if err != nil {
		return err
	}
	what := "criterion " + name
	crit := types.Criteria{Name: name, Weight: 1}

	for {
		token, err := c.next(what)
		if err != nil {
			return err
		}
		switch state.Fold(token) {
		case "required":
			crit.Required = true
			continue
		case "weight":
			w, err := c.next(what)
			if err != nil {
				return err
			}
			crit.Weight = matcher.Atof(w)
			continue
		case "{":
			return c.parseCriterionBody(crit, what)
		}

		value, err := c.next(what)
		if err != nil {
			return err
		}
		crit.Key = token
		crit.Value = value
		if err := c.parseCriterionModifiers(&crit, what); err != nil {
			return err
		}
		c.addCriterion(crit)
		return nil
	}
}

func (c *compiler) parseCriterionBody(crit types.Criteria, what string) error {
	type leaf struct{ key, value string }
	var leaves []leaf
	var children []int

	for {
		token, err := c.next(what)
		if err != nil {
			return err
		}
		switch state.Fold(token) {
		case "}":
			goto done
		case "required":
			crit.Required = true
			continue
		case "weight":
			w, err := c.next(what)
			if err != nil {
				return err
			}
			crit.Weight = matcher.Atof(w)
			continue
		}
		if idx, err := resolve.Criteria(c.defs, token); err == nil {
			children = append(children, idx)
			continue
		}
		value, err := c.next(what)
		if err != nil {
			return err
		}
		if value == "}" {
			c.warn("%s: criterion %q has no value", what, token)
			goto done
		}
		if _, err := resolve.Criteria(c.defs, value); err == nil {
			c.warn("%s: %q is not a criterion, read as key with value %q which names a criterion", what, token, value)
		}
		leaves = append(leaves, leaf{key: token, value: value})
	}

done:
	if _, exists := c.defs.FindCriteria(crit.Name); exists {
		c.warn("duplicate criterion %s, keeping the first definition", crit.Name)
		return nil
	}
	if len(leaves) == 0 && len(children) == 0 {
		c.warn("%s is empty, discarded", what)
		return nil
	}
	if len(leaves) == 1 && len(children) == 0 {
		crit.Key = leaves[0].key
		crit.Value = leaves[0].value
		c.addCriterion(crit)
		return nil
	}
	for i, l := range leaves {
		child := types.Criteria{
			Name:   fmt.Sprintf("%s#%d", crit.Name, i),
			Key:    l.key,
			Value:  l.value,
			Weight: 1,
		}
		if idx, ok := c.addCriterion(child); ok {
			children = append(children, idx)
		}
	}
	crit.Children = children
	c.addCriterion(crit)
	return nil
}

// parseCriterionModifiers reads trailing required/weight on the same line.
func (c *compiler) parseCriterionModifiers(crit *types.Criteria, what string) error {
	for c.tok.TokenWaiting() {
		token, err := c.next(what)
		if err != nil {
			return err
		}
		switch state.Fold(token) {
		case "required":
			crit.Required = true
		case "weight":
			w, err := c.next(what)
			if err != nil {
				return err
			}
			crit.Weight = matcher.Atof(w)
		default:
			c.tok.Unget()
			return nil
		}
	}
	return nil
}

// addCriterion compiles the matcher of a leaf and inserts it.
func (c *compiler) addCriterion(crit types.Criteria) (int, bool) {
	if len(crit.Children) == 0 {
		crit.Matcher = matcher.Compile(crit.Value, c.defs, c.log)
	}
	idx, isNew := c.defs.AddCriteria(crit)
	if !isNew {
		c.warn("duplicate criterion %s, keeping the first definition", crit.Name)
		return idx, false
	}
	return idx, true
}

// parseRule reads: rule NAME { ... }. Unresolved references discard the rule.
func (c *compiler) parseRule() error {
	name, err := c.next("rule")
	if err != nil {
		return err
	}
	what := "rule " + name
	open, err := c.next(what)
	if err != nil {
		return err
	}
	if open != "{" {
		return fmt.Errorf("expecting '{' in rule %s, got %q", name, open)
	}

	rule := types.Rule{Name: name, Enabled: true}
	valid := true

	for {
		token, err := c.next(what)
		if err != nil {
			return err
		}

		switch state.Fold(token) {
		case "}":
			goto done
		case "matchonce":
			rule.MatchOnce = true
		case "applycontexttoworld":
			rule.ApplyContextToWorld = true
		case "applycontext":
			ctx, err := c.next(what)
			if err != nil {
				return err
			}
			rule.Contexts = append(rule.Contexts, ctx)
		case "response":
			names, err := c.nameList(what)
			if err != nil {
				return err
			}
			for _, n := range names {
				idx, err := resolve.Group(c.defs, n)
				if err != nil {
					c.warn("%s: %v", what, err)
					valid = false
					continue
				}
				rule.Groups = append(rule.Groups, idx)
			}
		case "criteria", "criterion":
			names, err := c.nameList(what)
			if err != nil {
				return err
			}
			for _, n := range names {
				idx, err := resolve.Criteria(c.defs, n)
				if err != nil {
					c.warn("%s: %v", what, err)
					valid = false
					continue
				}
				rule.Criteria = append(rule.Criteria, idx)
			}
		default:
			idx, err := c.parseInlineCriterion(name, token, what)
			if err != nil {
				return err
			}
			if idx >= 0 {
				rule.Criteria = append(rule.Criteria, idx)
			}
		}
	}

done:
	if !valid {
		c.warn("%s discarded: unresolved references", what)
		return nil
	}
	if len(rule.Groups) == 0 {
		c.warn("%s has no responses", what)
	}
	if _, isNew := c.defs.AddRule(rule); !isNew {
		c.warn("duplicate rule %s, keeping the first definition", name)
	}
	return nil
}

// nameList reads at least one name, then more on the same line, stopping at
// rule keywords.
func (c *compiler) nameList(what string) ([]string, error) {
	first, err := c.next(what)
	if err != nil {
		return nil, err
	}
	if ruleKeywords[state.Fold(first)] {
		c.tok.Unget()
		c.warn("%s: expected a name before %q", what, first)
		return nil, nil
	}
	names := []string{first}
	for c.tok.TokenWaiting() {
		token, err := c.next(what)
		if err != nil {
			return nil, err
		}
		if ruleKeywords[state.Fold(token)] {
			c.tok.Unget()
			break
		}
		names = append(names, token)
	}
	return names, nil
}

// parseInlineCriterion reads an anonymous KEY VALUE criterion in a rule body.
// Its name is RULE@n, apart from the NAME#i children of composite criteria.
func (c *compiler) parseInlineCriterion(rule, key, what string) (int, error) {
	value, err := c.next(what)
	if err != nil {
		return -1, err
	}
	if value == "}" {
		c.tok.Unget()
		c.warn("%s: criterion %q has no value", what, key)
		return -1, nil
	}
	c.anon++
	crit := types.Criteria{
		Name:   fmt.Sprintf("%s@%d", rule, c.anon),
		Key:    key,
		Value:  value,
		Weight: 1,
	}
	if err := c.parseCriterionModifiers(&crit, what); err != nil {
		return -1, err
	}
	idx, ok := c.addCriterion(crit)
	if !ok {
		return -1, nil
	}
	return idx, nil
}

// readInterval parses "min,max" or "value".
func readInterval(s string) types.Interval {
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			lo := matcher.Atof(s[:i])
			hi := matcher.Atof(s[i+1:])
			return types.Interval{Start: lo, Range: hi - lo}
		}
	}
	return types.Interval{Start: matcher.Atof(s)}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
