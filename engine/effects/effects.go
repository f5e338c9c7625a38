// Package effects turns chosen responses into output lines and walks rule
// sets for the resources they will play.
package effects

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nathoo/responserules/types"
)

// GenderToken is replaced by "male" and "female" when precaching scenes.
const GenderToken = "$gender"

// Render returns the output lines for a match: the response itself, then
// its playback parameters and contexts when present.
func Render(m types.Match) []string {
	r := m.Response
	var output []string

	switch r.Kind {
	case types.KindPrint:
		output = append(output, r.Value)
	default:
		output = append(output, fmt.Sprintf("[%s] %s", kindName(r.Kind), r.Value))
	}

	if params := FormatParams(r.Params); params != "" {
		output = append(output, "  "+params)
	}
	for _, ctx := range m.Contexts {
		target := "speaker"
		if m.ApplyContextToWorld {
			target = "world"
		}
		output = append(output, fmt.Sprintf("  context %s -> %s", ctx, target))
	}
	return output
}

// Interpolate replaces $name tokens in value with facts from set.
// $gender falls back to gender when the set has no such fact.
func Interpolate(value string, set types.CriteriaSet, gender string) string {
	if !strings.Contains(value, "$") {
		return value
	}
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] != '$' {
			b.WriteByte(value[i])
			continue
		}
		j := i + 1
		for j < len(value) && isIdent(value[j]) {
			j++
		}
		name := value[i+1 : j]
		if name == "" {
			b.WriteByte('$')
			continue
		}
		repl, ok := lookup(set, name)
		if !ok && name == "gender" && gender != "" {
			repl, ok = gender, true
		}
		if !ok {
			b.WriteString(value[i:j])
		} else {
			b.WriteString(repl)
		}
		i = j - 1
	}
	return b.String()
}

// FormatParams renders the explicitly set playback parameters.
func FormatParams(p types.ResponseParams) string {
	var parts []string
	if p.HasPreDelay {
		parts = append(parts, "predelay "+formatInterval(p.PreDelay))
	}
	if p.HasDelay {
		parts = append(parts, "delay "+formatInterval(p.Delay))
	}
	if p.HasRespeakDelay {
		parts = append(parts, "respeakdelay "+formatInterval(p.RespeakDelay))
	}
	if p.HasWeaponDelay {
		parts = append(parts, "weapondelay "+formatInterval(p.WeaponDelay))
	}
	if p.HasOdds {
		parts = append(parts, fmt.Sprintf("odds %d", p.Odds))
	}
	if p.HasSoundLevel {
		parts = append(parts, "soundlevel "+p.SoundLevel)
	}
	if p.SpeakOnce {
		parts = append(parts, "speakonce")
	}
	if p.NoScene {
		parts = append(parts, "noscene")
	}
	if p.StopOnNonIdle {
		parts = append(parts, "stop_on_nonidle")
	}
	return strings.Join(parts, " ")
}

func formatInterval(iv types.Interval) string {
	if iv.Range == 0 {
		return seconds(iv.Start)
	}
	return seconds(iv.Start) + "," + seconds(iv.Start+iv.Range)
}

// seconds formats a duration rounded to milliseconds.
func seconds(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}

func kindName(k types.ResponseKind) string {
	if k == types.KindNone {
		return "none"
	}
	return string(k)
}

func lookup(set types.CriteriaSet, name string) (string, bool) {
	if set == nil {
		return "", false
	}
	i := set.Find(name)
	if i < 0 {
		return "", false
	}
	return set.Value(i)
}

func isIdent(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
