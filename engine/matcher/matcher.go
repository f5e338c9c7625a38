// Package matcher compiles criterion value-specs into comparison predicates
// and evaluates live fact values against them.
//
// A value-spec is a comma-separated list of clauses. A clause starting with
// '>' or '<' (optionally followed by '=') is a range bound; anything else is
// an equality literal, negated by a leading '!'. "[Group::Key]" literals are
// replaced by their enumeration value at compile time.
package matcher

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nathoo/responserules/engine/state"
	"github.com/nathoo/responserules/types"
)

// Compile parses value into a Matcher. enums may be nil.
func Compile(value string, enums types.Enums, log *zap.Logger) types.Matcher {
	if log == nil {
		log = zap.NewNop()
	}

	var m types.Matcher
	var gt, lt, eq, nt, equality bool
	var raw strings.Builder

	flush := func(atComma bool) {
		rawToken := raw.String()
		raw.Reset()
		token := resolveToken(rawToken, enums, log)

		switch {
		case gt:
			m.UseMin = true
			m.MinEquals = eq
			m.MinVal = Atof(token)
			m.IsNumeric = true
		case lt:
			m.UseMax = true
			m.MaxEquals = eq
			m.MaxVal = Atof(token)
			m.IsNumeric = true
		default:
			if atComma {
				log.Warn("equality clause followed by comma; only range clauses may be combined",
					zap.String("value", value))
			}
			m.NotEqual = nt
			if !m.UseMin && !m.UseMax {
				m.IsNumeric = AppearsToBeANumber(token)
			}
			m.Token = token
			equality = true
		}
		if !equality {
			m.Token = token
		}
		m.Raw = rawToken
		gt, lt, eq, nt = false, false, false, false
	}

	for i := 0; i < len(value); i++ {
		switch c := value[i]; c {
		case '>':
			if lt {
				log.Warn("clause mixes '<' and '>'", zap.String("value", value))
			}
			gt = true
		case '<':
			if gt {
				log.Warn("clause mixes '<' and '>'", zap.String("value", value))
			}
			lt = true
		case '=':
			eq = true
		case '!':
			nt = true
		case ',':
			flush(true)
		default:
			raw.WriteByte(c)
		}
	}
	flush(false)

	m.Valid = true
	return m
}

// resolveToken substitutes enumeration references. Unresolved references
// fall back to the literal text.
func resolveToken(raw string, enums types.Enums, log *zap.Logger) string {
	if !strings.HasPrefix(raw, "[") {
		return raw
	}
	if enums != nil {
		if v, ok := enums.LookupEnumeration(raw); ok {
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	log.Warn("unresolved enumeration reference", zap.String("token", raw))
	return raw
}

// Compare tests a live fact value against m.
func Compare(m types.Matcher, live string, enums types.Enums) bool {
	if !m.Valid {
		return false
	}

	if !m.IsNumeric {
		same := state.Fold(live) == state.Fold(m.Token)
		return same != m.NotEqual
	}

	v := Atof(live)
	if strings.HasPrefix(live, "[") && enums != nil {
		if ev, ok := enums.LookupEnumeration(live); ok {
			v = ev
		}
	}

	bounded := false
	if m.UseMin {
		if m.MinEquals {
			if v < m.MinVal {
				return false
			}
		} else if v <= m.MinVal {
			return false
		}
		bounded = true
	}
	if m.UseMax {
		if m.MaxEquals {
			if v > m.MaxVal {
				return false
			}
		} else if v >= m.MaxVal {
			return false
		}
		bounded = true
	}
	if bounded {
		return true
	}

	// An empty value never equals a number, "0" included.
	same := live != "" && v == Atof(m.Token)
	return same != m.NotEqual
}

// AppearsToBeANumber reports whether s parses to a nonzero number or is made
// only of '0' digits.
func AppearsToBeANumber(s string) bool {
	if Atof(s) != 0 {
		return true
	}
	for i := 0; i < len(s); i++ {
		if s[i] != '0' {
			return false
		}
	}
	return true
}

// Atof parses the longest numeric prefix of s, returning 0 when there is none.
func Atof(s string) float64 {
	s = strings.TrimLeft(s, " \t\r\n")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := 0
	for end < len(s) && isDigit(s[end]) {
		end++
		digits++
	}
	if end < len(s) && s[end] == '.' {
		end++
		for end < len(s) && isDigit(s[end]) {
			end++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}
	if end < len(s) && (s[end] == 'e' || s[end] == 'E') {
		exp := end + 1
		if exp < len(s) && (s[exp] == '+' || s[exp] == '-') {
			exp++
		}
		if exp < len(s) && isDigit(s[exp]) {
			for exp < len(s) && isDigit(s[exp]) {
				exp++
			}
			end = exp
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil {
		return 0
	}
	return v
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
