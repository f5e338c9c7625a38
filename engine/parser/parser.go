// Package parser converts query lines into criteria sets.
// Intentionally dumb: whitespace separated key=value pairs, nothing more.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nathoo/responserules/engine/state"
)

// Fact is one parsed query term.
type Fact struct {
	Name   string
	Value  string
	Weight float64
}

// Parse splits a line such as `concept=TLK_HURT health=10 who:alyx@2` into
// facts. Quoted values may contain spaces. A bare word is a fact with value "1".
func Parse(input string) ([]Fact, error) {
	words, err := split(input)
	if err != nil {
		return nil, err
	}

	var facts []Fact
	for _, w := range words {
		f, err := parseTerm(w)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, nil
}

// ParseFacts parses input and appends the terms to a new fact set.
func ParseFacts(input string) (*state.Facts, error) {
	terms, err := Parse(input)
	if err != nil {
		return nil, err
	}
	facts := state.NewFacts()
	for _, f := range terms {
		facts.AppendWeighted(f.Name, f.Value, f.Weight)
	}
	return facts, nil
}

func parseTerm(w string) (Fact, error) {
	sep := strings.IndexAny(w, "=:")
	if sep < 0 {
		return Fact{Name: w, Value: "1", Weight: 1}, nil
	}
	if sep == 0 {
		return Fact{}, fmt.Errorf("term %q has no name", w)
	}

	f := Fact{Name: w[:sep], Value: w[sep+1:], Weight: 1}
	if at := strings.LastIndexByte(f.Value, '@'); at >= 0 {
		weight, err := strconv.ParseFloat(f.Value[at+1:], 64)
		if err != nil {
			return Fact{}, fmt.Errorf("term %q: bad weight %q", w, f.Value[at+1:])
		}
		f.Value = f.Value[:at]
		f.Weight = weight
	}
	f.Value = strings.Trim(f.Value, `"`)
	return f, nil
}

// split breaks input on whitespace, keeping double-quoted runs together.
func split(input string) ([]string, error) {
	var words []string
	var cur strings.Builder
	inQuote := false
	for _, r := range input {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case !inQuote && (r == ' ' || r == '\t'):
			if cur.Len() > 0 {
				words = append(words, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote in %q", input)
	}
	if cur.Len() > 0 {
		words = append(words, cur.String())
	}
	return words, nil
}
