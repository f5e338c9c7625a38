// Package save implements JSON serialization of runtime selection state:
// rule enabled flags, group cursors and depletion, and the RNG position.
// Dictionaries themselves are never saved; they are rebuilt from script.
package save

import (
	"encoding/json"
	"fmt"

	"github.com/nathoo/responserules/engine/state"
)

// FormatVersion is written into every save.
const FormatVersion = 1

// RuleState is the saved state of one rule.
type RuleState struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// GroupState is the saved state of one response group.
type GroupState struct {
	Name         string `json:"name"`
	CurrentIndex int    `json:"current_index"`
	Generation   int    `json:"generation"`
	Enabled      bool   `json:"enabled"`
	Depletion    []int  `json:"depletion"`
}

// SaveData is the JSON-serializable save format.
type SaveData struct {
	Version     int          `json:"version"`
	Script      string       `json:"script"`
	RNGSeed     int64        `json:"rng_seed"`
	RNGPosition int64        `json:"rng_position"`
	Rules       []RuleState  `json:"rules"`
	Groups      []GroupState `json:"groups"`
}

// Snapshot captures the runtime state of defs.
func Snapshot(defs *state.Defs, script string, seed, position int64) *SaveData {
	sd := &SaveData{
		Version:     FormatVersion,
		Script:      script,
		RNGSeed:     seed,
		RNGPosition: position,
		Rules:       make([]RuleState, 0, len(defs.Rules)),
		Groups:      make([]GroupState, 0, len(defs.Groups)),
	}
	for _, r := range defs.Rules {
		sd.Rules = append(sd.Rules, RuleState{Name: r.Name, Enabled: r.Enabled})
	}
	for _, g := range defs.Groups {
		gs := GroupState{
			Name:         g.Name,
			CurrentIndex: g.CurrentIndex,
			Generation:   g.Generation,
			Enabled:      g.Enabled,
			Depletion:    make([]int, len(g.Responses)),
		}
		for i, r := range g.Responses {
			gs.Depletion[i] = r.Depletion
		}
		sd.Groups = append(sd.Groups, gs)
	}
	return sd
}

// Save serializes the runtime state of defs to JSON bytes.
func Save(defs *state.Defs, script string, seed, position int64) ([]byte, error) {
	return json.MarshalIndent(Snapshot(defs, script, seed, position), "", "  ")
}

// Load deserializes JSON bytes into SaveData.
func Load(data []byte) (*SaveData, error) {
	var sd SaveData
	if err := json.Unmarshal(data, &sd); err != nil {
		return nil, err
	}
	if sd.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported save version %d", sd.Version)
	}
	// Ensure slices are never nil after load.
	if sd.Rules == nil {
		sd.Rules = []RuleState{}
	}
	if sd.Groups == nil {
		sd.Groups = []GroupState{}
	}
	return &sd, nil
}

// ApplySave applies loaded save data onto defs. Entries are matched by
// handle; an entry whose name no longer matches the dictionary at that
// handle is skipped and reported.
func ApplySave(defs *state.Defs, sd *SaveData) []string {
	var skipped []string

	for i, rs := range sd.Rules {
		r, ok := defs.Rule(i)
		if !ok || state.Fold(r.Name) != state.Fold(rs.Name) {
			skipped = append(skipped, "rule "+rs.Name)
			continue
		}
		r.Enabled = rs.Enabled
	}

	for i, gs := range sd.Groups {
		g, ok := defs.Group(i)
		if !ok || state.Fold(g.Name) != state.Fold(gs.Name) || len(g.Responses) != len(gs.Depletion) {
			skipped = append(skipped, "response "+gs.Name)
			continue
		}
		g.CurrentIndex = gs.CurrentIndex
		if g.CurrentIndex < 0 || g.CurrentIndex >= len(g.Responses) {
			g.CurrentIndex = 0
		}
		g.Generation = gs.Generation
		g.Enabled = gs.Enabled
		for j := range g.Responses {
			g.Responses[j].Depletion = gs.Depletion[j]
		}
	}
	return skipped
}
