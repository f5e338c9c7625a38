package effects

import (
	"strings"

	"github.com/nathoo/responserules/engine/state"
	"github.com/nathoo/responserules/types"
)

// Precacher loads scene and sound resources ahead of use.
type Precacher interface {
	PrecacheScene(name string)
	PrecacheSound(name string)
}

// PrecacheStats counts the requests issued by Precache.
type PrecacheStats struct {
	Scenes int
	Sounds int
}

// Precache walks every response of defs. Scene values containing $gender are
// requested once per gender; speak values are requested as sounds.
func Precache(defs *state.Defs, p Precacher) PrecacheStats {
	var stats PrecacheStats
	if p == nil {
		return stats
	}
	for gi := range defs.Groups {
		for _, r := range defs.Groups[gi].Responses {
			switch r.Kind {
			case types.KindScene:
				for _, name := range ExpandGender(r.Value) {
					p.PrecacheScene(name)
					stats.Scenes++
				}
			case types.KindSpeak:
				p.PrecacheSound(r.Value)
				stats.Sounds++
			}
		}
	}
	return stats
}

// ExpandGender returns the male and female variants of a value containing
// $gender, or the value itself.
func ExpandGender(value string) []string {
	if !strings.Contains(value, GenderToken) {
		return []string{value}
	}
	return []string{
		strings.ReplaceAll(value, GenderToken, "male"),
		strings.ReplaceAll(value, GenderToken, "female"),
	}
}

// Recorder is a Precacher that remembers every request in order.
type Recorder struct {
	Scenes []string
	Sounds []string
}

func (r *Recorder) PrecacheScene(name string) { r.Scenes = append(r.Scenes, name) }
func (r *Recorder) PrecacheSound(name string) { r.Sounds = append(r.Sounds, name) }
