// Package loader compiles response-rule scripts into dictionaries and loads
// Lua facts scripts used to build criteria sets.
package loader

import (
	"fmt"
	"io/fs"
	"path"

	"go.uber.org/zap"

	"github.com/nathoo/responserules/engine/state"
)

// Loader reads scripts and their #includes from FS. Included names are
// resolved relative to Base.
type Loader struct {
	FS     fs.FS
	Base   string
	Logger *zap.Logger
}

// New returns a loader over fsys. A nil logger discards output.
func New(fsys fs.FS, base string, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{FS: fsys, Base: base, Logger: log}
}

// LoadFile reads name from the loader's file system and compiles it. When
// the file cannot be read, no dictionaries are returned.
func (l *Loader) LoadFile(name string) (*state.Defs, error) {
	if l.FS == nil {
		return nil, fmt.Errorf("loading %s: no file system", name)
	}
	data, err := fs.ReadFile(l.FS, name)
	if err != nil {
		return nil, fmt.Errorf("reading script %s: %w", name, err)
	}
	return l.LoadBuffer(name, string(data))
}

// LoadBuffer compiles text as a script called name. The returned Defs are
// always usable; a *LoadError reports fatal problems, after which the
// entries parsed so far are still present.
func (l *Loader) LoadBuffer(name, text string) (*state.Defs, error) {
	log := l.Logger
	if log == nil {
		log = zap.NewNop()
	}

	// 1. Tokenizer with the root buffer.
	tok := NewTokenizer()
	tok.MarkIncluded(path.Join(l.Base, name))
	tok.Push(name, text)

	// 2. Compile every buffer, following #include.
	le := &LoadError{}
	c := &compiler{
		tok:  tok,
		defs: state.NewDefs(),
		fsys: l.FS,
		base: l.Base,
		log:  log.With(zap.String("script", name)),
		diag: le,
	}
	c.run()

	// 3. Referential integrity.
	validate(c.defs, le, c.log)

	log.Info("script loaded",
		zap.String("script", name),
		zap.Int("rules", len(c.defs.Rules)),
		zap.Int("criteria", len(c.defs.Criteria)),
		zap.Int("responses", len(c.defs.Groups)),
		zap.Int("enumerations", len(c.defs.Enumerations)),
		zap.Int("warnings", len(le.Warnings)))

	if len(le.Errors) > 0 {
		return c.defs, le
	}
	return c.defs, nil
}
