// Package langs loads a language registry from a TOML file. The offline
// CLI uses it in place of the languages table.
package langs

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/felixcuello/cp-server/internal/judge"
)

// Registry holds the configured languages keyed by ID and by name.
type Registry struct {
	byID   map[int64]judge.Language
	byName map[string]judge.Language
	all    []judge.Language
}

type registryFile struct {
	Languages []languageEntry `toml:"languages"`
}

type languageEntry struct {
	ID                int64  `toml:"id"`
	Name              string `toml:"name"`
	CompilerBinary    string `toml:"compiler_binary"`
	CompilerFlags     string `toml:"compiler_flags"`
	InterpreterBinary string `toml:"interpreter_binary"`
	InterpreterFlags  string `toml:"interpreter_flags"`
	MemoryLimitKB     int    `toml:"memory_limit_kb"`
	TimeLimitSec      int    `toml:"time_limit_sec"`
	Extension         string `toml:"extension"`
}

// Load reads and validates a registry file. Every entry must satisfy the
// compiler-xor-interpreter invariant and carry a unique ID and name.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read language registry: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from raw TOML.
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse language registry: %w", err)
	}
	if len(file.Languages) == 0 {
		return nil, fmt.Errorf("language registry defines no languages")
	}

	reg := &Registry{
		byID:   make(map[int64]judge.Language, len(file.Languages)),
		byName: make(map[string]judge.Language, len(file.Languages)),
	}
	for _, entry := range file.Languages {
		lang := judge.Language{
			ID:                entry.ID,
			Name:              entry.Name,
			CompilerBinary:    entry.CompilerBinary,
			CompilerFlags:     entry.CompilerFlags,
			InterpreterBinary: entry.InterpreterBinary,
			InterpreterFlags:  entry.InterpreterFlags,
			MemoryLimitKB:     entry.MemoryLimitKB,
			TimeLimitSec:      entry.TimeLimitSec,
			Extension:         entry.Extension,
		}
		if lang.Name == "" {
			return nil, fmt.Errorf("language %d has no name", lang.ID)
		}
		if err := lang.Validate(); err != nil {
			return nil, err
		}
		if _, dup := reg.byID[lang.ID]; dup {
			return nil, fmt.Errorf("duplicate language id %d", lang.ID)
		}
		if _, dup := reg.byName[lang.Name]; dup {
			return nil, fmt.Errorf("duplicate language name %q", lang.Name)
		}
		reg.byID[lang.ID] = lang
		reg.byName[lang.Name] = lang
		reg.all = append(reg.all, lang)
	}
	return reg, nil
}

func (r *Registry) ByID(id int64) (judge.Language, bool) {
	lang, ok := r.byID[id]
	return lang, ok
}

func (r *Registry) ByName(name string) (judge.Language, bool) {
	lang, ok := r.byName[name]
	return lang, ok
}

// All returns the languages in file order.
func (r *Registry) All() []judge.Language {
	return r.all
}
