// Package scenario holds the immutable catalog of game definitions a room
// can be created from.
package scenario

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/SGman98/mafiabot/internal/mafia"
)

//go:embed scenarios/*.json
var embedded embed.FS

// Catalog is a validated, read-only set of scenarios keyed by name.
type Catalog struct {
	byName map[string]mafia.Scenario
	names  []string
}

// New validates scenarios and builds a catalog. Any invalid entry fails the
// whole catalog.
func New(scenarios ...mafia.Scenario) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]mafia.Scenario, len(scenarios))}
	for _, sc := range scenarios {
		if err := Validate(sc); err != nil {
			return nil, err
		}
		if _, dup := c.byName[sc.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate scenario %q", mafia.ErrValidation, sc.Name)
		}
		c.byName[sc.Name] = sc.Clone()
		c.names = append(c.names, sc.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

// Default loads the scenarios embedded in the binary.
func Default() (*Catalog, error) {
	return Load(embedded, "scenarios/*.json")
}

// Load decodes every file matching pattern in fsys. Each file holds either
// a single scenario object or an array of them.
func Load(fsys fs.FS, pattern string) (*Catalog, error) {
	scenarios, err := Decode(fsys, pattern)
	if err != nil {
		return nil, err
	}
	return New(scenarios...)
}

// Decode reads scenarios from fsys without validating them.
func Decode(fsys fs.FS, pattern string) ([]mafia.Scenario, error) {
	files, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("globbing %s: %w", pattern, err)
	}

	var out []mafia.Scenario
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		trimmed := strings.TrimSpace(string(data))
		if strings.HasPrefix(trimmed, "[") {
			var list []mafia.Scenario
			if err := json.Unmarshal(data, &list); err != nil {
				return nil, fmt.Errorf("%w: decoding %s: %v", mafia.ErrValidation, path.Base(name), err)
			}
			out = append(out, list...)
			continue
		}
		var sc mafia.Scenario
		if err := json.Unmarshal(data, &sc); err != nil {
			return nil, fmt.Errorf("%w: decoding %s: %v", mafia.ErrValidation, path.Base(name), err)
		}
		out = append(out, sc)
	}
	return out, nil
}

// Merge returns a catalog holding the scenarios of c plus extra. Extra
// entries replace same-named ones.
func (c *Catalog) Merge(extra ...mafia.Scenario) (*Catalog, error) {
	byName := make(map[string]mafia.Scenario, len(c.byName)+len(extra))
	for name, sc := range c.byName {
		byName[name] = sc
	}
	for _, sc := range extra {
		byName[sc.Name] = sc
	}
	all := make([]mafia.Scenario, 0, len(byName))
	for _, sc := range byName {
		all = append(all, sc)
	}
	return New(all...)
}

// Find returns a copy of the named scenario.
func (c *Catalog) Find(name string) (mafia.Scenario, error) {
	sc, ok := c.byName[name]
	if !ok {
		return mafia.Scenario{}, fmt.Errorf("%w: scenario %q", mafia.ErrNotFound, name)
	}
	return sc.Clone(), nil
}

// List returns copies of all scenarios sorted by name.
func (c *Catalog) List() []mafia.Scenario {
	out := make([]mafia.Scenario, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.byName[name].Clone())
	}
	return out
}

// Validate checks a single scenario definition.
func Validate(sc mafia.Scenario) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: scenario %q: %s", mafia.ErrValidation, sc.Name, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(sc.Name) == "" {
		return fmt.Errorf("%w: scenario name is required", mafia.ErrValidation)
	}
	if len(sc.Roles) == 0 {
		return fail("no roles defined")
	}

	roles := make(map[mafia.RoleType]bool, len(sc.Roles))
	for _, r := range sc.Roles {
		if !r.Type.Valid() {
			return fail("unknown role type %q", r.Type)
		}
		if roles[r.Type] {
			return fail("role type %q defined twice", r.Type)
		}
		roles[r.Type] = true
	}
	for _, required := range []mafia.RoleType{mafia.RoleKiller, mafia.RoleInnocent} {
		if !roles[required] {
			return fail("a %s role is required", required)
		}
	}

	seen := make(map[mafia.StageType]bool, len(sc.Stages))
	for _, st := range sc.Stages {
		if !st.Type.Valid() {
			return fail("unknown stage type %q", st.Type)
		}
		if seen[st.Type] {
			return fail("stage type %q defined twice", st.Type)
		}
		seen[st.Type] = true

		if len(st.Roles) == 0 {
			return fail("stage %q has no voter roles", st.Type)
		}
		if len(st.Targets) == 0 {
			return fail("stage %q has no target roles", st.Type)
		}
		for _, r := range st.Roles {
			if !roles[r] {
				return fail("stage %q references voter role %q missing from the role catalog", st.Type, r)
			}
		}
		for _, r := range st.Targets {
			if !roles[r] {
				return fail("stage %q references target role %q missing from the role catalog", st.Type, r)
			}
		}
		if st.DurationSeconds < 0 {
			return fail("stage %q has a negative duration", st.Type)
		}
	}
	if !seen[mafia.StageVote] {
		return fail("a %s stage is required", mafia.StageVote)
	}
	return nil
}
