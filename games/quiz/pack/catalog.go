/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package pack

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed packs/*.yaml
var builtin embed.FS

// Catalog is a read-only set of packs keyed by id. It is never mutated after
// construction, so rooms share it without locking.
type Catalog struct {
	byID  map[string]Pack
	order []string
}

func newCatalog(packs []Pack) *Catalog {
	c := &Catalog{
		byID: make(map[string]Pack, len(packs)),
	}

	for _, p := range packs {
		if _, exists := c.byID[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		c.byID[p.ID] = p
	}

	sort.Strings(c.order)

	return c
}

// New builds a catalog from packs already in memory, validating each.
func New(packs ...Pack) (*Catalog, error) {
	seen := make(map[string]bool, len(packs))

	for i := range packs {
		if err := packs[i].validate(); err != nil {
			return nil, err
		}
		if seen[packs[i].ID] {
			return nil, fmt.Errorf("%w: duplicate pack id %q", ErrInvalidPack, packs[i].ID)
		}
		seen[packs[i].ID] = true
	}

	return newCatalog(packs), nil
}

// Default returns the packs compiled into the binary.
func Default() (*Catalog, error) {
	return Load(builtin, "packs")
}

// Load parses every .yaml or .yml file below dir in fsys as one pack.
func Load(fsys fs.FS, dir string) (*Catalog, error) {
	var packs []Pack

	err := fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(path.Ext(p))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}

		var pk Pack
		if err := yaml.Unmarshal(data, &pk); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}

		packs = append(packs, pk)

		return nil
	})
	if err != nil {
		return nil, err
	}

	c, err := New(packs...)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Merge returns a catalog holding both sets of packs. Packs from other
// replace packs with the same id in c.
func (c *Catalog) Merge(other *Catalog) *Catalog {
	packs := make([]Pack, 0, len(c.order)+len(other.order))

	for _, id := range c.order {
		packs = append(packs, c.byID[id])
	}
	for _, id := range other.order {
		packs = append(packs, other.byID[id])
	}

	return newCatalog(packs)
}

func (c *Catalog) Get(id string) (Pack, bool) {
	p, ok := c.byID[id]

	return p, ok
}

// First returns the pack with the lowest id, used when a room asks for a
// pack that does not exist.
func (c *Catalog) First() (Pack, bool) {
	if len(c.order) == 0 {
		return Pack{}, false
	}

	return c.byID[c.order[0]], true
}

func (c *Catalog) List() []Summary {
	out := make([]Summary, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id].Summary())
	}

	return out
}

func (c *Catalog) Len() int {
	return len(c.order)
}
