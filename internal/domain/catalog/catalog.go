// Package catalog holds the course-level skill definitions that assessments
// refer to.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Sentinel errors for this package.
var (
	ErrUnknownSkill   = errors.New("unknown skill")
	ErrInvalidCatalog = errors.New("invalid skill catalog")
)

var validate = validator.New()

// Skill is one course-level skill definition.
type Skill struct {
	ID          string `yaml:"id" json:"id" validate:"required"`
	Name        string `yaml:"name" json:"name" validate:"required"`
	Course      string `yaml:"course" json:"course"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// document is the on-disk shape.
type document struct {
	Skills []Skill `yaml:"skills" validate:"dive"`
}

// Catalog is an immutable set of skills keyed by id. An empty catalog
// accepts any skill id.
type Catalog struct {
	byID  map[string]Skill
	order []string
}

// New builds a catalog, rejecting blank fields and duplicate ids.
func New(skills ...Skill) (*Catalog, error) {
	if err := validate.Struct(document{Skills: skills}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	c := &Catalog{byID: make(map[string]Skill, len(skills))}
	for _, s := range skills {
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate skill id %q", ErrInvalidCatalog, s.ID)
		}
		c.byID[s.ID] = s
		c.order = append(c.order, s.ID)
	}
	return c, nil
}

// Parse reads a YAML catalog:
//
//	skills:
//	  - id: teamwork
//	    name: Teamwork
//	    course: civics-7
func Parse(r io.Reader) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	return New(doc.Skills...)
}

// Load reads a YAML catalog from path. An empty path yields an empty,
// permissive catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return New()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skill catalog: %w", err)
	}
	return Parse(bytes.NewReader(b))
}

// Lookup returns the skill with id. In an empty catalog every id resolves
// to a skill named after itself.
func (c *Catalog) Lookup(id string) (Skill, error) {
	if len(c.byID) == 0 {
		return Skill{ID: id, Name: id}, nil
	}
	s, ok := c.byID[id]
	if !ok {
		return Skill{}, fmt.Errorf("%w: %q", ErrUnknownSkill, id)
	}
	return s, nil
}

// Name returns the display name for id, falling back to id itself.
func (c *Catalog) Name(id string) string {
	if s, ok := c.byID[id]; ok {
		return s.Name
	}
	return id
}

// Skills returns the definitions in file order.
func (c *Catalog) Skills() []Skill {
	out := make([]Skill, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Course returns the skills of one course, sorted by id.
func (c *Catalog) Course(course string) []Skill {
	var out []Skill
	for _, s := range c.byID {
		if s.Course == course {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of skills.
func (c *Catalog) Len() int { return len(c.byID) }
