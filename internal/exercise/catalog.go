package exercise

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/motion_assessment/internal/events"
)

// Exercise is one station of the assessment.
type Exercise struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Template string   `yaml:"template" json:"template"`
	Actions  []string `yaml:"actions" json:"actions"`
	UsesLeg  bool     `yaml:"uses_leg" json:"usesLeg"`
}

// Category groups exercises. Categories are completed in order.
type Category struct {
	ID        string     `yaml:"id" json:"id"`
	Name      string     `yaml:"name" json:"name"`
	Exercises []Exercise `yaml:"exercises" json:"exercises"`
}

type Catalog struct {
	Categories []Category `yaml:"categories" json:"categories"`
}

var (
	repActions  = []string{"Rep Began", "Max Knee Flexion", "Max Knee Extension", "Rep Ended"}
	holdActions = []string{"Hold Began", "Holding", "Hold Ended"}
)

// DefaultCatalog is the standard three-category assessment.
func DefaultCatalog() Catalog {
	return Catalog{Categories: []Category{
		{ID: "mobility", Name: "Mobility", Exercises: []Exercise{
			{ID: "knee_flexion", Name: "Knee Flexion & Extension", Template: "knee", Actions: repActions, UsesLeg: true},
			{ID: "lunge_stretch", Name: "Lunge Stretch", Template: "lunge_stretch", Actions: holdActions, UsesLeg: true},
			{ID: "knee_to_wall", Name: "Knee to Wall", Template: "knee", Actions: []string{"Rep Began", "Max Knee Flexion", "Rep Ended"}, UsesLeg: true},
		}},
		{ID: "strength", Name: "Strength", Exercises: []Exercise{
			{ID: "squats", Name: "Squats", Template: "squat", Actions: []string{"Full Squat"}},
			{ID: "lunges", Name: "Lunges", Template: "lunge", Actions: []string{"Full Lunge"}},
		}},
		{ID: "endurance", Name: "Endurance", Exercises: []Exercise{
			{ID: "plank_hold", Name: "Plank Hold", Template: "plank", Actions: []string{"Hold Started", "Holding", "Hold Ended"}},
			{ID: "sprint", Name: "50m Sprint", Template: "run", Actions: []string{"Sprint Started", "Sprinting", "Sprint Ended"}},
			{ID: "shuttle_run", Name: "5-10-5 Shuttle Run", Template: "run", Actions: []string{"Run Started", "Sprinting", "Direction Changed", "Sprint Ended"}},
		}},
	}}
}

// LoadCatalog reads a YAML catalog from path.
func LoadCatalog(path string) (Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(b)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(b []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	for ci := range c.Categories {
		for ei := range c.Categories[ci].Exercises {
			e := &c.Categories[ci].Exercises[ei]
			if e.Template == "" {
				e.Template = events.DefaultTemplates[e.ID]
			}
			if e.Name == "" {
				e.Name = e.ID
			}
		}
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Validate checks ids are unique and templates exist.
func (c Catalog) Validate() error {
	if len(c.Categories) == 0 {
		return fmt.Errorf("catalog has no categories")
	}
	seen := make(map[string]bool)
	for _, cat := range c.Categories {
		if cat.ID == "" {
			return fmt.Errorf("catalog category without id")
		}
		if len(cat.Exercises) == 0 {
			return fmt.Errorf("category %s has no exercises", cat.ID)
		}
		for _, e := range cat.Exercises {
			if e.ID == "" {
				return fmt.Errorf("category %s: exercise without id", cat.ID)
			}
			if seen[e.ID] {
				return fmt.Errorf("duplicate exercise id %s", e.ID)
			}
			seen[e.ID] = true
			if e.Template != "" && !events.HasTemplate(e.Template) {
				return fmt.Errorf("exercise %s: unknown template %q", e.ID, e.Template)
			}
		}
	}
	return nil
}

// Lookup finds an exercise and the index of its category.
func (c Catalog) Lookup(id string) (Exercise, int, bool) {
	for ci, cat := range c.Categories {
		for _, e := range cat.Exercises {
			if e.ID == id {
				return e, ci, true
			}
		}
	}
	return Exercise{}, -1, false
}
