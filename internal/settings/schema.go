// Package settings implements the hierarchical, per-character settings
// surface from spec §4.4: a schema-defined settings map with change
// fan-out, dependency clauses, and sync/import/export/reset operations.
package settings

// Type enumerates the recognized setting kinds (spec §3 "Setting").
type Type string

const (
	TypeCheckbox Type = "checkbox"
	TypeText     Type = "text"
	TypeNumber   Type = "number"
	TypeColor    Type = "color"
	TypeSelect   Type = "select"
	TypeSlider   Type = "slider"
	TypeTemplate Type = "template"
)

// DependencyMode selects AND vs OR evaluation across a dependency clause.
type DependencyMode string

const (
	DependencyAll DependencyMode = "all"
	DependencyAny DependencyMode = "any"
)

// Dependency is one entry in a setting's dependency clause: the named
// setting must (or must not, if Equals is a checkbox false) hold Equals.
type Dependency struct {
	Key    string
	Equals any
}

// DependencyClause groups dependencies with an evaluation mode. A bare
// AND list (spec: "either an array (AND)") is DependencyClause{Mode: DependencyAll}.
type DependencyClause struct {
	Mode  DependencyMode
	Items []Dependency
}

// Option is one entry in a select-type setting's option list.
type Option struct {
	Value string
	Label string
}

// Definition describes one schema entry: type, default, label, and the
// optional dependency/options/template-variable metadata spec §4.4 names.
type Definition struct {
	Key             string
	Type            Type
	Default         any
	Label           string
	Help            string
	Dependencies    *DependencyClause
	Options         []Option
	TemplateVars    []string // recognized {type:'variable'} keys for template settings
	NotImplemented  bool
}

// Group is a named collection of setting definitions, e.g. "dungeonTracker".
type Group struct {
	Key   string
	Label string
	Defs  []Definition
}

// Schema is the full recognized settings surface, ordered by group.
type Schema struct {
	Groups []Group
}

// Lookup returns the definition for key, or (nil, false) if unrecognized.
func (s Schema) Lookup(key string) (Definition, bool) {
	for _, g := range s.Groups {
		for _, d := range g.Defs {
			if d.Key == key {
				return d, true
			}
		}
	}
	return Definition{}, false
}

// Defaults returns the key -> default-value map for every recognized
// setting in the schema, used to seed a new character and to implement
// Reset (spec §4.4 "reset restores schema defaults").
func (s Schema) Defaults() map[string]any {
	out := make(map[string]any)
	for _, g := range s.Groups {
		for _, d := range g.Defs {
			out[d.Key] = d.Default
		}
	}
	return out
}

// DefaultSchema is the built-in recognized-settings surface. It is small
// relative to the real tool's dozens of features but covers one setting
// per feature wired in this repo, exercising every Type and both
// dependency modes (spec §4.4).
func DefaultSchema() Schema {
	return Schema{Groups: []Group{
		{
			Key:   "appearance",
			Label: "Appearance",
			Defs: []Definition{
				{Key: "color_accent", Type: TypeColor, Default: "#6c8ebf", Label: "Accent color"},
				{Key: "color_text_primary", Type: TypeColor, Default: "#e6e6e6", Label: "Primary text color"},
			},
		},
		{
			Key:   "dungeonTracker",
			Label: "Dungeon Tracker",
			Defs: []Definition{
				{Key: "dungeonTracker_enabled", Type: TypeCheckbox, Default: true, Label: "Enable dungeon tracker"},
				{
					Key:     "dungeonTracker_showHibernationWarning",
					Type:    TypeCheckbox,
					Default: true,
					Label:   "Warn when tab was hidden during a run",
					Dependencies: &DependencyClause{
						Mode:  DependencyAll,
						Items: []Dependency{{Key: "dungeonTracker_enabled", Equals: true}},
					},
				},
			},
		},
		{
			Key:   "enhancementTracker",
			Label: "Enhancement Tracker",
			Defs: []Definition{
				{Key: "enhancementTracker_enabled", Type: TypeCheckbox, Default: true, Label: "Enable enhancement tracker"},
				{Key: "enhancementTracker_defaultProtectFrom", Type: TypeNumber, Default: float64(0), Label: "Default protect-from level"},
			},
		},
		{
			Key:   "profit",
			Label: "Task Profit",
			Defs: []Definition{
				{
					Key:     "profit_pricingMode",
					Type:    TypeSelect,
					Default: "ask",
					Label:   "Pricing mode for profit context",
					Options: []Option{{Value: "ask", Label: "Ask price"}, {Value: "bid", Label: "Bid price"}},
				},
				{
					Key:     "profit_networthPricingMode",
					Type:    TypeSelect,
					Default: "bid",
					Label:   "Pricing mode for networth context",
					Options: []Option{{Value: "ask", Label: "Ask price"}, {Value: "bid", Label: "Bid price"}},
				},
			},
		},
		{
			Key:   "chat",
			Label: "Chat Annotations",
			Defs: []Definition{
				{
					Key:     "chat_dungeonAnnotationTemplate",
					Type:    TypeTemplate,
					Default: []TemplateFragment{{Type: "text", Value: "Cleared "}, {Type: "variable", Key: "dungeonName", Label: "Dungeon name"}},
					Label:   "Dungeon-clear chat annotation",
					TemplateVars: []string{"dungeonName", "duration", "team"},
					Dependencies: &DependencyClause{
						Mode: DependencyAny,
						Items: []Dependency{
							{Key: "dungeonTracker_enabled", Equals: true},
							{Key: "enhancementTracker_enabled", Equals: true},
						},
					},
				},
			},
		},
	}}
}

// TemplateFragment is one element of a template-type setting's value array
// (spec §4.4 "Rendered by combining fragments").
type TemplateFragment struct {
	Type  string // "text" | "variable"
	Value string // populated when Type == "text"
	Key   string // populated when Type == "variable"
	Label string
}
