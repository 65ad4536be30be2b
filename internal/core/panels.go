package core

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// PanelKind selects how a panel presents its endpoint.
type PanelKind string

const (
	PanelTable    PanelKind = "table"    // array of records, columns inferred
	PanelSections PanelKind = "sections" // nested object tree
	PanelAction   PanelKind = "action"   // trigger, reply shown as status
	PanelEditor   PanelKind = "editor"   // JSON document loaded into the editor
	PanelDownload PanelKind = "download" // endpoint body saved as a file
)

// Valid reports whether k is a known kind.
func (k PanelKind) Valid() bool {
	switch k {
	case PanelTable, PanelSections, PanelAction, PanelEditor, PanelDownload:
		return true
	}
	return false
}

// Panel is one block of the dashboard bound to an adapter endpoint.
type Panel struct {
	Key      string    `yaml:"key" json:"key"`
	Group    string    `yaml:"group" json:"group"`
	Title    string    `yaml:"title" json:"title"`
	Kind     PanelKind `yaml:"kind" json:"kind"`
	Endpoint string    `yaml:"endpoint" json:"endpoint"`

	// Message replaces the default in-progress status text.
	Message string `yaml:"message,omitempty" json:"message,omitempty"`

	// Filename and MIME name download panel files.
	Filename string `yaml:"filename,omitempty" json:"filename,omitempty"`
	MIME     string `yaml:"mime,omitempty" json:"mime,omitempty"`

	// PushEndpoint receives the editor document for editor panels.
	PushEndpoint string `yaml:"push_endpoint,omitempty" json:"push_endpoint,omitempty"`
}

// Validate checks a single panel definition.
func (p Panel) Validate() error {
	var errs []string
	if strings.TrimSpace(p.Key) == "" {
		errs = append(errs, "key is required")
	}
	if !p.Kind.Valid() {
		errs = append(errs, fmt.Sprintf("unknown kind %q", p.Kind))
	}
	if !strings.HasPrefix(p.Endpoint, "/") {
		errs = append(errs, fmt.Sprintf("endpoint %q must start with /", p.Endpoint))
	}
	if p.PushEndpoint != "" && !strings.HasPrefix(p.PushEndpoint, "/") {
		errs = append(errs, fmt.Sprintf("push_endpoint %q must start with /", p.PushEndpoint))
	}
	if len(errs) > 0 {
		return fmt.Errorf("panel %q: %s", p.Key, strings.Join(errs, "; "))
	}
	return nil
}

// DefaultPanels mirrors the adapter's own web pages.
func DefaultPanels() []Panel {
	return []Panel{
		{Key: "status", Group: "Adapter", Title: "Status", Kind: PanelSections, Endpoint: "/api/v1/status"},
		{Key: "devices", Group: "Bus", Title: "Devices", Kind: PanelTable, Endpoint: "/api/v1/devices"},
		{Key: "devices-scan", Group: "Bus", Title: "Scan devices", Kind: PanelAction, Endpoint: "/api/v1/devices/scan", Message: "Scanning..."},
		{Key: "devices-scan-full", Group: "Bus", Title: "Full scan", Kind: PanelAction, Endpoint: "/api/v1/devices/scan/full", Message: "Scanning..."},
		{Key: "values", Group: "Bus", Title: "Values", Kind: PanelTable, Endpoint: "/api/v1/values"},
		{Key: "counter", Group: "Statistics", Title: "Counter", Kind: PanelSections, Endpoint: "/api/v1/statistics/counter"},
		{Key: "timing", Group: "Statistics", Title: "Timing", Kind: PanelSections, Endpoint: "/api/v1/statistics/timing"},
		{Key: "statistics-reset", Group: "Statistics", Title: "Reset statistics", Kind: PanelAction, Endpoint: "/api/v1/statistics/reset"},
		{
			Key: "commands", Group: "Commands", Title: "Commands", Kind: PanelEditor,
			Endpoint: "/api/v1/commands", PushEndpoint: "/api/v1/commands/insert",
			Filename: "commands.json", MIME: "application/json",
		},
		{Key: "commands-save", Group: "Commands", Title: "Save to flash", Kind: PanelAction, Endpoint: "/api/v1/commands/save"},
		{Key: "commands-load", Group: "Commands", Title: "Load from flash", Kind: PanelAction, Endpoint: "/api/v1/commands/load"},
		{Key: "logs", Group: "Adapter", Title: "Logs", Kind: PanelDownload, Endpoint: "/api/v1/logs", Filename: "logs.txt"},
	}
}

// panelFile is the YAML layout of a panels file.
type panelFile struct {
	Panels []Panel `yaml:"panels"`
}

// LoadPanelsFile reads panel definitions from a YAML file.
func LoadPanelsFile(path string) ([]Panel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read panels file: %w", err)
	}
	return ParsePanels(data)
}

// ParsePanels decodes and validates a YAML panel list. Keys must be unique.
func ParsePanels(data []byte) ([]Panel, error) {
	var pf panelFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse panels: %w", err)
	}
	if len(pf.Panels) == 0 {
		return nil, fmt.Errorf("parse panels: no panels defined")
	}
	seen := make(map[string]bool, len(pf.Panels))
	for _, p := range pf.Panels {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.Key] {
			return nil, fmt.Errorf("parse panels: duplicate key %q", p.Key)
		}
		seen[p.Key] = true
	}
	return pf.Panels, nil
}

// PanelRegistry holds the dashboard's panels in registration order.
type PanelRegistry struct {
	mu     sync.RWMutex
	order  []string
	panels map[string]Panel
}

// NewPanelRegistry registers panels in order. It panics on a duplicate key
// or invalid panel, like Register.
func NewPanelRegistry(panels ...Panel) *PanelRegistry {
	r := &PanelRegistry{panels: make(map[string]Panel)}
	for _, p := range panels {
		r.Register(p)
	}
	return r
}

// Register adds a panel. Panics if the key is taken or the panel is invalid.
func (r *PanelRegistry) Register(p Panel) {
	if err := p.Validate(); err != nil {
		panic(err.Error())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.panels[p.Key]; exists {
		panic(fmt.Sprintf("panel already registered: %s", p.Key))
	}
	if p.Title == "" {
		p.Title = p.Key
	}
	r.panels[p.Key] = p
	r.order = append(r.order, p.Key)
}

// Get returns a panel by key.
func (r *PanelRegistry) Get(key string) (Panel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.panels[key]
	return p, ok
}

// Lookup returns the panel for key if it has the wanted kind.
func (r *PanelRegistry) Lookup(key string, kind PanelKind) (Panel, error) {
	p, ok := r.Get(key)
	if !ok {
		return Panel{}, fmt.Errorf("%w: %s", ErrPanelNotFound, key)
	}
	if p.Kind != kind {
		return Panel{}, fmt.Errorf("%w: %s is a %s panel, not %s", ErrWrongPanelKind, key, p.Kind, kind)
	}
	return p, nil
}

// All returns every panel in registration order.
func (r *PanelRegistry) All() []Panel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Panel, len(r.order))
	for i, key := range r.order {
		out[i] = r.panels[key]
	}
	return out
}

// ByGroup returns the panels of one group in registration order.
func (r *PanelRegistry) ByGroup(group string) []Panel {
	var out []Panel
	for _, p := range r.All() {
		if p.Group == group {
			out = append(out, p)
		}
	}
	return out
}

// Groups returns the group names in first-seen order.
func (r *PanelRegistry) Groups() []string {
	seen := make(map[string]bool)
	var groups []string
	for _, p := range r.All() {
		if !seen[p.Group] {
			seen[p.Group] = true
			groups = append(groups, p.Group)
		}
	}
	return groups
}

// Count returns the number of registered panels.
func (r *PanelRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
