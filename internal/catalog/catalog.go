// Package catalog declares the server types the control plane knows about
// and, for types backed by an external worker, the command used to spawn it.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"

	"github.com/imyashkale/mcphost/internal/models"
)

// ProcessSpec is the spawn contract of a worker-backed server type
type ProcessSpec struct {
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args"`
	RequiredEnv []string          `yaml:"required_env"`
	OptionalEnv []string          `yaml:"optional_env"`
	Env         map[string]string `yaml:"env"` // defaults applied beneath caller values
}

// ServerType describes one entry of the catalog
type ServerType struct {
	Name        string       `yaml:"-"`
	DisplayName string       `yaml:"name"`
	Description string       `yaml:"description"`
	Category    string       `yaml:"category"`
	Hosted      bool         `yaml:"hosted"` // served in-process over websocket sessions
	Process     *ProcessSpec `yaml:"process"`
}

// Catalog is a name-keyed set of server types
type Catalog struct {
	mu    sync.RWMutex
	types map[string]ServerType
}

// New creates a catalog from the given types
func New(types ...ServerType) *Catalog {
	c := &Catalog{types: make(map[string]ServerType, len(types))}
	for _, t := range types {
		c.types[t.Name] = t
	}
	return c
}

// Default returns a catalog holding the built-in server types
func Default() *Catalog {
	return New(builtinTypes()...)
}

// Lookup returns the server type registered under name
func (c *Catalog) Lookup(name string) (ServerType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[name]
	return t, ok
}

// Names returns all type names in sorted order
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds or replaces a server type
func (c *Catalog) Register(t ServerType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[t.Name] = t
}

// ProcessFor resolves the spawn contract for a type and checks that every
// required variable is present and non-empty in env.
func (c *Catalog) ProcessFor(name string, env map[string]string) (*ProcessSpec, error) {
	t, ok := c.Lookup(name)
	if !ok {
		return nil, &models.ConfigError{Field: "type", Reason: fmt.Sprintf("unknown server type %q", name)}
	}
	if t.Process == nil {
		return nil, &models.ConfigError{Field: "type", Reason: fmt.Sprintf("server type %q has no worker process", name)}
	}
	if t.Process.Command == "" {
		return nil, &models.ConfigError{Field: "command", Reason: fmt.Sprintf("server type %q declares no command", name)}
	}

	var missing []string
	for _, key := range t.Process.RequiredEnv {
		if strings.TrimSpace(env[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &models.ConfigError{
			Field:  "environment",
			Reason: fmt.Sprintf("required environment variable missing: %s", strings.Join(missing, ", ")),
		}
	}

	return t.Process, nil
}

type catalogFile struct {
	Servers map[string]ServerType `yaml:"servers"`
}

// LoadFile merges the server types declared in a YAML file over the catalog.
// A type in the file replaces a built-in type of the same name.
func (c *Catalog) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read server catalog %s: %w", path, err)
	}
	return c.LoadYAML(data)
}

// LoadYAML merges server types from a YAML document
func (c *Catalog) LoadYAML(data []byte) (int, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("invalid server catalog YAML: %w", err)
	}

	for name, t := range file.Servers {
		if name == "" {
			return 0, &models.ConfigError{Field: "servers", Reason: "empty server type name"}
		}
		if t.Process != nil && t.Process.Command == "" {
			return 0, &models.ConfigError{Field: name, Reason: "process declared without command"}
		}
	}

	for name, t := range file.Servers {
		t.Name = name
		c.Register(t)
	}
	return len(file.Servers), nil
}

// ValidateEnvironment reports whether env satisfies the spawn contract of a type
func (c *Catalog) ValidateEnvironment(name string, env map[string]string) error {
	_, err := c.ProcessFor(name, env)
	return err
}
