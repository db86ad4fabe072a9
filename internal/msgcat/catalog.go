package msgcat

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var defaultFiles embed.FS

const defaultFile = "messages.en.yaml"

// Catalog holds text templates keyed by dotted path ("fallback.move").
// Embedded defaults load first; files in an override directory replace them.
type Catalog struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// New loads the embedded messages, then every *.yaml / *.yml file in
// overrideDir when it is non-empty.
func New(overrideDir string) (*Catalog, error) {
	c := &Catalog{templates: make(map[string]*template.Template)}

	raw, err := fs.ReadFile(defaultFiles, defaultFile)
	if err != nil {
		return nil, fmt.Errorf("read embedded messages: %w", err)
	}
	if err := c.apply(raw, defaultFile); err != nil {
		return nil, err
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := c.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Must is New for the embedded defaults only; it panics on a broken build.
func Must() *Catalog {
	c, err := New("")
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read template dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	owner := make(map[string]string)
	for _, name := range files {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		flat, err := flatten(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for k := range flat {
			if prev, ok := owner[k]; ok {
				return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
			}
			owner[k] = name
		}
		if err := c.store(flat, name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) apply(raw []byte, source string) error {
	flat, err := flatten(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", source, err)
	}
	return c.store(flat, source)
}

// store parses every template before publishing any of them.
func (c *Catalog) store(flat map[string]string, source string) error {
	parsed := make(map[string]*template.Template, len(flat))
	for k, text := range flat {
		t, err := template.New(k).Option("missingkey=error").Parse(text)
		if err != nil {
			return fmt.Errorf("%s: template %s: %w", source, k, err)
		}
		parsed[k] = t
	}
	c.mu.Lock()
	for k, t := range parsed {
		c.templates[k] = t
	}
	c.mu.Unlock()
	return nil
}

func flatten(raw []byte) (map[string]string, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if err := flattenInto(doc, "", out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(src any, prefix string, out map[string]string) error {
	switch v := src.(type) {
	case map[string]any:
		for k, child := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if err := flattenInto(child, key, out); err != nil {
				return err
			}
		}
		return nil
	case string:
		if prefix == "" {
			return errors.New("string value without key")
		}
		out[prefix] = v
		return nil
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported value at %s: %T", prefix, v)
	}
}

// Render executes the template at key. Unknown keys and missing fields are errors.
func (c *Catalog) Render(key string, data any) (string, error) {
	c.mu.RLock()
	t, ok := c.templates[strings.TrimSpace(key)]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template not found: %s", key)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

// Has reports whether key is defined.
func (c *Catalog) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.templates[key]
	return ok
}
