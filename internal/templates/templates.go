// Package templates renders notification messages from per-locale YAML
// files of flat key/value pairs. Placeholders use {name} syntax.
package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Renderer holds the loaded message catalogs
type Renderer struct {
	catalogs      map[string]map[string]string
	defaultLocale string
}

// builtin covers the keys the engine needs even when no catalog files are
// present
var builtin = map[string]string{
	"reminder.title":       "Reminder: {title}",
	"reminder.body":        "{title} is due on {due_date}. {description}",
	"followup.title":       "Still pending: {title}",
	"followup.body":        "{title} is still waiting on you (reminder #{count}).",
	"email.complete_hint":  "Mark as done: {completion_url}",
	"overdue.title":        "Overdue: {title}",
	"overdue.body":         "{title} was due on {due_date} and is now overdue.",
}

// Load reads every <locale>.yml catalog in dir. A missing or empty dir is
// fine: the built-in catalog still applies.
func Load(dir, defaultLocale string) (*Renderer, error) {
	if defaultLocale == "" {
		defaultLocale = "en"
	}
	r := &Renderer{
		catalogs:      make(map[string]map[string]string),
		defaultLocale: defaultLocale,
	}

	if dir == "" {
		return r, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read templates dir: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		ext := filepath.Ext(name)
		if entry.IsDir() || (ext != ".yml" && ext != ".yaml") {
			continue
		}
		locale := strings.TrimSuffix(name, ext)

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template file %s: %w", name, err)
		}
		catalog := make(map[string]string)
		if err := yaml.Unmarshal(data, &catalog); err != nil {
			return nil, fmt.Errorf("failed to parse template file %s: %w", name, err)
		}
		r.catalogs[locale] = catalog
	}

	return r, nil
}

// Render looks up a message key for a locale and substitutes placeholders.
// Lookup falls through locale, default locale and the built-in catalog;
// an unknown key renders as the key itself.
func (r *Renderer) Render(locale, key string, data map[string]string) string {
	msg, ok := r.lookup(locale, key)
	if !ok {
		return key
	}
	for name, value := range data {
		msg = strings.ReplaceAll(msg, "{"+name+"}", value)
	}
	return msg
}

func (r *Renderer) lookup(locale, key string) (string, bool) {
	if catalog, ok := r.catalogs[locale]; ok {
		if msg, ok := catalog[key]; ok {
			return msg, true
		}
	}
	if catalog, ok := r.catalogs[r.defaultLocale]; ok {
		if msg, ok := catalog[key]; ok {
			return msg, true
		}
	}
	msg, ok := builtin[key]
	return msg, ok
}
