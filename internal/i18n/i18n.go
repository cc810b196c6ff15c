package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var defaultLocalesFS embed.FS

// Translator resolves dotted message keys ("download.caption") per language.
type Translator struct {
	translations map[string]map[string]string // lang -> key -> value
	defaultLang  string
	mu           sync.RWMutex
}

// NewTranslator creates a new Translator using the embedded locales.
func NewTranslator(defaultLang string) (*Translator, error) {
	subFS, err := fs.Sub(defaultLocalesFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("failed to access embedded locales: %w", err)
	}
	return NewTranslatorFromFS(subFS, defaultLang)
}

// NewTranslatorFromFS creates a new Translator from a given filesystem.
// Every *.yaml file at the root becomes a language named after the file.
func NewTranslatorFromFS(localesFS fs.FS, defaultLang string) (*Translator, error) {
	t := &Translator{
		translations: make(map[string]map[string]string),
		defaultLang:  defaultLang,
	}

	entries, err := fs.ReadDir(localesFS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read locales directory: %w", err)
	}

	for _, f := range entries {
		if f.IsDir() {
			continue
		}
		ext := filepath.Ext(f.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		lang := strings.TrimSuffix(f.Name(), ext)
		content, err := fs.ReadFile(localesFS, f.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read locale file %s: %w", f.Name(), err)
		}

		var data map[string]interface{}
		if err := yaml.Unmarshal(content, &data); err != nil {
			return nil, fmt.Errorf("failed to parse locale file %s: %w", f.Name(), err)
		}

		flat := make(map[string]string)
		flatten("", data, flat)
		t.translations[lang] = flat
	}

	if _, ok := t.translations[defaultLang]; !ok {
		return nil, fmt.Errorf("default language %q has no locale file", defaultLang)
	}

	return t, nil
}

func flatten(prefix string, src map[string]interface{}, dest map[string]string) {
	for k, v := range src {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch child := v.(type) {
		case map[string]interface{}:
			flatten(key, child, dest)
		case string:
			dest[key] = child
		default:
			dest[key] = fmt.Sprintf("%v", v)
		}
	}
}

// Languages returns the loaded language codes in sorted order.
func (t *Translator) Languages() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	langs := make([]string, 0, len(t.translations))
	for lang := range t.translations {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Get returns the message for key in lang, falling back to the default
// language and finally to the key itself. Args are applied with fmt.Sprintf.
func (t *Translator) Get(lang, key string, args ...interface{}) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if lang == "" {
		lang = t.defaultLang
	}

	val, ok := t.translations[lang][key]
	if !ok && lang != t.defaultLang {
		val, ok = t.translations[t.defaultLang][key]
	}
	if !ok {
		val = key
	}

	if len(args) > 0 {
		return fmt.Sprintf(val, args...)
	}
	return val
}
