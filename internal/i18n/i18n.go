// Package i18n resolves user-facing texts from the embedded YAML catalog.
//
// A catalog file holds one or more top-level language keys with nested sections;
// texts are addressed by their dotted path, e.g. "shop.cart_empty".
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const DefaultLang = "ru"

//go:embed locales/*.yaml
var locales embed.FS

// Translator returns the text for key, formatted with args when given.
// Unknown keys come back unchanged.
type Translator interface {
	T(key string, args ...any) string
	Lang() string
}

type texts map[string]string

// Manager holds every loaded language.
type Manager struct {
	langs    map[string]texts
	fallback string
}

var loadDefault = sync.OnceValue(func() *Manager {
	m, err := Load(DefaultLang)
	if err != nil {
		panic(err)
	}
	return m
})

// Default is the embedded catalog in DefaultLang. A malformed catalog panics on first use.
func Default() Translator {
	return loadDefault().Translator(DefaultLang)
}

func Load(fallback string) (*Manager, error) {
	return LoadFS(locales, "locales", fallback)
}

// LoadFS merges the .yaml and .yml files of dir. fallback must be among the languages found.
func LoadFS(fsys fs.FS, dir, fallback string) (*Manager, error) {
	if fallback == "" {
		fallback = DefaultLang
	}

	var files []string
	for _, ext := range []string{"*.yaml", "*.yml"} {
		matched, err := fs.Glob(fsys, path.Join(dir, ext))
		if err != nil {
			return nil, fmt.Errorf("i18n: glob %s: %w", dir, err)
		}
		files = append(files, matched...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("i18n: no catalogs in %s", dir)
	}

	m := &Manager{langs: make(map[string]texts), fallback: fallback}
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", name, err)
		}
		if err := m.merge(data); err != nil {
			return nil, fmt.Errorf("i18n: %s: %w", name, err)
		}
	}

	if _, ok := m.langs[fallback]; !ok {
		return nil, fmt.Errorf("i18n: default language %q is missing", fallback)
	}
	return m, nil
}

func (m *Manager) merge(data []byte) error {
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}

	for lang, node := range doc {
		lang = normalize(lang)
		if lang == "" {
			continue
		}
		if m.langs[lang] == nil {
			m.langs[lang] = make(texts)
		}
		collect(&node, "", m.langs[lang])
	}
	return nil
}

// collect walks a mapping node and stores every scalar under its dotted path.
func collect(n *yaml.Node, prefix string, into texts) {
	if n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i].Value, n.Content[i+1]
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		switch val.Kind {
		case yaml.ScalarNode:
			into[key] = val.Value
		case yaml.MappingNode:
			collect(val, key, into)
		}
	}
}

// Translator picks lang, or the fallback language when lang was not loaded.
func (m *Manager) Translator(lang string) Translator {
	if m == nil {
		return translator{}
	}
	lang = normalize(lang)
	if _, ok := m.langs[lang]; !ok {
		lang = m.fallback
	}
	return translator{lang: lang, primary: m.langs[lang], fallback: m.langs[m.fallback]}
}

func normalize(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}

type translator struct {
	lang     string
	primary  texts
	fallback texts
}

func (t translator) Lang() string { return t.lang }

func (t translator) T(key string, args ...any) string {
	key = strings.TrimSpace(key)
	text, ok := t.primary[key]
	if !ok {
		text, ok = t.fallback[key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return text
	}
	return fmt.Sprintf(text, args...)
}
