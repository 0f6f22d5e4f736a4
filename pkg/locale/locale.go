// Package locale serves the UI copy and severity labels from message files.
// English and Korean catalogs are embedded; extra catalogs can be loaded
// from disk with LoadFile.
package locale

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"github.com/menta2k/ux-analyzer/pkg/types"
)

//go:embed locales/*.json
var catalogFS embed.FS

// Default is the language used when none is configured
const Default = "en"

// Catalog resolves message IDs for a set of preferred languages
type Catalog struct {
	bundle *i18n.Bundle

	mu         sync.RWMutex
	tags       []language.Tag
	matcher    language.Matcher
	localizers map[string]*i18n.Localizer
}

// New creates a catalog with the embedded message files loaded
func New() (*Catalog, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := catalogFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("failed to list embedded catalogs: %w", err)
	}
	for _, e := range entries {
		if _, err := bundle.LoadMessageFileFS(catalogFS, "locales/"+e.Name()); err != nil {
			return nil, fmt.Errorf("failed to load catalog %s: %w", e.Name(), err)
		}
	}

	c := &Catalog{bundle: bundle}
	c.reindex()
	return c, nil
}

// MustNew is New for package-level initialisation
func MustNew() *Catalog {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}

// LoadFile adds a message file from disk. The language is taken from the
// file name, e.g. "active.ja.json".
func (c *Catalog) LoadFile(path string) error {
	if _, err := c.bundle.LoadMessageFile(path); err != nil {
		return fmt.Errorf("failed to load catalog %s: %w", path, err)
	}
	c.mu.Lock()
	c.reindex()
	c.mu.Unlock()
	return nil
}

// reindex rebuilds the matcher over the loaded languages and drops cached
// localizers. The default language always comes first so that unmatched
// requests fall back to it.
func (c *Catalog) reindex() {
	tags := []language.Tag{language.Make(Default)}
	for _, t := range c.bundle.LanguageTags() {
		if t != tags[0] {
			tags = append(tags, t)
		}
	}
	c.tags = tags
	c.matcher = language.NewMatcher(tags)
	c.localizers = make(map[string]*i18n.Localizer)
}

// Languages lists the loaded language tags
func (c *Catalog) Languages() []string {
	tags := c.bundle.LanguageTags()
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.String())
	}
	return out
}

// For returns a Localizer for the loaded language closest to lang. lang
// may be a single tag or an Accept-Language value.
func (c *Catalog) For(lang string) *Localizer {
	c.mu.RLock()
	tag := c.resolve(lang)
	l, ok := c.localizers[tag]
	c.mu.RUnlock()
	if ok {
		return &Localizer{lang: tag, l: l}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	tag = c.resolve(lang)
	if l, ok = c.localizers[tag]; !ok {
		l = i18n.NewLocalizer(c.bundle, tag, Default)
		c.localizers[tag] = l
	}
	return &Localizer{lang: tag, l: l}
}

// resolve returns the loaded language tag matching lang; the caller holds mu
func (c *Catalog) resolve(lang string) string {
	if lang == "" {
		return Default
	}
	_, i := language.MatchStrings(c.matcher, lang)
	return c.tags[i].String()
}

// Localizer renders messages in one language
type Localizer struct {
	lang string
	l    *i18n.Localizer
}

// Lang returns the resolved language tag
func (l *Localizer) Lang() string {
	return l.lang
}

// T returns the message for id. Unknown ids render as the id itself so a
// missing translation never breaks a page.
func (l *Localizer) T(id string) string {
	return l.TData(id, nil)
}

// TData is T with template data
func (l *Localizer) TData(id string, data map[string]any) string {
	s, err := l.l.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil || s == "" {
		return id
	}
	return s
}

// Count renders a message that takes a {{.Count}} argument
func (l *Localizer) Count(id string, n int) string {
	return l.TData(id, map[string]any{"Count": n})
}

// Severity returns the label for a severity level
func (l *Localizer) Severity(s types.Severity) string {
	if !s.Valid() {
		return string(s)
	}
	return l.T("severity." + string(s))
}

// Status returns the label for an analysis status
func (l *Localizer) Status(s types.AnalysisStatus) string {
	return l.T("status." + string(s))
}
