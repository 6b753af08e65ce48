// Package i18n localizes the labels and consultation message produced by the
// classification engine.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/tartampluch/go-haid/internal/config"
	"github.com/tartampluch/go-haid/internal/engine"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Catalog holds every embedded locale.
type Catalog struct {
	bundle    *i18n.Bundle
	languages []string
	matcher   language.Matcher
	fallback  string
}

// NewCatalog loads the embedded locales. fallback is used when a request
// matches none of them and must be one of config.SupportedLanguages.
func NewCatalog(fallback string) (*Catalog, error) {
	fallbackTag, err := language.Parse(fallback)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidLanguage, fallback)
	}

	bundle := i18n.NewBundle(fallbackTag)
	bundle.RegisterUnmarshalFunc(config.LocaleJSONExt, json.Unmarshal)

	entries, err := localeFS.ReadDir(config.LocalesDir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrLocalesAccess, err)
	}

	var detected []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, config.LocalePrefix) || !strings.HasSuffix(name, config.LocaleSuffix) {
			slog.Debug(config.MsgLocaleSkip,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyFile, name,
			)
			continue
		}

		code := strings.TrimSuffix(strings.TrimPrefix(name, config.LocalePrefix), config.LocaleSuffix)
		if code == "" {
			slog.Warn(config.MsgLocaleBadName,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyFile, name,
			)
			continue
		}

		if _, err := bundle.LoadMessageFileFS(localeFS, config.LocalesDir+"/"+name); err != nil {
			return nil, fmt.Errorf("%s %s: %w", config.ErrLocaleLoad, name, err)
		}
		slog.Debug(config.MsgLocaleLoaded,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyLang, code,
		)
		detected = append(detected, code)
	}

	if !slices.Contains(detected, fallback) {
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidLanguage, fallback)
	}

	// The matcher falls back to its first tag, so the fallback goes first.
	tags := []language.Tag{fallbackTag}
	for _, code := range detected {
		if code != fallback {
			tags = append(tags, language.MustParse(code))
		}
	}

	return &Catalog{
		bundle:    bundle,
		languages: detected,
		matcher:   language.NewMatcher(tags),
		fallback:  fallback,
	}, nil
}

// Languages returns the loaded language codes.
func (c *Catalog) Languages() []string {
	return slices.Clone(c.languages)
}

// Match picks the best loaded language for an Accept-Language header value
// or a plain language code.
func (c *Catalog) Match(accept string) string {
	if strings.TrimSpace(accept) == "" {
		return c.fallback
	}
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return c.fallback
	}

	tag, _, conf := c.matcher.Match(tags...)
	if conf == language.No {
		return c.fallback
	}
	base, _ := tag.Base()
	if code := base.String(); slices.Contains(c.languages, code) {
		return code
	}
	return c.fallback
}

// Translator returns the label formatter for lang, matched against the
// loaded locales.
func (c *Catalog) Translator(lang string) *Translator {
	code := c.Match(lang)
	return &Translator{
		lang:      code,
		localizer: i18n.NewLocalizer(c.bundle, code),
	}
}

// Translator renders engine labels in one language.
type Translator struct {
	lang      string
	localizer *i18n.Localizer
}

var _ engine.LabelFormatter = (*Translator)(nil)

// Lang returns the language code the translator renders.
func (t *Translator) Lang() string {
	return t.lang
}

func (t *Translator) Haid(days float64) string {
	return t.msg(config.TKeyHaid, map[string]string{"Duration": engine.FormatDays(days)})
}

func (t *Translator) Istihadoh(days float64) string {
	return t.msg(config.TKeyIstihadoh, map[string]string{"Duration": engine.FormatDays(days)})
}

func (t *Translator) BrokenPattern() string {
	return t.msg(config.TKeyBrokenPattern, nil)
}

func (t *Translator) ConsultationMessage(e engine.Escalation) string {
	return t.msg(config.TKeyConsultMsg, map[string]string{
		"Haid":     engine.FormatDecimal(e.HaidDays),
		"Purity":   engine.FormatDecimal(e.PurityDays),
		"Bleeding": engine.FormatDecimal(e.BleedingDays),
	})
}

// msg translates key, falling back to the key itself when it is missing.
func (t *Translator) msg(key string, data map[string]string) string {
	out, err := t.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
	})
	if err != nil {
		slog.Debug(config.MsgTransMissing,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyKey, key,
			config.LogKeyLang, t.lang,
			config.LogKeyError, err,
		)
		if out == "" {
			return key
		}
	}
	return out
}
