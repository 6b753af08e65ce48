package i18n_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/go-haid/internal/config"
	"github.com/tartampluch/go-haid/internal/engine"
	"github.com/tartampluch/go-haid/internal/i18n"
)

func newCatalog(t *testing.T) *i18n.Catalog {
	t.Helper()
	c, err := i18n.NewCatalog(config.DefaultLanguage)
	require.NoError(t, err)
	return c
}

// TestI18nIntegrity ensures every translation key used in code exists in
// every locale file.
func TestI18nIntegrity(t *testing.T) {
	keys := []string{
		config.TKeyHaid,
		config.TKeyIstihadoh,
		config.TKeyBrokenPattern,
		config.TKeyConsultMsg,
	}

	files, err := filepath.Glob(filepath.Join("locales", "active.*.json"))
	require.NoError(t, err)
	require.Len(t, files, len(config.SupportedLanguages), "one locale file per supported language")

	for _, file := range files {
		content, err := os.ReadFile(file)
		require.NoError(t, err)

		var jsonMap map[string]any
		require.NoError(t, json.Unmarshal(content, &jsonMap), "%s must be valid JSON", file)

		for _, key := range keys {
			_, ok := jsonMap[key]
			assert.Truef(t, ok, "key %q missing in %s", key, file)
		}
		for jsonKey := range jsonMap {
			if !strings.HasPrefix(jsonKey, "_") && !assert.Contains(t, keys, jsonKey) {
				t.Logf("orphan key %q in %s", jsonKey, file)
			}
		}
	}
}

func TestCatalog_Languages(t *testing.T) {
	assert.ElementsMatch(t, config.SupportedLanguages, newCatalog(t).Languages())
}

func TestNewCatalog_UnknownFallback(t *testing.T) {
	_, err := i18n.NewCatalog("fr")
	assert.ErrorIs(t, err, config.ErrInvalidLanguage)

	_, err = i18n.NewCatalog("not a tag!")
	assert.ErrorIs(t, err, config.ErrInvalidLanguage)
}

func TestCatalog_Match(t *testing.T) {
	c := newCatalog(t)

	tests := []struct {
		accept string
		want   string
	}{
		{"", "id"},
		{"en", "en"},
		{"en-US,en;q=0.9", "en"},
		{"id-ID", "id"},
		{"fr-FR,en;q=0.5", "en"},
		{"ja", "id"},
		{";;;", "id"},
	}
	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Match(tt.accept))
		})
	}
}

// TestTranslator_IndonesianMatchesDefault guards against the locale drifting
// from the labels the engine renders on its own.
func TestTranslator_IndonesianMatchesDefault(t *testing.T) {
	tr := newCatalog(t).Translator("id")
	def := engine.DefaultLabels{}
	esc := engine.Escalation{HaidDays: 5, PurityDays: 7.5, BleedingDays: 8}

	assert.Equal(t, "id", tr.Lang())
	assert.Equal(t, def.Haid(5.25), tr.Haid(5.25))
	assert.Equal(t, def.Istihadoh(2), tr.Istihadoh(2))
	assert.Equal(t, def.BrokenPattern(), tr.BrokenPattern())
	assert.Equal(t, def.ConsultationMessage(esc), tr.ConsultationMessage(esc))
}

func TestTranslator_English(t *testing.T) {
	tr := newCatalog(t).Translator("en-GB")

	assert.Equal(t, "en", tr.Lang())
	assert.Equal(t, "haid 3 D, 5 H", tr.Haid(3+5.0/24))
	msg := tr.ConsultationMessage(engine.Escalation{HaidDays: 5, PurityDays: 7.5, BleedingDays: 8})
	assert.Contains(t, msg, "haid 5 days, then purity 7.50 days")
	assert.Contains(t, msg, "Following bleeding: 8 days")
}

func TestTranslator_DrivesClassifier(t *testing.T) {
	tr := newCatalog(t).Translator("en")
	cls := engine.NewClassifier(tr, config.DefaultConsultEndpoint)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(17 * 24 * time.Hour)

	res := cls.Classify([]engine.Record{{ID: "a", Start: &start, End: &end}})
	require.Len(t, res.Records, 1)
	assert.Equal(t, "haid 15 D", res.Records[0].HaidLabel)
	assert.Equal(t, "istihadoh 2 D", res.Records[0].IstihadohLabel)
}
