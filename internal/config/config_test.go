package config_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/go-haid/internal/config"
	"github.com/zalando/go-keyring"
)

// TestConstants_Integrity ensures critical constants are not empty or malformed.
func TestConstants_Integrity(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"AppName", config.AppName},
		{"AppID", config.AppID},
		{"Version", config.Version},
		{"UserAgent", config.UserAgent},
		{"ICalProdid", config.ICalProdid},
		{"DefaultConsultEndpoint", config.DefaultConsultEndpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEmpty(t, tt.value, "Critical constant %s should not be empty", tt.name)
		})
	}
}

// TestRules_Sanity pins the classification threshold.
func TestRules_Sanity(t *testing.T) {
	assert.Equal(t, 15.0, config.HaidMaxDays)
	assert.Equal(t, 24.0, config.HoursPerDay)
	assert.True(t, strings.HasPrefix(config.DefaultConsultEndpoint, config.ConsultEndpointPrefix))
	assert.Contains(t, config.SupportedLanguages, config.DefaultLanguage)
}

// TestUserAgent_Format ensures the UA string follows the standard format.
func TestUserAgent_Format(t *testing.T) {
	assert.True(t, strings.HasPrefix(config.UserAgent, "Go-Haid/"), "UserAgent must start with AppName/")
}

func TestTimeoutsAndLimits(t *testing.T) {
	t.Parallel()

	assert.Greater(t, config.HTTPTimeout, 0*time.Second)
	assert.Greater(t, config.ShutdownTimeout, 0*time.Second)
	assert.Less(t, config.WSPingPeriod, config.WSPongWait, "ping must fire before the pong deadline")
	assert.Greater(t, config.MaxHTTPResponseSize, 0)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	s, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, config.DefaultListenAddr, s.ListenAddr)
	assert.Equal(t, config.StoreModeMemory, s.Store)
	assert.Equal(t, config.DefaultConsultEndpoint, s.Consult.Endpoint)
	assert.NoError(t, s.Validate())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `listen_addr: "0.0.0.0:9000"
store: redis
redis:
  addr: "redis:6379"
  db: 2
language: en
consultation:
  endpoint: "https://wa.me/620000"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv(config.EnvRedisDB, "5")
	t.Setenv(config.EnvLanguage, "ID")

	s, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", s.ListenAddr)
	assert.Equal(t, config.StoreModeRedis, s.Store)
	assert.Equal(t, "redis:6379", s.Redis.Addr)
	assert.Equal(t, 5, s.Redis.DB, "env must win over the file")
	assert.Equal(t, "id", s.Language)
	assert.Equal(t, "https://wa.me/620000", s.Consult.Endpoint)
	assert.NoError(t, s.Validate())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), config.ErrSettingsRead)
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("store: [oops"), 0600))
		_, err := config.Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), config.ErrSettingsParse)
	})

	t.Run("bad redis db", func(t *testing.T) {
		t.Setenv(config.EnvRedisDB, "two")
		_, err := config.Load("")
		assert.ErrorIs(t, err, config.ErrInvalidRedisDB)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *config.Settings)
		wantErr error
	}{
		{"unknown store", func(s *config.Settings) { s.Store = "sqlite" }, config.ErrInvalidStore},
		{"redis without addr", func(s *config.Settings) { s.Store = config.StoreModeRedis; s.Redis.Addr = "" }, config.ErrRedisAddrMissing},
		{"ftp endpoint", func(s *config.Settings) { s.Consult.Endpoint = "ftp://x" }, config.ErrInvalidEndpoint},
		{"unknown language", func(s *config.Settings) { s.Language = "fr" }, config.ErrInvalidLanguage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := config.Defaults()
			tt.mutate(s)
			assert.ErrorIs(t, s.Validate(), tt.wantErr)
		})
	}
}

func TestResolveRedisPassword(t *testing.T) {
	keyring.MockInit()

	s := config.Defaults()
	s.Redis.Keyring = true

	// Nothing stored yet: not an error, password stays empty.
	require.NoError(t, s.ResolveRedisPassword())
	assert.Empty(t, s.Redis.Password)

	require.NoError(t, config.StoreRedisPassword(s.Redis.Addr, "s3cret"))
	require.NoError(t, s.ResolveRedisPassword())
	assert.Equal(t, "s3cret", s.Redis.Password)

	// An explicit password is never replaced.
	s.Redis.Password = "explicit"
	require.NoError(t, s.ResolveRedisPassword())
	assert.Equal(t, "explicit", s.Redis.Password)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("language: id\n"), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *config.Settings, 4)
	done := make(chan error, 1)
	go func() {
		done <- config.Watch(ctx, path, func(s *config.Settings) {
			select {
			case got <- s:
			default:
			}
		})
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("language: en\n"), 0600))

	// A truncating write may surface an intermediate empty file first.
	deadline := time.After(5 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case s := <-got:
			reloaded = s.Language == "en"
		case <-deadline:
			t.Fatal("settings were not reloaded")
		}
	}

	cancel()
	assert.NoError(t, <-done)
}
