package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidStore     = errors.New("store mode must be memory or redis")
	ErrRedisAddrMissing = errors.New("redis address is required in redis store mode")
	ErrInvalidRedisDB   = errors.New("redis db must be a valid integer")
	ErrInvalidEndpoint  = errors.New("consultation endpoint must be an http(s) URL")
	ErrInvalidLanguage  = errors.New("unsupported language")
)

// Settings is the runtime configuration, read from an optional YAML file and
// then overridden by HAID_* environment variables.
type Settings struct {
	ListenAddr string        `yaml:"listen_addr"`
	Store      string        `yaml:"store"`
	Redis      RedisSettings `yaml:"redis"`
	Language   string        `yaml:"language"`
	Consult    Consultation  `yaml:"consultation"`
}

// RedisSettings holds the connection details for the redis store.
type RedisSettings struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// Keyring enables reading the password from the OS keyring when Password is empty.
	Keyring bool `yaml:"keyring"`
}

// Consultation configures where broken-pattern cases are sent.
type Consultation struct {
	Endpoint string `yaml:"endpoint"`
	// VCard is a local path or http(s) URL to the consultant's contact card.
	// When set, its first TEL overrides Endpoint.
	VCard string `yaml:"vcard"`
}

// Defaults returns the settings used when no file and no environment is given.
func Defaults() *Settings {
	return &Settings{
		ListenAddr: DefaultListenAddr,
		Store:      DefaultStoreMode,
		Redis: RedisSettings{
			Addr: DefaultRedisAddr,
			DB:   DefaultRedisDB,
		},
		Language: DefaultLanguage,
		Consult: Consultation{
			Endpoint: DefaultConsultEndpoint,
		},
	}
}

// Load reads path (when non-empty) on top of Defaults and applies environment overrides.
func Load(path string) (*Settings, error) {
	s := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ErrSettingsRead, err)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("%s: %w", ErrSettingsParse, err)
		}
	}

	if err := s.applyEnv(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) applyEnv() error {
	if v := os.Getenv(EnvListenAddr); v != "" {
		s.ListenAddr = v
	}
	if v := os.Getenv(EnvStoreMode); v != "" {
		s.Store = strings.ToLower(v)
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		s.Redis.Addr = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		s.Redis.Password = v
	}
	if v := os.Getenv(EnvRedisDB); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return ErrInvalidRedisDB
		}
		s.Redis.DB = db
	}
	if v := os.Getenv(EnvLanguage); v != "" {
		s.Language = strings.ToLower(v)
	}
	if v := os.Getenv(EnvConsultEndpoint); v != "" {
		s.Consult.Endpoint = v
	}
	if v := os.Getenv(EnvConsultantVCard); v != "" {
		s.Consult.VCard = v
	}
	return nil
}

// Validate checks the settings are usable before wiring dependencies.
func (s *Settings) Validate() error {
	if s.ListenAddr == "" {
		return errors.New(ErrListenRequired)
	}

	switch s.Store {
	case StoreModeMemory:
	case StoreModeRedis:
		if s.Redis.Addr == "" {
			return ErrRedisAddrMissing
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStore, s.Store)
	}

	if !strings.HasPrefix(s.Consult.Endpoint, SchemeHTTP+"://") &&
		!strings.HasPrefix(s.Consult.Endpoint, SchemeHTTPS+"://") {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, s.Consult.Endpoint)
	}

	for _, lang := range SupportedLanguages {
		if lang == s.Language {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidLanguage, s.Language)
}
