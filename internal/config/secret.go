package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

// ResolveRedisPassword fills Redis.Password from the OS keyring when the
// settings ask for it and no password was given in the file or environment.
// A missing keyring entry is not an error: Redis may run without auth.
func (s *Settings) ResolveRedisPassword() error {
	if s.Redis.Password != "" || !s.Redis.Keyring {
		return nil
	}

	pass, err := keyring.Get(KeyringService, s.Redis.Addr)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			slog.Debug(MsgPassFail,
				LogKeyComponent, CompSettings,
				LogKeyAddr, s.Redis.Addr,
			)
			return nil
		}
		return fmt.Errorf("%s: %w", ErrKeyringRead, err)
	}

	s.Redis.Password = pass
	return nil
}

// StoreRedisPassword saves pass in the OS keyring under the redis address.
func StoreRedisPassword(addr, pass string) error {
	if err := keyring.Set(KeyringService, addr, pass); err != nil {
		return fmt.Errorf("%s: %w", ErrKeyringWrite, err)
	}
	return nil
}
