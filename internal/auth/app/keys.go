package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aussiebroadwan/authcore/pkg/clockx"
	"github.com/aussiebroadwan/authcore/pkg/jwtx"
)

// InitAuthKeys builds the KeyManager.
//
// With AUTH_SIGNING_KEY_FILE set the PEM key is loaded and tokens survive a
// restart. Otherwise NumKeys ephemeral keys of the configured algorithm are
// generated and every outstanding token becomes invalid on restart.
func InitAuthKeys(cfg Config, clock clockx.Clock, logger *slog.Logger) (*jwtx.KeyManager, error) {
	opts := jwtx.KeyManagerOptions{
		Algorithm: cfg.Algorithm,
		Issuer:    cfg.Issuer,
		Audience:  cfg.Audience,
		RSABits:   cfg.RSABits,
		NumKeys:   cfg.NumKeys,
		Now:       clockx.OrSystem(clock).Now,
	}

	if cfg.SigningKeyFile != "" {
		pemKey, err := os.ReadFile(cfg.SigningKeyFile) // #nosec G304 -- operator supplied path
		if err != nil {
			return nil, fmt.Errorf("read signing key: %w", err)
		}
		opts.PrivateKeyPEM = pemKey
	}

	km, err := jwtx.NewKeyManager(opts)
	if err != nil {
		return nil, fmt.Errorf("init key manager: %w", err)
	}

	if cfg.SigningKeyFile != "" {
		logger.Info("signing key loaded",
			"algorithm", km.Algorithm(),
			"path", cfg.SigningKeyFile,
		)
		return km, nil
	}

	logger.Info("generated ephemeral signing keys",
		"algorithm", km.Algorithm(),
		"num_keys", km.NumSigners(),
		"issuer", cfg.Issuer,
	)
	logger.Warn("ephemeral keys: tokens issued before a restart will not verify")
	return km, nil
}
