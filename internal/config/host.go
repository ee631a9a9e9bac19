package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glizzus/adsp-host/internal/schedule"
	"github.com/sethvargo/go-envconfig"
)

type HostConfig struct {
	Addons              []string      `env:"ADSP_ADDONS, default=adsp.builtin.volume"`
	AddonDir            string        `env:"ADSP_ADDON_DIR, default=./addons"`
	ProfileDir          string        `env:"ADSP_PROFILE_DIR, default=./profile"`
	RescanCron          string        `env:"ADSP_RESCAN_CRON, default=*/5 * * * *"`
	CollaboratorTimeout time.Duration `env:"ADSP_COLLABORATOR_TIMEOUT, default=5s"`
	LogLevel            string        `env:"ADSP_LOG_LEVEL, default=info"`
	BlobPrefix          string        `env:"ADSP_BLOB_PREFIX, default=addons"`
}

func NewHostConfigFromEnv() (*HostConfig, error) {
	return newHostConfig(context.Background(), envconfig.OsLookuper())
}

func newHostConfig(ctx context.Context, lookuper envconfig.Lookuper) (*HostConfig, error) {
	var cfg HostConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, err
	}
	if len(cfg.Addons) == 0 {
		return nil, fmt.Errorf("ADSP_ADDONS must name at least one addon")
	}
	if _, err := cfg.Rescan(); err != nil {
		return nil, err
	}
	if _, err := cfg.Level(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Rescan parses RescanCron.
func (c *HostConfig) Rescan() (*schedule.Rescan, error) {
	r, err := schedule.ParseRescan(c.RescanCron)
	if err != nil {
		return nil, fmt.Errorf("invalid ADSP_RESCAN_CRON: %w", err)
	}
	return r, nil
}

// Level parses LogLevel into a slog level.
func (c *HostConfig) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid ADSP_LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}
