package utils

import (
	"context"

	"github.com/firelite/firelite-backend/internal/logging"
	"github.com/sethvargo/go-envconfig"
)

//EmulatorConfig Configuration of the emulator server.
type EmulatorConfig struct {
	Port      string `env:"EMULATOR_PORT, default=8080"`
	ProjectID string `env:"EMULATOR_PROJECT_ID, default=demo-project"`
}

//LoadEmulatorConfig Load emulator config from the environment.
func LoadEmulatorConfig(ctx context.Context) (*EmulatorConfig, error) {
	logger := logging.FromContext(ctx)

	var config EmulatorConfig
	if err := envconfig.Process(ctx, &config); err != nil {
		logger.Debugf("Could not load EmulatorConfig: %v", err)
		return nil, err
	}

	return &config, nil
}
