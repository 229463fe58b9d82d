// File: logging.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package packetsim

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ztblick/packet-transport-sim/config"
)

// InitLogging builds a zap.SugaredLogger from the given LoggingConfig,
// following sakateka-yanet2's InitLogging shape.
func InitLogging(cfg *config.LoggingConfig) (*zap.SugaredLogger, error) {
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Development = false
	zcfg.Level.SetLevel(cfg.Level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("packetsim: init logging: %w", err)
	}
	return logger.Sugar(), nil
}
