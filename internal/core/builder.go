package core

import (
	"fmt"
	"net"
	"time"

	"asyncnet/config"
	"asyncnet/internal/errors"
	"asyncnet/internal/retry"
	"asyncnet/network"
	"asyncnet/util"
)

// Build constructs the appropriate Mode from the given configuration.
// The mode owns the network manager created here and closes it when it
// returns from Run.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.Listen {
		return buildListen(cfg, logger), nil
	}
	return buildConnect(cfg, logger)
}

func buildListen(cfg *config.Config, logger *util.Logger) Mode {
	return &ListenMode{
		Manager: network.New(network.OptionsFromConfig(cfg, logger)),
		Port:    cfg.LocalPort,
		Print:   cfg.Print,
		Logger:  logger,
	}
}

func buildConnect(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.NoDNS && net.ParseIP(cfg.Host) == nil {
		return nil, fmt.Errorf(
			"cannot parse %q as an IP address (DNS disabled with -n)",
			cfg.Host)
	}

	b := retry.Attempts(cfg.Retries, config.DefaultMaxRetryBackoff)
	b.Retryable = errors.IsRetryable
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Verbose("attempt %d failed: %v (retrying in %s)", attempt, err, wait.Round(time.Millisecond))
	}

	return &ConnectMode{
		Manager: network.New(network.OptionsFromConfig(cfg, logger)),
		Host:    cfg.Host,
		Port:    cfg.Port,
		NoDNS:   cfg.NoDNS,
		Backoff: b,
		Logger:  logger,
	}, nil
}
