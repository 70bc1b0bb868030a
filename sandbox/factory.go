package sandbox

import (
	"go.uber.org/zap"

	"github.com/isdmx/sandboxbroker/config"
	"github.com/isdmx/sandboxbroker/e2b"
)

// NewE2BClient creates the E2B client described by the configuration
func NewE2BClient(logger *zap.Logger, cfg *config.Config) *e2b.Client {
	return e2b.NewClient(logger, e2b.Config{
		APIURL:         cfg.E2B.APIURL,
		Domain:         cfg.E2B.Domain,
		APIKey:         cfg.E2B.APIKey,
		SandboxURL:     cfg.E2B.SandboxURL,
		RequestTimeout: cfg.GetRequestTimeout(),
	})
}

// NewService creates a Broker backed by the E2B client
func NewService(logger *zap.Logger, cfg *config.Config, client *e2b.Client, metrics *Metrics) Service {
	if cfg.E2B.APIKey == "" {
		logger.Warn("no default e2b api key configured, every call must carry its own")
	}

	return NewBroker(
		logger.Named("broker"),
		NewInterpreterProvider(client),
		NewAppProvider(client),
		WithMetrics(metrics),
		WithDedupe(cfg.Sandbox.DedupeResolves),
	)
}
