package metrics

import (
	"github.com/DataDog/datadog-go/v5/statsd"
	"go.uber.org/zap"
)

// New returns a DogStatsD client, or a no-op client when addr is empty or
// the agent cannot be reached.
func New(addr, env string, logger *zap.Logger) statsd.ClientInterface {
	if addr == "" {
		return &statsd.NoOpClient{}
	}
	client, err := statsd.New(addr,
		statsd.WithNamespace("tutormarket."),
		statsd.WithTags([]string{"env:" + env}),
	)
	if err != nil {
		logger.Warn("statsd disabled", zap.String("addr", addr), zap.Error(err))
		return &statsd.NoOpClient{}
	}
	return client
}
