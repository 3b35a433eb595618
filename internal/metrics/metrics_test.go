package metrics

import (
	"testing"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewWithoutAgent(t *testing.T) {
	c := New("", "test", zap.NewNop())
	assert.IsType(t, &statsd.NoOpClient{}, c)
	assert.NoError(t, c.Incr("payout.sent", nil, 1))
}
