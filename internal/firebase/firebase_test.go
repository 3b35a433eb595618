package firebase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutormarket/backend/internal/config"
)

// Without credentials in the environment the messaging client may fail to
// build; either way the caller gets a client or the reason, never neither.
func TestNewMessagingReportsOutcome(t *testing.T) {
	ctx := context.Background()
	app, err := NewApp(ctx, config.Config{ProjectID: "demo-tutormarket"})
	require.NoError(t, err)

	msg, err := NewMessaging(ctx, app)
	if err != nil {
		assert.Nil(t, msg)
		return
	}
	assert.NotNil(t, msg)
}
