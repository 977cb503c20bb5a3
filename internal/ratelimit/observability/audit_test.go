package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmdash/internal/ratelimit/models"
	"crmdash/pkg/requestcontext"
)

func TestLogAudit(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := requestcontext.WithRequestID(context.Background(), "req-1")

	LogAudit(ctx, logger, "rate_limit_exceeded", "tier", "user")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "rate_limit_exceeded", line["msg"])
	assert.Equal(t, "audit", line["log_type"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "user", line["tier"])
}

func TestLogAuditNilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		LogAudit(context.Background(), nil, "rate_limit_exceeded")
	})
}

func TestLogIdentifier(t *testing.T) {
	assert.Equal(t, "10.1.2.0/24", LogIdentifier(models.NewRateLimitKey(models.TierAuthIP, "10.1.2.3")))
	assert.Equal(t, "user-7", LogIdentifier(models.NewRateLimitKey(models.TierUser, "user-7")))
}
