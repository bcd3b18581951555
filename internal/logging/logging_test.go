package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHandler_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, "info", "production"))

	log.Info("merchant seeded",
		"merchant_id", "acme",
		"api_key", "sbp_live_0123456789",
		"SECRET_KEY", "shh",
		slog.Group("req", "password", "hunter22"),
	)

	out := buf.String()
	assert.NotContains(t, out, "sbp_live_0123456789")
	assert.NotContains(t, out, "shh")
	assert.NotContains(t, out, "hunter22")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "acme", line["merchant_id"])
	assert.Equal(t, redacted, line["api_key"])
	assert.Equal(t, redacted, line["req"].(map[string]any)["password"])
}

func TestNewHandler_Level(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantWarn  bool
	}{
		{level: "debug", wantDebug: true, wantWarn: true},
		{level: "info", wantDebug: false, wantWarn: true},
		{level: "error", wantDebug: false, wantWarn: false},
		{level: "bogus", wantDebug: false, wantWarn: true},
	}

	for _, tc := range tests {
		t.Run(tc.level, func(t *testing.T) {
			h := newHandler(&bytes.Buffer{}, tc.level, "development")
			assert.Equal(t, tc.wantDebug, h.Enabled(context.Background(), slog.LevelDebug))
			assert.Equal(t, tc.wantWarn, h.Enabled(context.Background(), slog.LevelWarn))
		})
	}
}

func TestWith_EnrichesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), slog.New(newHandler(&buf, "info", "production")))

	ctx, _ = With(ctx, "order_id", 42)
	FromContext(ctx).Info("payment complete")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.EqualValues(t, 42, line["order_id"])
}
