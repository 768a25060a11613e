package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactingCore(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(NewRedactingCore(core)).With(zap.String("AZDATA_PASSWORD", "hunter2"))

	logger.Info("login", zap.String("username", "admin"), zap.String("sasToken", "sv=abc"))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "admin", fields["username"])
	assert.Equal(t, Redacted, fields["sasToken"])
	assert.Equal(t, Redacted, fields["AZDATA_PASSWORD"])
}

func TestRedactingCoreRespectsLevel(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(NewRedactingCore(core))
	logger.Info("dropped")
	logger.Warn("kept")
	assert.Equal(t, 1, logs.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("loud"))
}

func TestIsSensitive(t *testing.T) {
	for _, k := range []string{"password", "access_key", "Authorization", "client-secret"} {
		assert.True(t, IsSensitive(k), k)
	}
	assert.False(t, IsSensitive("namespace"))
}

func TestNewLoggerBridgesToLogr(t *testing.T) {
	z, err := NewLogger(Options{Format: "json", Level: "error"})
	require.NoError(t, err)
	l := NewLogr(z)
	assert.False(t, l.V(0).Enabled())
}
