package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONCarriesServiceFields(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(Config{
		Level:       "debug",
		Environment: "production",
		ServiceName: "be-doc-workflows",
		Version:     "1.2.3",
	}, &buf)

	log.Info().Str("workflow_id", "wf-1").Msg("transition committed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "be-doc-workflows", line["service"])
	assert.Equal(t, "1.2.3", line["version"])
	assert.Equal(t, "wf-1", line["workflow_id"])
	assert.Equal(t, "info", line["level"])
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(Config{Level: "loud", Environment: "production"}, &buf)

	log.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("shown")
	assert.NotZero(t, buf.Len())
}
