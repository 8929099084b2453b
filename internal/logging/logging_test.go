package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupJSON(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	Setup("warn", "json", &buf)

	log.Info().Msg("hidden")
	log.Warn().Str("tool", "email.send").Msg("tool_call_denied")

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	assert.NotContains(t, line, "hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "tool_call_denied", entry["message"])
	assert.Equal(t, "email.send", entry["tool"])
	assert.Contains(t, entry, "time")
}

func TestSetupConsoleAndBadLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	Setup("loud", "console", &buf)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	log.Info().Msg("approval_cleanup")
	assert.Contains(t, buf.String(), "approval_cleanup")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}
