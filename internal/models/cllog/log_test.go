package cllog

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestExtractLevelFromJSON(t *testing.T) {
	assert.Equal(t, "warn", extractLevelFromJSON(`{"level":"warn","message":"slow"}`))
	assert.Equal(t, "error", extractLevelFromJSON(`{"time":"x","level":"error"}`))
	assert.Equal(t, "", extractLevelFromJSON(`{"message":"no level"}`))
	assert.Equal(t, "", extractLevelFromJSON(`{"level":"unterminated`))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("WARN"))
	assert.Equal(t, zerolog.TraceLevel, ParseLevel("trace"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
}
