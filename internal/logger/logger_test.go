package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		"INFO":     zerolog.InfoLevel,
		"warn":     zerolog.WarnLevel,
		"Error":    zerolog.ErrorLevel,
		"disabled": zerolog.Disabled,
		"verbose":  zerolog.InfoLevel,
		"":         zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSetup(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	Setup(Config{Level: "warn", Format: "console"})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}
