//go:build windows

package logger

import (
	"testing"

	"proc_exporter/internal/config"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEventlogWriter(t *testing.T) {
	w, err := createWriter(config.LogOutput{
		Type:     "eventlog",
		Enabled:  true,
		Eventlog: &config.EventlogConfig{Source: "proc_exporter", ID: 1000},
	})
	require.NoError(t, err)
	ew, ok := w.(*log.EventlogWriter)
	require.True(t, ok)
	assert.Equal(t, "proc_exporter", ew.Source)
	assert.Equal(t, uintptr(1000), ew.ID)

	w, err = createEventlogWriter(&config.EventlogConfig{Source: "proc_exporter", Async: true})
	require.NoError(t, err)
	assert.IsType(t, &log.AsyncWriter{}, w)
}
