//go:build windows || linux

package platform

import (
	"os"
	"testing"

	"proc_exporter/internal/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReturnsWorkingBackend(t *testing.T) {
	sys, err := New(Options{})
	require.NoError(t, err)

	assert.Equal(t, process.Pid(os.Getpid()), sys.Getpid())
	assert.NotZero(t, sys.Now())

	_, ok := process.FindParent(sys, sys.Getpid())
	assert.True(t, ok)
}
