package logging

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOutputRedirectsExistingLoggers(t *testing.T) {
	logger := ForService("swaptest")
	require.NotNil(t, logger)

	var buf bytes.Buffer
	SetOutput(&buf, io.Discard)
	defer SetOutput(os.Stdout, os.Stderr)

	logger.Info("after swap")
	assert.Contains(t, buf.String(), "after swap")
	assert.Contains(t, buf.String(), `"service":"swaptest"`)
}

func TestEnableFileOutputTeesStructuredStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "roomwatch.log")

	closeLog, err := EnableFileOutput(path)
	require.NoError(t, err)
	defer SetOutput(os.Stdout, os.Stderr)

	ForService("filetest").Info("written to file")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.Contains(t, string(data), `"service":"filetest"`)
}
