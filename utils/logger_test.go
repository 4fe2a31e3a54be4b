package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The device SDK imports utils without ever calling InitLogger; both loggers
// must be usable straight from the package vars.
func TestLoggersUsableWithoutInit(t *testing.T) {
	require.NotNil(t, InfoLogger)
	require.NotNil(t, ErrorLogger)

	var buf bytes.Buffer
	ErrorLogger.SetOutput(&buf)
	defer InitLogger()

	ErrorLogger.Printf("offline order %s rejected", "fp-1")
	assert.Contains(t, buf.String(), "fp-1")
}

func TestInitLoggerResets(t *testing.T) {
	var buf bytes.Buffer
	InfoLogger.SetOutput(&buf)
	InitLogger()

	InfoLogger.Println("after reset")
	assert.Empty(t, buf.String())
}
