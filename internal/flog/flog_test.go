package flog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLoggerNotNil(t *testing.T) {
	assert.NotNil(t, L())
}

func TestInitAcceptsKnownAndUnknownLevels(t *testing.T) {
	Init("debug")
	assert.NotNil(t, L())

	Init("not-a-real-level")
	assert.NotNil(t, L())

	Init("info")
}

func TestWithAttachesFields(t *testing.T) {
	l := With("jobID", "abc123")
	assert.NotNil(t, l)
}
