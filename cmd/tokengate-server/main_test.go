package main

import (
	"testing"

	"github.com/codefionn/tokengate/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestReloadedLevelKeepsFlag(t *testing.T) {
	next := config.DefaultConfig()
	next.LogLevel = "debug"

	assert.Equal(t, "error", reloadedLevel(next, "error"))
	assert.Equal(t, "debug", reloadedLevel(next, ""))
}
