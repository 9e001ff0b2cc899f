package logsvc

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/danileyton/epicereport-sub000/core"
)

func TestConsoleLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(&buf, &core.Config{AppName: "epicereport", Env: "DEV", TestMode: true})

	logger.Info("firing sent", map[string]interface{}{actorField: int64(7)}, errors.New("boom"), 3*time.Second, "extra")

	out := buf.String()
	assert.Contains(t, out, "firing sent")
	assert.Contains(t, out, "actor=7")
	assert.Contains(t, out, "error=boom")
	assert.Contains(t, out, "arg3=extra")
	assert.Contains(t, out, "app=epicereport")
}

func TestConsoleLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(&buf, &core.Config{TestMode: true})
	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	buf.Reset()
	logger = NewConsoleLogger(&buf, &core.Config{TestMode: true, Debug: true})
	logger.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}
