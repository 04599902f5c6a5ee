package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	SetWriter(buf)
	t.Cleanup(func() {
		_ = SetOutput("stdout")
		SetLevel("INFO")
		SetFormat("text")
		SetPrefix("")
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	SetLevel("WARN")

	Info("hidden %d", 1)
	Warn("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown 2")
}

func TestPrefix(t *testing.T) {
	buf := capture(t)
	SetPrefix("[3]")

	Error("short read of %s", "/data/a")

	assert.Contains(t, buf.String(), "[ERROR] [3] short read of /data/a")
}

func TestJSONFormat(t *testing.T) {
	buf := capture(t)
	SetFormat("json")
	SetPrefix("[7]")

	Info("hello")

	var entry map[string]string
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "7", entry["process"])
	assert.Equal(t, "hello", entry["msg"])
}
