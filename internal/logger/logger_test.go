package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEntry(t *testing.T, data []byte) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	return entry
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Level: "chatty"})
	require.Error(t, err)
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := New(Options{Writer: buf})
	require.NoError(t, err)

	log.WithFields(map[string]any{"step": "synthesis", "index": "0"}).Info("node queued")

	entry := decodeEntry(t, buf.Bytes())
	assert.Equal(t, "node queued", entry["message"])
	assert.Equal(t, "synthesis", entry["step"])
	assert.Equal(t, "0", entry["index"])
	assert.Equal(t, "info", entry["level"])
	assert.NotEmpty(t, entry["time"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		level   string
		emit    func(l *Logger)
		written bool
	}{
		{"debug suppressed at info", "info", func(l *Logger) { l.Debug("x") }, false},
		{"info suppressed at warn", "warn", func(l *Logger) { l.Infof("x %d", 1) }, false},
		{"warn emitted at warn", "warn", func(l *Logger) { l.Warn("x") }, true},
		{"debug emitted at debug", "debug", func(l *Logger) { l.Debugf("x %d", 1) }, true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			buf := &bytes.Buffer{}
			log, err := New(Options{Level: tc.level, Writer: buf})
			require.NoError(t, err)

			tc.emit(log)
			assert.Equal(t, tc.written, buf.Len() > 0)
		})
	}
}

func TestLoggerNamedComponent(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := New(Options{Writer: buf})
	require.NoError(t, err)

	log.Named("resolver-lambdapdk").Infof("saved %s data to %s", "lambdapdk", "/cache/x")

	entry := decodeEntry(t, buf.Bytes())
	assert.Equal(t, "resolver-lambdapdk", entry["component"])
	assert.Equal(t, "saved lambdapdk data to /cache/x", entry["message"])
}

func TestLoggerErrorCarriesCause(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := New(Options{Writer: buf})
	require.NoError(t, err)

	log.Error(errors.New("boom"), "node failed")

	entry := decodeEntry(t, buf.Bytes())
	assert.Equal(t, "node failed", entry["message"])
	assert.Equal(t, "boom", entry["error"])

	buf.Reset()
	log.Error(nil, "no cause")
	entry = decodeEntry(t, buf.Bytes())
	assert.Equal(t, "no cause", entry["message"])
	assert.NotContains(t, entry, "error")
}

func TestLoggerConsoleFormat(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := New(Options{HumanReadable: true, Writer: buf})
	require.NoError(t, err)

	log.Info("node queued")

	out := strings.TrimSpace(buf.String())
	assert.Contains(t, out, "node queued")
	assert.False(t, strings.HasPrefix(out, "{"))
}

func TestLoggerNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var log *Logger
	log.Info("ignored")
	log.Warnf("ignored %d", 1)
	log.Error(errors.New("boom"), "ignored")
	require.Nil(t, log.WithFields(map[string]any{"a": 1}))
	require.Nil(t, log.Named("x"))
}
