package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Options{Level: "warn", Output: &buf})

	l.Infof("hidden")
	l.Warnf("shown %d", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 1")
}

func TestNewLogger_UnknownLevel(t *testing.T) {
	l := NewLogger(Options{Level: "chatty"})
	assert.Equal(t, logrus.InfoLevel, l.(*LogrusLogger).GetLevel())
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Options{Level: "debug", JSON: true, Output: &buf})
	l.Debugf("fragment %d", 7)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "fragment 7", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Errorf("nothing %s", "happens")
}
