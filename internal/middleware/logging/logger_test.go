package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLoggerLevelsAndFields(t *testing.T) {
	l := NewLogger(&Config{Enabled: true, Level: "WARN"}, "App")
	var buf bytes.Buffer
	l.Logrus().SetOutput(&buf)

	l.WithPrefix("STREAMER").Info("hidden")
	l.WithPrefix("STREAMER").Warn("buffer full", "outstanding", 120)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "buffer full")
	assert.Contains(t, out, "outstanding=120")
	assert.Contains(t, out, "App [STREAMER]")
}

func TestDisabledLogger(t *testing.T) {
	l := NewDiscard()
	assert.False(t, l.ShouldLog(logrus.ErrorLevel))
	l.Error("nothing happens")
	assert.NoError(t, l.Close())
}
