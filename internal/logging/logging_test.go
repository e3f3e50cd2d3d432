package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureJSON(t *testing.T) {
	l := logrus.New()
	var buf bytes.Buffer
	require.NoError(t, configure(l, &buf, "debug", "json"))

	l.WithField("component", "test").Debug("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "test", line["component"])
	assert.Equal(t, "debug", line["level"])
}

func TestConfigureRejectsBadInput(t *testing.T) {
	l := logrus.New()
	var buf bytes.Buffer
	assert.Error(t, configure(l, &buf, "loud", "text"))
	assert.Error(t, configure(l, &buf, "info", "xml"))
}

func TestConfigureLevelFilters(t *testing.T) {
	l := logrus.New()
	var buf bytes.Buffer
	require.NoError(t, configure(l, &buf, "warn", "text"))
	l.Info("quiet")
	assert.Empty(t, buf.String())
	l.Warn("loud")
	assert.Contains(t, buf.String(), "loud")
}
