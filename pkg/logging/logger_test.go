package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_TextLevels(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("warn", FormatText, &buf)
	require.NoError(t, err)
	ctx := context.Background()

	log.Debug(ctx, "dbg")
	log.Info(ctx, "inf")
	log.Warn(ctx, "wrn", "vault", "abc")
	log.Error(ctx, "err", "code", 6005)

	out := buf.String()
	assert.NotContains(t, out, "msg=dbg")
	assert.NotContains(t, out, "msg=inf")
	assert.Contains(t, out, "level=WARN msg=wrn vault=abc")
	assert.Contains(t, out, "level=ERROR msg=err code=6005")
}

func TestNew_JSONWith(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("debug", FormatJSON, &buf)
	require.NoError(t, err)

	log.With("component", "ledger").Debug(context.Background(), "hello", "k", 1)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "DEBUG", line["level"])
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "ledger", line["component"])
	assert.Equal(t, float64(1), line["k"])
}

func TestNew_Errors(t *testing.T) {
	_, err := New("loud", FormatText, &bytes.Buffer{})
	assert.Error(t, err)
	_, err = New("info", "xml", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error(context.TODO(), "ignored")
	log.With("a", 1).Info(context.TODO(), "ignored")
}
