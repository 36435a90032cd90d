package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTable_AlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, []string{"id", "status"}, [][]string{
		{"app_1", "RECEIVED"},
		{"app_22", "IN_REVIEW"},
	})

	out := buf.String()
	assert.Contains(t, out, "id")
	assert.Contains(t, out, "status")
	assert.Contains(t, out, "app_1")
	assert.Contains(t, out, "IN_REVIEW")
}

func TestPrintJSON_Indents(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]string{"status": "ok"}))
	assert.JSONEq(t, `{"status":"ok"}`, buf.String())
	assert.Contains(t, buf.String(), "\n")
}

func TestPrintDetail_SortsKeysAndRendersComposites(t *testing.T) {
	var buf bytes.Buffer
	PrintDetail(&buf, map[string]any{
		"zeta":   "last",
		"alpha":  "first",
		"nested": map[string]any{"k": "v"},
		"items":  []any{"a", "b"},
		"empty":  nil,
	})

	out := buf.String()
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("alpha")), bytes.Index(buf.Bytes(), []byte("zeta")))
	assert.Contains(t, out, `{"k":"v"}`)
	assert.Contains(t, out, `["a","b"]`)
	assert.NotContains(t, out, "map[")
	assert.NotContains(t, out, "<nil>")
}

func TestExtractField(t *testing.T) {
	data := map[string]any{
		"id":     "app_7",
		"amount": float64(32000000),
		"rate":   0.625,
		"labels": map[string]any{"gender": "female"},
	}

	assert.Equal(t, "app_7", ExtractField(data, "id"))
	assert.Equal(t, "32000000", ExtractField(data, "amount"))
	assert.Equal(t, "0.625", ExtractField(data, "rate"))
	assert.JSONEq(t, `{"gender":"female"}`, ExtractField(data, "labels"))
	assert.Equal(t, "", ExtractField(data, "missing"))
}
