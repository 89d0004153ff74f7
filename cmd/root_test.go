package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	out, err := execute(t, "parse", "RIC I 207")
	require.NoError(t, err)

	dec := json.NewDecoder(strings.NewReader(out))
	var p struct {
		Catalog string `json:"catalog"`
		Volume  string `json:"volume"`
		Number  string `json:"number"`
	}
	require.NoError(t, dec.Decode(&p))
	assert.Equal(t, "ric", p.Catalog)
	assert.Equal(t, "I", p.Volume)
	assert.Equal(t, "207", p.Number)
	assert.Contains(t, out, "canonical: ric i 207")
}

func TestParseCommand_Unknown(t *testing.T) {
	out, err := execute(t, "parse", "MIR 36, 54")
	require.NoError(t, err)
	assert.Contains(t, out, `"catalog": "unknown"`)
}

func TestParseCommand_RequiresArgs(t *testing.T) {
	_, err := execute(t, "parse")
	assert.Error(t, err)
}

func TestEnrichFieldsCommand(t *testing.T) {
	out, err := execute(t, "enrich", "fields")
	require.NoError(t, err)
	assert.Contains(t, out, "issuer")
	assert.Contains(t, out, "weight_g")
	assert.Contains(t, out, "axis_h")
}
