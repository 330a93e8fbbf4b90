package rules

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTableYAML(t *testing.T) {
	data := `rules:
  - state: tx
    kind: birthday
    start_offset_days: 0
    duration_days: 30
  - state: CT
    kind: none
`
	tbl, err := DecodeTable(strings.NewReader(data), "yaml")
	require.NoError(t, err)
	rs, err := tbl.StateRules()
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, "TX", rs[0].State)
	assert.Equal(t, BirthdayRule, rs[0].Kind)
	assert.Equal(t, NoStatutoryRule, rs[1].Kind)
}

func TestDecodeTableRejectsBadEntries(t *testing.T) {
	tbl, err := DecodeTable(strings.NewReader(`{"rules":[{"state":"OR","kind":"birthday","duration_days":0}]}`), "json")
	require.NoError(t, err)
	_, err = tbl.StateRules()
	assert.Error(t, err)

	_, err = DecodeTable(strings.NewReader(""), "toml")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, NoStatutoryRule, c.Lookup("TX").Kind)

	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rules":[{"state":"NY","kind":"birthday","duration_days":31}]}`), 0o644))
	c, err = LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, BirthdayRule, c.Lookup("NY").Kind)
	assert.Equal(t, BirthdayRule, c.Lookup("OR").Kind)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
