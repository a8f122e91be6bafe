// SPDX-License-Identifier: MIT

package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMustGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "application.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cfg:
  a: b
  timeout: 5s
  kinds:
    - 0
    - 11950
`), 0o600))
	mustInit(path)

	type testCfg struct {
		A       string
		Timeout time.Duration
		Kinds   []int
	}
	cfg := MustGet[testCfg]()
	require.Equal(t, "b", cfg.A)
	require.Equal(t, 5*time.Second, cfg.Timeout)
	require.Equal(t, []int{0, 11950}, cfg.Kinds)
}

func TestMustGetMissingKeyYieldsZeroValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "application.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cfg:\n  a: b\n"), 0o600))
	mustInit(path)

	type testCfg struct{ Missing string }
	require.Empty(t, MustGet[testCfg]().Missing)
}
