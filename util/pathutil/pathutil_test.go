package pathutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("CAUSES_SEED", "/srv/seed")

	tests := []struct {
		in, want string
	}{
		{"~", home},
		{"~/causes/seed", filepath.Join(home, "causes", "seed")},
		{"$CAUSES_SEED/ngos", "/srv/seed/ngos"},
		{"./seed", "./seed"},
		{"~other/x", "~other/x"},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := Expand(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.want, MustExpand(tt.in))
	}
}

func TestSamePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "causes.yml")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	link := filepath.Join(dir, "link.yml")
	require.NoError(t, os.Symlink(file, link))

	assert.True(t, SamePath(file, link))
	assert.True(t, SamePath(file, filepath.Join(dir, "sub", "..", "causes.yml")))
	assert.False(t, SamePath(file, filepath.Join(dir, "other.yml")))
}

func TestCanonicalMissingUnderSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.Mkdir(target, 0755))
	alias := filepath.Join(dir, "alias")
	require.NoError(t, os.Symlink(target, alias))

	viaAlias, err := Canonical(filepath.Join(alias, "new", "causes.yml"))
	require.NoError(t, err)
	direct, err := Canonical(filepath.Join(target, "new", "causes.yml"))
	require.NoError(t, err)
	assert.Equal(t, direct, viaAlias)
	assert.True(t, strings.HasSuffix(viaAlias, filepath.Join("new", "causes.yml")))
}
