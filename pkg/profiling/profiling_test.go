package profiling

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimingsDisabled(t *testing.T) {
	var tm Timings
	tm.Start("ignored").Stop()

	var buf bytes.Buffer
	tm.Summarize(&buf)
	assert.Empty(t, buf.String())
}

func TestTimingsNesting(t *testing.T) {
	var tm Timings
	tm.Enable()

	outer := tm.Start("browse")
	inner := tm.Start("first view")
	inner.Stop()
	inner.Stop()
	outer.Stop()
	tm.Start("unfinished")

	var buf bytes.Buffer
	tm.Summarize(&buf)
	out := buf.String()
	assert.Contains(t, out, "\n- browse (")
	assert.Contains(t, out, "\n  - first view (")
	assert.NotContains(t, out, "unfinished")
	assert.Contains(t, out, "total ")
}

func TestCobraProfiler(t *testing.T) {
	profilePath := filepath.Join(t.TempDir(), "cpu.out")
	ran := false

	root := &cobra.Command{Use: "causes", RunE: func(*cobra.Command, []string) error {
		ran = true
		return nil
	}}
	NewCobraProfiler().AddFlags(root)

	var stderr bytes.Buffer
	root.SetErr(&stderr)
	root.SetArgs([]string{"--cpu-profile", profilePath})
	require.NoError(t, root.Execute())

	assert.True(t, ran)
	assert.Contains(t, stderr.String(), "CPU profile written to "+profilePath)
	info, err := os.Stat(profilePath)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}
