package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/grovetools/causes/config"
	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardFlags(t *testing.T) {
	cmd := NewStandardCommand("causes", "test")
	require.NoError(t, cmd.ParseFlags([]string{"-v", "--json", "--config", "x.yml"}))

	assert.Equal(t, CommandOptions{ConfigFile: "x.yml", Verbose: true, JSONOutput: true}, GetOptions(cmd))
}

func TestLoadConfigFromFlag(t *testing.T) {
	t.Setenv("CAUSES_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte("source:\n  transport: websocket\n  url: http://h:1\n"), 0644))

	cmd := NewStandardCommand("causes", "test")
	require.NoError(t, cmd.ParseFlags([]string{"--config", path}))

	cfg, err := LoadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, config.TransportWebSocket, cfg.Source.Transport)
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errors.Connectivity("ngos", fmt.Errorf("refused")), "causes serve"},
		{errors.PermissionDenied("ngos", fmt.Errorf("bad token")), "source.token"},
		{errors.ConfigNotFound("/tmp"), "--config"},
		{errors.ConfigInvalid("bad transport"), "bad transport"},
		{fmt.Errorf("plain"), "Error: plain"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		h := &ErrorHandler{Out: &buf}
		assert.Equal(t, tt.err, h.Handle(tt.err))
		assert.Contains(t, buf.String(), tt.want)
	}

	assert.NoError(t, NewErrorHandler(false).Handle(nil))

	var buf bytes.Buffer
	h := &ErrorHandler{Verbose: true, Out: &buf}
	h.Handle(errors.NotFound("document", "7").WithDetail("collection", "ngos"))
	assert.Contains(t, buf.String(), "Error details")
	assert.Contains(t, buf.String(), `"collection"`)
}

func TestVersionCommand(t *testing.T) {
	info := version.GetInfo()

	root := NewStandardCommand("causes", "test")
	root.AddCommand(NewVersionCommand("causes", info))

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "causes "+info.Version)

	buf.Reset()
	root.SetArgs([]string{"version", "--json"})
	require.NoError(t, root.Execute())
	var decoded version.Info
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, info, decoded)
}
