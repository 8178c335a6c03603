package cmd

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/pkg/collection"
	"github.com/grovetools/causes/pkg/livesync"
	"github.com/grovetools/causes/pkg/models"
	"github.com/grovetools/causes/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orgs() []models.Organization {
	return []models.Organization{
		{ID: "1", DisplayName: "Red Cross", Category: "Health"},
		{ID: "2", DisplayName: "Food Bank", Category: "Hunger"},
	}
}

func TestRenderViewReady(t *testing.T) {
	snap, _ := collection.NewSnapshot("ngos", 4, orgs())
	v := livesync.Project(livesync.State{Phase: livesync.PhaseReady}, snap, query.All().InCategory("Hunger"))

	var buf bytes.Buffer
	require.NoError(t, renderView(&buf, v))
	out := buf.String()
	assert.Contains(t, out, "ngos  1 of 2")
	assert.Contains(t, out, "category=Hunger")
	assert.Contains(t, out, "Food Bank")
	assert.NotContains(t, out, "Red Cross")
	assert.Contains(t, out, "CATEGORY")
}

func TestRenderViewErrorKeepsData(t *testing.T) {
	snap, _ := collection.NewSnapshot("ngos", 4, orgs())
	state := livesync.State{Phase: livesync.PhaseError, Err: errors.Connectivity("ngos", fmt.Errorf("connection reset"))}
	v := livesync.Project(state, snap, query.All())

	var buf bytes.Buffer
	require.NoError(t, renderView(&buf, v))
	out := buf.String()
	assert.Contains(t, out, "error: ")
	assert.Contains(t, out, "showing last synced data")
	assert.Contains(t, out, "Red Cross")
}

func TestDescribeParams(t *testing.T) {
	assert.Equal(t, "", describeParams(query.All()))
	assert.Equal(t, "category=Health", describeParams(query.All().InCategory("Health")))
	assert.Equal(t, `search="red"`, describeParams(query.All().Matching("red")))
	assert.Equal(t, `category=Health search="red"`, describeParams(query.All().InCategory("Health").Matching("red")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "héll…", truncate("héllo wörld", 5))
}
