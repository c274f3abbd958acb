package cli

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/combatlink/internal/domain/report"
)

type reportResponse struct {
	Status string        `json:"status"`
	Data   report.Report `json:"data"`
}

func TestReplayText(t *testing.T) {
	out, _, err := execute(t, nil, "replay", "testdata/windwalker.json")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "replay_windwalker", []byte(out))
}

func TestReplayJSON(t *testing.T) {
	out, _, err := execute(t, nil, "replay", "--format", "json", "--session", "fight-1", "testdata/windwalker.json")
	require.NoError(t, err)

	var resp reportResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "fight-1", resp.Data.SessionID)
	assert.True(t, resp.Data.Finished)
	assert.Equal(t, 9, resp.Data.Events)
	assert.Equal(t, 3, resp.Data.Attributed)
	assert.Equal(t, 1, resp.Data.Unattributed)
	assert.Equal(t, 2, resp.Data.Unconsumed)
}

func TestReplayStdin(t *testing.T) {
	data, err := os.ReadFile("testdata/expiry.jsonl")
	require.NoError(t, err)

	t.Run("unlimited window", func(t *testing.T) {
		out, _, err := execute(t, data, "replay", "--format", "json", "-")
		require.NoError(t, err)

		var resp reportResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "stdin", resp.Data.SessionID)
		assert.Equal(t, 1, resp.Data.Attributed)
		assert.Equal(t, 0, resp.Data.Expired)
	})

	t.Run("window shorter than the gap", func(t *testing.T) {
		out, _, err := execute(t, data, "replay", "--format", "json", "--window", "3000", "-")
		require.NoError(t, err)

		var resp reportResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, 0, resp.Data.Attributed)
		assert.Equal(t, 1, resp.Data.Unattributed)
		assert.Equal(t, 1, resp.Data.Expired)
		require.Len(t, resp.Data.UnconsumedCauses, 1)
		assert.Equal(t, "expired", resp.Data.UnconsumedCauses[0].Reason)
	})
}

func TestReplayCustomRules(t *testing.T) {
	out, _, err := execute(t, nil, "replay", "--format", "json",
		"--rules", "../domain/spells/testdata/windwalker.cue", "testdata/windwalker.json")
	require.NoError(t, err)

	var resp reportResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	// Only Fists of Fury and Faeline Stomp are known to this ruleset.
	assert.Len(t, resp.Data.Triggers, 2)
	assert.Equal(t, 2, resp.Data.Causes)
	assert.Equal(t, 2, resp.Data.Attributed)
	assert.Equal(t, 1, resp.Data.Unattributed)
}

func TestReplayErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{"replay", "testdata/nope.json"}},
		{"invalid event", []string{"replay", "testdata/bad.json"}},
		{"missing ruleset", []string{"replay", "--rules", "testdata/nope.yaml", "testdata/windwalker.json"}},
		{"no argument", []string{"replay"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, nil, tt.args...)
			require.Error(t, err)
			if tt.name != "no argument" {
				assert.Equal(t, ExitCommandError, GetExitCode(err))
			}
		})
	}
}
