package cli

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/combatlink/internal/testevents"
)

func TestGenerateDeterministic(t *testing.T) {
	first, _, err := execute(t, nil, "generate", "--seed", "3", "--casts", "40")
	require.NoError(t, err)
	second, _, err := execute(t, nil, "generate", "--seed", "3", "--casts", "40")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, _, err := execute(t, nil, "generate", "--seed", "4", "--casts", "40")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestGenerateThenReplay(t *testing.T) {
	gen := testevents.Generate(testevents.GenerateOptions{Seed: 11, Casts: 60, Actors: 3})

	log, _, err := execute(t, nil, "generate", "--seed", "11", "--casts", "60", "--actors", "3", "--lines")
	require.NoError(t, err)

	out, _, err := execute(t, []byte(log), "replay", "--format", "json", "-")
	require.NoError(t, err)

	var resp reportResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, len(gen.Events), resp.Data.Events)
	assert.Equal(t, len(gen.Causes), resp.Data.Attributed)
	assert.Equal(t, len(gen.Orphans), resp.Data.Unattributed)
	assert.Equal(t, 0, resp.Data.Unconsumed)
}

func TestGenerateOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fight.jsonl")
	out, _, err := execute(t, nil, "generate", "--seed", "5", "--casts", "10", "--lines", "-o", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gen := testevents.Generate(testevents.GenerateOptions{Seed: 5, Casts: 10, Actors: 3})
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines++
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, len(gen.Events), lines)
}

func TestGenerateRejectsZeroCasts(t *testing.T) {
	_, _, err := execute(t, nil, "generate", "--casts", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
