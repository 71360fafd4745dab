package client

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/bgq/internal/queue"
)

func execute(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	root := NewRoot("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--data-dir", dataDir, "--log-level", "error", "--env-file", ""}, args...))
	err := root.Execute()
	return out.String(), err
}

func clearCredentials(t *testing.T) {
	t.Setenv("BGQ_SITE_ID", "")
	t.Setenv("BGQ_API_KEY", "")
	t.Setenv("BGQ_STORAGE_FSYNC", "never")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, "bgq test\n", out)
}

func TestAddStatusInventory(t *testing.T) {
	clearCredentials(t)
	dir := t.TempDir()

	out, err := execute(t, dir, "add", "identifyProfile", `{"identifier":"u1"}`, "--group-start", "identified_profile_u1")
	require.NoError(t, err)
	var res struct {
		Success bool   `json:"success"`
		TaskID  string `json:"taskId"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)

	_, err = execute(t, dir, "add", "trackEvent", `{"identifier":"u1","name":"e"}`, "--blocking-group", "identified_profile_u1")
	require.NoError(t, err)

	out, err = execute(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "tasks:")
	assert.Contains(t, out, "2")
	assert.Contains(t, out, "closed")
	assert.Contains(t, out, "not configured")

	out, err = execute(t, dir, "inventory", "--filter", `type == "trackEvent"`)
	require.NoError(t, err)
	var rows []inventoryRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"identified_profile_u1"}, rows[0].BlockingGroups)

	out, err = execute(t, dir, "inventory")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, res.TaskID, rows[0].TaskID)
}

func TestRunWithoutCredentialsKeepsTasks(t *testing.T) {
	clearCredentials(t)
	dir := t.TempDir()
	_, err := execute(t, dir, "add", "trackEvent", `{"identifier":"u1","name":"e"}`)
	require.NoError(t, err)

	out, err := execute(t, dir, "run")
	require.NoError(t, err)
	var pass struct {
		Attempted int `json:"attempted"`
		Remaining int `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &pass))
	assert.Equal(t, 1, pass.Attempted)
	assert.Equal(t, 1, pass.Remaining)
}

func TestCommandErrors(t *testing.T) {
	clearCredentials(t)
	dir := t.TempDir()

	_, err := execute(t, dir, "add", "trackEvent", `{not json`)
	assert.Error(t, err)

	_, err = execute(t, dir, "add", "trackEvent")
	assert.Error(t, err)

	_, err = execute(t, dir, "add", "noSuchType", `{}`)
	assert.ErrorIs(t, err, queue.ErrInvalidTask)

	_, err = execute(t, dir, "add", "trackEvent", `{"identifier":"u1"}`)
	assert.ErrorIs(t, err, queue.ErrInvalidTask)

	_, err = execute(t, dir, "inventory", "--filter", "type ==")
	assert.Error(t, err)

	_, err = execute(t, dir, "--log-level", "loud", "status")
	assert.Error(t, err)
}
