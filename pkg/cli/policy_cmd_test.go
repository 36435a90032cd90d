package cli

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairgate/internal/policy"
)

func TestPolicyValidateCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(policy.DefaultYAML), 0o644))

	cmd := newPolicyValidateCmd()
	cmd.SetArgs([]string{path})
	require.NoError(t, cmd.Execute())
}

func TestPolicyValidateCmd_RejectsBadFiles(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		errContain string
	}{
		{
			name:       "unparseable yaml",
			content:    "roles: [unterminated",
			errContain: "parse policy yaml",
		},
		{
			name:       "no operations",
			content:    "roles: {}\n",
			errContain: "registers no operations",
		},
		{
			name: "unregistered operation",
			content: `operations:
  - read_application
roles:
  loan_officer:
    operations:
      - name: close_ledger
`,
			errContain: "unregistered operation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "policy.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			cmd := newPolicyValidateCmd()
			cmd.SetArgs([]string{path})

			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "policy invalid")
			assert.Contains(t, err.Error(), tt.errContain)
		})
	}
}

func TestPolicyInitCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")

	cmd := newPolicyInitCmd()
	cmd.SetArgs([]string{path})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, policy.DefaultYAML, string(data))

	// The starter policy must pass its own validation.
	_, err = policy.Parse(data)
	require.NoError(t, err)
}

func TestPolicyInitCmd_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("# hand-edited\n"), 0o644))

	cmd := newPolicyInitCmd()
	cmd.SetArgs([]string{path})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# hand-edited\n", string(data), "file should be untouched without --force")

	cmd = newPolicyInitCmd()
	cmd.SetArgs([]string{path, "--force"})
	require.NoError(t, cmd.Execute())

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, policy.DefaultYAML, string(data))
}

func TestPolicyShowCmd(t *testing.T) {
	srv, got := newCaptureServer(t, http.StatusOK, `{
		"version": 3, "hash": "sha256:abcd", "loaded_at": "2026-08-20T10:00:00Z",
		"roles": ["compliance_officer", "loan_officer"],
		"operations": ["read_application", "record_decision"]
	}`)

	err := runCommand(t, srv, "policy", "show")
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/v1/policy", got.path)
}
