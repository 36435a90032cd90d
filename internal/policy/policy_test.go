package policy

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairgate/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func writePolicyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParse_DefaultPolicy(t *testing.T) {
	snap, err := Parse([]byte(DefaultYAML))
	require.NoError(t, err)

	assert.Contains(t, snap.Hash, "sha256:")
	assert.Len(t, snap.OperationNames(), 13)
	assert.ElementsMatch(t, []string{
		"admin", "loan_officer", "underwriter",
		"compliance_officer", "fairness_analyst", "intake_agent",
	}, snap.RoleNames())

	t.Run("admin wildcard covers registered operations", func(t *testing.T) {
		g, ok := snap.Grant(domain.RoleAdmin, "ledger.export")
		require.True(t, ok)
		assert.Nil(t, g.Scope)
		assert.Empty(t, g.MaskFields)
	})

	t.Run("wildcard does not cover unregistered operations", func(t *testing.T) {
		_, ok := snap.Grant(domain.RoleAdmin, "reactor.scram")
		assert.False(t, ok)
	})

	t.Run("loan officer is scoped and masked", func(t *testing.T) {
		g, ok := snap.Grant(domain.RoleLoanOfficer, "applications.read")
		require.True(t, ok)
		require.NotNil(t, g.Scope)
		assert.Equal(t, "assigned_to", g.Scope.Column)
		assert.Equal(t, "id", g.Scope.Attribute)
		assert.Equal(t, []string{"ssn_last4"}, g.MaskFields)
	})

	t.Run("fairness analyst holds aggregate only", func(t *testing.T) {
		_, ok := snap.Grant(domain.RoleFairnessAnalyst, "demographics.aggregate")
		assert.True(t, ok)
		_, ok = snap.Grant(domain.RoleFairnessAnalyst, "applications.read")
		assert.False(t, ok)
	})

	t.Run("intake agent is the collection path", func(t *testing.T) {
		_, ok := snap.Grant(domain.RoleIntakeAgent, "demographics.write")
		assert.True(t, ok)
		_, ok = snap.Grant(domain.RoleLoanOfficer, "demographics.write")
		assert.False(t, ok)
	})
}

func TestParse_Rejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no operations",
			yaml: "roles:\n  admin:\n    operations:\n      - name: \"*\"\n",
			want: "registers no operations",
		},
		{
			name: "no roles",
			yaml: "operations: [a.b]\n",
			want: "grants no roles",
		},
		{
			name: "duplicate registry entry",
			yaml: "operations: [a.b, a.b]\nroles:\n  admin:\n    operations:\n      - name: \"*\"\n",
			want: "registered twice",
		},
		{
			name: "unknown role",
			yaml: "operations: [a.b]\nroles:\n  superuser:\n    operations:\n      - name: a.b\n",
			want: "unknown role",
		},
		{
			name: "unregistered grant",
			yaml: "operations: [a.b]\nroles:\n  admin:\n    operations:\n      - name: c.d\n",
			want: "unregistered operation",
		},
		{
			name: "duplicate grant",
			yaml: "operations: [a.b]\nroles:\n  admin:\n    operations:\n      - name: a.b\n      - name: a.b\n",
			want: "twice",
		},
		{
			name: "wildcard with mask",
			yaml: "operations: [a.b]\nroles:\n  admin:\n    operations:\n      - name: \"*\"\n        mask_fields: [x]\n",
			want: "wildcard grant cannot carry",
		},
		{
			name: "bad scope template",
			yaml: "operations: [a.b]\nroles:\n  admin:\n    operations:\n      - name: a.b\n        scope: \"DROP TABLE; --\"\n",
			want: "scope",
		},
		{
			name: "unresolvable scope placeholder",
			yaml: "operations: [a.b]\nroles:\n  admin:\n    operations:\n      - name: a.b\n        scope: \"col = {session.user}\"\n",
			want: "unresolvable",
		},
		{
			name: "not yaml",
			yaml: "{{{{",
			want: "parse policy yaml",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestScopeTemplate_Filter(t *testing.T) {
	p := &domain.Principal{
		ID:              "officer_7",
		Role:            domain.RoleLoanOfficer,
		ScopeAttributes: map[string]string{"branch": "north"},
	}

	t.Run("principal attribute", func(t *testing.T) {
		tmpl, err := ParseScopeTemplate("assigned_to = {principal.id}")
		require.NoError(t, err)
		f, err := tmpl.Filter(p)
		require.NoError(t, err)
		assert.Equal(t, &domain.ScopeFilter{Column: "assigned_to", Value: "officer_7"}, f)
	})

	t.Run("custom attribute", func(t *testing.T) {
		tmpl, err := ParseScopeTemplate("branch = {principal.branch}")
		require.NoError(t, err)
		f, err := tmpl.Filter(p)
		require.NoError(t, err)
		assert.Equal(t, "north", f.Value)
	})

	t.Run("missing attribute fails closed", func(t *testing.T) {
		tmpl, err := ParseScopeTemplate("region = {principal.region}")
		require.NoError(t, err)
		_, err = tmpl.Filter(p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no scope attribute")
	})

	t.Run("literal", func(t *testing.T) {
		tmpl, err := ParseScopeTemplate("status = IN_REVIEW")
		require.NoError(t, err)
		f, err := tmpl.Filter(p)
		require.NoError(t, err)
		assert.Equal(t, &domain.ScopeFilter{Column: "status", Value: "IN_REVIEW"}, f)
	})
}

func TestStore_FailClosedBeforeFirstLoad(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "policy.yaml"), testLogger(), StoreOptions{})

	_, err := store.Current()
	var ple *domain.PolicyLoadError
	require.ErrorAs(t, err, &ple)
}

func TestStore_LoadAndSwap(t *testing.T) {
	path := writePolicyFile(t, DefaultYAML)
	store := NewStore(path, testLogger(), StoreOptions{})

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.Version)

	current, err := store.Current()
	require.NoError(t, err)
	assert.Same(t, snap, current)

	t.Run("invalid reload retains previous", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("operations: []\n"), 0o600))

		_, err := store.Load(context.Background())
		var ple *domain.PolicyLoadError
		require.ErrorAs(t, err, &ple)

		current, err := store.Current()
		require.NoError(t, err)
		assert.Same(t, snap, current, "previous snapshot must stay active")
		assert.EqualValues(t, 1, current.Version)
	})

	t.Run("valid reload bumps version", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte(DefaultYAML), 0o600))

		next, err := store.Load(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, 2, next.Version)
		assert.Equal(t, snap.Hash, next.Hash, "same bytes hash identically")

		current, err := store.Current()
		require.NoError(t, err)
		assert.Same(t, next, current)
	})
}

func TestStore_MissingFileIsDefinitive(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "absent.yaml"), testLogger(), StoreOptions{
		Attempts: 3,
		Backoff:  time.Hour, // retrying would hang the test
	})

	done := make(chan error, 1)
	go func() {
		_, err := store.Load(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		var ple *domain.PolicyLoadError
		require.ErrorAs(t, err, &ple)
	case <-time.After(5 * time.Second):
		t.Fatal("missing file was retried instead of failing fast")
	}
}

func TestSnapshot_MaskFor(t *testing.T) {
	snap, err := Parse([]byte(DefaultYAML))
	require.NoError(t, err)

	mask := snap.MaskFor(domain.RoleCompliance, "ledger.query")
	assert.True(t, mask.Covers("ssn_last4"))
	assert.True(t, mask.Covers("income_cents"))
	assert.False(t, mask.Covers("applicant_name"))

	assert.True(t, snap.MaskFor(domain.RoleAdmin, "ledger.query").Empty())
}
