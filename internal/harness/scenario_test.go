package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/testutil"
)

const minimalScenario = `
name: minimal
description: one pull
steps:
  - pull:
      actor: { tenant: t1, user: owner1 }
      device_id: dev-1
      scope: { mode: all_outlets }
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Steps, 1)
	require.NotNil(t, s.Steps[0].Pull)
	assert.Equal(t, "t1/owner1", s.Steps[0].Pull.Actor.String())
	assert.Equal(t, "all_outlets", s.Steps[0].Pull.Scope.Mode)
	assert.Empty(t, s.Fixtures)
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "device_token: abc\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_ValidationErrors(t *testing.T) {
	pull := `
  - pull:
      actor: { tenant: t1, user: owner1 }
      scope: { mode: all_outlets }
`
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "description: d\nsteps:" + pull,
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: n\nsteps:" + pull,
			want: "description is required",
		},
		{
			name: "no steps",
			yaml: "name: n\ndescription: d\n",
			want: "steps list is required",
		},
		{
			name: "bad start",
			yaml: "name: n\ndescription: d\nstart: yesterday\nsteps:" + pull,
			want: "start:",
		},
		{
			name: "two actions",
			yaml: "name: n\ndescription: d\nsteps:\n  - advance: 1h\n    pull:\n      actor: { tenant: t1, user: owner1 }\n",
			want: "exactly one of push, pull, claim or advance",
		},
		{
			name: "empty step",
			yaml: "name: n\ndescription: d\nsteps:\n  - name: nothing\n",
			want: "exactly one of push, pull, claim or advance",
		},
		{
			name: "negative advance",
			yaml: "name: n\ndescription: d\nsteps:\n  - advance: -5m\n",
			want: "advance must be positive",
		},
		{
			name: "unparsable advance",
			yaml: "name: n\ndescription: d\nsteps:\n  - advance: soon\n",
			want: "advance:",
		},
		{
			name: "advance with expect",
			yaml: "name: n\ndescription: d\nsteps:\n  - advance: 1h\n    expect: { reject: X }\n",
			want: "advance takes no expect",
		},
		{
			name: "missing actor",
			yaml: "name: n\ndescription: d\nsteps:\n  - pull:\n      scope: { mode: all_outlets }\n",
			want: "actor needs tenant and user",
		},
		{
			name: "push without mutations",
			yaml: "name: n\ndescription: d\nsteps:\n  - push:\n      actor: { tenant: t1, user: owner1 }\n      device_id: d\n",
			want: "push needs at least one mutation",
		},
		{
			name: "unknown outcome",
			yaml: "name: n\ndescription: d\nsteps:" + pull + "    expect: { outcomes: [accepted] }\n",
			want: `unknown outcome "accepted"`,
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\nsteps:" + pull + "assertions:\n  - type: trace_order\n",
			want: `unknown assertion type "trace_order"`,
		},
		{
			name: "assertion without type",
			yaml: "name: n\ndescription: d\nsteps:" + pull + "assertions:\n  - tenant: t1\n",
			want: "type is required",
		},
		{
			name: "outcome without expect",
			yaml: "name: n\ndescription: d\nsteps:" + pull + "assertions:\n  - { type: outcome, tenant: t1, mutation_id: m1 }\n",
			want: "expect is required for outcome",
		},
		{
			name: "order_state with both selectors",
			yaml: "name: n\ndescription: d\nsteps:" + pull +
				"assertions:\n  - { type: order_state, tenant: t1, mutation_id: m1, order_code: X, expect: { a: 1 } }\n",
			want: "exactly one of mutation_id or order_code",
		},
		{
			name: "change_count without tenant",
			yaml: "name: n\ndescription: d\nsteps:" + pull + "assertions:\n  - { type: change_count, count: 1 }\n",
			want: "tenant is required for change_count",
		},
		{
			name: "quota without expect",
			yaml: "name: n\ndescription: d\nsteps:" + pull + "assertions:\n  - { type: quota, tenant: t1 }\n",
			want: "expect is required for quota",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_ResolvesFixtures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed.yaml"), []byte(testutil.Fixtures), 0o644))
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario+"fixtures: seed.yaml\n"), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "seed.yaml"), s.Fixtures)
}

func TestLoadScenario_MissingFixtures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario+"fixtures: absent.yaml\n"), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixtures file not found")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, p := range paths {
		s, err := LoadScenario(p)
		require.NoError(t, err, p)
		assert.Equal(t, filepath.Base(p), s.Name+".yaml")
	}
}
