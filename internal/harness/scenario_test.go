package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalScenario = `
name: minimal
description: loads one scope
actor: alice
scopes:
  - main-feed
steps:
  - action: load
    scope: main-feed
`

func TestLoadScenario_Minimal(t *testing.T) {
	scenario, err := LoadScenario(writeScenario(t, minimalScenario))
	require.NoError(t, err)
	assert.Equal(t, "minimal", scenario.Name)
	assert.Equal(t, "alice", scenario.Actor)
	require.Len(t, scenario.Steps, 1)
	assert.Equal(t, StepLoad, scenario.Steps[0].Action)
}

func TestLoadScenario_RejectsUnknownField(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, `
name: typo
description: has a typo
actor: alice
scopes: [main-feed]
steps:
  - action: load
    scope: main-feed
assertion:
  - type: trace_count
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse scenario")
}

func TestLoadScenario_RejectsMissingActor(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, `
name: no-actor
description: missing actor
scopes: [main-feed]
steps:
  - action: load
    scope: main-feed
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "actor is required")
}

func TestLoadScenario_RejectsUnknownAction(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, `
name: bad-action
description: step action does not exist
actor: alice
scopes: [main-feed]
steps:
  - action: teleport
    scope: main-feed
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown action "teleport"`)
}

func TestLoadScenario_RejectsUnsavedCommentAlias(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, `
name: dangling-comment
description: delete-comment references an alias no comment step saved
actor: alice
scopes: [main-feed]
steps:
  - action: delete-comment
    scope: main-feed
    comment_id: c1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never saved")
}

func TestLoadScenario_RejectsDuplicatePostAlias(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, `
name: dup-alias
description: two seed posts share an alias
actor: alice
seed:
  posts:
    - alias: harbor
      author: bob
    - alias: harbor
      author: carol
scopes: [main-feed]
steps:
  - action: load
    scope: main-feed
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate alias")
}

func TestLoadScenario_RejectsExpectErrorOnRemoteStep(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, `
name: bad-expect
description: expect_error cannot apply to a remote actor step
actor: alice
seed:
  posts:
    - alias: harbor
      author: bob
scopes: [main-feed]
steps:
  - action: like
    post: harbor
    actor: carol
    expect_error: ROLLED_BACK
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expect_error only applies")
}

func TestLoadScenario_ScenarioFilesParse(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	for _, path := range paths {
		_, err := LoadScenario(path)
		assert.NoError(t, err, path)
	}
}
