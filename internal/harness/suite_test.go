package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDir_Testdata(t *testing.T) {
	suite, err := RunDir("testdata/scenarios")
	require.NoError(t, err)

	assert.Equal(t, 3, suite.TotalScenarios)
	assert.Equal(t, 3, suite.Passed)
	assert.Equal(t, 0, suite.Failed)
	assert.Empty(t, suite.Failures)
}

func TestRunDir_CountsFailures(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "a_broken.yaml", "name: broken\n")
	writeScenario(t, dir, "b_failing.yaml", `
name: failing
description: "Expectation does not hold"
steps:
  - op: get
    args: { name: Widget }
    expect:
      case: ok
`)
	writeScenario(t, dir, "c_setup.yaml", `
name: bad_setup
description: "Setup refuses"
setup:
  - op: remove
    args: { name: Widget, quantity: 1 }
steps:
  - op: get
    args: { name: Widget }
`)
	writeScenario(t, dir, "d_passing.yaml", `
name: passing
description: "Absent record"
steps:
  - op: get
    args: { name: Widget }
    expect:
      case: NOT_FOUND
`)
	writeScenario(t, dir, "notes.txt", "ignored")

	suite, err := RunDir(dir)
	require.NoError(t, err)

	assert.Equal(t, 4, suite.TotalScenarios)
	assert.Equal(t, 1, suite.Passed)
	assert.Equal(t, 3, suite.Failed)
	require.Len(t, suite.Failures, 3)

	assert.Equal(t, "a_broken.yaml", suite.Failures[0].Scenario)
	assert.Contains(t, suite.Failures[0].Error, "description is required")
	assert.Equal(t, "failing", suite.Failures[1].Scenario)
	assert.Contains(t, suite.Failures[1].Error, "expected case ok, got NOT_FOUND")
	assert.Equal(t, "bad_setup", suite.Failures[2].Scenario)
	assert.Contains(t, suite.Failures[2].Error, "failed to execute setup")
}

func TestRunDir_Empty(t *testing.T) {
	suite, err := RunDir(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, suite.TotalScenarios)
}
