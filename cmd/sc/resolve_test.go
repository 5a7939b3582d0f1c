package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveCommandResolvesLocalDataroots(t *testing.T) {
	dir := t.TempDir()
	path := writePipelineFile(t, fmt.Sprintf(`name: heartbeat
flow:
  name: synflow
  nodes:
    - step: syn
      tool: yosys
      task: syn_asic
dataroots:
  - name: pdk
    source: %s
`, dir))

	output, err := runCommand(t, "resolve", "-c", path)
	require.NoError(t, err)
	require.Contains(t, output, "pdk -> "+dir)
}

func TestResolveCommandWithoutDataroots(t *testing.T) {
	path := writePipelineFile(t, `name: heartbeat
flow:
  name: synflow
  nodes:
    - step: syn
      tool: yosys
      task: syn_asic
`)

	output, err := runCommand(t, "resolve", "-c", path)
	require.NoError(t, err)
	require.Contains(t, output, "No dataroots registered.")
}

func TestResolveCommandUnreachableSource(t *testing.T) {
	path := writePipelineFile(t, `name: heartbeat
flow:
  name: synflow
  nodes:
    - step: syn
      tool: yosys
      task: syn_asic
dataroots:
  - name: pdk
    source: /nonexistent/pdk/tree
`)

	_, err := runCommand(t, "resolve", "-c", path)
	require.ErrorContains(t, err, "unable to locate 'pdk'")
}
