package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rtrevinnoc/siliconcompiler/internal/flowgraph"
	scerrors "github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

func testPipeline() *Pipeline {
	return &Pipeline{
		Name: "heartbeat",
		Flow: FlowDef{
			Name: "asicflow",
			Nodes: []NodeDef{
				{Step: "syn", Index: "0", Tool: "yosys", Task: "syn_asic"},
				{Step: "floorplan", Index: "0", Tool: "openroad", Task: "floorplan_init"},
				{Step: "place", Index: "0", Tool: "openroad", Task: "global_place",
					Args: []string{"-fast"}},
			},
			Edges: []EdgeDef{
				{Tail: "syn", Head: "floorplan", TailIndex: "0", HeadIndex: "0"},
				{Tail: "floorplan", Head: "place", TailIndex: "0", HeadIndex: "0"},
			},
		},
		Options: OptionsDef{
			From:    []string{"floorplan"},
			JobName: "rtl2gds",
		},
		Env: map[string]string{"PDK_ROOT": "/opt/pdk"},
		Dataroots: []DatarootDef{
			{Name: "lambdapdk",
				Source: "git+https://github.com/siliconcompiler/lambdapdk.git",
				Ref:    "v1.0"},
		},
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	proj, err := Build(testPipeline())
	require.NoError(t, err)
	require.Equal(t, "heartbeat", proj.Name())
	require.Equal(t, "rtl2gds", proj.JobName())

	flow, err := proj.Flow()
	require.NoError(t, err)
	require.Equal(t, "asicflow", flow.Name())
	require.Len(t, flow.Nodes(), 3)

	args, err := flow.NodeArgs(flowgraph.Node{Step: "place", Index: "0"})
	require.NoError(t, err)
	require.Equal(t, []string{"-fast"}, args)

	runtime, err := proj.Runtime()
	require.NoError(t, err)
	require.Equal(t, []flowgraph.Node{
		{Step: "floorplan", Index: "0"},
		{Step: "place", Index: "0"},
	}, runtime.Nodes())

	value, ok := proj.EnvVar("PDK_ROOT")
	require.True(t, ok)
	require.Equal(t, "/opt/pdk", value)

	source, ref, err := proj.Dataroot("lambdapdk")
	require.NoError(t, err)
	require.Equal(t, "git+https://github.com/siliconcompiler/lambdapdk.git", source)
	require.Equal(t, "v1.0", ref)
}

func TestBuild_NilPipeline(t *testing.T) {
	t.Parallel()

	_, err := Build(nil)
	var validationErr *scerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestBuild_EdgeToUndeclaredNode(t *testing.T) {
	t.Parallel()

	pipeline := testPipeline()
	pipeline.Flow.Edges = append(pipeline.Flow.Edges, EdgeDef{
		Tail: "place", Head: "route", TailIndex: "0", HeadIndex: "0",
	})

	_, err := Build(pipeline)
	var graphErr *scerrors.GraphError
	require.ErrorAs(t, err, &graphErr)
	require.Contains(t, graphErr.Message, "undeclared node")
}

func TestBuild_RoundTripThroughLoad(t *testing.T) {
	t.Parallel()

	path := writeTempPipeline(t, `name: heartbeat
flow:
  name: synflow
  nodes:
    - step: syn
      tool: yosys
      task: syn_asic
options:
  cachedir: /var/cache/sc
`)

	pipeline, err := Load(path)
	require.NoError(t, err)

	proj, err := Build(pipeline)
	require.NoError(t, err)
	require.Equal(t, "/var/cache/sc", proj.CacheDir())

	flow, err := proj.Flow()
	require.NoError(t, err)
	require.Equal(t, "synflow", flow.Name())
	require.True(t, flow.Has(flowgraph.Node{Step: "syn", Index: "0"}))
}
