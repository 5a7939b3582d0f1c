package flowgraph

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rtrevinnoc/siliconcompiler/internal/schema"
	"github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

func newLinearFlow(t *testing.T) *Flowgraph {
	t.Helper()

	f := New("asicflow")
	_, err := f.AddNode("syn", "yosys", "syn_asic")
	require.NoError(t, err)
	_, err = f.AddNode("floorplan", "openroad", "floorplan")
	require.NoError(t, err)
	_, err = f.AddNode("place", "openroad", "place")
	require.NoError(t, err)

	require.NoError(t, f.AddEdge("syn", "floorplan"))
	require.NoError(t, f.AddEdge("floorplan", "place"))
	return f
}

func TestParseNode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Node
		wantErr bool
	}{
		{name: "bare step", input: "syn", want: Node{Step: "syn", Index: "0"}},
		{name: "step and index", input: "place/1", want: Node{Step: "place", Index: "1"}},
		{name: "empty", input: "", wantErr: true},
		{name: "missing step", input: "/0", wantErr: true},
		{name: "too many segments", input: "a/b/c", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseNode(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestAddNodeDefaults(t *testing.T) {
	t.Parallel()

	f := New("asicflow")
	node, err := f.AddNode("syn", "yosys", "syn_asic")
	require.NoError(t, err)
	require.Equal(t, Node{Step: "syn", Index: "0"}, node)

	tool, err := f.NodeTool(node)
	require.NoError(t, err)
	require.Equal(t, "yosys", tool)

	task, err := f.NodeTask(node)
	require.NoError(t, err)
	require.Equal(t, "syn_asic", task)

	args, err := f.NodeArgs(node)
	require.NoError(t, err)
	require.Empty(t, args)
}

func TestAddNodeWithOptions(t *testing.T) {
	t.Parallel()

	f := New("asicflow")
	node, err := f.AddNode("place", "openroad", "place",
		WithIndex("2"), WithArgs("-threads", "4"))
	require.NoError(t, err)
	require.Equal(t, "place/2", node.String())

	args, err := f.NodeArgs(node)
	require.NoError(t, err)
	require.Equal(t, []string{"-threads", "4"}, args)
}

func TestAddNodeOverwritesMetadata(t *testing.T) {
	t.Parallel()

	f := New("asicflow")
	node, err := f.AddNode("syn", "yosys", "syn_asic")
	require.NoError(t, err)

	_, err = f.AddNode("syn", "vivado", "syn_fpga")
	require.NoError(t, err)

	tool, err := f.NodeTool(node)
	require.NoError(t, err)
	require.Equal(t, "vivado", tool)
}

func TestAddNodeValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		step string
		tool string
		task string
		opts []NodeOption
	}{
		{name: "empty step", step: "", tool: "yosys", task: "syn"},
		{name: "reserved step", step: "default", tool: "yosys", task: "syn"},
		{name: "global step", step: "global", tool: "yosys", task: "syn"},
		{name: "step with slash", step: "syn/0", tool: "yosys", task: "syn"},
		{name: "missing tool", step: "syn", tool: "", task: "syn"},
		{name: "missing task", step: "syn", tool: "yosys", task: ""},
		{name: "reserved index", step: "syn", tool: "yosys", task: "syn",
			opts: []NodeOption{WithIndex("default")}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := New("asicflow")
			_, err := f.AddNode(tt.step, tt.tool, tt.task, tt.opts...)
			require.Error(t, err)

			var graphErr *errors.GraphError
			require.ErrorAs(t, err, &graphErr)
			require.Equal(t, "asicflow", graphErr.Flow)
		})
	}
}

func TestAddEdgeTracksInputOrder(t *testing.T) {
	t.Parallel()

	f := New("asicflow")
	_, err := f.AddNode("place", "openroad", "place")
	require.NoError(t, err)
	_, err = f.AddNode("place", "openroad", "place", WithIndex("1"))
	require.NoError(t, err)
	_, err = f.AddNode("cts", "openroad", "cts")
	require.NoError(t, err)

	require.NoError(t, f.AddEdge("place", "cts", TailIndex("1")))
	require.NoError(t, f.AddEdge("place", "cts"))

	inputs, err := f.NodeInputs(Node{Step: "cts", Index: "0"})
	require.NoError(t, err)
	require.Equal(t, []Node{
		{Step: "place", Index: "1"},
		{Step: "place", Index: "0"},
	}, inputs)
}

func TestAddEdgeDuplicateIsNoop(t *testing.T) {
	t.Parallel()

	f := newLinearFlow(t)
	require.NoError(t, f.AddEdge("syn", "floorplan"))

	inputs, err := f.NodeInputs(Node{Step: "floorplan", Index: "0"})
	require.NoError(t, err)
	require.Equal(t, []Node{{Step: "syn", Index: "0"}}, inputs)
}

func TestAddEdgeUndeclaredNode(t *testing.T) {
	t.Parallel()

	f := New("asicflow")
	_, err := f.AddNode("syn", "yosys", "syn_asic")
	require.NoError(t, err)

	err = f.AddEdge("syn", "ghost")
	require.Error(t, err)
	require.Contains(t, err.Error(), "undeclared node ghost/0")

	err = f.AddEdge("ghost", "syn")
	require.Error(t, err)
	require.Contains(t, err.Error(), "undeclared node ghost/0")
}

func TestNodesSortedNumerically(t *testing.T) {
	t.Parallel()

	f := New("asicflow")
	for _, index := range []string{"10", "2", "0"} {
		_, err := f.AddNode("place", "openroad", "place", WithIndex(index))
		require.NoError(t, err)
	}

	require.Equal(t, []Node{
		{Step: "place", Index: "0"},
		{Step: "place", Index: "2"},
		{Step: "place", Index: "10"},
	}, f.Nodes())
}

func TestEntryAndExitNodes(t *testing.T) {
	t.Parallel()

	f := newLinearFlow(t)

	entries, err := f.EntryNodes()
	require.NoError(t, err)
	require.Equal(t, []Node{{Step: "syn", Index: "0"}}, entries)

	exits, err := f.ExitNodes()
	require.NoError(t, err)
	require.Equal(t, []Node{{Step: "place", Index: "0"}}, exits)
}

func TestExecutionOrderLevels(t *testing.T) {
	t.Parallel()

	f := New("asicflow")
	_, err := f.AddNode("syn", "yosys", "syn_asic")
	require.NoError(t, err)
	_, err = f.AddNode("route", "openroad", "route")
	require.NoError(t, err)
	for _, index := range []string{"0", "1"} {
		_, err = f.AddNode("place", "openroad", "place", WithIndex(index))
		require.NoError(t, err)
	}
	for _, index := range []string{"0", "1"} {
		require.NoError(t, f.AddEdge("syn", "place", HeadIndex(index)))
		require.NoError(t, f.AddEdge("place", "route", TailIndex(index)))
	}

	levels, err := f.ExecutionOrder(false)
	require.NoError(t, err)
	require.Equal(t, [][]Node{
		{{Step: "syn", Index: "0"}},
		{{Step: "place", Index: "0"}, {Step: "place", Index: "1"}},
		{{Step: "route", Index: "0"}},
	}, levels)

	reversed, err := f.ExecutionOrder(true)
	require.NoError(t, err)
	require.Equal(t, [][]Node{
		{{Step: "route", Index: "0"}},
		{{Step: "place", Index: "0"}, {Step: "place", Index: "1"}},
		{{Step: "syn", Index: "0"}},
	}, reversed)
}

func TestValidateDetectsCycle(t *testing.T) {
	t.Parallel()

	f := newLinearFlow(t)
	require.NoError(t, f.AddEdge("place", "syn"))

	err := f.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle detected involving")
}

func TestValidateDetectsMissingMetadata(t *testing.T) {
	t.Parallel()

	f := newLinearFlow(t)
	require.NoError(t, f.Store().Set(schema.Key("floorplan", "0", "task"), ""))

	err := f.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "floorplan/0 is missing tool or task metadata")
}

func TestValidateDetectsUndeclaredInput(t *testing.T) {
	t.Parallel()

	f := newLinearFlow(t)

	// Simulates a stale manifest where an input survived its node.
	require.NoError(t, f.Store().Add(schema.Key("place", "0", "input"),
		[]string{"ghost", "0"}))

	err := f.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "references undeclared input ghost/0")
}

func TestRemoveNodeSplicesEdges(t *testing.T) {
	t.Parallel()

	f := newLinearFlow(t)
	require.NoError(t, f.RemoveNode("floorplan", "0"))

	require.False(t, f.Has(Node{Step: "floorplan", Index: "0"}))
	require.Equal(t, []Node{
		{Step: "place", Index: "0"},
		{Step: "syn", Index: "0"},
	}, f.Nodes())

	inputs, err := f.NodeInputs(Node{Step: "place", Index: "0"})
	require.NoError(t, err)
	require.Equal(t, []Node{{Step: "syn", Index: "0"}}, inputs)
}

func TestRemoveNodeDeduplicatesSplicedInputs(t *testing.T) {
	t.Parallel()

	f := New("asicflow")
	for _, step := range []string{"syn", "floorplan", "place"} {
		_, err := f.AddNode(step, "openroad", step)
		require.NoError(t, err)
	}
	require.NoError(t, f.AddEdge("syn", "floorplan"))
	require.NoError(t, f.AddEdge("syn", "place"))
	require.NoError(t, f.AddEdge("floorplan", "place"))

	require.NoError(t, f.RemoveNode("floorplan", "0"))

	inputs, err := f.NodeInputs(Node{Step: "place", Index: "0"})
	require.NoError(t, err)
	require.Equal(t, []Node{{Step: "syn", Index: "0"}}, inputs)
}

func TestRemoveNodeEveryIndex(t *testing.T) {
	t.Parallel()

	f := New("asicflow")
	_, err := f.AddNode("syn", "yosys", "syn_asic")
	require.NoError(t, err)
	for _, index := range []string{"0", "1"} {
		_, err = f.AddNode("place", "openroad", "place", WithIndex(index))
		require.NoError(t, err)
		require.NoError(t, f.AddEdge("syn", "place", HeadIndex(index)))
	}

	require.NoError(t, f.RemoveNode("place", ""))
	require.Equal(t, []Node{{Step: "syn", Index: "0"}}, f.Nodes())
}

func TestRemoveNodeUnknown(t *testing.T) {
	t.Parallel()

	f := newLinearFlow(t)
	err := f.RemoveNode("ghost", "0")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ghost/0 is not declared")
}

func TestNodeWeightsAndGoals(t *testing.T) {
	t.Parallel()

	f := newLinearFlow(t)
	node := Node{Step: "place", Index: "0"}

	require.NoError(t, f.SetNodeWeight(node, "errors", 1.0))
	require.NoError(t, f.SetNodeGoal(node, "errors", 0))

	weight, err := f.NodeWeight(node, "errors")
	require.NoError(t, err)
	require.Equal(t, 1.0, weight)

	goal, err := f.NodeGoal(node, "errors")
	require.NoError(t, err)
	require.Equal(t, 0.0, goal)

	_, err = f.NodeWeight(node, "holdslack")
	require.Error(t, err)
}

func TestFromStoreManifestRoundTrip(t *testing.T) {
	t.Parallel()

	f := newLinearFlow(t)

	var buf bytes.Buffer
	require.NoError(t, f.Store().WriteManifest(&buf))

	restored := schema.NewNamedStore("asicflow")
	require.NoError(t, restored.ReadManifest(&buf))

	clone := FromStore(restored)
	require.Equal(t, "asicflow", clone.Name())
	require.Equal(t, f.Nodes(), clone.Nodes())

	tool, err := clone.NodeTool(Node{Step: "syn", Index: "0"})
	require.NoError(t, err)
	require.Equal(t, "yosys", tool)

	inputs, err := clone.NodeInputs(Node{Step: "place", Index: "0"})
	require.NoError(t, err)
	require.Equal(t, []Node{{Step: "floorplan", Index: "0"}}, inputs)

	// The restored graph keeps its node template, so it stays editable.
	_, err = clone.AddNode("route", "openroad", "route")
	require.NoError(t, err)
}
