package config

import "sort"

// detectCycle returns the nodes participating in a dependency cycle, or
// nil if the flow's edges form a DAG.
func detectCycle(flow FlowDef) []string {
	graph := make(map[string][]string, len(flow.Nodes))
	for _, n := range flow.Nodes {
		graph[nodeID(n.Step, n.Index)] = nil
	}
	for _, e := range flow.Edges {
		head := nodeID(e.Head, e.HeadIndex)
		graph[head] = append(graph[head], nodeID(e.Tail, e.TailIndex))
	}

	visiting := make(map[string]bool, len(graph))
	visited := make(map[string]bool, len(graph))
	var stack []string

	var cycle []string
	var dfs func(string) bool
	dfs = func(node string) bool {
		visiting[node] = true
		stack = append(stack, node)

		for _, dep := range graph[node] {
			if visited[dep] {
				continue
			}
			if visiting[dep] {
				idx := indexOf(stack, dep)
				if idx >= 0 {
					cycle = append([]string{}, stack[idx:]...)
					cycle = append(cycle, dep)
				}
				return true
			}
			if dfs(dep) {
				return true
			}
		}

		visiting[node] = false
		visited[node] = true
		stack = stack[:len(stack)-1]
		return false
	}

	ids := make([]string, 0, len(graph))
	for id := range graph {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if visited[id] {
			continue
		}
		if dfs(id) {
			break
		}
	}

	return cycle
}

func indexOf(slice []string, target string) int {
	for i, v := range slice {
		if v == target {
			return i
		}
	}
	return -1
}
