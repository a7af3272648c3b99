package wiring

import (
	"slices"

	bundlestate "github.com/albertocavalcante/go-bundlestate"
)

// Get returns the node of b, or nil if b is not part of the projection.
func (w *Wiring) Get(b *bundlestate.Bundle) *Node {
	return w.index[b]
}

// Nodes returns every node ordered by bundle id.
func (w *Wiring) Nodes() []*Node {
	return slices.Clone(w.nodes)
}

// GetByName returns the nodes of the bundles named name.
func (w *Wiring) GetByName(name string) []*Node {
	var out []*Node
	for _, n := range w.nodes {
		if n.Bundle.SymbolicName() == name {
			out = append(out, n)
		}
	}
	return out
}

// Capabilities returns the capabilities b provides, restricted to
// namespace unless it is empty.
func (w *Wiring) Capabilities(b *bundlestate.Bundle, namespace string) []*bundlestate.Capability {
	n := w.index[b]
	if n == nil {
		return nil
	}
	var out []*bundlestate.Capability
	for _, c := range n.Capabilities {
		if namespace == "" || c.Namespace == namespace {
			out = append(out, c)
		}
	}
	return out
}

// Requirements returns the requirements of b, restricted to namespace
// unless it is empty.
func (w *Wiring) Requirements(b *bundlestate.Bundle, namespace string) []*bundlestate.Requirement {
	n := w.index[b]
	if n == nil {
		return nil
	}
	var out []*bundlestate.Requirement
	for _, r := range n.Requirements {
		if namespace == "" || r.Namespace == namespace {
			out = append(out, r)
		}
	}
	return out
}

// Wires returns the wires of b in direction dir, restricted to namespace
// unless it is empty.
func (w *Wiring) Wires(b *bundlestate.Bundle, namespace string, dir Direction) []*bundlestate.Wire {
	n := w.index[b]
	if n == nil {
		return nil
	}
	src := n.RequiredWires
	if dir == Provided {
		src = n.ProvidedWires
	}
	var out []*bundlestate.Wire
	for _, wire := range src {
		if namespace == "" || wire.Requirement.Namespace == namespace {
			out = append(out, wire)
		}
	}
	return out
}

// VisiblePackages returns the packages visible to b: its imported
// packages first, including those imported by fragments attached to b,
// then the packages exported by the bundles it requires,
// following reexported require-bundle wires breadth first. Exports of
// fragments attached to a required bundle count as the bundle's own.
// Internal packages and packages whose friends list excludes b are skipped.
// The first source of a package name shadows later ones.
func (w *Wiring) VisiblePackages(b *bundlestate.Bundle) []*bundlestate.Capability {
	n := w.index[b]
	if n == nil {
		return nil
	}
	var out []*bundlestate.Capability
	seen := make(map[string]bool)
	add := func(c *bundlestate.Capability) {
		if !seen[c.Name] {
			seen[c.Name] = true
			out = append(out, c)
		}
	}

	for _, wire := range w.Wires(b, bundlestate.NamespacePackage, Required) {
		add(wire.Capability)
	}
	for _, frag := range n.Fragments {
		for _, wire := range w.Wires(frag, bundlestate.NamespacePackage, Required) {
			add(wire.Capability)
		}
	}

	visited := map[*bundlestate.Bundle]bool{b: true}
	var queue []*bundlestate.Bundle
	for _, wire := range w.Wires(b, bundlestate.NamespaceBundle, Required) {
		if p := wire.Provider(); !visited[p] {
			visited[p] = true
			queue = append(queue, p)
		}
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		cn := w.index[current]
		if cn == nil {
			continue
		}

		sources := []*bundlestate.Bundle{current}
		sources = append(sources, cn.Fragments...)
		for _, src := range sources {
			for _, c := range w.Capabilities(src, bundlestate.NamespacePackage) {
				if w.visibleTo(c, b) {
					add(c)
				}
			}
		}

		for _, wire := range w.Wires(current, bundlestate.NamespaceBundle, Required) {
			p := wire.Provider()
			if wire.Requirement.Reexport() && !visited[p] {
				visited[p] = true
				queue = append(queue, p)
			}
		}
	}
	return out
}

func (w *Wiring) visibleTo(c *bundlestate.Capability, b *bundlestate.Bundle) bool {
	pkg := c.Package()
	if pkg == nil {
		return false
	}
	if pkg.Internal {
		return false
	}
	if w.Strict && len(pkg.Friends) > 0 {
		return slices.Contains(pkg.Friends, b.SymbolicName())
	}
	return true
}

// TransitiveDependencies returns every bundle b depends on, directly or
// not, in breadth-first order.
func (w *Wiring) TransitiveDependencies(b *bundlestate.Bundle) []*bundlestate.Bundle {
	return w.walk(b, func(n *Node) []*bundlestate.Bundle { return n.Dependencies })
}

// TransitiveDependents returns every bundle depending on b, directly or
// not, in breadth-first order (closest dependents first).
func (w *Wiring) TransitiveDependents(b *bundlestate.Bundle) []*bundlestate.Bundle {
	return w.walk(b, func(n *Node) []*bundlestate.Bundle { return n.Dependents })
}

func (w *Wiring) walk(b *bundlestate.Bundle, next func(*Node) []*bundlestate.Bundle) []*bundlestate.Bundle {
	var result []*bundlestate.Bundle
	visited := map[*bundlestate.Bundle]bool{b: true}
	queue := []*bundlestate.Bundle{b}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		n := w.index[current]
		if n == nil {
			continue
		}
		for _, dep := range next(n) {
			if !visited[dep] {
				visited[dep] = true
				result = append(result, dep)
				queue = append(queue, dep)
			}
		}
	}
	return result
}

// Path returns the shortest dependency path from one bundle to another,
// or nil if there is none.
func (w *Wiring) Path(from, to *bundlestate.Bundle) []*bundlestate.Bundle {
	if from == to {
		return []*bundlestate.Bundle{from}
	}

	prev := map[*bundlestate.Bundle]*bundlestate.Bundle{from: nil}
	queue := []*bundlestate.Bundle{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		n := w.index[current]
		if n == nil {
			continue
		}
		for _, dep := range n.Dependencies {
			if _, seen := prev[dep]; seen {
				continue
			}
			prev[dep] = current
			if dep == to {
				var path []*bundlestate.Bundle
				for at := dep; at != nil; at = prev[at] {
					path = append(path, at)
				}
				slices.Reverse(path)
				return path
			}
			queue = append(queue, dep)
		}
	}
	return nil
}

// Roots returns the bundles nothing depends on.
func (w *Wiring) Roots() []*bundlestate.Bundle {
	var roots []*bundlestate.Bundle
	for _, n := range w.nodes {
		if len(n.Dependents) == 0 {
			roots = append(roots, n.Bundle)
		}
	}
	return roots
}

// FindCycles returns the dependency cycles of the projection. Import
// wires may legitimately form cycles; require-bundle and host wires never
// do.
func (w *Wiring) FindCycles() [][]*bundlestate.Bundle {
	var cycles [][]*bundlestate.Bundle
	visited := make(map[*bundlestate.Bundle]bool)
	recStack := make(map[*bundlestate.Bundle]bool)
	var path []*bundlestate.Bundle

	var findCycles func(b *bundlestate.Bundle)
	findCycles = func(b *bundlestate.Bundle) {
		visited[b] = true
		recStack[b] = true
		path = append(path, b)

		if n := w.index[b]; n != nil {
			for _, dep := range n.Dependencies {
				if !visited[dep] {
					findCycles(dep)
				} else if recStack[dep] {
					start := slices.Index(path, dep)
					if start >= 0 {
						cycles = append(cycles, slices.Clone(path[start:]))
					}
				}
			}
		}

		path = path[:len(path)-1]
		recStack[b] = false
	}

	for _, n := range w.nodes {
		if !visited[n.Bundle] {
			findCycles(n.Bundle)
		}
	}
	return cycles
}

// Stats returns statistics about the projection.
func (w *Wiring) Stats() Stats {
	stats := Stats{
		Bundles:          len(w.nodes),
		WiresByNamespace: make(map[string]int),
	}
	for _, n := range w.nodes {
		stats.Wires += len(n.RequiredWires)
		for _, wire := range n.RequiredWires {
			stats.WiresByNamespace[wire.Requirement.Namespace]++
		}
		if len(n.Hosts) > 0 {
			stats.Fragments++
		}
		if n.Bundle.IsRemovalPending() {
			stats.RemovalPending++
		}
	}
	stats.MaxDepth = w.maxDepth()
	return stats
}

func (w *Wiring) maxDepth() int {
	depths := make(map[*bundlestate.Bundle]int)
	onPath := make(map[*bundlestate.Bundle]bool)
	var maxDepth int

	var dfs func(b *bundlestate.Bundle, depth int)
	dfs = func(b *bundlestate.Bundle, depth int) {
		// A node already on the current path closes a cycle.
		if onPath[b] {
			return
		}
		if d, ok := depths[b]; ok && d >= depth {
			return
		}
		depths[b] = depth
		maxDepth = max(maxDepth, depth)

		n := w.index[b]
		if n == nil {
			return
		}
		onPath[b] = true
		for _, dep := range n.Dependencies {
			dfs(dep, depth+1)
		}
		delete(onPath, b)
	}

	for _, root := range w.Roots() {
		dfs(root, 0)
	}
	return maxDepth
}
