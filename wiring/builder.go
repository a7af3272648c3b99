package wiring

import (
	"cmp"
	"slices"

	bundlestate "github.com/albertocavalcante/go-bundlestate"
)

// New builds the projection of snap.
func New(snap *bundlestate.Snapshot) *Wiring {
	w := &Wiring{
		Timestamp: snap.Timestamp,
		Strict:    snap.Strict,
		index:     make(map[*bundlestate.Bundle]*Node, len(snap.Bundles)),
	}

	// First pass: create all nodes
	for _, v := range snap.Bundles {
		n := &Node{
			Bundle:        v.Bundle,
			Capabilities:  v.Capabilities,
			Requirements:  v.Requirements,
			RequiredWires: v.Wires,
			Hosts:         v.Hosts,
		}
		w.nodes = append(w.nodes, n)
		w.index[v.Bundle] = n
	}

	// Second pass: reverse edges
	for _, n := range w.nodes {
		deps := make(map[*bundlestate.Bundle]bool)
		for _, wire := range n.RequiredWires {
			p := wire.Provider()
			if pn := w.index[p]; pn != nil && p != n.Bundle {
				pn.ProvidedWires = append(pn.ProvidedWires, wire)
				deps[p] = true
			}
		}
		for p := range deps {
			n.Dependencies = append(n.Dependencies, p)
			w.index[p].Dependents = append(w.index[p].Dependents, n.Bundle)
		}
		for _, h := range n.Hosts {
			if hn := w.index[h]; hn != nil {
				hn.Fragments = append(hn.Fragments, n.Bundle)
			}
		}
	}
	for _, n := range w.nodes {
		slices.SortFunc(n.Dependencies, compareBundles)
		slices.SortFunc(n.Dependents, compareBundles)
		slices.SortFunc(n.Fragments, compareBundles)
	}
	return w
}

func compareBundles(a, b *bundlestate.Bundle) int {
	if c := cmp.Compare(a.ID(), b.ID()); c != 0 {
		return c
	}
	// The current bundle sorts before a removal-pending one with the same id.
	switch {
	case a.IsRemovalPending() == b.IsRemovalPending():
		return 0
	case b.IsRemovalPending():
		return -1
	default:
		return 1
	}
}
