package wiring

import (
	bundlestate "github.com/albertocavalcante/go-bundlestate"
)

// Direction selects which side of a wire a query starts from.
type Direction int

const (
	// Required selects wires from the bundle's requirements.
	Required Direction = iota
	// Provided selects wires to the bundle's capabilities.
	Provided
)

func (d Direction) String() string {
	if d == Provided {
		return "provided"
	}
	return "required"
}

// Wiring is the wiring projection of one snapshot.
type Wiring struct {
	// Timestamp is the state timestamp the snapshot was taken at.
	Timestamp int64

	// Strict reports whether friends restrictions apply.
	Strict bool

	nodes []*Node
	index map[*bundlestate.Bundle]*Node
}

// Node holds the wiring of one resolved bundle.
type Node struct {
	Bundle       *bundlestate.Bundle
	Capabilities []*bundlestate.Capability
	Requirements []*bundlestate.Requirement

	// RequiredWires are the wires from this bundle's requirements.
	RequiredWires []*bundlestate.Wire

	// ProvidedWires are the wires from other bundles to this bundle.
	ProvidedWires []*bundlestate.Wire

	// Dependencies are the providers of RequiredWires, ordered by id.
	Dependencies []*bundlestate.Bundle

	// Dependents are the requirers of ProvidedWires, ordered by id.
	Dependents []*bundlestate.Bundle

	Hosts     []*bundlestate.Bundle
	Fragments []*bundlestate.Bundle
}

// Stats summarizes a Wiring.
type Stats struct {
	// Bundles is the number of resolved bundles.
	Bundles int

	// Wires is the total number of wires.
	Wires int

	// WiresByNamespace counts wires per requirement namespace.
	WiresByNamespace map[string]int

	// Fragments is the number of attached fragments.
	Fragments int

	// RemovalPending is the number of resolved removal-pending bundles.
	RemovalPending int

	// MaxDepth is the length of the longest acyclic dependency chain.
	MaxDepth int
}
