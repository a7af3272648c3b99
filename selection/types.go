package selection

import (
	"fmt"

	"github.com/albertocavalcante/go-bundlestate/version"
)

// Element is one versioned unit taking part in selection.
type Element struct {
	ID      int64
	Name    string
	Version version.Version

	// Singleton limits the element's set to one resolved member.
	Singleton bool

	// Resolved marks an element whose resolution is fixed for this solve.
	Resolved bool

	// Previous marks an element that was resolved before the current round.
	Previous bool

	// Disabled excludes the element from the solve.
	Disabled bool

	Dependencies []*Dependency

	// Data is opaque to the solver.
	Data any
}

func (e *Element) String() string {
	return fmt.Sprintf("%s_%s (%d)", e.Name, e.Version, e.ID)
}

// Dependency is a requirement of an element on an element-set.
type Dependency struct {
	Name     string
	Range    version.Range
	Optional bool

	// Multiple wires the dependency to every candidate instead of one.
	Multiple bool

	// Allowed narrows the candidates beyond name and range. Nil allows all.
	Allowed func(*Element) bool

	// Data is opaque to the solver.
	Data any
}

func (d *Dependency) String() string {
	return fmt.Sprintf("%s %s", d.Name, d.Range)
}

// Accepts reports whether candidate satisfies d on name, range and Allowed.
func (d *Dependency) Accepts(candidate *Element) bool {
	if candidate.Name != d.Name || !d.Range.Includes(candidate.Version) {
		return false
	}
	return d.Allowed == nil || d.Allowed(candidate)
}

// Requirer pairs an element with one of its dependencies.
type Requirer struct {
	Element    *Element
	Dependency *Dependency
}

// ElementSet groups the live elements sharing a name.
type ElementSet struct {
	Name string

	// Elements is ordered by descending version, then ascending id.
	Elements []*Element

	// Requirers lists every dependency of a live element on this set.
	Requirers []Requirer
}

// Satisfies returns how many requirers of s accept candidate.
func (s *ElementSet) Satisfies(candidate *Element) int {
	n := 0
	for _, r := range s.Requirers {
		if r.Element != candidate && r.Dependency.Accepts(candidate) {
			n++
		}
	}
	return n
}

// FailureKind classifies why an element could not be resolved.
type FailureKind int

const (
	// FailureMissing means a mandatory dependency has no live candidate.
	FailureMissing FailureKind = iota + 1
	// FailureSingleton means another member of a singleton set was chosen.
	FailureSingleton
	// FailureCycle means the element was disabled to break a dependency cycle.
	FailureCycle
)

func (k FailureKind) String() string {
	switch k {
	case FailureMissing:
		return "missing"
	case FailureSingleton:
		return "singleton"
	case FailureCycle:
		return "cycle"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// Failure explains why an element did not resolve.
type Failure struct {
	Kind FailureKind

	// Dependency is the unsatisfied dependency for FailureMissing and the
	// dependency closing the cycle for FailureCycle.
	Dependency *Dependency

	// Winner is the chosen singleton for FailureSingleton.
	Winner *Element
}

// Result is the outcome of Solve.
type Result struct {
	// Resolved lists the non-fixed elements that resolve, ordered by id.
	Resolved []*Element

	// Wiring maps each dependency of a resolved element to its suppliers.
	// Unsatisfied optional dependencies are absent.
	Wiring map[*Dependency][]*Element

	// Failures holds the reason for each live, non-fixed element that
	// did not resolve.
	Failures map[*Element]Failure

	// CycleBreaks counts the element-sets disabled to break cycles.
	CycleBreaks int
}

// SelectionError reports invalid solver input.
type SelectionError struct {
	Code    string
	Message string
}

func (e *SelectionError) Error() string {
	return e.Message
}
