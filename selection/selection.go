package selection

import (
	"cmp"
	"fmt"
	"slices"
)

// Solve selects the resolvable subset of elements and wires their
// dependencies. A nil policy means LeastPerturbation.
//
// Fixed elements (Resolved) are always part of the solution and are never
// disabled; their dependencies are not wired again. Elements with Disabled
// set take no part at all.
func Solve(elements []*Element, policy Policy) (*Result, error) {
	if policy == nil {
		policy = LeastPerturbation()
	}
	s := &solver{
		policy:   policy,
		sets:     make(map[string]*ElementSet),
		failures: make(map[*Element]Failure),
	}
	for i, e := range elements {
		if e == nil {
			return nil, &SelectionError{
				Code:    "NIL_ELEMENT",
				Message: fmt.Sprintf("element %d is nil", i),
			}
		}
		for j, d := range e.Dependencies {
			if d == nil {
				return nil, &SelectionError{
					Code:    "NIL_DEPENDENCY",
					Message: fmt.Sprintf("%s: dependency %d is nil", e, j),
				}
			}
		}
		if e.Disabled {
			continue
		}
		s.elements = append(s.elements, e)
	}
	slices.SortStableFunc(s.elements, compareElements)
	s.buildSets()

	for {
		in := s.fixedPoint()
		if s.selectSingletons(in) {
			continue
		}
		if s.breakCycle(in) {
			continue
		}
		return s.finish(in), nil
	}
}

type solver struct {
	policy   Policy
	elements []*Element
	sets     map[string]*ElementSet

	// failures holds elements disabled during the solve.
	failures    map[*Element]Failure
	cycleBreaks int
}

func compareElements(a, b *Element) int {
	if c := cmp.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	return b.Version.Compare(a.Version)
}

func (s *solver) buildSets() {
	for _, e := range s.elements {
		set := s.sets[e.Name]
		if set == nil {
			set = &ElementSet{Name: e.Name}
			s.sets[e.Name] = set
		}
		set.Elements = append(set.Elements, e)
	}
	for _, set := range s.sets {
		slices.SortStableFunc(set.Elements, func(a, b *Element) int {
			if c := b.Version.Compare(a.Version); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
	}
	for _, e := range s.elements {
		for _, d := range e.Dependencies {
			if set := s.sets[d.Name]; set != nil {
				set.Requirers = append(set.Requirers, Requirer{Element: e, Dependency: d})
			}
		}
	}
}

func (s *solver) live(e *Element) bool {
	_, failed := s.failures[e]
	return !failed
}

// candidates returns the live elements satisfying d, excluding requirer,
// in set order.
func (s *solver) candidates(requirer *Element, d *Dependency) []*Element {
	set := s.sets[d.Name]
	if set == nil {
		return nil
	}
	var out []*Element
	for _, c := range set.Elements {
		if c != requirer && s.live(c) && d.Accepts(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s *solver) satisfiedBy(e *Element, d *Dependency, in map[*Element]bool) bool {
	for _, c := range s.candidates(e, d) {
		if in[c] {
			return true
		}
	}
	return false
}

// fixedPoint returns the least set containing the fixed elements and every
// live element whose mandatory dependencies have a candidate in the set.
func (s *solver) fixedPoint() map[*Element]bool {
	in := make(map[*Element]bool)
	for _, e := range s.elements {
		if e.Resolved {
			in[e] = true
		}
	}
	for changed := true; changed; {
		changed = false
		for _, e := range s.elements {
			if in[e] || !s.live(e) {
				continue
			}
			ok := true
			for _, d := range e.Dependencies {
				if !d.Optional && !s.satisfiedBy(e, d, in) {
					ok = false
					break
				}
			}
			if ok {
				in[e] = true
				changed = true
			}
		}
	}
	return in
}

// selectSingletons keeps one singleton per set among the resolvable
// elements and disables the others. It reports whether anything changed.
func (s *solver) selectSingletons(in map[*Element]bool) bool {
	changed := false
	for _, name := range s.setNames() {
		set := s.sets[name]
		var members, fixed []*Element
		for _, e := range set.Elements {
			if e.Singleton && in[e] {
				members = append(members, e)
				if e.Resolved {
					fixed = append(fixed, e)
				}
			}
		}
		if len(members) < 2 {
			continue
		}
		var winner *Element
		if len(fixed) > 0 {
			winner = slices.MinFunc(fixed, compareElements)
		} else {
			winner = s.policy.Rank(set, nil, nil, members)[0]
		}
		for _, e := range members {
			if e == winner || e.Resolved {
				continue
			}
			s.failures[e] = Failure{Kind: FailureSingleton, Winner: winner}
			changed = true
		}
	}
	return changed
}

func (s *solver) setNames() []string {
	names := make([]string, 0, len(s.sets))
	for name := range s.sets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// breakCycle disables one element-set taking part in a dependency cycle
// among the blocked elements. It reports whether a cycle was broken.
func (s *solver) breakCycle(in map[*Element]bool) bool {
	blocked := s.blocked(in)
	if len(blocked) == 0 {
		return false
	}

	edges := make(map[*Element][]*Element, len(blocked))
	closing := make(map[[2]*Element]*Dependency)
	for _, e := range s.elements {
		if !blocked[e] {
			continue
		}
		for _, d := range e.Dependencies {
			if d.Optional || s.satisfiedBy(e, d, in) {
				continue
			}
			for _, c := range s.candidates(e, d) {
				if blocked[c] {
					edges[e] = append(edges[e], c)
					if _, ok := closing[[2]*Element{e, c}]; !ok {
						closing[[2]*Element{e, c}] = d
					}
				}
			}
		}
	}

	var nodes []*Element
	for _, e := range s.elements {
		if blocked[e] {
			nodes = append(nodes, e)
		}
	}
	var cycle []*Element
	for _, scc := range stronglyConnected(nodes, edges) {
		if len(scc) < 2 {
			continue
		}
		if cycle == nil || compareElements(scc[0], cycle[0]) < 0 {
			cycle = scc
		}
	}
	if cycle == nil {
		return false
	}

	victim := cycle[0]
	for _, e := range cycle {
		if e.Name != victim.Name {
			continue
		}
		var dep *Dependency
		for _, c := range edges[e] {
			if slices.Contains(cycle, c) {
				dep = closing[[2]*Element{e, c}]
				break
			}
		}
		s.failures[e] = Failure{Kind: FailureCycle, Dependency: dep}
	}
	s.cycleBreaks++
	return true
}

// blocked returns the live elements outside in that could still resolve if
// some cycle among them were broken. Elements with a mandatory dependency
// that no possibly-resolvable candidate satisfies are excluded.
func (s *solver) blocked(in map[*Element]bool) map[*Element]bool {
	maybe := make(map[*Element]bool)
	for _, e := range s.elements {
		if !in[e] && s.live(e) {
			maybe[e] = true
		}
	}
	for changed := true; changed; {
		changed = false
		for _, e := range s.elements {
			if !maybe[e] {
				continue
			}
			for _, d := range e.Dependencies {
				if d.Optional || s.satisfiedBy(e, d, in) {
					continue
				}
				viable := false
				for _, c := range s.candidates(e, d) {
					if maybe[c] {
						viable = true
						break
					}
				}
				if !viable {
					delete(maybe, e)
					changed = true
					break
				}
			}
		}
	}
	return maybe
}

// stronglyConnected returns the strongly connected components of the graph
// using Tarjan's algorithm. Each component is sorted by element order.
func stronglyConnected(nodes []*Element, edges map[*Element][]*Element) [][]*Element {
	index := make(map[*Element]int, len(nodes))
	low := make(map[*Element]int, len(nodes))
	onStack := make(map[*Element]bool, len(nodes))
	var stack []*Element
	var out [][]*Element
	next := 0

	var visit func(n *Element)
	visit = func(n *Element) {
		index[n] = next
		low[n] = next
		next++
		stack = append(stack, n)
		onStack[n] = true

		for _, m := range edges[n] {
			if _, seen := index[m]; !seen {
				visit(m)
				low[n] = min(low[n], low[m])
			} else if onStack[m] {
				low[n] = min(low[n], index[m])
			}
		}

		if low[n] == index[n] {
			var scc []*Element
			for {
				m := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[m] = false
				scc = append(scc, m)
				if m == n {
					break
				}
			}
			slices.SortFunc(scc, compareElements)
			out = append(out, scc)
		}
	}

	for _, n := range nodes {
		if _, seen := index[n]; !seen {
			visit(n)
		}
	}
	return out
}

func (s *solver) finish(in map[*Element]bool) *Result {
	res := &Result{
		Wiring:      make(map[*Dependency][]*Element),
		Failures:    make(map[*Element]Failure),
		CycleBreaks: s.cycleBreaks,
	}
	for _, e := range s.elements {
		if e.Resolved {
			continue
		}
		if f, ok := s.failures[e]; ok {
			res.Failures[e] = f
			continue
		}
		if !in[e] {
			res.Failures[e] = Failure{Kind: FailureMissing, Dependency: s.firstUnsatisfied(e, in)}
			continue
		}
		res.Resolved = append(res.Resolved, e)
		for _, d := range e.Dependencies {
			var ok []*Element
			for _, c := range s.candidates(e, d) {
				if in[c] {
					ok = append(ok, c)
				}
			}
			if len(ok) == 0 {
				continue
			}
			ranked := s.policy.Rank(s.sets[d.Name], e, d, ok)
			if d.Multiple {
				res.Wiring[d] = ranked
			} else {
				res.Wiring[d] = ranked[:1]
			}
		}
	}
	return res
}

func (s *solver) firstUnsatisfied(e *Element, in map[*Element]bool) *Dependency {
	for _, d := range e.Dependencies {
		if !d.Optional && !s.satisfiedBy(e, d, in) {
			return d
		}
	}
	return nil
}
