package selection

import (
	"cmp"
	"slices"
)

// Policy ranks the candidates for a dependency. Rank returns candidates
// ordered from most to least preferred; the solver wires the first one.
// requirer and dep are nil when choosing the surviving member of a
// singleton set.
type Policy interface {
	Rank(set *ElementSet, requirer *Element, dep *Dependency, candidates []*Element) []*Element
}

// LeastPerturbation returns the default policy: keep what was resolved,
// then satisfy the most requirers, then take the highest version.
func LeastPerturbation() Policy { return leastPerturbation{} }

// AlwaysHighest returns a policy that always prefers the highest version.
func AlwaysHighest() Policy { return alwaysHighest{} }

type leastPerturbation struct{}

func (leastPerturbation) Rank(set *ElementSet, _ *Element, _ *Dependency, candidates []*Element) []*Element {
	out := slices.Clone(candidates)
	counts := make(map[*Element]int, len(out))
	for _, c := range out {
		counts[c] = set.Satisfies(c)
	}
	slices.SortStableFunc(out, func(a, b *Element) int {
		if pa, pb := a.Resolved || a.Previous, b.Resolved || b.Previous; pa != pb {
			if pa {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		if c := b.Version.Compare(a.Version); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

type alwaysHighest struct{}

func (alwaysHighest) Rank(_ *ElementSet, _ *Element, _ *Dependency, candidates []*Element) []*Element {
	out := slices.Clone(candidates)
	slices.SortStableFunc(out, func(a, b *Element) int {
		if c := b.Version.Compare(a.Version); c != 0 {
			return c
		}
		if a.Resolved != b.Resolved {
			if a.Resolved {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// PolicyByName returns the policy registered under name:
// "least-perturbation" (or "") and "highest".
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "least-perturbation":
		return LeastPerturbation(), nil
	case "highest", "always-highest":
		return AlwaysHighest(), nil
	}
	return nil, &SelectionError{Code: "UNKNOWN_POLICY", Message: "unknown selection policy " + name}
}
