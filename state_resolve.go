package bundlestate

import (
	"fmt"
	"maps"
	"slices"
)

// Resolve resolves every unresolved bundle against the current wiring and
// returns the changes accumulated since the previous resolve. Resolving a
// State that did not change since the last resolve returns an empty delta
// without calling the resolver or the resolver hook factory.
//
// Data still in the cache s was read from is loaded first; a corrupt cache
// fails with a *FormatError.
//
// Resolve fails with ErrResolveInProgress when called while another
// resolve on s is running, including from within a resolver hook.
func (s *State) Resolve() (*Delta, error) {
	return s.resolve(resolveIncremental, nil)
}

// ResolveBundles unresolves the dependency closure of refresh together with
// every removal-pending bundle, completes pending removals, and resolves.
func (s *State) ResolveBundles(refresh ...*Bundle) (*Delta, error) {
	return s.resolve(resolveRefresh, refresh)
}

// ResolveAll discards every existing resolution and resolves from scratch.
func (s *State) ResolveAll() (*Delta, error) {
	return s.resolve(resolveEverything, nil)
}

type resolveMode int

const (
	resolveIncremental resolveMode = iota
	resolveRefresh
	resolveEverything
)

func (s *State) resolve(mode resolveMode, refresh []*Bundle) (*Delta, error) {
	if !s.resolving.CompareAndSwap(false, true) {
		return nil, ErrResolveInProgress
	}
	defer s.resolving.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.resolver == nil {
		return nil, ErrNoResolver
	}
	for _, b := range refresh {
		if b == nil || b.State() != s {
			return nil, fmt.Errorf("resolve: refresh %v: %w", b, ErrUnknownBundle)
		}
	}
	var triggers []*Bundle
	switch mode {
	case resolveEverything:
		triggers = append(s.bundlesLocked(), s.pending...)
	case resolveRefresh:
		triggers = append(slices.Clone(refresh), s.pending...)
	}
	if s.resolved && len(triggers) == 0 {
		return s.takeDelta(), nil
	}
	if err := s.fullyLoadLocked(); err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}

	previous := make(map[*Bundle]bool)
	for b := range s.resolvedIdx {
		previous[b] = true
	}
	for _, p := range s.pending {
		if p.IsResolved() {
			previous[p] = true
		}
	}

	if len(triggers) > 0 {
		closure := sortedBundles(s.dependencyClosure(triggers))
		s.log.Debug("refreshing", "bundles", len(closure))
		for _, b := range closure {
			s.unresolveBundle(b)
		}
		for _, p := range slices.Clone(s.pending) {
			s.checkRemovalComplete(p)
		}
	}

	in := &ResolveInput{
		Bundles:  s.bundlesLocked(),
		Previous: previous,
		Platform: s.PlatformProperties(),
		Strict:   s.cfg.strict,
		Disabled: s.disabledCopy(),
	}
	for _, b := range in.Bundles {
		if b.IsResolved() {
			in.Resolved = append(in.Resolved, b)
		} else {
			in.Unresolved = append(in.Unresolved, b)
		}
	}
	for _, p := range s.pending {
		if p.IsResolved() {
			in.Resolved = append(in.Resolved, p)
		}
	}
	if s.cfg.hookFactory != nil {
		hookTriggers := triggers
		if len(hookTriggers) == 0 {
			hookTriggers = in.Unresolved
		}
		in.Hook = s.cfg.hookFactory.Begin(slices.Clone(hookTriggers))
		defer in.Hook.End()
	}

	out, err := s.cfg.resolver.Resolve(in)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	s.commit(in, out)
	s.timestamp++
	s.resolved = true
	s.log.Info("resolved",
		"resolved", len(out.Resolutions),
		"unresolved", len(in.Unresolved)-len(out.Resolutions),
		"timestamp", s.timestamp)
	return s.takeDelta(), nil
}

func (s *State) commit(in *ResolveInput, out *ResolveOutput) {
	for _, b := range in.Unresolved {
		delete(s.errors, b)
	}
	for _, r := range out.Resolutions {
		b := r.Bundle
		if b.State() != s || b.IsResolved() {
			continue
		}
		b.setResolution(r)
		for _, w := range r.Wires {
			if p := w.Provider(); p != nil && p != b {
				b.addDependency(p)
			}
		}
		b.resolved.Store(true)
		if !b.IsRemovalPending() {
			s.resolvedIdx[b] = struct{}{}
		}
		s.delta.Record(b, Resolved)
	}
	// A fragment's imports are part of its hosts' class spaces.
	for _, r := range out.Resolutions {
		if r.Bundle.State() != s || !r.Bundle.IsFragment() {
			continue
		}
		for _, h := range r.Bundle.Hosts() {
			for _, w := range r.Wires {
				if w.Requirement.Kind() == ReqImport {
					h.addDependency(w.Provider())
				}
			}
		}
	}
	for _, b := range slices.SortedFunc(maps.Keys(out.Errors), compareBundles) {
		if b.IsResolved() || b.State() != s {
			continue
		}
		s.errors[b] = slices.Clone(out.Errors[b])
	}
}
