package bundlestate

import (
	"fmt"
	"slices"
)

// ResolveDynamicImport wires pkg for the resolved bundle b through one of
// its dynamic imports. It returns the existing wire when pkg is already
// wired, and nil when pkg is covered by a static import, matches no
// dynamic import, or no exporter is suitable. A failed attempt is cached
// until the next change to s.
func (s *State) ResolveDynamicImport(b *Bundle, pkg string) (*Wire, error) {
	if b == nil {
		return nil, fmt.Errorf("dynamic import %s: %w", pkg, ErrUnknownBundle)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.State() != s {
		return nil, fmt.Errorf("dynamic import %s for %s: %w", pkg, b, ErrUnknownBundle)
	}
	if !b.IsResolved() {
		return nil, fmt.Errorf("dynamic import %s for %s: %w", pkg, b, ErrNotResolved)
	}
	if s.cfg.resolver == nil {
		return nil, ErrNoResolver
	}
	if err := s.fullyLoadLocked(); err != nil {
		return nil, fmt.Errorf("dynamic import %s for %s: %w", pkg, b, err)
	}
	for _, w := range b.RequiredWires(NamespacePackage) {
		if w.Capability.Name == pkg {
			return w, nil
		}
	}
	dynamic := false
	for _, imp := range b.Imports() {
		if imp.Resolution != Dynamic {
			if imp.Name == pkg {
				return nil, nil
			}
			continue
		}
		if imp.matchesPackageName(pkg) {
			dynamic = true
		}
	}
	if !dynamic {
		return nil, nil
	}
	if ts, ok := b.dynamicStamp(pkg); ok && ts == s.timestamp {
		return nil, nil
	}

	var candidates []*Capability
	for e := range s.resolvedIdx {
		if e == b {
			continue
		}
		for _, c := range e.SelectedExports() {
			if c.Name == pkg {
				candidates = append(candidates, c)
			}
		}
	}
	slices.SortFunc(candidates, func(x, y *Capability) int {
		if c := comparePackages(x, y); c != 0 {
			return c
		}
		return compareBundles(x.provider, y.provider)
	})

	in := &DynamicImportInput{
		Bundle:     b,
		Package:    pkg,
		Candidates: candidates,
		Platform:   s.PlatformProperties(),
		Strict:     s.cfg.strict,
	}
	if s.cfg.hookFactory != nil {
		in.Hook = s.cfg.hookFactory.Begin([]*Bundle{b})
		defer in.Hook.End()
	}
	s.dynamicCacheChanged = true
	w := s.cfg.resolver.ResolveDynamicImport(in)
	if w == nil {
		b.setDynamicStamp(pkg, s.timestamp)
		s.log.Debug("dynamic import unresolved", "bundle", b.String(), "package", pkg)
		return nil, nil
	}
	b.addWire(w)
	if p := w.Provider(); p != nil && p != b {
		b.addDependency(p)
	}
	s.log.Debug("dynamic import resolved", "bundle", b.String(), "package", pkg, "provider", w.Provider().String())
	return w, nil
}
