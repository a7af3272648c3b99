package resolver

import (
	bundlestate "github.com/albertocavalcante/go-bundlestate"
)

// ResolveDynamicImport implements bundlestate.Resolver. The first dynamic
// import of the bundle, in declaration order, that matches one of the
// candidates is wired to the best remaining candidate.
func (r *Resolver) ResolveDynamicImport(in *bundlestate.DynamicImportInput) *bundlestate.Wire {
	w := r.resolveDynamic(in)
	r.metrics.observeDynamic(w != nil)
	return w
}

func (r *Resolver) resolveDynamic(in *bundlestate.DynamicImportInput) *bundlestate.Wire {
	b := in.Bundle
	ctx := bundlestate.MatchContext{Strict: in.Strict, EEIndex: b.EEIndex(), Platform: in.Platform}
	for _, imp := range b.Imports() {
		if imp.Resolution != bundlestate.Dynamic {
			continue
		}
		var cands []*bundlestate.Capability
		for _, c := range in.Candidates {
			if c.Name == in.Package && c.Provider() != b && imp.Matches(c, ctx) {
				cands = append(cands, c)
			}
		}
		cands = bundlestate.FilterMatches(in.Hook, imp, cands)
		if len(cands) > 0 {
			r.log.Debug("dynamic import wired", "bundle", b.String(), "package", in.Package, "provider", cands[0].Provider().String())
			return &bundlestate.Wire{Requirement: imp, Capability: cands[0]}
		}
	}
	return nil
}
