package resolver

import (
	"cmp"
	"maps"
	"slices"

	bundlestate "github.com/albertocavalcante/go-bundlestate"
)

// packageWiring is the outcome of the package phase.
type packageWiring struct {
	rd  *round
	set map[*bundlestate.Bundle]bool

	// chosen maps each bundle and package name to the capability the
	// bundle imports it from.
	chosen map[*bundlestate.Bundle]map[string]*bundlestate.Capability

	// views hold every package source a bundle can see, including the
	// ones implied by uses constraints. Fixed hosts get a view on demand.
	views map[*bundlestate.Bundle]map[string]*bundlestate.Capability

	// viaRequire marks view entries that came from required bundles.
	viaRequire map[*bundlestate.Bundle]map[string]bool

	// hosts and fragments link fragments attaching this round to their
	// hosts. A fragment's imports live in each host's class space too.
	hosts     map[*bundlestate.Bundle][]*bundlestate.Bundle
	fragments map[*bundlestate.Bundle][]*bundlestate.Bundle
	required  map[*bundlestate.Bundle]bool

	// pool is the export pool for imports not covered by an export of
	// the importing bundle. It is nil until those imports are wired.
	pool      []*bundlestate.Capability
	attempted map[*bundlestate.Requirement]bool

	wires       map[*bundlestate.Bundle][]*bundlestate.Wire
	selected    map[*bundlestate.Bundle][]*bundlestate.Capability
	substituted map[*bundlestate.Bundle][]*bundlestate.Capability
	failures    map[*bundlestate.Bundle][]bundlestate.ResolverError
}

func (rd *round) wirePackages(g *moduleGraph) *packageWiring {
	pw := &packageWiring{
		rd:          rd,
		set:         make(map[*bundlestate.Bundle]bool),
		chosen:      make(map[*bundlestate.Bundle]map[string]*bundlestate.Capability),
		views:       make(map[*bundlestate.Bundle]map[string]*bundlestate.Capability),
		viaRequire:  make(map[*bundlestate.Bundle]map[string]bool),
		hosts:       make(map[*bundlestate.Bundle][]*bundlestate.Bundle),
		fragments:   make(map[*bundlestate.Bundle][]*bundlestate.Bundle),
		required:    make(map[*bundlestate.Bundle]bool),
		attempted:   make(map[*bundlestate.Requirement]bool),
		wires:       make(map[*bundlestate.Bundle][]*bundlestate.Wire),
		selected:    make(map[*bundlestate.Bundle][]*bundlestate.Capability),
		substituted: make(map[*bundlestate.Bundle][]*bundlestate.Capability),
		failures:    make(map[*bundlestate.Bundle][]bundlestate.ResolverError),
	}
	for _, b := range g.resolvable {
		pw.set[b] = true
		pw.chosen[b] = make(map[string]*bundlestate.Capability)
		pw.views[b] = make(map[string]*bundlestate.Capability)
		pw.viaRequire[b] = make(map[string]bool)
		for _, w := range g.wires[b] {
			if w.Requirement.Kind() == bundlestate.ReqHost {
				pw.hosts[b] = append(pw.hosts[b], w.Provider())
				pw.fragments[w.Provider()] = append(pw.fragments[w.Provider()], b)
			}
		}
	}
	pw.substitutableImports(g.resolvable)
	pw.selectExports(g.resolvable)
	pw.remainingImports(g)
	pw.genericRequirements(g.resolvable)
	return pw
}

func (pw *packageWiring) fail(b *bundlestate.Bundle, kind bundlestate.ResolverErrorKind, req *bundlestate.Requirement, data string) {
	pw.failures[b] = append(pw.failures[b], bundlestate.ResolverError{
		Kind:        kind,
		Bundle:      b,
		Requirement: req,
		Data:        data,
	})
}

// fixedExports returns the selected exports of the resolved bundles.
func (pw *packageWiring) fixedExports() []*bundlestate.Capability {
	var out []*bundlestate.Capability
	for b := range pw.rd.fixed {
		out = append(out, b.SelectedExports()...)
	}
	return out
}

func importsPackage(b *bundlestate.Bundle, name string) *bundlestate.Requirement {
	for _, imp := range b.Imports() {
		if imp.Resolution != bundlestate.Dynamic && imp.Name == name {
			return imp
		}
	}
	return nil
}

// substitutableImports wires the imports of packages their bundle also
// exports. When the import is wired to another provider the bundle's own
// export is substituted.
func (pw *packageWiring) substitutableImports(bundles []*bundlestate.Bundle) {
	base := pw.fixedExports()
	for _, b := range bundles {
		for _, c := range b.Exports() {
			if importsPackage(b, c.Name) == nil {
				base = append(base, c)
			}
		}
	}
	for _, b := range bundles {
		exports := b.Exports()
		for _, imp := range b.Imports() {
			if imp.Resolution == bundlestate.Dynamic {
				continue
			}
			own := slices.ContainsFunc(exports, func(c *bundlestate.Capability) bool { return c.Name == imp.Name })
			if !own {
				continue
			}
			pool := append(slices.Clone(base), exports...)
			pw.importFrom(b, imp, pool)
		}
	}
}

func (pw *packageWiring) selectExports(bundles []*bundlestate.Bundle) {
	for _, b := range bundles {
		for _, c := range b.Exports() {
			if src, ok := pw.chosen[b][c.Name]; ok && src.Provider() != b {
				pw.substituted[b] = append(pw.substituted[b], c)
				continue
			}
			pw.selected[b] = append(pw.selected[b], c)
		}
		for _, c := range pw.selected[b] {
			if _, ok := pw.views[b][c.Name]; !ok {
				pw.views[b][c.Name] = c
			}
		}
	}
}

func (pw *packageWiring) remainingImports(g *moduleGraph) {
	pw.pool = pw.fixedExports()
	for _, b := range g.resolvable {
		pw.pool = append(pw.pool, pw.selected[b]...)
	}
	for _, b := range g.resolvable {
		pw.requiredPackages(g, b)
	}
	for _, b := range g.resolvable {
		for _, imp := range b.Imports() {
			if imp.Resolution == bundlestate.Dynamic || pw.attempted[imp] {
				continue
			}
			pw.importFrom(b, imp, pw.pool)
		}
	}
}

// visibleExport is a package a bundle sees through the require-bundle
// requirement via.
type visibleExport struct {
	via *bundlestate.Requirement
	c   *bundlestate.Capability
}

// requiredPackages adds the packages b sees through its required bundles,
// together with the sources their uses constraints bind, to b's class
// space. Packages b imports or already sees are shadowed and skipped.
// Required bundles are handled before their requirers.
func (pw *packageWiring) requiredPackages(g *moduleGraph, b *bundlestate.Bundle) {
	if pw.required[b] {
		return
	}
	pw.required[b] = true
	for _, w := range pw.bundleWires(g, b) {
		if p := w.Provider(); pw.set[p] {
			pw.requiredPackages(g, p)
		}
	}

	view := pw.views[b]
	for _, ve := range pw.requiredExports(g, b) {
		c := ve.c
		if _, ok := view[c.Name]; ok || importsPackage(b, c.Name) != nil {
			continue
		}
		uses := pw.usesOf(c)
		for _, name := range slices.Sorted(maps.Keys(uses)) {
			if v, ok := view[name]; ok && v != uses[name] {
				pw.fail(b, bundlestate.RequireBundleUsesConflict, ve.via, c.String()+" uses "+name)
				return
			}
		}
		view[c.Name] = c
		pw.viaRequire[b][c.Name] = true
		for name, src := range uses {
			if _, ok := view[name]; !ok {
				view[name] = src
				pw.viaRequire[b][name] = true
			}
		}
	}
}

// requiredExports lists the packages visible to b through its
// require-bundle wires, following reexported wires breadth first.
// Exports of fragments attached to a required bundle count as its own.
func (pw *packageWiring) requiredExports(g *moduleGraph, b *bundlestate.Bundle) []visibleExport {
	type hop struct {
		via *bundlestate.Requirement
		p   *bundlestate.Bundle
	}
	visited := map[*bundlestate.Bundle]bool{b: true}
	var queue []hop
	for _, w := range pw.bundleWires(g, b) {
		if p := w.Provider(); !visited[p] {
			visited[p] = true
			queue = append(queue, hop{w.Requirement, p})
		}
	}
	var out []visibleExport
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		sources := append([]*bundlestate.Bundle{h.p}, pw.fragments[h.p]...)
		if !pw.set[h.p] {
			sources = append(sources, h.p.Fragments()...)
		}
		for _, src := range sources {
			for _, c := range pw.exportsOf(src) {
				if pw.visibleTo(c, b) {
					out = append(out, visibleExport{h.via, c})
				}
			}
		}
		for _, w := range pw.bundleWires(g, h.p) {
			if p := w.Provider(); w.Requirement.Reexport() && !visited[p] {
				visited[p] = true
				queue = append(queue, hop{h.via, p})
			}
		}
	}
	return out
}

// bundleWires returns the require-bundle wires of b, chosen this round or
// already resolved.
func (pw *packageWiring) bundleWires(g *moduleGraph, b *bundlestate.Bundle) []*bundlestate.Wire {
	if !pw.set[b] {
		return b.RequiredWires(bundlestate.NamespaceBundle)
	}
	var out []*bundlestate.Wire
	for _, w := range g.wires[b] {
		if w.Requirement.Kind() == bundlestate.ReqRequireBundle {
			out = append(out, w)
		}
	}
	return out
}

func (pw *packageWiring) exportsOf(b *bundlestate.Bundle) []*bundlestate.Capability {
	if pw.set[b] {
		return pw.selected[b]
	}
	return b.SelectedExports()
}

// visibleTo reports whether a package reached through require-bundle is
// visible to b. Internal packages never are; friends lists apply in
// strict mode.
func (pw *packageWiring) visibleTo(c *bundlestate.Capability, b *bundlestate.Bundle) bool {
	pkg := c.Package()
	if pkg == nil || pkg.Internal {
		return false
	}
	if pw.rd.in.Strict && len(pkg.Friends) > 0 {
		return slices.Contains(pkg.Friends, b.SymbolicName())
	}
	return true
}

// importFrom wires imp to the best consistent candidate in pool and
// records a failure for unsatisfied mandatory imports.
func (pw *packageWiring) importFrom(b *bundlestate.Bundle, imp *bundlestate.Requirement, pool []*bundlestate.Capability) {
	pw.attempted[imp] = true
	ctx := pw.rd.ctx(b)
	var cands []*bundlestate.Capability
	for _, c := range pool {
		if pw.usable(c.Provider()) && imp.Matches(c, ctx) {
			cands = append(cands, c)
		}
	}
	pw.rd.sortCandidates(cands, compareVersionFirst)
	cands = bundlestate.FilterMatches(pw.rd.in.Hook, imp, cands)
	if len(cands) == 0 {
		if !imp.IsOptional() {
			pw.fail(b, bundlestate.MissingImportPackage, imp, "")
		}
		return
	}
	var kind bundlestate.ResolverErrorKind
	for _, c := range cands {
		k := pw.conflict(b, c)
		if k == 0 {
			pw.wire(b, imp, c)
			return
		}
		if kind == 0 {
			kind = k
		}
	}
	if !imp.IsOptional() {
		pw.fail(b, kind, imp, cands[0].String())
	}
}

func (pw *packageWiring) usable(p *bundlestate.Bundle) bool {
	if p == nil || p.IsRemovalPending() {
		return false
	}
	return pw.rd.fixed[p] || pw.set[p]
}

// wire records the import of c by b. For a fragment the package and its
// uses also enter each host's class space.
func (pw *packageWiring) wire(b *bundlestate.Bundle, imp *bundlestate.Requirement, c *bundlestate.Capability) {
	pw.chosen[b][imp.Name] = c
	uses := pw.usesOf(c)
	for _, space := range append([]*bundlestate.Bundle{b}, pw.hosts[b]...) {
		view := pw.viewFor(space)
		view[c.Name] = c
		for name, src := range uses {
			if _, ok := view[name]; !ok {
				view[name] = src
			}
		}
	}
	pw.wires[b] = append(pw.wires[b], &bundlestate.Wire{Requirement: imp, Capability: c})
}

// conflict returns the kind of conflict importing c would cause in b's
// class space, or in the class space of one of b's hosts, and zero when
// there is none.
func (pw *packageWiring) conflict(b *bundlestate.Bundle, c *bundlestate.Capability) bundlestate.ResolverErrorKind {
	if kind := pw.viewConflict(b, c); kind != 0 {
		return kind
	}
	for _, h := range pw.hosts[b] {
		if pw.viewConflict(h, c) != 0 {
			return bundlestate.FragmentConflict
		}
	}
	return 0
}

// viewConflict checks that c and the sources its uses constraints bind
// agree with what b already sees.
func (pw *packageWiring) viewConflict(b *bundlestate.Bundle, c *bundlestate.Capability) bundlestate.ResolverErrorKind {
	view := pw.viewFor(b)
	clash := func(name string, src *bundlestate.Capability) bundlestate.ResolverErrorKind {
		v, ok := view[name]
		if !ok || v == src {
			return 0
		}
		if pw.viaRequire[b][name] {
			return bundlestate.RequireBundleUsesConflict
		}
		return bundlestate.ImportPackageUsesConflict
	}
	if kind := clash(c.Name, c); kind != 0 {
		return kind
	}
	uses := pw.usesOf(c)
	for _, name := range slices.Sorted(maps.Keys(uses)) {
		if kind := clash(name, uses[name]); kind != 0 {
			return kind
		}
	}
	return 0
}

// viewFor returns b's class space, building it from the existing wiring
// for a host resolved in an earlier round.
func (pw *packageWiring) viewFor(b *bundlestate.Bundle) map[string]*bundlestate.Capability {
	if view, ok := pw.views[b]; ok {
		return view
	}
	view := make(map[string]*bundlestate.Capability)
	for _, w := range b.RequiredWires(bundlestate.NamespacePackage) {
		view[w.Capability.Name] = w.Capability
	}
	for _, c := range b.SelectedExports() {
		if _, ok := view[c.Name]; !ok {
			view[c.Name] = c
		}
	}
	pw.views[b] = view
	return view
}

// usesOf maps each package named in c's uses directive to the source c's
// provider sees for it.
func (pw *packageWiring) usesOf(c *bundlestate.Capability) map[string]*bundlestate.Capability {
	pkg := c.Package()
	if pkg == nil || len(pkg.Uses) == 0 {
		return nil
	}
	p := c.Provider()
	out := make(map[string]*bundlestate.Capability, len(pkg.Uses))
	for _, name := range pkg.Uses {
		if src := pw.sourceFor(p, name); src != nil {
			out[name] = src
		}
	}
	return out
}

func (pw *packageWiring) sourceFor(p *bundlestate.Bundle, name string) *bundlestate.Capability {
	if pw.set[p] {
		if imp := importsPackage(p, name); imp != nil && !pw.attempted[imp] && pw.pool != nil {
			pw.importFrom(p, imp, pw.pool)
		}
		if c, ok := pw.chosen[p][name]; ok {
			return c
		}
		for _, c := range p.Exports() {
			if c.Name == name {
				return c
			}
		}
		return nil
	}
	for _, w := range p.RequiredWires(bundlestate.NamespacePackage) {
		if w.Capability.Name == name {
			return w.Capability
		}
	}
	for _, c := range p.SelectedExports() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (pw *packageWiring) genericRequirements(bundles []*bundlestate.Bundle) {
	var pool []*bundlestate.Capability
	for b := range pw.rd.fixed {
		pool = append(pool, b.SelectedCapabilities()...)
		if c := b.IdentityCapability(); c != nil {
			pool = append(pool, c)
		}
	}
	for _, b := range bundles {
		pool = append(pool, b.GenericCapabilities()...)
		if c := b.IdentityCapability(); c != nil {
			pool = append(pool, c)
		}
	}
	for _, b := range bundles {
		ctx := pw.rd.ctx(b)
		for _, req := range b.GenericRequirements() {
			var cands []*bundlestate.Capability
			for _, c := range pool {
				if req.Matches(c, ctx) {
					cands = append(cands, c)
				}
			}
			pw.rd.sortCandidates(cands, compareResolvedFirst)
			cands = bundlestate.FilterMatches(pw.rd.in.Hook, req, cands)
			if len(cands) == 0 {
				if !req.IsOptional() {
					pw.fail(b, bundlestate.MissingGenericCapability, req, "")
				}
				continue
			}
			if !req.Multiple() {
				cands = cands[:1]
			}
			for _, c := range cands {
				pw.wires[b] = append(pw.wires[b], &bundlestate.Wire{Requirement: req, Capability: c})
			}
		}
	}
}

type candidateOrder int

const (
	// compareVersionFirst orders by highest version, then resolved
	// providers, then lowest provider id.
	compareVersionFirst candidateOrder = iota
	// compareResolvedFirst orders by resolved providers, then highest
	// version, then lowest provider id.
	compareResolvedFirst
)

func (rd *round) sortCandidates(cands []*bundlestate.Capability, order candidateOrder) {
	resolved := func(c *bundlestate.Capability) int {
		if rd.fixed[c.Provider()] {
			return 0
		}
		return 1
	}
	slices.SortStableFunc(cands, func(a, b *bundlestate.Capability) int {
		byVersion := b.Version.Compare(a.Version)
		byResolved := cmp.Compare(resolved(a), resolved(b))
		first, second := byVersion, byResolved
		if order == compareResolvedFirst {
			first, second = byResolved, byVersion
		}
		if first != 0 {
			return first
		}
		if second != 0 {
			return second
		}
		if c := compareBundles(a.Provider(), b.Provider()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Kind(), b.Kind()); c != 0 {
			return c
		}
		return cmp.Compare(a.Key().Index, b.Key().Index)
	})
}
