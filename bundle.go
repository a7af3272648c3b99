package bundlestate

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/albertocavalcante/go-bundlestate/filter"
	"github.com/albertocavalcante/go-bundlestate/version"
)

// BundleID is the stable identifier of a bundle. Ids are assigned once by
// the caller and never reused within a State.
type BundleID int64

// AttachmentPolicy controls whether and when fragments may attach to a host.
type AttachmentPolicy uint8

const (
	// AttachAlways lets fragments attach at resolve time and to hosts that
	// are already resolved.
	AttachAlways AttachmentPolicy = iota
	// AttachResolveTime lets fragments attach only while the host resolves.
	AttachResolveTime
	// AttachNever rejects all fragments.
	AttachNever
)

func (p AttachmentPolicy) String() string {
	switch p {
	case AttachAlways:
		return "always"
	case AttachResolveTime:
		return "resolve-time"
	case AttachNever:
		return "never"
	default:
		return fmt.Sprintf("AttachmentPolicy(%d)", uint8(p))
	}
}

// ParseAttachmentPolicy parses a fragment-attachment directive value.
// The empty string yields AttachAlways.
func ParseAttachmentPolicy(s string) (AttachmentPolicy, error) {
	switch s {
	case "", "always":
		return AttachAlways, nil
	case "resolve-time":
		return AttachResolveTime, nil
	case "never":
		return AttachNever, nil
	}
	return 0, fmt.Errorf("invalid fragment attachment policy %q", s)
}

// Bundle is a versioned, identified installable unit.
//
// Identity fields are immutable once built. Resolution fields are written
// by the owning State while it holds its lock; accessors are safe for
// concurrent use. The bulk of the declared data may be lazily loaded from a
// state cache; accessing it loads it on demand and panics with a
// *FormatError if the cache turns out to be corrupt. State.FullyLoad and
// the State operations returning an error load all data first and report
// such errors instead.
type Bundle struct {
	id             BundleID
	symbolicName   string
	version        version.Version
	singleton      bool
	attachment     AttachmentPolicy
	attributes     map[string]any
	directives     map[string]string
	mandatory      []string
	host           *Requirement
	dynamicImports bool

	bundleCap   *Capability
	hostCap     *Capability
	identityCap *Capability

	data     atomic.Pointer[bundleData]
	loader   lazyLoader
	accessed atomic.Bool

	owner    atomic.Pointer[State]
	resolved atomic.Bool
	pending  atomic.Bool

	mu           sync.RWMutex
	dependencies map[*Bundle]struct{}
	dependents   map[*Bundle]struct{}
}

// bundleData is the bulk per-bundle payload that may live in the lazy
// segment of a state cache.
type bundleData struct {
	location       string
	platformFilter *filter.Filter
	environments   []string
	exports        []*Capability
	generic        []*Capability
	native         []*Capability
	imports        []*Requirement
	requires       []*Requirement
	genericReqs    []*Requirement
	nativeReq      *Requirement

	eeIndex            int
	selectedExports    []*Capability
	substitutedExports []*Capability
	resolvedImports    []*Capability
	resolvedRequires   []*Bundle
	selectedCaps       []*Capability
	resolvedCaps       []*Capability
	wires              map[string][]*Wire
	dynamicStamps      map[string]int64
}

type lazyLoader interface {
	load(b *Bundle) error
}

// Wire connects a requirement to the capability satisfying it.
type Wire struct {
	Requirement *Requirement
	Capability  *Capability
}

// Requirer returns the bundle owning the requirement.
func (w *Wire) Requirer() *Bundle { return w.Requirement.owner }

// Provider returns the bundle providing the capability.
func (w *Wire) Provider() *Bundle { return w.Capability.provider }

func (w *Wire) String() string {
	return fmt.Sprintf("%s -> %s", w.Requirement, w.Capability)
}

func newBundle(id BundleID) *Bundle {
	return &Bundle{
		id:           id,
		dependencies: make(map[*Bundle]struct{}),
		dependents:   make(map[*Bundle]struct{}),
	}
}

// initCapabilities derives the identity, bundle and host capabilities from
// the identity fields. Unnamed bundles provide none of them.
func (b *Bundle) initCapabilities() {
	if b.symbolicName == "" {
		return
	}
	typ := IdentityTypeBundle
	if b.host != nil {
		typ = IdentityTypeFragment
	}
	b.identityCap = &Capability{
		Namespace: NamespaceIdentity,
		Name:      b.symbolicName,
		Version:   b.version,
		Attributes: map[string]any{
			NamespaceIdentity: b.symbolicName,
			AttrVersion:       b.version,
			AttrIdentityType:  typ,
		},
		Directives: map[string]string{},
		kind:       KindIdentity,
		provider:   b,
	}
	if b.singleton {
		b.identityCap.Directives[DirectiveSingleton] = "true"
	}
	if b.host != nil {
		return
	}
	attrs := maps.Clone(b.attributes)
	if attrs == nil {
		attrs = make(map[string]any)
	}
	attrs[AttrBundleVersion] = b.version
	bundleAttrs := maps.Clone(attrs)
	bundleAttrs[NamespaceBundle] = b.symbolicName
	b.bundleCap = &Capability{
		Namespace:  NamespaceBundle,
		Name:       b.symbolicName,
		Version:    b.version,
		Attributes: bundleAttrs,
		Directives: maps.Clone(b.directives),
		Payload:    &BundlePayload{Mandatory: slices.Clone(b.mandatory)},
		kind:       KindBundle,
		provider:   b,
	}
	if b.attachment != AttachNever {
		hostAttrs := maps.Clone(attrs)
		hostAttrs[NamespaceHost] = b.symbolicName
		b.hostCap = &Capability{
			Namespace:  NamespaceHost,
			Name:       b.symbolicName,
			Version:    b.version,
			Attributes: hostAttrs,
			Directives: maps.Clone(b.directives),
			Payload:    &BundlePayload{Mandatory: slices.Clone(b.mandatory)},
			kind:       KindHost,
			provider:   b,
		}
	}
}

func (b *Bundle) lazy() *bundleData {
	d, err := b.loadData()
	if err != nil {
		panic(err)
	}
	return d
}

// loadData returns b's data, loading it from the cache if needed.
func (b *Bundle) loadData() (*bundleData, error) {
	if d := b.data.Load(); d != nil {
		b.accessed.Store(true)
		return d, nil
	}
	if b.loader == nil {
		return nil, fmt.Errorf("bundlestate: bundle %d has no data and no loader", b.id)
	}
	if err := b.loader.load(b); err != nil {
		return nil, err
	}
	b.accessed.Store(true)
	return b.data.Load(), nil
}

// ID returns the bundle id.
func (b *Bundle) ID() BundleID { return b.id }

// SymbolicName returns the symbolic name, which may be empty.
func (b *Bundle) SymbolicName() string { return b.symbolicName }

// Version returns the bundle version.
func (b *Bundle) Version() version.Version { return b.version }

// IsSingleton reports whether at most one version of this bundle's
// symbolic name may be resolved at a time.
func (b *Bundle) IsSingleton() bool { return b.singleton }

// Attachment returns the fragment attachment policy of a host.
func (b *Bundle) Attachment() AttachmentPolicy { return b.attachment }

// AttachFragments reports whether fragments may attach at all.
func (b *Bundle) AttachFragments() bool { return b.attachment != AttachNever }

// DynamicFragments reports whether fragments may attach to this bundle
// after it resolved.
func (b *Bundle) DynamicFragments() bool { return b.attachment == AttachAlways }

// Attributes returns the matching attributes declared on the symbolic name.
func (b *Bundle) Attributes() map[string]any { return maps.Clone(b.attributes) }

// Directives returns the directives declared on the symbolic name.
func (b *Bundle) Directives() map[string]string { return maps.Clone(b.directives) }

// MandatoryAttributes returns the attribute keys requirers must specify.
func (b *Bundle) MandatoryAttributes() []string { return slices.Clone(b.mandatory) }

// Host returns the fragment host requirement, or nil if b is not a fragment.
func (b *Bundle) Host() *Requirement { return b.host }

// IsFragment reports whether b attaches to a host.
func (b *Bundle) IsFragment() bool { return b.host != nil }

// HasDynamicImports reports whether b declares any dynamic import.
func (b *Bundle) HasDynamicImports() bool { return b.dynamicImports }

// BundleCapability returns the capability require-bundle requirements
// match, or nil for fragments and unnamed bundles.
func (b *Bundle) BundleCapability() *Capability { return b.bundleCap }

// HostCapability returns the capability fragment hosts match, or nil.
func (b *Bundle) HostCapability() *Capability { return b.hostCap }

// IdentityCapability returns the implicit identity capability, or nil for
// unnamed bundles.
func (b *Bundle) IdentityCapability() *Capability { return b.identityCap }

// Location returns the install location.
func (b *Bundle) Location() string { return b.lazy().location }

// PlatformFilter returns the platform filter, or nil.
func (b *Bundle) PlatformFilter() *filter.Filter { return b.lazy().platformFilter }

// ExecutionEnvironments returns the required execution environment names.
func (b *Bundle) ExecutionEnvironments() []string {
	return slices.Clone(b.lazy().environments)
}

// Exports returns the declared exported packages.
func (b *Bundle) Exports() []*Capability { return slices.Clone(b.lazy().exports) }

// GenericCapabilities returns the declared generic capabilities.
func (b *Bundle) GenericCapabilities() []*Capability { return slices.Clone(b.lazy().generic) }

// NativeCodeAlternatives returns the declared native-code alternatives.
func (b *Bundle) NativeCodeAlternatives() []*Capability { return slices.Clone(b.lazy().native) }

// Imports returns the declared import-package requirements, dynamic
// imports included.
func (b *Bundle) Imports() []*Requirement { return slices.Clone(b.lazy().imports) }

// Requires returns the declared require-bundle requirements.
func (b *Bundle) Requires() []*Requirement { return slices.Clone(b.lazy().requires) }

// GenericRequirements returns the declared generic requirements.
func (b *Bundle) GenericRequirements() []*Requirement { return slices.Clone(b.lazy().genericReqs) }

// NativeCodeRequirement returns the native-code requirement, or nil.
func (b *Bundle) NativeCodeRequirement() *Requirement { return b.lazy().nativeReq }

// Capabilities returns every declared capability.
func (b *Bundle) Capabilities() []*Capability {
	var out []*Capability
	for _, c := range []*Capability{b.bundleCap, b.hostCap, b.identityCap} {
		if c != nil {
			out = append(out, c)
		}
	}
	d := b.lazy()
	out = append(out, d.exports...)
	out = append(out, d.generic...)
	return append(out, d.native...)
}

// Requirements returns every declared requirement.
func (b *Bundle) Requirements() []*Requirement {
	var out []*Requirement
	if b.host != nil {
		out = append(out, b.host)
	}
	d := b.lazy()
	out = append(out, d.requires...)
	out = append(out, d.imports...)
	out = append(out, d.genericReqs...)
	if d.nativeReq != nil {
		out = append(out, d.nativeReq)
	}
	return out
}

// State returns the State b belongs to, or nil.
func (b *Bundle) State() *State { return b.owner.Load() }

// IsResolved reports whether b is resolved.
func (b *Bundle) IsResolved() bool { return b.resolved.Load() }

// IsRemovalPending reports whether b was removed or replaced while still in use.
func (b *Bundle) IsRemovalPending() bool { return b.pending.Load() }

// Dependencies returns the bundles b is wired to, ordered by id.
func (b *Bundle) Dependencies() []*Bundle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedBundles(b.dependencies)
}

// Dependents returns the bundles wired to b, ordered by id.
func (b *Bundle) Dependents() []*Bundle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedBundles(b.dependents)
}

func (b *Bundle) hasDependents() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.dependents) > 0
}

// Hosts returns the hosts a resolved fragment is attached to.
func (b *Bundle) Hosts() []*Bundle {
	if b.host == nil {
		return nil
	}
	var out []*Bundle
	for _, c := range b.host.Suppliers() {
		out = append(out, c.provider)
	}
	return out
}

// Fragments returns the resolved fragments attached to b.
func (b *Bundle) Fragments() []*Bundle {
	var out []*Bundle
	for _, d := range b.Dependents() {
		if slices.Contains(d.Hosts(), b) {
			out = append(out, d)
		}
	}
	return out
}

// EEIndex returns the index of the platform environment whose execution
// environments satisfied b, or -1.
func (b *Bundle) EEIndex() int {
	d := b.lazy()
	b.mu.RLock()
	defer b.mu.RUnlock()
	return d.eeIndex
}

// SelectedExports returns the exports the resolver chose to make available.
func (b *Bundle) SelectedExports() []*Capability {
	d := b.lazy()
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(d.selectedExports)
}

// SubstitutedExports returns exports replaced by an import of the same package.
func (b *Bundle) SubstitutedExports() []*Capability {
	d := b.lazy()
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(d.substitutedExports)
}

// ResolvedImports returns the package capabilities b's imports are wired to.
func (b *Bundle) ResolvedImports() []*Capability {
	d := b.lazy()
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(d.resolvedImports)
}

// ResolvedRequires returns the bundles b's require-bundle requirements are
// wired to.
func (b *Bundle) ResolvedRequires() []*Bundle {
	d := b.lazy()
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(d.resolvedRequires)
}

// SelectedCapabilities returns the generic capabilities made available.
func (b *Bundle) SelectedCapabilities() []*Capability {
	d := b.lazy()
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(d.selectedCaps)
}

// ResolvedCapabilities returns the generic capabilities b's generic
// requirements are wired to.
func (b *Bundle) ResolvedCapabilities() []*Capability {
	d := b.lazy()
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(d.resolvedCaps)
}

// RequiredWires returns the wires from b's requirements in namespace, or
// in every namespace when namespace is empty. Wires are ordered by
// namespace and then declaration order.
func (b *Bundle) RequiredWires(namespace string) []*Wire {
	d := b.lazy()
	b.mu.RLock()
	defer b.mu.RUnlock()
	if namespace != "" {
		return slices.Clone(d.wires[namespace])
	}
	var out []*Wire
	for _, ns := range slices.Sorted(maps.Keys(d.wires)) {
		out = append(out, d.wires[ns]...)
	}
	return out
}

func (b *Bundle) String() string {
	name := b.symbolicName
	if name == "" {
		name = "<unnamed>"
	}
	return fmt.Sprintf("%s_%s (%d)", name, b.version, b.id)
}

// setResolution installs the outcome of a resolve round. The caller holds
// the owning State's lock.
func (b *Bundle) setResolution(r *Resolution) {
	d := b.lazy()
	b.mu.Lock()
	defer b.mu.Unlock()
	d.eeIndex = r.EEIndex
	d.selectedExports = r.SelectedExports
	d.substitutedExports = r.SubstitutedExports
	d.selectedCaps = r.SelectedCapabilities
	d.resolvedImports = nil
	d.resolvedRequires = nil
	d.resolvedCaps = nil
	d.wires = make(map[string][]*Wire)
	for _, req := range b.requirementsLocked(d) {
		req.suppliers = nil
	}
	for _, w := range r.Wires {
		req := w.Requirement
		req.suppliers = append(req.suppliers, w.Capability)
		d.wires[req.Namespace] = append(d.wires[req.Namespace], w)
		switch req.kind {
		case ReqImport:
			d.resolvedImports = append(d.resolvedImports, w.Capability)
		case ReqRequireBundle:
			d.resolvedRequires = append(d.resolvedRequires, w.Capability.provider)
		case ReqGeneric:
			d.resolvedCaps = append(d.resolvedCaps, w.Capability)
		}
	}
}

// clearResolution drops every wire and resolution result of b. Cached
// data that cannot be read is replaced by empty data; b keeps nothing that
// would have to be unwired.
func (b *Bundle) clearResolution() {
	d, err := b.loadData()
	if err != nil {
		b.data.Store(&bundleData{eeIndex: -1})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	d.eeIndex = -1
	d.selectedExports = nil
	d.substitutedExports = nil
	d.resolvedImports = nil
	d.resolvedRequires = nil
	d.selectedCaps = nil
	d.resolvedCaps = nil
	d.wires = nil
	d.dynamicStamps = nil
	for _, req := range b.requirementsLocked(d) {
		req.suppliers = nil
	}
}

func (b *Bundle) requirementsLocked(d *bundleData) []*Requirement {
	var out []*Requirement
	if b.host != nil {
		out = append(out, b.host)
	}
	out = append(out, d.requires...)
	out = append(out, d.imports...)
	out = append(out, d.genericReqs...)
	if d.nativeReq != nil {
		out = append(out, d.nativeReq)
	}
	return out
}

// addWire records a dynamically resolved import.
func (b *Bundle) addWire(w *Wire) {
	d := b.lazy()
	b.mu.Lock()
	defer b.mu.Unlock()
	w.Requirement.suppliers = append(w.Requirement.suppliers, w.Capability)
	if d.wires == nil {
		d.wires = make(map[string][]*Wire)
	}
	d.wires[NamespacePackage] = append(d.wires[NamespacePackage], w)
	d.resolvedImports = append(d.resolvedImports, w.Capability)
}

func (b *Bundle) dynamicStamp(pkg string) (int64, bool) {
	d := b.lazy()
	b.mu.RLock()
	defer b.mu.RUnlock()
	ts, ok := d.dynamicStamps[pkg]
	return ts, ok
}

func (b *Bundle) setDynamicStamp(pkg string, ts int64) {
	d := b.lazy()
	b.mu.Lock()
	defer b.mu.Unlock()
	if d.dynamicStamps == nil {
		d.dynamicStamps = make(map[string]int64)
	}
	d.dynamicStamps[pkg] = ts
}

// addDependency records that b is wired to dep, updating both directions.
func (b *Bundle) addDependency(dep *Bundle) {
	if dep == b {
		return
	}
	b.mu.Lock()
	b.dependencies[dep] = struct{}{}
	b.mu.Unlock()
	dep.mu.Lock()
	dep.dependents[b] = struct{}{}
	dep.mu.Unlock()
}

// clearDependencies removes every outgoing dependency edge of b and
// returns the former dependencies.
func (b *Bundle) clearDependencies() []*Bundle {
	b.mu.Lock()
	deps := sortedBundles(b.dependencies)
	clear(b.dependencies)
	b.mu.Unlock()
	for _, dep := range deps {
		dep.mu.Lock()
		delete(dep.dependents, b)
		dep.mu.Unlock()
	}
	return deps
}

func sortedBundles(set map[*Bundle]struct{}) []*Bundle {
	out := make([]*Bundle, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	slices.SortFunc(out, compareBundles)
	return out
}

// compareBundles orders bundles by id, placing removal-pending aliases
// after the current bundle with the same id.
func compareBundles(a, b *Bundle) int {
	switch {
	case a.id < b.id:
		return -1
	case a.id > b.id:
		return 1
	}
	pa, pb := a.pending.Load(), b.pending.Load()
	switch {
	case pa == pb:
		return 0
	case pb:
		return -1
	default:
		return 1
	}
}
