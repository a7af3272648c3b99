package bundlestate

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/albertocavalcante/go-bundlestate/internal/binfmt"
	"github.com/albertocavalcante/go-bundlestate/version"
)

// Header bundle state bits.
const (
	flagResolved byte = 1 << iota
	flagSingleton
	flagDynamicImport
	flagAttachFragments
	flagDynamicFragments
	flagPending
)

// cacheWriter encodes a State in two passes. The first pass assigns a
// table index to every bundle reachable from the state in the order the
// header will first emit it; the second streams records, writing TagIndex
// for bundles already emitted.
type cacheWriter struct {
	s        *State
	header   *binfmt.Writer
	lazy     *binfmt.Writer
	bundles  *binfmt.IndexTable[*Bundle]
	versions *binfmt.IndexTable[version.Version]
	written  map[*Bundle]bool
	segments map[*Bundle]segment
}

func newCacheWriter(s *State) *cacheWriter {
	return &cacheWriter{
		s:        s,
		header:   binfmt.NewWriter(),
		lazy:     binfmt.NewWriter(),
		bundles:  binfmt.NewIndexTable[*Bundle](),
		versions: binfmt.NewIndexTable[version.Version](),
		written:  make(map[*Bundle]bool),
		segments: make(map[*Bundle]segment),
	}
}

func (cw *cacheWriter) roots() (current, pending []*Bundle) {
	return cw.s.bundlesLocked(), slices.Clone(cw.s.pending)
}

func (cw *cacheWriter) prime(b *Bundle) {
	if _, first := cw.bundles.Ref(b); !first {
		return
	}
	for _, h := range b.Hosts() {
		cw.prime(h)
	}
	for _, dep := range b.Dependencies() {
		cw.prime(dep)
	}
}

func (cw *cacheWriter) encode() (header, lazy []byte, err error) {
	current, pending := cw.roots()
	for _, b := range current {
		cw.prime(b)
	}
	for _, b := range pending {
		cw.prime(b)
	}

	for _, b := range cw.bundles.Keys() {
		off := cw.lazy.Offset()
		cw.writeLazy(b)
		n := cw.lazy.Offset() - off
		if n > math.MaxInt32 {
			return nil, nil, fmt.Errorf("lazy segment of %s too large", b)
		}
		cw.segments[b] = segment{offset: off, length: int32(n)}
	}
	if err := cw.lazy.Err(); err != nil {
		return nil, nil, err
	}

	s, h := cw.s, cw.header
	h.Byte(CacheVersion)
	h.Byte(binfmt.TagObject)
	h.Int32(0)
	h.Int64(s.timestamp)
	cw.writePlatform()
	h.Len(len(current))
	for _, b := range current {
		cw.writeBundle(b)
	}
	h.Len(len(pending))
	for _, b := range pending {
		cw.writeBundle(b)
	}
	cw.writeDisabled()
	h.Bool(s.resolved)
	h.Int64(s.timestamp)
	if err := h.Err(); err != nil {
		return nil, nil, err
	}
	return h.Bytes(), cw.lazy.Bytes(), nil
}

func (cw *cacheWriter) writePlatform() {
	h := cw.header
	envs := cw.s.PlatformProperties()
	keySet := make(map[string]bool)
	for _, env := range envs {
		for k := range env {
			keySet[k] = true
		}
	}
	keys := slices.Sorted(maps.Keys(keySet))
	h.Strings(keys)
	h.Len(len(envs))
	for _, env := range envs {
		for _, k := range keys {
			h.Value(normalizeValue(env[k]))
		}
	}
}

func (cw *cacheWriter) writeDisabled() {
	h := cw.header
	var infos []DisabledInfo
	for _, b := range slices.SortedFunc(maps.Keys(cw.s.disabled), compareBundles) {
		infos = append(infos, cw.s.disabled[b]...)
	}
	h.Len(len(infos))
	for _, info := range infos {
		h.String(info.Policy)
		h.String(info.Message)
		cw.writeBundle(info.Bundle)
	}
}

func (cw *cacheWriter) writeVersion(v version.Version) {
	h := cw.header
	idx, first := cw.versions.Ref(v)
	if !first {
		h.Byte(binfmt.TagIndex)
		h.Int32(idx)
		return
	}
	h.Byte(binfmt.TagObject)
	h.Int32(idx)
	h.Version(v)
}

func (cw *cacheWriter) writeBundle(b *Bundle) {
	h := cw.header
	idx, ok := cw.bundles.Lookup(b)
	if !ok {
		h.Fail(fmt.Sprintf("bundle %s not in object table", b))
		return
	}
	if cw.written[b] {
		h.Byte(binfmt.TagIndex)
		h.Int32(idx)
		return
	}
	cw.written[b] = true
	h.Byte(binfmt.TagObject)
	h.Int32(idx)
	h.Int64(int64(b.id))
	h.String(b.symbolicName)
	cw.writeVersion(b.version)
	seg := cw.segments[b]
	h.Int64(seg.offset)
	h.Int32(seg.length)
	h.Byte(bundleFlags(b))
	h.Strings(b.mandatory)
	h.Attributes(b.attributes)
	h.StringMap(b.directives)
	if b.host == nil {
		h.Byte(binfmt.TagNull)
	} else {
		h.Byte(binfmt.TagObject)
		h.String(b.host.Name)
		h.Range(b.host.Range)
		h.Attributes(b.host.Attributes)
		h.StringMap(b.host.Directives)
		hosts := b.Hosts()
		h.Len(len(hosts))
		for _, host := range hosts {
			cw.writeBundle(host)
		}
	}
	deps := b.Dependencies()
	h.Len(len(deps))
	for _, dep := range deps {
		cw.writeBundle(dep)
	}
}

func bundleFlags(b *Bundle) byte {
	var f byte
	if b.IsResolved() {
		f |= flagResolved
	}
	if b.singleton {
		f |= flagSingleton
	}
	if b.dynamicImports {
		f |= flagDynamicImport
	}
	if b.AttachFragments() {
		f |= flagAttachFragments
	}
	if b.DynamicFragments() {
		f |= flagDynamicFragments
	}
	if b.IsRemovalPending() {
		f |= flagPending
	}
	return f
}

func (cw *cacheWriter) writeLazy(b *Bundle) {
	l := cw.lazy
	d := b.lazy()
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, _ := cw.bundles.Lookup(b)
	l.Int32(idx)
	l.String(d.location)
	if d.platformFilter != nil {
		l.String(d.platformFilter.String())
	} else {
		l.String("")
	}
	l.Strings(d.environments)
	l.Int32(int32(d.eeIndex))

	l.Len(len(d.exports))
	for _, c := range d.exports {
		p := c.Package()
		l.String(c.Name)
		l.Version(c.Version)
		l.Attributes(c.Attributes)
		l.StringMap(c.Directives)
		l.Strings(p.Uses)
		l.Strings(p.Mandatory)
		l.Strings(p.Friends)
		l.Bool(p.Internal)
		l.Int32(int32(p.EEIndex))
	}
	l.Len(len(d.generic))
	for _, c := range d.generic {
		l.String(c.Namespace)
		l.String(c.Name)
		l.Version(c.Version)
		l.Attributes(c.Attributes)
		l.StringMap(c.Directives)
	}
	l.Len(len(d.native))
	for _, c := range d.native {
		p := c.NativeCode()
		l.Strings(p.Paths)
		l.Strings(p.Processors)
		l.Strings(p.OSNames)
		l.Len(len(p.OSVersions))
		for _, r := range p.OSVersions {
			l.Range(r)
		}
		l.Strings(p.Languages)
		if p.Filter != nil {
			l.String(p.Filter.String())
		} else {
			l.String("")
		}
	}

	l.Len(len(d.imports))
	for _, r := range d.imports {
		p, _ := r.Payload.(*ImportPayload)
		if p == nil {
			p = &ImportPayload{BundleRange: version.EmptyRange}
		}
		l.String(r.Name)
		l.Range(r.Range)
		l.Byte(byte(r.Resolution))
		l.String(p.BundleSymbolicName)
		l.Range(p.BundleRange)
		l.Attributes(r.Attributes)
		l.StringMap(r.Directives)
	}
	l.Len(len(d.requires))
	for _, r := range d.requires {
		l.String(r.Name)
		l.Range(r.Range)
		l.Byte(byte(r.Resolution))
		l.Bool(r.Reexport())
		l.Attributes(r.Attributes)
		l.StringMap(r.Directives)
	}
	l.Len(len(d.genericReqs))
	for _, r := range d.genericReqs {
		l.String(r.Namespace)
		if r.Filter != nil {
			l.String(r.Filter.String())
		} else {
			l.String("")
		}
		l.Byte(byte(r.Resolution))
		l.Bool(r.Multiple())
		l.Attributes(r.Attributes)
		l.StringMap(r.Directives)
	}
	if d.nativeReq == nil {
		l.Byte(binfmt.TagNull)
	} else {
		l.Byte(binfmt.TagObject)
		l.Byte(byte(d.nativeReq.Resolution))
	}

	cw.writeCapRefs(d.selectedExports)
	cw.writeCapRefs(d.substitutedExports)
	cw.writeCapRefs(d.resolvedImports)
	l.Len(len(d.resolvedRequires))
	for _, rb := range d.resolvedRequires {
		cw.writeBundleRef(rb)
	}
	cw.writeCapRefs(d.selectedCaps)
	cw.writeCapRefs(d.resolvedCaps)

	namespaces := slices.Sorted(maps.Keys(d.wires))
	l.Len(len(namespaces))
	for _, ns := range namespaces {
		l.String(ns)
		l.Len(len(d.wires[ns]))
		for _, w := range d.wires[ns] {
			l.Byte(byte(w.Requirement.kind))
			l.Int32(int32(w.Requirement.index))
			cw.writeCapRef(w.Capability)
		}
	}

	pkgs := slices.Sorted(maps.Keys(d.dynamicStamps))
	l.Len(len(pkgs))
	for _, pkg := range pkgs {
		l.String(pkg)
		l.Int64(d.dynamicStamps[pkg])
	}
}

func (cw *cacheWriter) writeBundleRef(b *Bundle) {
	idx, ok := cw.bundles.Lookup(b)
	if !ok {
		cw.lazy.Fail(fmt.Sprintf("reference to %s outside the dependency closure", b))
		return
	}
	cw.lazy.Int32(idx)
}

func (cw *cacheWriter) writeCapRefs(caps []*Capability) {
	cw.lazy.Len(len(caps))
	for _, c := range caps {
		cw.writeCapRef(c)
	}
}

func (cw *cacheWriter) writeCapRef(c *Capability) {
	cw.writeBundleRef(c.provider)
	cw.lazy.Byte(byte(c.kind))
	cw.lazy.Int32(int32(c.index))
}
