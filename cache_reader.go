package bundlestate

import (
	"fmt"
	"io"

	"github.com/albertocavalcante/go-bundlestate/filter"
	"github.com/albertocavalcante/go-bundlestate/internal/binfmt"
	"github.com/albertocavalcante/go-bundlestate/version"
)

type cacheReader struct {
	cfg      *stateConfig
	r        *binfmt.Reader
	store    *lazyStore
	versions *binfmt.ObjectTable[version.Version]
	hosts    map[*Bundle][]*Bundle
}

func newCacheReader(cfg *stateConfig, data []byte, open func() (io.ReaderAt, io.Closer, error)) *cacheReader {
	return &cacheReader{
		cfg: cfg,
		r:   binfmt.NewReader(data, 0),
		store: &lazyStore{
			open:     open,
			bundles:  binfmt.NewObjectTable[*Bundle](),
			index:    make(map[*Bundle]int32),
			segments: make(map[*Bundle]segment),
		},
		versions: binfmt.NewObjectTable[version.Version](),
		hosts:    make(map[*Bundle][]*Bundle),
	}
}

func (cr *cacheReader) decode() (*State, bool, error) {
	r := cr.r
	if v := r.Byte(); r.Err() != nil || v != CacheVersion {
		return nil, false, nil
	}
	if tag := r.Byte(); tag != binfmt.TagObject {
		r.Fail(fmt.Sprintf("expected root object, found tag %d", tag), nil)
	}
	_ = r.Int32()
	timestamp := r.Int64()
	if r.Err() != nil {
		return nil, false, r.Err()
	}
	if cr.cfg.checkTimestamp && timestamp != cr.cfg.expectedTimestamp {
		return nil, false, nil
	}

	s := newState(cr.cfg)
	s.setPlatform(cr.readPlatform())

	current := cr.readBundleList(s)
	pending := cr.readBundleList(s)
	for _, b := range current {
		if b == nil || b.IsRemovalPending() {
			r.Fail(fmt.Sprintf("invalid current bundle %v", b), nil)
			break
		}
		if _, dup := s.bundles[b.id]; dup {
			r.Fail(fmt.Sprintf("duplicate bundle id %d", b.id), nil)
			break
		}
		s.insert(b)
	}
	for _, b := range pending {
		if b == nil || !b.IsRemovalPending() {
			r.Fail(fmt.Sprintf("invalid removal-pending bundle %v", b), nil)
			break
		}
		s.pending = append(s.pending, b)
	}
	n := r.Len()
	for range n {
		info := DisabledInfo{Policy: r.String(), Message: r.String()}
		info.Bundle = cr.readBundle(s)
		if info.Bundle == nil {
			r.Fail("disabled info without bundle", nil)
			break
		}
		s.disabled[info.Bundle] = append(s.disabled[info.Bundle], info)
	}
	s.resolved = r.Bool()
	if trailing := r.Int64(); r.Err() == nil && trailing != timestamp {
		r.Fail(fmt.Sprintf("trailing timestamp %d does not match %d", trailing, timestamp), nil)
	}
	if r.Err() != nil {
		return nil, false, r.Err()
	}
	if err := cr.linkHosts(); err != nil {
		return nil, false, err
	}

	s.timestamp = timestamp
	cr.store.timestamp = timestamp
	s.lazy = cr.store
	return s, true, nil
}

func (cr *cacheReader) readPlatform() []Properties {
	r := cr.r
	keys := r.Strings()
	n := r.Len()
	envs := make([]Properties, 0, n)
	for range n {
		env := make(Properties, len(keys))
		for _, k := range keys {
			if v := r.Value(); v != nil {
				env[k] = v
			}
		}
		envs = append(envs, env)
	}
	return envs
}

func (cr *cacheReader) readBundleList(s *State) []*Bundle {
	n := cr.r.Len()
	out := make([]*Bundle, 0, n)
	for range n {
		out = append(out, cr.readBundle(s))
	}
	return out
}

func (cr *cacheReader) readVersion() version.Version {
	r := cr.r
	switch tag := r.Byte(); tag {
	case binfmt.TagIndex:
		v, err := cr.versions.Get(r.Int32())
		if err != nil {
			r.Fail("version reference", err)
		}
		return v
	case binfmt.TagObject:
		idx := r.Int32()
		v := r.Version()
		if err := cr.versions.Put(idx, v); err != nil {
			r.Fail("version table", err)
		}
		return v
	default:
		r.Fail(fmt.Sprintf("unexpected version tag %d", tag), nil)
		return version.Empty
	}
}

func (cr *cacheReader) readBundle(s *State) *Bundle {
	r := cr.r
	if r.Err() != nil {
		return nil
	}
	switch tag := r.Byte(); tag {
	case binfmt.TagNull:
		return nil
	case binfmt.TagIndex:
		b, err := cr.store.bundles.Get(r.Int32())
		if err != nil {
			r.Fail("bundle reference", err)
			return nil
		}
		return b
	case binfmt.TagObject:
	default:
		r.Fail(fmt.Sprintf("unexpected bundle tag %d", tag), nil)
		return nil
	}

	idx := r.Int32()
	b := newBundle(BundleID(r.Int64()))
	if err := cr.store.bundles.Put(idx, b); err != nil {
		r.Fail("bundle table", err)
		return nil
	}
	b.symbolicName = r.String()
	b.version = cr.readVersion()
	seg := segment{offset: r.Int64(), length: r.Int32()}
	flags := r.Byte()
	b.mandatory = r.Strings()
	b.attributes = r.Attributes()
	b.directives = r.StringMap()
	b.singleton = flags&flagSingleton != 0
	b.dynamicImports = flags&flagDynamicImport != 0
	switch {
	case flags&flagAttachFragments == 0:
		b.attachment = AttachNever
	case flags&flagDynamicFragments != 0:
		b.attachment = AttachAlways
	default:
		b.attachment = AttachResolveTime
	}
	b.resolved.Store(flags&flagResolved != 0)
	b.pending.Store(flags&flagPending != 0)
	b.owner.Store(s)
	b.loader = cr.store
	cr.store.index[b] = idx
	cr.store.segments[b] = seg
	cr.store.order = append(cr.store.order, b)

	switch tag := r.Byte(); tag {
	case binfmt.TagNull:
	case binfmt.TagObject:
		b.host = &Requirement{
			Namespace:  NamespaceHost,
			Name:       r.String(),
			Range:      r.Range(),
			Attributes: r.Attributes(),
			Directives: r.StringMap(),
			kind:       ReqHost,
			owner:      b,
		}
		b.initCapabilities()
		n := r.Len()
		for range n {
			if h := cr.readBundle(s); h != nil {
				cr.hosts[b] = append(cr.hosts[b], h)
			}
		}
	default:
		r.Fail(fmt.Sprintf("unexpected host tag %d", tag), nil)
		return nil
	}
	if b.host == nil {
		b.initCapabilities()
	}

	n := r.Len()
	for range n {
		dep := cr.readBundle(s)
		if dep == nil {
			r.Fail(fmt.Sprintf("null dependency of %s", b), nil)
			return b
		}
		b.addDependency(dep)
	}
	return b
}

func (cr *cacheReader) linkHosts() error {
	for frag, hosts := range cr.hosts {
		for _, h := range hosts {
			if h.hostCap == nil {
				return &FormatError{Reason: fmt.Sprintf("fragment %s attached to %s which accepts no fragments", frag, h)}
			}
			frag.host.suppliers = append(frag.host.suppliers, h.hostCap)
		}
	}
	return nil
}

type capRef struct {
	bundle int32
	kind   CapabilityKind
	index  int32
}

type wireRef struct {
	reqKind  RequirementKind
	reqIndex int32
	cap      capRef
}

// lazyRecord is a decoded lazy segment whose references to other bundles
// are resolved once the whole batch is decoded.
type lazyRecord struct {
	b    *Bundle
	data *bundleData

	selected     []capRef
	substituted  []capRef
	imports      []capRef
	requires     []int32
	selectedCaps []capRef
	resolvedCaps []capRef
	wires        map[string][]wireRef
}

func decodeLazy(r *binfmt.Reader, b *Bundle, wantIdx int32) (*lazyRecord, error) {
	if idx := r.Int32(); r.Err() == nil && idx != wantIdx {
		r.Fail(fmt.Sprintf("segment of %s has table index %d, want %d", b, idx, wantIdx), nil)
	}
	d := &bundleData{location: r.String()}
	if raw := r.String(); raw != "" && r.Err() == nil {
		f, err := filter.Parse(raw)
		if err != nil {
			r.Fail("platform filter", err)
		}
		d.platformFilter = f
	}
	d.environments = r.Strings()
	d.eeIndex = int(r.Int32())

	n := r.Len()
	for i := range n {
		c := &Capability{
			Namespace:  NamespacePackage,
			Name:       r.String(),
			Version:    r.Version(),
			Attributes: r.Attributes(),
			Directives: r.StringMap(),
			kind:       KindPackage,
			index:      i,
			provider:   b,
		}
		c.Payload = &PackagePayload{
			Uses:      r.Strings(),
			Mandatory: r.Strings(),
			Friends:   r.Strings(),
			Internal:  r.Bool(),
			EEIndex:   int(r.Int32()),
		}
		d.exports = append(d.exports, c)
	}
	n = r.Len()
	for i := range n {
		d.generic = append(d.generic, &Capability{
			Namespace:  r.String(),
			Name:       r.String(),
			Version:    r.Version(),
			Attributes: r.Attributes(),
			Directives: r.StringMap(),
			kind:       KindGeneric,
			index:      i,
			provider:   b,
		})
	}
	n = r.Len()
	for i := range n {
		p := &NativeCodePayload{
			Paths:      r.Strings(),
			Processors: r.Strings(),
			OSNames:    r.Strings(),
		}
		nv := r.Len()
		for range nv {
			p.OSVersions = append(p.OSVersions, r.Range())
		}
		p.Languages = r.Strings()
		if raw := r.String(); raw != "" && r.Err() == nil {
			f, err := filter.Parse(raw)
			if err != nil {
				r.Fail("native code filter", err)
			}
			p.Filter = f
		}
		d.native = append(d.native, &Capability{
			Namespace:  NamespaceNativeCode,
			Attributes: map[string]any{},
			Payload:    p,
			kind:       KindNativeCode,
			index:      i,
			provider:   b,
		})
	}

	n = r.Len()
	for i := range n {
		req := &Requirement{
			Namespace:  NamespacePackage,
			Name:       r.String(),
			Range:      r.Range(),
			Resolution: ResolutionMode(r.Byte()),
			kind:       ReqImport,
			index:      i,
			owner:      b,
		}
		req.Payload = &ImportPayload{BundleSymbolicName: r.String(), BundleRange: r.Range()}
		req.Attributes = r.Attributes()
		req.Directives = r.StringMap()
		d.imports = append(d.imports, req)
	}
	n = r.Len()
	for i := range n {
		req := &Requirement{
			Namespace:  NamespaceBundle,
			Name:       r.String(),
			Range:      r.Range(),
			Resolution: ResolutionMode(r.Byte()),
			kind:       ReqRequireBundle,
			index:      i,
			owner:      b,
		}
		req.Payload = &RequireBundlePayload{Reexport: r.Bool()}
		req.Attributes = r.Attributes()
		req.Directives = r.StringMap()
		d.requires = append(d.requires, req)
	}
	n = r.Len()
	for i := range n {
		req := &Requirement{Namespace: r.String(), kind: ReqGeneric, index: i, owner: b}
		if raw := r.String(); raw != "" && r.Err() == nil {
			f, err := filter.Parse(raw)
			if err != nil {
				r.Fail("requirement filter", err)
			}
			req.Filter = f
		}
		req.Resolution = ResolutionMode(r.Byte())
		req.Payload = &GenericPayload{Multiple: r.Bool()}
		req.Attributes = r.Attributes()
		req.Directives = r.StringMap()
		d.genericReqs = append(d.genericReqs, req)
	}
	switch tag := r.Byte(); tag {
	case binfmt.TagNull:
	case binfmt.TagObject:
		d.nativeReq = &Requirement{
			Namespace:  NamespaceNativeCode,
			Resolution: ResolutionMode(r.Byte()),
			kind:       ReqNativeCode,
			owner:      b,
		}
	default:
		r.Fail(fmt.Sprintf("unexpected native code tag %d", tag), nil)
	}

	rec := &lazyRecord{b: b, data: d}
	rec.selected = readCapRefs(r)
	rec.substituted = readCapRefs(r)
	rec.imports = readCapRefs(r)
	n = r.Len()
	for range n {
		rec.requires = append(rec.requires, r.Int32())
	}
	rec.selectedCaps = readCapRefs(r)
	rec.resolvedCaps = readCapRefs(r)

	n = r.Len()
	if n > 0 {
		rec.wires = make(map[string][]wireRef, n)
	}
	for range n {
		ns := r.String()
		nw := r.Len()
		for range nw {
			w := wireRef{reqKind: RequirementKind(r.Byte()), reqIndex: r.Int32()}
			w.cap = readCapRef(r)
			rec.wires[ns] = append(rec.wires[ns], w)
		}
	}
	n = r.Len()
	if n > 0 {
		d.dynamicStamps = make(map[string]int64, n)
	}
	for range n {
		pkg := r.String()
		d.dynamicStamps[pkg] = r.Int64()
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	if r.Remaining() != 0 {
		return nil, &FormatError{Offset: r.Offset(), Reason: fmt.Sprintf("%d trailing bytes in segment of %s", r.Remaining(), b)}
	}
	return rec, nil
}

func readCapRefs(r *binfmt.Reader) []capRef {
	n := r.Len()
	var out []capRef
	for range n {
		out = append(out, readCapRef(r))
	}
	return out
}

func readCapRef(r *binfmt.Reader) capRef {
	return capRef{bundle: r.Int32(), kind: CapabilityKind(r.Byte()), index: r.Int32()}
}

// link resolves the record's references against the batch being loaded
// and bundles loaded earlier.
func (rec *lazyRecord) link(ls *lazyStore, batch map[*Bundle]*lazyRecord) error {
	dataOf := func(b *Bundle) *bundleData {
		if other, ok := batch[b]; ok {
			return other.data
		}
		return b.data.Load()
	}
	resolveCap := func(ref capRef) (*Capability, error) {
		b, err := ls.bundles.Get(ref.bundle)
		if err != nil {
			return nil, &FormatError{Reason: fmt.Sprintf("capability reference from %s", rec.b), Err: err}
		}
		var c *Capability
		switch ref.kind {
		case KindBundle:
			c = b.bundleCap
		case KindHost:
			c = b.hostCap
		case KindIdentity:
			c = b.identityCap
		default:
			d := dataOf(b)
			if d == nil {
				return nil, &FormatError{Reason: fmt.Sprintf("%s references unloaded %s", rec.b, b)}
			}
			var list []*Capability
			switch ref.kind {
			case KindPackage:
				list = d.exports
			case KindGeneric:
				list = d.generic
			case KindNativeCode:
				list = d.native
			}
			if ref.index >= 0 && int(ref.index) < len(list) {
				c = list[ref.index]
			}
		}
		if c == nil {
			return nil, &FormatError{Reason: fmt.Sprintf("%s references missing %s capability %d of %s", rec.b, ref.kind, ref.index, b)}
		}
		return c, nil
	}
	resolveCaps := func(refs []capRef) ([]*Capability, error) {
		var out []*Capability
		for _, ref := range refs {
			c, err := resolveCap(ref)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	}

	d := rec.data
	var err error
	if d.selectedExports, err = resolveCaps(rec.selected); err != nil {
		return err
	}
	if d.substitutedExports, err = resolveCaps(rec.substituted); err != nil {
		return err
	}
	if d.resolvedImports, err = resolveCaps(rec.imports); err != nil {
		return err
	}
	if d.selectedCaps, err = resolveCaps(rec.selectedCaps); err != nil {
		return err
	}
	if d.resolvedCaps, err = resolveCaps(rec.resolvedCaps); err != nil {
		return err
	}
	for _, idx := range rec.requires {
		b, err := ls.bundles.Get(idx)
		if err != nil {
			return &FormatError{Reason: fmt.Sprintf("required bundle of %s", rec.b), Err: err}
		}
		d.resolvedRequires = append(d.resolvedRequires, b)
	}
	if len(rec.wires) > 0 {
		d.wires = make(map[string][]*Wire, len(rec.wires))
	}
	for ns, refs := range rec.wires {
		for _, ref := range refs {
			req := rec.requirement(ref.reqKind, int(ref.reqIndex))
			if req == nil {
				return &FormatError{Reason: fmt.Sprintf("%s has no %s requirement %d", rec.b, ref.reqKind, ref.reqIndex)}
			}
			c, err := resolveCap(ref.cap)
			if err != nil {
				return err
			}
			if req.kind != ReqHost {
				req.suppliers = append(req.suppliers, c)
			}
			d.wires[ns] = append(d.wires[ns], &Wire{Requirement: req, Capability: c})
		}
	}
	return nil
}

func (rec *lazyRecord) requirement(kind RequirementKind, index int) *Requirement {
	d := rec.data
	var list []*Requirement
	switch kind {
	case ReqHost:
		if index == 0 {
			return rec.b.host
		}
		return nil
	case ReqNativeCode:
		if index == 0 {
			return d.nativeReq
		}
		return nil
	case ReqImport:
		list = d.imports
	case ReqRequireBundle:
		list = d.requires
	case ReqGeneric:
		list = d.genericReqs
	}
	if index < 0 || index >= len(list) {
		return nil
	}
	return list[index]
}
