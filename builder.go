package bundlestate

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/albertocavalcante/go-bundlestate/filter"
	"github.com/albertocavalcante/go-bundlestate/version"
)

// BundleSpec is the descriptor ingestion contract: everything a manifest
// parser extracts for one bundle. Version strings use the dotted form
// accepted by version.Parse and ranges the form accepted by
// version.ParseRange.
type BundleSpec struct {
	ID                    BundleID
	SymbolicName          string
	Version               string
	Singleton             bool
	Attachment            AttachmentPolicy
	Attributes            map[string]any
	Directives            map[string]string
	Mandatory             []string
	Location              string
	PlatformFilter        string
	ExecutionEnvironments []string

	// Strict rejects imports and exports of java.* packages.
	Strict bool

	Host         *HostSpec
	Requires     []RequireBundleSpec
	Imports      []ImportSpec
	Exports      []ExportSpec
	Capabilities []CapabilitySpec
	Requirements []RequirementSpec
	NativeCode   []NativeCodeSpec

	// NativeCodeOptional lets the bundle resolve when no native-code
	// alternative matches the platform.
	NativeCodeOptional bool
}

// HostSpec declares the host a fragment attaches to.
type HostSpec struct {
	Name       string
	Range      string
	Attributes map[string]any
	Directives map[string]string
}

// RequireBundleSpec declares a require-bundle requirement.
type RequireBundleSpec struct {
	Name       string
	Range      string
	Optional   bool
	Reexport   bool
	Attributes map[string]any
	Directives map[string]string
}

// ImportSpec declares an import-package requirement. Names ending in "*"
// are only legal for dynamic imports.
type ImportSpec struct {
	Name               string
	Range              string
	Resolution         ResolutionMode
	BundleSymbolicName string
	BundleRange        string
	Attributes         map[string]any
	Directives         map[string]string
}

// ExportSpec declares an exported package. An integer AttrEEIndex
// attribute binds the export to one execution environment index.
type ExportSpec struct {
	Name       string
	Version    string
	Uses       []string
	Mandatory  []string
	Friends    []string
	Internal   bool
	Attributes map[string]any
	Directives map[string]string
}

// CapabilitySpec declares a generic capability. The capability name and
// version are read from the attributes keyed by the namespace and
// AttrVersion.
type CapabilitySpec struct {
	Namespace  string
	Attributes map[string]any
	Directives map[string]string
}

// RequirementSpec declares a generic requirement.
type RequirementSpec struct {
	Namespace  string
	Filter     string
	Optional   bool
	Multiple   bool
	Attributes map[string]any
	Directives map[string]string
}

// NativeCodeSpec declares one native-code alternative.
type NativeCodeSpec struct {
	Paths      []string
	Processors []string
	OSNames    []string
	OSVersions []string
	Languages  []string
	Filter     string
}

// BuildError reports a structurally invalid descriptor.
type BuildError struct {
	Bundle BundleID
	Field  string
	Reason string
	Err    error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("bundle %d: %s: %s", e.Bundle, e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BuildError) Unwrap() error { return e.Err }

type builder struct {
	spec BundleSpec
	b    *Bundle
}

// Build validates spec and constructs an unresolved Bundle. Build performs
// no resolution.
func Build(spec BundleSpec) (*Bundle, error) {
	bd := &builder{spec: spec, b: newBundle(spec.ID)}
	if err := bd.build(); err != nil {
		return nil, err
	}
	return bd.b, nil
}

func (bd *builder) errorf(field, format string, args ...any) error {
	return &BuildError{Bundle: bd.spec.ID, Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (bd *builder) wrap(field, reason string, err error) error {
	return &BuildError{Bundle: bd.spec.ID, Field: field, Reason: reason, Err: err}
}

func (bd *builder) build() error {
	spec, b := bd.spec, bd.b
	v, err := version.Parse(spec.Version)
	if err != nil {
		return bd.wrap("version", "invalid bundle version", err)
	}
	if err := checkCollisions(spec.Attributes, spec.Directives); err != nil {
		return bd.wrap("symbolic-name", "attribute and directive collide", err)
	}
	b.symbolicName = spec.SymbolicName
	b.version = v
	b.singleton = spec.Singleton
	b.attachment = spec.Attachment
	b.attributes = normalizeAttributes(spec.Attributes)
	b.directives = maps.Clone(spec.Directives)
	b.mandatory = slices.Clone(spec.Mandatory)

	d := &bundleData{
		location:     spec.Location,
		environments: slices.Clone(spec.ExecutionEnvironments),
		eeIndex:      -1,
	}
	if spec.PlatformFilter != "" {
		f, err := filter.Parse(spec.PlatformFilter)
		if err != nil {
			return bd.wrap("platform-filter", "invalid filter", err)
		}
		d.platformFilter = f
	}
	for _, ee := range d.environments {
		if strings.TrimSpace(ee) == "" {
			return bd.errorf("execution-environments", "empty environment name")
		}
	}

	if spec.Host != nil {
		if spec.Host.Name == "" {
			return bd.errorf("fragment-host", "missing host name")
		}
		r, err := bd.requirement("fragment-host", ReqHost, NamespaceHost, spec.Host.Name, spec.Host.Range, spec.Host.Attributes, spec.Host.Directives)
		if err != nil {
			return err
		}
		b.host = r
	}
	b.initCapabilities()

	if err := bd.requires(d); err != nil {
		return err
	}
	if err := bd.imports(d); err != nil {
		return err
	}
	if err := bd.exports(d); err != nil {
		return err
	}
	if err := bd.generic(d); err != nil {
		return err
	}
	if err := bd.nativeCode(d); err != nil {
		return err
	}
	b.data.Store(d)
	return nil
}

func (bd *builder) requirement(field string, kind RequirementKind, ns, name, rng string, attrs map[string]any, dirs map[string]string) (*Requirement, error) {
	r, err := version.ParseRange(rng)
	if err != nil {
		return nil, bd.wrap(field, fmt.Sprintf("invalid range for %s", name), err)
	}
	if err := checkCollisions(attrs, dirs); err != nil {
		return nil, bd.wrap(field, fmt.Sprintf("attribute and directive collide for %s", name), err)
	}
	return &Requirement{
		Namespace:  ns,
		Name:       name,
		Range:      r,
		Attributes: normalizeAttributes(attrs),
		Directives: maps.Clone(dirs),
		kind:       kind,
		owner:      bd.b,
	}, nil
}

func (bd *builder) requires(d *bundleData) error {
	seen := make(map[string]bool)
	for i, rs := range bd.spec.Requires {
		if rs.Name == "" {
			return bd.errorf("require-bundle", "missing bundle name at position %d", i)
		}
		if seen[rs.Name] {
			return bd.errorf("require-bundle", "duplicate requirement on %s", rs.Name)
		}
		seen[rs.Name] = true
		r, err := bd.requirement("require-bundle", ReqRequireBundle, NamespaceBundle, rs.Name, rs.Range, rs.Attributes, rs.Directives)
		if err != nil {
			return err
		}
		if rs.Optional {
			r.Resolution = Optional
		}
		r.Payload = &RequireBundlePayload{Reexport: rs.Reexport}
		r.index = i
		d.requires = append(d.requires, r)
	}
	return nil
}

func (bd *builder) imports(d *bundleData) error {
	seen := make(map[string]bool)
	for i, is := range bd.spec.Imports {
		if is.Name == "" {
			return bd.errorf("import-package", "missing package name at position %d", i)
		}
		if strings.HasSuffix(is.Name, "*") && is.Resolution != Dynamic {
			return bd.errorf("import-package", "wildcard %s is only allowed for dynamic imports", is.Name)
		}
		if bd.spec.Strict && isJavaPackage(is.Name) {
			return bd.errorf("import-package", "cannot import %s", is.Name)
		}
		if is.Resolution != Dynamic {
			if seen[is.Name] {
				return bd.errorf("import-package", "duplicate import of %s", is.Name)
			}
			seen[is.Name] = true
		} else {
			bd.b.dynamicImports = true
		}
		r, err := bd.requirement("import-package", ReqImport, NamespacePackage, is.Name, is.Range, is.Attributes, is.Directives)
		if err != nil {
			return err
		}
		r.Resolution = is.Resolution
		payload := &ImportPayload{BundleSymbolicName: is.BundleSymbolicName}
		if payload.BundleRange, err = version.ParseRange(is.BundleRange); err != nil {
			return bd.wrap("import-package", fmt.Sprintf("invalid bundle-version for %s", is.Name), err)
		}
		r.Payload = payload
		r.index = i
		d.imports = append(d.imports, r)
	}
	return nil
}

func (bd *builder) exports(d *bundleData) error {
	for i, es := range bd.spec.Exports {
		if es.Name == "" {
			return bd.errorf("export-package", "missing package name at position %d", i)
		}
		if strings.Contains(es.Name, "*") {
			return bd.errorf("export-package", "wildcard export %s", es.Name)
		}
		if bd.spec.Strict && isJavaPackage(es.Name) {
			return bd.errorf("export-package", "cannot export %s", es.Name)
		}
		if err := checkCollisions(es.Attributes, es.Directives); err != nil {
			return bd.wrap("export-package", fmt.Sprintf("attribute and directive collide for %s", es.Name), err)
		}
		v, err := version.Parse(es.Version)
		if err != nil {
			return bd.wrap("export-package", fmt.Sprintf("invalid version for %s", es.Name), err)
		}
		attrs := normalizeAttributes(es.Attributes)
		if attrs == nil {
			attrs = make(map[string]any)
		}
		ee := -1
		if raw, ok := attrs[AttrEEIndex]; ok {
			n, ok := raw.(int64)
			if !ok {
				return bd.errorf("export-package", "%s attribute of %s must be an integer", AttrEEIndex, es.Name)
			}
			ee = int(n)
		}
		attrs[NamespacePackage] = es.Name
		attrs[AttrVersion] = v
		if bd.b.symbolicName != "" {
			attrs[AttrBundleSymbolicName] = bd.b.symbolicName
			attrs[AttrBundleVersion] = bd.b.version
		}
		d.exports = append(d.exports, &Capability{
			Namespace:  NamespacePackage,
			Name:       es.Name,
			Version:    v,
			Attributes: attrs,
			Directives: maps.Clone(es.Directives),
			Payload: &PackagePayload{
				Uses:      slices.Clone(es.Uses),
				Mandatory: slices.Clone(es.Mandatory),
				Friends:   slices.Clone(es.Friends),
				Internal:  es.Internal,
				EEIndex:   ee,
			},
			kind:     KindPackage,
			index:    i,
			provider: bd.b,
		})
	}
	return nil
}

func (bd *builder) generic(d *bundleData) error {
	for i, cs := range bd.spec.Capabilities {
		if cs.Namespace == "" {
			return bd.errorf("provide-capability", "missing namespace at position %d", i)
		}
		if err := checkCollisions(cs.Attributes, cs.Directives); err != nil {
			return bd.wrap("provide-capability", fmt.Sprintf("attribute and directive collide in %s", cs.Namespace), err)
		}
		attrs := normalizeAttributes(cs.Attributes)
		if attrs == nil {
			attrs = make(map[string]any)
		}
		c := &Capability{
			Namespace:  cs.Namespace,
			Attributes: attrs,
			Directives: maps.Clone(cs.Directives),
			kind:       KindGeneric,
			index:      i,
			provider:   bd.b,
		}
		if name, ok := attrs[cs.Namespace].(string); ok {
			c.Name = name
		}
		switch v := attrs[AttrVersion].(type) {
		case version.Version:
			c.Version = v
		case string:
			pv, err := version.Parse(v)
			if err != nil {
				return bd.wrap("provide-capability", fmt.Sprintf("invalid version in %s", cs.Namespace), err)
			}
			c.Version = pv
			attrs[AttrVersion] = pv
		}
		d.generic = append(d.generic, c)
	}
	for i, rs := range bd.spec.Requirements {
		if rs.Namespace == "" {
			return bd.errorf("require-capability", "missing namespace at position %d", i)
		}
		if err := checkCollisions(rs.Attributes, rs.Directives); err != nil {
			return bd.wrap("require-capability", fmt.Sprintf("attribute and directive collide in %s", rs.Namespace), err)
		}
		r := &Requirement{
			Namespace:  rs.Namespace,
			Attributes: normalizeAttributes(rs.Attributes),
			Directives: maps.Clone(rs.Directives),
			Payload:    &GenericPayload{Multiple: rs.Multiple},
			kind:       ReqGeneric,
			index:      i,
			owner:      bd.b,
		}
		if rs.Optional {
			r.Resolution = Optional
		}
		if rs.Filter != "" {
			f, err := filter.Parse(rs.Filter)
			if err != nil {
				return bd.wrap("require-capability", fmt.Sprintf("invalid filter in %s", rs.Namespace), err)
			}
			r.Filter = f
		}
		d.genericReqs = append(d.genericReqs, r)
	}
	return nil
}

func (bd *builder) nativeCode(d *bundleData) error {
	for i, ns := range bd.spec.NativeCode {
		if len(ns.Paths) == 0 {
			return bd.errorf("native-code", "alternative %d declares no paths", i)
		}
		p := &NativeCodePayload{
			Paths:      slices.Clone(ns.Paths),
			Processors: slices.Clone(ns.Processors),
			OSNames:    slices.Clone(ns.OSNames),
			Languages:  slices.Clone(ns.Languages),
		}
		for _, s := range ns.OSVersions {
			r, err := version.ParseRange(s)
			if err != nil {
				return bd.wrap("native-code", fmt.Sprintf("invalid os version in alternative %d", i), err)
			}
			p.OSVersions = append(p.OSVersions, r)
		}
		if ns.Filter != "" {
			f, err := filter.Parse(ns.Filter)
			if err != nil {
				return bd.wrap("native-code", fmt.Sprintf("invalid selection filter in alternative %d", i), err)
			}
			p.Filter = f
		}
		d.native = append(d.native, &Capability{
			Namespace:  NamespaceNativeCode,
			Attributes: map[string]any{},
			Payload:    p,
			kind:       KindNativeCode,
			index:      i,
			provider:   bd.b,
		})
	}
	if len(d.native) > 0 {
		d.nativeReq = &Requirement{
			Namespace: NamespaceNativeCode,
			kind:      ReqNativeCode,
			owner:     bd.b,
		}
		if bd.spec.NativeCodeOptional {
			d.nativeReq.Resolution = Optional
		}
	}
	return nil
}

func isJavaPackage(name string) bool {
	return name == "java" || strings.HasPrefix(name, "java.")
}

func checkCollisions(attrs map[string]any, dirs map[string]string) error {
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		if _, ok := dirs[k]; ok {
			return fmt.Errorf("key %q used as both attribute and directive", k)
		}
	}
	return nil
}

// normalizeAttributes widens integer values to int64 and floats to float64
// so that matching and persistence see a closed set of value types.
func normalizeAttributes(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	case []int:
		out := make([]int64, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			s, ok := e.(string)
			if !ok {
				return x
			}
			out = append(out, s)
		}
		return out
	}
	return v
}
