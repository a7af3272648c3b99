package bundlestate

import (
	"fmt"
	"slices"

	"github.com/albertocavalcante/go-bundlestate/filter"
	"github.com/albertocavalcante/go-bundlestate/version"
)

// RequirementKind tags the variant carried by a Requirement.
type RequirementKind uint8

const (
	ReqRequireBundle RequirementKind = iota + 1
	ReqHost
	ReqImport
	ReqGeneric
	ReqNativeCode
)

func (k RequirementKind) String() string {
	switch k {
	case ReqRequireBundle:
		return "require-bundle"
	case ReqHost:
		return "fragment-host"
	case ReqImport:
		return "import-package"
	case ReqGeneric:
		return "generic"
	case ReqNativeCode:
		return "native-code"
	default:
		return fmt.Sprintf("RequirementKind(%d)", uint8(k))
	}
}

// ResolutionMode controls whether an unsatisfied requirement blocks resolution.
type ResolutionMode uint8

const (
	Mandatory ResolutionMode = iota
	Optional
	Dynamic
)

func (m ResolutionMode) String() string {
	switch m {
	case Mandatory:
		return "mandatory"
	case Optional:
		return "optional"
	case Dynamic:
		return "dynamic"
	default:
		return fmt.Sprintf("ResolutionMode(%d)", uint8(m))
	}
}

// ParseResolutionMode parses "mandatory", "optional" or "dynamic". The
// empty string is mandatory.
func ParseResolutionMode(s string) (ResolutionMode, error) {
	switch s {
	case "", "mandatory":
		return Mandatory, nil
	case "optional":
		return Optional, nil
	case "dynamic":
		return Dynamic, nil
	}
	return 0, fmt.Errorf("invalid resolution mode %q", s)
}

// RequirementKey identifies a requirement relative to its owner.
type RequirementKey struct {
	Kind  RequirementKind
	Index int
}

// Requirement is a namespaced constraint a bundle needs satisfied.
//
// Name is empty for generic and native-code requirements, which select
// candidates through Filter and the platform environments respectively.
type Requirement struct {
	Namespace  string
	Name       string
	Range      version.Range
	Resolution ResolutionMode
	Attributes map[string]any
	Directives map[string]string
	Filter     *filter.Filter
	Payload    RequirementPayload

	kind      RequirementKind
	index     int
	owner     *Bundle
	suppliers []*Capability
}

// Kind returns the variant tag.
func (r *Requirement) Kind() RequirementKind { return r.kind }

// Key returns the owner-relative identity of r.
func (r *Requirement) Key() RequirementKey { return RequirementKey{Kind: r.kind, Index: r.index} }

// Owner returns the bundle declaring r.
func (r *Requirement) Owner() *Bundle { return r.owner }

// IsOptional reports whether r may stay unsatisfied without blocking its owner.
func (r *Requirement) IsOptional() bool { return r.Resolution != Mandatory }

// Multiple reports whether r accepts more than one supplier.
func (r *Requirement) Multiple() bool {
	p, ok := r.Payload.(*GenericPayload)
	return ok && p.Multiple
}

// Supplier returns the first capability r is wired to, or nil.
func (r *Requirement) Supplier() *Capability {
	var out *Capability
	r.withOwnerRLock(func() {
		if len(r.suppliers) > 0 {
			out = r.suppliers[0]
		}
	})
	return out
}

// Suppliers returns every capability r is wired to.
func (r *Requirement) Suppliers() []*Capability {
	var out []*Capability
	r.withOwnerRLock(func() { out = slices.Clone(r.suppliers) })
	return out
}

// IsResolved reports whether r currently holds a supplier.
func (r *Requirement) IsResolved() bool {
	return r.Supplier() != nil
}

func (r *Requirement) withOwnerRLock(fn func()) {
	if r.owner == nil {
		fn()
		return
	}
	r.owner.mu.RLock()
	defer r.owner.mu.RUnlock()
	fn()
}

func (r *Requirement) String() string {
	switch r.kind {
	case ReqGeneric:
		if r.Filter != nil {
			return fmt.Sprintf("%s; filter:=%q", r.Namespace, r.Filter.String())
		}
		return r.Namespace
	case ReqNativeCode:
		return NamespaceNativeCode
	default:
		if r.Range.IsEmpty() {
			return fmt.Sprintf("%s %s", r.kind, r.Name)
		}
		return fmt.Sprintf("%s %s; version=%q", r.kind, r.Name, r.Range)
	}
}

// RequirementPayload is implemented by the kind-specific requirement payloads.
type RequirementPayload interface {
	isRequirementPayload()
}

// RequireBundlePayload carries the extra data of a require-bundle requirement.
type RequireBundlePayload struct {
	Reexport bool
}

// ImportPayload carries the extra data of an import-package requirement.
type ImportPayload struct {
	BundleSymbolicName string
	BundleRange        version.Range
}

// GenericPayload carries the extra data of a generic requirement.
type GenericPayload struct {
	Multiple bool
}

func (*RequireBundlePayload) isRequirementPayload() {}
func (*ImportPayload) isRequirementPayload()        {}
func (*GenericPayload) isRequirementPayload()       {}

// Reexport reports whether a require-bundle requirement re-exports its
// supplier's packages.
func (r *Requirement) Reexport() bool {
	p, ok := r.Payload.(*RequireBundlePayload)
	return ok && p.Reexport
}
