package bundlestate

import (
	"fmt"
	"slices"
)

// Resolver computes which unresolved bundles of a State can be resolved
// and how their requirements are wired. A Resolver is invoked by State
// while the State lock is held; it must not call mutating State methods.
type Resolver interface {
	Resolve(in *ResolveInput) (*ResolveOutput, error)
	ResolveDynamicImport(in *DynamicImportInput) *Wire
}

// ResolveInput is the view of a State handed to a Resolver.
type ResolveInput struct {
	// Bundles lists every current bundle ordered by id.
	Bundles []*Bundle

	// Resolved lists bundles whose wiring stays fixed for this round,
	// removal-pending bundles that are still resolved included.
	Resolved []*Bundle

	// Unresolved lists the bundles the resolver should try to resolve.
	Unresolved []*Bundle

	// Previous holds the bundles that were resolved when the round began,
	// including the ones unresolved by a refresh.
	Previous map[*Bundle]bool

	Platform []Properties
	Strict   bool
	Hook     ResolverHook
	Disabled map[*Bundle][]DisabledInfo
}

// ResolveOutput is the result of one resolve round.
type ResolveOutput struct {
	Resolutions []*Resolution
	Errors      map[*Bundle][]ResolverError
}

// Resolution describes how one bundle resolved.
type Resolution struct {
	Bundle               *Bundle
	EEIndex              int
	Wires                []*Wire
	SelectedExports      []*Capability
	SubstitutedExports   []*Capability
	SelectedCapabilities []*Capability
}

// DynamicImportInput asks a Resolver to wire one package lazily.
type DynamicImportInput struct {
	Bundle  *Bundle
	Package string

	// Candidates lists the selected exports of resolved bundles named
	// Package, highest version first.
	Candidates []*Capability

	Platform []Properties
	Strict   bool
	Hook     ResolverHook
}

// ResolverErrorKind classifies why a bundle failed to resolve.
type ResolverErrorKind uint8

const (
	MissingImportPackage ResolverErrorKind = iota + 1
	MissingRequireBundle
	MissingFragmentHost
	MissingGenericCapability
	MissingExecutionEnvironment
	PlatformFilter
	NativeCode
	SingletonSelection
	ImportPackageUsesConflict
	RequireBundleUsesConflict
	Cycle
	DisabledBundle
	FragmentConflict
)

var resolverErrorNames = map[ResolverErrorKind]string{
	MissingImportPackage:        "missing import package",
	MissingRequireBundle:        "missing required bundle",
	MissingFragmentHost:         "missing fragment host",
	MissingGenericCapability:    "missing generic capability",
	MissingExecutionEnvironment: "missing execution environment",
	PlatformFilter:              "platform filter mismatch",
	NativeCode:                  "no matching native code",
	SingletonSelection:          "singleton selection",
	ImportPackageUsesConflict:   "import package uses conflict",
	RequireBundleUsesConflict:   "require bundle uses conflict",
	Cycle:                       "dependency cycle",
	DisabledBundle:              "disabled bundle",
	FragmentConflict:            "fragment conflict",
}

func (k ResolverErrorKind) String() string {
	if name, ok := resolverErrorNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ResolverErrorKind(%d)", uint8(k))
}

// ResolverError records why a bundle stayed unresolved. Resolver errors
// are queryable results, not Go errors.
type ResolverError struct {
	Kind        ResolverErrorKind
	Bundle      *Bundle
	Requirement *Requirement
	Data        string
}

func (e ResolverError) String() string {
	s := fmt.Sprintf("%s: %s", e.Bundle, e.Kind)
	if e.Requirement != nil {
		s += ": " + e.Requirement.String()
	}
	if e.Data != "" {
		s += " (" + e.Data + ")"
	}
	return s
}

// ResolverHookFactory starts a hook for each resolve operation.
type ResolverHookFactory interface {
	Begin(triggers []*Bundle) ResolverHook
}

// ResolverHook may narrow the candidates considered for a requirement.
type ResolverHook interface {
	FilterMatches(req *Requirement, candidates []*Capability) []*Capability
	End()
}

// FilterMatches applies hook to candidates. Capabilities the hook adds are
// ignored; the result keeps the order of candidates.
func FilterMatches(hook ResolverHook, req *Requirement, candidates []*Capability) []*Capability {
	if hook == nil || len(candidates) == 0 {
		return candidates
	}
	kept := hook.FilterMatches(req, slices.Clone(candidates))
	allowed := make(map[*Capability]bool, len(kept))
	for _, c := range kept {
		allowed[c] = true
	}
	out := make([]*Capability, 0, len(kept))
	for _, c := range candidates {
		if allowed[c] {
			out = append(out, c)
		}
	}
	return out
}

// DisabledInfo marks a bundle as not resolvable for the named policy.
type DisabledInfo struct {
	Policy  string
	Message string
	Bundle  *Bundle
}
