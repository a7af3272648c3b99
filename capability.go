package bundlestate

import (
	"fmt"

	"github.com/albertocavalcante/go-bundlestate/filter"
	"github.com/albertocavalcante/go-bundlestate/version"
)

// CapabilityKind tags the variant carried by a Capability.
type CapabilityKind uint8

const (
	KindBundle CapabilityKind = iota + 1
	KindHost
	KindIdentity
	KindPackage
	KindGeneric
	KindNativeCode
)

func (k CapabilityKind) String() string {
	switch k {
	case KindBundle:
		return "bundle"
	case KindHost:
		return "host"
	case KindIdentity:
		return "identity"
	case KindPackage:
		return "package"
	case KindGeneric:
		return "generic"
	case KindNativeCode:
		return "native-code"
	default:
		return fmt.Sprintf("CapabilityKind(%d)", uint8(k))
	}
}

// CapabilityKey identifies a capability relative to its provider: the kind
// and the position in the provider's declaration list for that kind.
type CapabilityKey struct {
	Kind  CapabilityKind
	Index int
}

// Capability is a namespaced fact a bundle provides. Kind-specific fields
// live in Payload, which is nil for bundle, host and identity capabilities
// other than the mandatory attribute list (see BundlePayload).
type Capability struct {
	Namespace  string
	Name       string
	Version    version.Version
	Attributes map[string]any
	Directives map[string]string
	Payload    CapabilityPayload

	kind     CapabilityKind
	index    int
	provider *Bundle
}

// Kind returns the variant tag.
func (c *Capability) Kind() CapabilityKind { return c.kind }

// Key returns the provider-relative identity of c.
func (c *Capability) Key() CapabilityKey { return CapabilityKey{Kind: c.kind, Index: c.index} }

// Provider returns the bundle that declares c.
func (c *Capability) Provider() *Bundle { return c.provider }

func (c *Capability) String() string {
	provider := "<none>"
	if c.provider != nil {
		provider = c.provider.String()
	}
	switch c.kind {
	case KindPackage:
		return fmt.Sprintf("%s; version=%s [%s]", c.Name, c.Version, provider)
	case KindGeneric, KindIdentity:
		return fmt.Sprintf("%s:%v [%s]", c.Namespace, c.Attributes, provider)
	default:
		return fmt.Sprintf("%s %s_%s", c.Namespace, c.Name, c.Version)
	}
}

// Package returns the package payload, or nil for other kinds.
func (c *Capability) Package() *PackagePayload {
	p, _ := c.Payload.(*PackagePayload)
	return p
}

// NativeCode returns the native-code payload, or nil for other kinds.
func (c *Capability) NativeCode() *NativeCodePayload {
	p, _ := c.Payload.(*NativeCodePayload)
	return p
}

// Mandatory returns the attribute keys a requirer must name to match c.
func (c *Capability) Mandatory() []string {
	switch p := c.Payload.(type) {
	case *PackagePayload:
		return p.Mandatory
	case *BundlePayload:
		return p.Mandatory
	}
	return nil
}

// CapabilityPayload is implemented by the kind-specific capability payloads.
type CapabilityPayload interface {
	isCapabilityPayload()
}

// BundlePayload carries the extra data of bundle and host capabilities.
type BundlePayload struct {
	Mandatory []string
}

// PackagePayload carries the extra data of an exported package.
type PackagePayload struct {
	Uses      []string
	Mandatory []string
	Friends   []string
	Internal  bool

	// EEIndex is the execution environment the export is bound to, or -1
	// when the export is available to every environment.
	EEIndex int
}

// NativeCodePayload describes one native-code alternative. Empty lists act
// as wildcards.
type NativeCodePayload struct {
	Paths      []string
	Processors []string
	OSNames    []string
	OSVersions []version.Range
	Languages  []string
	Filter     *filter.Filter
}

func (*BundlePayload) isCapabilityPayload()     {}
func (*PackagePayload) isCapabilityPayload()    {}
func (*NativeCodePayload) isCapabilityPayload() {}
