package bundlestate

import (
	"fmt"
	"slices"
)

// Snapshot is an immutable copy of the resolved part of a State, taken
// under the State lock. Projections built from it need no further locking.
type Snapshot struct {
	Timestamp int64
	Strict    bool
	Bundles   []*BundleView
}

// BundleView is the frozen wiring data of one resolved bundle.
type BundleView struct {
	Bundle       *Bundle
	Capabilities []*Capability
	Requirements []*Requirement
	Wires        []*Wire
	Hosts        []*Bundle
}

// Snapshot copies the wiring of every resolved bundle, removal-pending
// bundles included.
func (s *State) Snapshot() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fullyLoadLocked(); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	snap := &Snapshot{Timestamp: s.timestamp, Strict: s.cfg.strict}
	bundles := sortedBundles(s.resolvedIdx)
	for _, p := range s.pending {
		if p.IsResolved() {
			bundles = append(bundles, p)
		}
	}
	for _, b := range bundles {
		snap.Bundles = append(snap.Bundles, viewOf(b))
	}
	return snap, nil
}

func viewOf(b *Bundle) *BundleView {
	v := &BundleView{
		Bundle:       b,
		Requirements: b.Requirements(),
		Wires:        b.RequiredWires(""),
		Hosts:        b.Hosts(),
	}
	if b.identityCap != nil {
		v.Capabilities = append(v.Capabilities, b.identityCap)
	}
	if b.bundleCap != nil {
		v.Capabilities = append(v.Capabilities, b.bundleCap)
	}
	if b.hostCap != nil {
		v.Capabilities = append(v.Capabilities, b.hostCap)
	}
	v.Capabilities = append(v.Capabilities, b.SelectedExports()...)
	v.Capabilities = append(v.Capabilities, b.SelectedCapabilities()...)
	return v
}

// Lookup returns the view of b, or nil if b was not resolved.
func (s *Snapshot) Lookup(b *Bundle) *BundleView {
	i := slices.IndexFunc(s.Bundles, func(v *BundleView) bool { return v.Bundle == b })
	if i < 0 {
		return nil
	}
	return s.Bundles[i]
}
