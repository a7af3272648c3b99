package bundlestate

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/albertocavalcante/go-bundlestate/version"
	"github.com/google/uuid"
)

// State is the mutable repository of bundles for one module system
// instance. All mutating operations run under a single lock.
type State struct {
	mu  sync.Mutex
	id  uuid.UUID
	cfg *stateConfig
	log *slog.Logger

	bundles     map[BundleID]*Bundle
	byName      map[string][]*Bundle
	resolvedIdx map[*Bundle]struct{}
	pending     []*Bundle
	errors      map[*Bundle][]ResolverError
	disabled    map[*Bundle][]DisabledInfo

	platform atomic.Pointer[[]Properties]

	timestamp int64
	resolved  bool
	resolving atomic.Bool
	delta     *Delta

	// Set when a dynamic import wired or recorded a negative cache entry
	// since the last lazy data unload.
	dynamicCacheChanged bool
	lazy                *lazyStore
}

// NewState returns an empty State. WithExpectedTimestamp is rejected since
// a new State has no stored timestamp to check.
func NewState(opts ...Option) (*State, error) {
	cfg, err := newStateConfig(opts...)
	if err != nil {
		return nil, err
	}
	if cfg.checkTimestamp {
		return nil, errors.New("expected timestamp applies only when reading a state cache")
	}
	s := newState(cfg)
	s.setPlatform(cfg.platform)
	return s, nil
}

func newState(cfg *stateConfig) *State {
	s := &State{
		id:          uuid.New(),
		cfg:         cfg,
		bundles:     make(map[BundleID]*Bundle),
		byName:      make(map[string][]*Bundle),
		resolvedIdx: make(map[*Bundle]struct{}),
		errors:      make(map[*Bundle][]ResolverError),
		disabled:    make(map[*Bundle][]DisabledInfo),
		delta:       NewDelta(),
	}
	s.log = cfg.log().With("state", s.id.String())
	return s
}

// ID returns the instance identifier of s.
func (s *State) ID() uuid.UUID { return s.id }

// AddBundle adds b to s. It returns false if a bundle with the same id
// already exists, and ErrOwnedByOtherState if b belongs to another State.
func (s *State) AddBundle(b *Bundle) (bool, error) {
	if b == nil {
		return false, fmt.Errorf("add bundle: %w", ErrUnknownBundle)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner := b.owner.Load(); owner != nil {
		if owner != s {
			return false, fmt.Errorf("add bundle %s: %w", b, ErrOwnedByOtherState)
		}
		return false, nil
	}
	if _, exists := s.bundles[b.id]; exists {
		return false, nil
	}
	if !b.owner.CompareAndSwap(nil, s) {
		return false, fmt.Errorf("add bundle %s: %w", b, ErrOwnedByOtherState)
	}
	s.insert(b)
	s.delta.Record(b, Added)
	s.changed()
	s.log.Debug("bundle added", "bundle", b.String())
	return true, nil
}

// UpdateBundle replaces the bundle with nb's id. A replaced bundle that is
// still in use becomes removal-pending; otherwise it is unresolved and
// released. UpdateBundle returns false if no bundle with nb's id exists.
func (s *State) UpdateBundle(nb *Bundle) (bool, error) {
	if nb == nil {
		return false, fmt.Errorf("update bundle: %w", ErrUnknownBundle)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner := nb.owner.Load(); owner != nil && owner != s {
		return false, fmt.Errorf("update bundle %s: %w", nb, ErrOwnedByOtherState)
	}
	old, ok := s.bundles[nb.id]
	if !ok || old == nb {
		return false, nil
	}
	if err := s.fullyLoadLocked(); err != nil {
		return false, fmt.Errorf("update bundle %s: %w", nb, err)
	}
	if !nb.owner.CompareAndSwap(nil, s) {
		return false, fmt.Errorf("update bundle %s: %w", nb, ErrOwnedByOtherState)
	}
	s.detach(old)
	s.insert(nb)
	s.delta.Record(nb, Updated)
	s.retire(old)
	s.changed()
	s.log.Debug("bundle updated", "bundle", nb.String(), "pending", old.IsRemovalPending())
	return true, nil
}

// RemoveBundle removes the bundle with the given id and returns it, or nil
// if there is none. A removed bundle that is still in use becomes
// removal-pending and stays queryable until its dependents drain.
func (s *State) RemoveBundle(id BundleID) *Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[id]
	if !ok {
		return nil
	}
	s.detach(b)
	s.delta.Record(b, Removed)
	s.retire(b)
	s.changed()
	s.log.Debug("bundle removed", "bundle", b.String(), "pending", b.IsRemovalPending())
	return b
}

func (s *State) insert(b *Bundle) {
	s.bundles[b.id] = b
	if b.symbolicName != "" {
		s.byName[b.symbolicName] = append(s.byName[b.symbolicName], b)
	}
	if b.IsResolved() {
		s.resolvedIdx[b] = struct{}{}
	}
}

// detach removes b from the primary indexes.
func (s *State) detach(b *Bundle) {
	delete(s.bundles, b.id)
	delete(s.resolvedIdx, b)
	if b.symbolicName != "" {
		s.byName[b.symbolicName] = slices.DeleteFunc(s.byName[b.symbolicName], func(x *Bundle) bool { return x == b })
		if len(s.byName[b.symbolicName]) == 0 {
			delete(s.byName, b.symbolicName)
		}
	}
	delete(s.errors, b)
	delete(s.disabled, b)
}

// retire handles a bundle that left the primary indexes: it becomes
// removal-pending while resolved dependents use it, else it is unresolved
// and released.
func (s *State) retire(b *Bundle) {
	if b.IsResolved() && b.hasDependents() {
		b.pending.Store(true)
		s.pending = append(s.pending, b)
		s.delta.Record(b, RemovalPending)
		return
	}
	s.unresolveBundle(b)
	b.owner.Store(nil)
}

// unresolveBundle drops b's wiring and outgoing dependency edges, then
// finalizes any removal-pending bundle that lost its last dependent.
func (s *State) unresolveBundle(b *Bundle) {
	wasResolved := b.resolved.Swap(false)
	b.clearResolution()
	deps := b.clearDependencies()
	delete(s.resolvedIdx, b)
	if wasResolved {
		s.delta.Record(b, Unresolved)
	}
	for _, dep := range deps {
		s.checkRemovalComplete(dep)
	}
}

func (s *State) checkRemovalComplete(b *Bundle) {
	if !b.IsRemovalPending() || b.hasDependents() {
		return
	}
	s.pending = slices.DeleteFunc(s.pending, func(x *Bundle) bool { return x == b })
	b.pending.Store(false)
	s.unresolveBundle(b)
	b.owner.Store(nil)
	s.delta.Record(b, RemovalComplete)
	s.log.Debug("removal complete", "bundle", b.String())
}

// changed records an externally visible mutation.
func (s *State) changed() {
	s.timestamp++
	s.resolved = false
}

// Bundle returns the bundle with the given id. A removal-pending bundle is
// returned when no current bundle has that id.
func (s *State) Bundle(id BundleID) *Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bundles[id]; ok {
		return b
	}
	for i := len(s.pending) - 1; i >= 0; i-- {
		if s.pending[i].id == id {
			return s.pending[i]
		}
	}
	return nil
}

// Bundles returns the current bundles ordered by id.
func (s *State) Bundles() []*Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bundlesLocked()
}

func (s *State) bundlesLocked() []*Bundle {
	out := slices.Collect(maps.Values(s.bundles))
	slices.SortFunc(out, compareBundles)
	return out
}

// BundlesByName returns the current bundles with the given symbolic name,
// highest version first.
func (s *State) BundlesByName(name string) []*Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.byName[name])
	slices.SortFunc(out, func(a, b *Bundle) int {
		if c := version.Compare(b.version, a.version); c != 0 {
			return c
		}
		return compareBundles(a, b)
	})
	return out
}

// ResolvedBundles returns the resolved current bundles ordered by id.
func (s *State) ResolvedBundles() []*Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedBundles(s.resolvedIdx)
}

// RemovalPending returns the removal-pending bundles in the order they
// were retired.
func (s *State) RemovalPending() []*Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.pending)
}

// Timestamp returns the change counter. It increases on every mutation
// and every resolve that changes something.
func (s *State) Timestamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timestamp
}

// IsResolved reports whether nothing changed since the last resolve.
func (s *State) IsResolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved
}

// Changes returns a copy of the changes accumulated since the last resolve.
func (s *State) Changes() *Delta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := NewDelta()
	out.Merge(s.delta)
	return out
}

func (s *State) takeDelta() *Delta {
	d := s.delta
	s.delta = NewDelta()
	return d
}

// ResolverErrors returns the errors recorded for b by the last resolve.
func (s *State) ResolverErrors(b *Bundle) []ResolverError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.errors[b])
}

// DependencyClosure returns bundles together with everything that
// transitively depends on them, including removal-pending bundles that
// share an id with a member. The result is ordered by id.
func (s *State) DependencyClosure(bundles ...*Bundle) []*Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedBundles(s.dependencyClosure(bundles))
}

func (s *State) dependencyClosure(roots []*Bundle) map[*Bundle]struct{} {
	seen := make(map[*Bundle]struct{})
	queue := slices.Clone(roots)
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		if b == nil {
			continue
		}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		queue = append(queue, b.Dependents()...)
		for _, p := range s.pending {
			if p.id == b.id {
				queue = append(queue, p)
			}
		}
		if cur, ok := s.bundles[b.id]; ok {
			queue = append(queue, cur)
		}
	}
	return seen
}

// SetPlatformProperties replaces the platform environments. It reports
// whether they changed.
func (s *State) SetPlatformProperties(envs ...Properties) (bool, error) {
	for _, env := range envs {
		if env == nil {
			return false, fmt.Errorf("set platform properties: nil environment")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.PlatformProperties()
	if slices.EqualFunc(cur, envs, func(a, b Properties) bool {
		return maps.EqualFunc(a, b, attributeEqual)
	}) {
		return false, nil
	}
	s.setPlatform(envs)
	s.changed()
	return true, nil
}

func (s *State) setPlatform(envs []Properties) {
	cp := copyPlatform(envs)
	s.platform.Store(&cp)
}

// PlatformProperties returns a copy of the platform environments.
func (s *State) PlatformProperties() []Properties {
	p := s.platform.Load()
	if p == nil {
		return nil
	}
	return copyPlatform(*p)
}

// ExportedPackages returns the selected exports of every resolved bundle,
// ordered by package name and then highest version.
func (s *State) ExportedPackages() ([]*Capability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fullyLoadLocked(); err != nil {
		return nil, fmt.Errorf("exported packages: %w", err)
	}
	var out []*Capability
	for _, b := range sortedBundles(s.resolvedIdx) {
		out = append(out, b.SelectedExports()...)
	}
	slices.SortStableFunc(out, comparePackages)
	return out, nil
}

func comparePackages(a, b *Capability) int {
	if a.Name != b.Name {
		if a.Name < b.Name {
			return -1
		}
		return 1
	}
	return version.Compare(b.Version, a.Version)
}

// AddDisabledInfo marks info.Bundle as disabled for info.Policy, replacing
// an earlier entry for the same policy.
func (s *State) AddDisabledInfo(info DisabledInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if info.Bundle == nil || info.Bundle.State() != s {
		return fmt.Errorf("add disabled info: %w", ErrUnknownBundle)
	}
	infos := slices.DeleteFunc(s.disabled[info.Bundle], func(d DisabledInfo) bool { return d.Policy == info.Policy })
	s.disabled[info.Bundle] = append(infos, info)
	s.changed()
	return nil
}

// RemoveDisabledInfo removes the entry for info.Bundle and info.Policy.
func (s *State) RemoveDisabledInfo(info DisabledInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos, ok := s.disabled[info.Bundle]
	if !ok {
		return
	}
	n := len(infos)
	infos = slices.DeleteFunc(infos, func(d DisabledInfo) bool { return d.Policy == info.Policy })
	if len(infos) == n {
		return
	}
	if len(infos) == 0 {
		delete(s.disabled, info.Bundle)
	} else {
		s.disabled[info.Bundle] = infos
	}
	s.changed()
}

// DisabledInfos returns the disabled entries of b.
func (s *State) DisabledInfos(b *Bundle) []DisabledInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.disabled[b])
}

func (s *State) disabledCopy() map[*Bundle][]DisabledInfo {
	out := make(map[*Bundle][]DisabledInfo, len(s.disabled))
	for b, infos := range s.disabled {
		out[b] = slices.Clone(infos)
	}
	return out
}
