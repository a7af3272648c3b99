// Package bundlestate maintains the installed set of modular bundles and
// their resolution state.
//
// A bundle declares what it provides (exported packages, a bundle identity,
// generic capabilities) and what it needs (imported packages, required
// bundles, a fragment host, generic requirements). A State holds the
// installed bundles, hands them to a pluggable Resolver, and commits the
// resulting wiring atomically, recording every change in a Delta.
//
// # Quick Start
//
//	r, err := resolver.New()
//	if err != nil {
//		return err
//	}
//	s, err := bundlestate.NewState(bundlestate.WithResolver(r))
//	if err != nil {
//		return err
//	}
//
//	b, err := bundlestate.Build(bundlestate.BundleSpec{
//		ID:           1,
//		SymbolicName: "org.example.app",
//		Version:      "1.0.0",
//		Imports:      []bundlestate.ImportSpec{{Name: "org.example.api", Range: "[1.0,2.0)"}},
//	})
//	if err != nil {
//		return err
//	}
//	if _, err := s.AddBundle(b); err != nil {
//		return err
//	}
//	delta, err := s.Resolve()
//
// # Removals and Updates
//
// Removing or updating a bundle that other resolved bundles are wired to
// does not unwire them. The old bundle stays in the state as removal
// pending until a refresh (ResolveBundles or ResolveAll) re-resolves the
// dependents. Resolve alone never touches removal-pending bundles.
//
// # Persistence
//
// Write and ReadState store a state in two streams: a header stream read
// eagerly and a lazy stream holding per-bundle data that is loaded on first
// access. UnloadLazyData drops lazy data that has not been touched since the
// previous call so long-running processes can release memory.
//
// # Thread Safety
//
// State is safe for concurrent use. Only one resolve runs at a time; a
// resolve started from inside a resolver hook fails with
// ErrResolveInProgress. Bundles and capabilities returned by a State must
// be treated as read-only; use Snapshot for a consistent view that does not
// change under later resolves.
package bundlestate
