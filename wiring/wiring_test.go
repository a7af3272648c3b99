package wiring_test

import (
	"encoding/json"
	"strings"
	"testing"

	bundlestate "github.com/albertocavalcante/go-bundlestate"
	"github.com/albertocavalcante/go-bundlestate/resolver"
	"github.com/albertocavalcante/go-bundlestate/wiring"
	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

// project builds the wiring projection of s.
func project(t *testing.T, s *bundlestate.State) *wiring.Wiring {
	t.Helper()
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	return wiring.New(snap)
}

type fixture struct {
	state                            *bundlestate.State
	app, lib, frag, base, other, ext *bundlestate.Bundle
}

// newFixture resolves:
//
//	app  requires lib, imports ext.api
//	lib  requires base (reexport) and other, exports lib.api
//	frag attaches to lib, exports lib.frag
//	base exports base.api, the internal base.impl, base.friendly for lib
//	     and a shadowed copy of lib.api
//	other exports other.api
//	ext  exports ext.api
func newFixture(t *testing.T, strict bool) *fixture {
	t.Helper()
	r, err := resolver.New()
	if err != nil {
		t.Fatalf("resolver.New() error = %v", err)
	}
	s, err := bundlestate.NewState(bundlestate.WithResolver(r), bundlestate.WithStrictVisibility(strict))
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	build := func(spec bundlestate.BundleSpec) *bundlestate.Bundle {
		spec.Version = "1.0.0"
		b, err := bundlestate.Build(spec)
		if err != nil {
			t.Fatalf("Build(%s) error = %v", spec.SymbolicName, err)
		}
		if ok, err := s.AddBundle(b); !ok || err != nil {
			t.Fatalf("AddBundle(%s) = %v, %v", spec.SymbolicName, ok, err)
		}
		return b
	}
	f := &fixture{state: s}
	f.base = build(bundlestate.BundleSpec{
		ID: 1, SymbolicName: "base",
		Exports: []bundlestate.ExportSpec{
			{Name: "base.api", Version: "1.0.0"},
			{Name: "base.impl", Version: "1.0.0", Internal: true},
			{Name: "base.friendly", Version: "1.0.0", Friends: []string{"lib"}},
			{Name: "lib.api", Version: "0.1.0"},
		},
	})
	f.other = build(bundlestate.BundleSpec{
		ID: 2, SymbolicName: "other",
		Exports: []bundlestate.ExportSpec{{Name: "other.api", Version: "1.0.0"}},
	})
	f.lib = build(bundlestate.BundleSpec{
		ID: 3, SymbolicName: "lib",
		Requires: []bundlestate.RequireBundleSpec{{Name: "base", Reexport: true}, {Name: "other"}},
		Exports:  []bundlestate.ExportSpec{{Name: "lib.api", Version: "1.0.0"}},
	})
	f.frag = build(bundlestate.BundleSpec{
		ID: 4, SymbolicName: "frag",
		Host:    &bundlestate.HostSpec{Name: "lib"},
		Exports: []bundlestate.ExportSpec{{Name: "lib.frag", Version: "1.0.0"}},
	})
	f.ext = build(bundlestate.BundleSpec{
		ID: 5, SymbolicName: "ext",
		Exports: []bundlestate.ExportSpec{{Name: "ext.api", Version: "1.0.0"}},
	})
	f.app = build(bundlestate.BundleSpec{
		ID: 6, SymbolicName: "app",
		Requires: []bundlestate.RequireBundleSpec{{Name: "lib"}},
		Imports:  []bundlestate.ImportSpec{{Name: "ext.api"}},
	})
	if _, err := s.Resolve(); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	for _, b := range []*bundlestate.Bundle{f.base, f.other, f.lib, f.frag, f.ext, f.app} {
		if !b.IsResolved() {
			t.Fatalf("%v unresolved: %v", b, s.ResolverErrors(b))
		}
	}
	return f
}

func packageNames(caps []*bundlestate.Capability) []string {
	var out []string
	for _, c := range caps {
		out = append(out, c.Provider().SymbolicName()+":"+c.Name)
	}
	return out
}

func TestVisiblePackages(t *testing.T) {
	tests := []struct {
		name   string
		strict bool
		want   []string
	}{
		{
			name: "non-strict",
			want: []string{"ext:ext.api", "lib:lib.api", "frag:lib.frag", "base:base.api", "base:base.friendly"},
		},
		{
			name:   "strict hides non-friends",
			strict: true,
			want:   []string{"ext:ext.api", "lib:lib.api", "frag:lib.frag", "base:base.api"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.strict)
			w := project(t, f.state)
			if diff := cmp.Diff(tt.want, packageNames(w.VisiblePackages(f.app))); diff != "" {
				t.Errorf("VisiblePackages(app) mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVisiblePackagesNeverIncludeInternal(t *testing.T) {
	f := newFixture(t, false)
	w := project(t, f.state)
	for _, n := range w.Nodes() {
		if n.Bundle == f.base {
			continue
		}
		for _, c := range w.VisiblePackages(n.Bundle) {
			if c.Name == "base.impl" {
				t.Errorf("VisiblePackages(%v) contains internal base.impl", n.Bundle)
			}
		}
	}
}

func TestVisiblePackagesFirstSourceWins(t *testing.T) {
	f := newFixture(t, false)
	w := project(t, f.state)

	// lib requires other without reexport: lib sees other.api, app does not.
	got := packageNames(w.VisiblePackages(f.lib))
	want := []string{"base:base.api", "base:base.friendly", "base:lib.api", "other:other.api"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("VisiblePackages(lib) mismatch (-want +got):\n%s", diff)
	}
	for _, c := range w.VisiblePackages(f.app) {
		if c.Name == "lib.api" && c.Provider() != f.lib {
			t.Errorf("lib.api visible from %v, want lib", c.Provider())
		}
	}
}

func TestVisiblePackagesIncludeFragmentImports(t *testing.T) {
	r, err := resolver.New()
	if err != nil {
		t.Fatalf("resolver.New() error = %v", err)
	}
	s, err := bundlestate.NewState(bundlestate.WithResolver(r))
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	specs := []bundlestate.BundleSpec{
		{ID: 1, SymbolicName: "q", Exports: []bundlestate.ExportSpec{{Name: "q.api", Version: "1.0.0"}}},
		{ID: 2, SymbolicName: "host"},
		{ID: 3, SymbolicName: "frag", Host: &bundlestate.HostSpec{Name: "host"}, Imports: []bundlestate.ImportSpec{{Name: "q.api"}}},
	}
	var host *bundlestate.Bundle
	for _, spec := range specs {
		b, err := bundlestate.Build(spec)
		if err != nil {
			t.Fatalf("Build(%s) error = %v", spec.SymbolicName, err)
		}
		if _, err := s.AddBundle(b); err != nil {
			t.Fatalf("AddBundle(%s) error = %v", spec.SymbolicName, err)
		}
		if spec.ID == 2 {
			host = b
		}
	}
	if _, err := s.Resolve(); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	w := project(t, s)
	if diff := cmp.Diff([]string{"q:q.api"}, packageNames(w.VisiblePackages(host))); diff != "" {
		t.Errorf("VisiblePackages(host) mismatch (-want +got):\n%s", diff)
	}
}

func TestQueries(t *testing.T) {
	f := newFixture(t, false)
	w := project(t, f.state)

	if got := len(w.Capabilities(f.base, bundlestate.NamespacePackage)); got != 4 {
		t.Errorf("Capabilities(base, package) = %d, want 4", got)
	}
	// identity, bundle and host capabilities plus the exports
	if got := len(w.Capabilities(f.base, "")); got != 7 {
		t.Errorf("Capabilities(base, all) = %d, want 7", got)
	}
	if got := len(w.Requirements(f.lib, bundlestate.NamespaceBundle)); got != 2 {
		t.Errorf("Requirements(lib, bundle) = %d, want 2", got)
	}

	provided := w.Wires(f.lib, "", wiring.Provided)
	var requirers []string
	for _, wire := range provided {
		requirers = append(requirers, wire.Requirer().SymbolicName()+":"+wire.Requirement.Namespace)
	}
	want := []string{"frag:" + bundlestate.NamespaceHost, "app:" + bundlestate.NamespaceBundle}
	if diff := cmp.Diff(want, requirers); diff != "" {
		t.Errorf("Wires(lib, provided) mismatch (-want +got):\n%s", diff)
	}

	if got := w.Get(f.lib).Fragments; len(got) != 1 || got[0] != f.frag {
		t.Errorf("Fragments(lib) = %v, want [frag]", got)
	}

	path := w.Path(f.app, f.base)
	if len(path) != 3 || path[0] != f.app || path[1] != f.lib || path[2] != f.base {
		t.Errorf("Path(app, base) = %v, want [app lib base]", path)
	}
	if got := w.Path(f.base, f.app); got != nil {
		t.Errorf("Path(base, app) = %v, want nil", got)
	}

	deps := w.TransitiveDependencies(f.app)
	if len(deps) != 4 {
		t.Errorf("TransitiveDependencies(app) = %v, want 4 bundles", deps)
	}
	if got := w.TransitiveDependents(f.base); len(got) != 3 {
		t.Errorf("TransitiveDependents(base) = %v, want lib, frag and app", got)
	}

	stats := w.Stats()
	if stats.Bundles != 6 || stats.Fragments != 1 || stats.MaxDepth != 2 {
		t.Errorf("Stats() = %+v, want 6 bundles, 1 fragment, depth 2", stats)
	}
	if cycles := w.FindCycles(); len(cycles) != 0 {
		t.Errorf("FindCycles() = %v, want none", cycles)
	}
}

func TestFindCyclesInImports(t *testing.T) {
	r, err := resolver.New()
	if err != nil {
		t.Fatalf("resolver.New() error = %v", err)
	}
	s, err := bundlestate.NewState(bundlestate.WithResolver(r))
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	a, _ := bundlestate.Build(bundlestate.BundleSpec{
		ID: 1, SymbolicName: "a", Version: "1.0.0",
		Exports: []bundlestate.ExportSpec{{Name: "a.api", Version: "1.0.0"}},
		Imports: []bundlestate.ImportSpec{{Name: "b.api"}},
	})
	b, _ := bundlestate.Build(bundlestate.BundleSpec{
		ID: 2, SymbolicName: "b", Version: "1.0.0",
		Exports: []bundlestate.ExportSpec{{Name: "b.api", Version: "1.0.0"}},
		Imports: []bundlestate.ImportSpec{{Name: "a.api"}},
	})
	s.AddBundle(a)
	s.AddBundle(b)
	if _, err := s.Resolve(); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	w := project(t, s)
	cycles := w.FindCycles()
	if len(cycles) != 1 || len(cycles[0]) != 2 {
		t.Fatalf("FindCycles() = %v, want one cycle of two bundles", cycles)
	}
	if got := w.Roots(); len(got) != 0 {
		t.Errorf("Roots() = %v, want none", got)
	}
}

func TestFormats(t *testing.T) {
	f := newFixture(t, false)
	w := project(t, f.state)

	t.Run("json", func(t *testing.T) {
		data, err := w.ToJSON()
		if err != nil {
			t.Fatalf("ToJSON() error = %v", err)
		}
		var doc wiring.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			t.Fatalf("json.Unmarshal() error = %v", err)
		}
		if diff := cmp.Diff(w.Document(), &doc); diff != "" {
			t.Errorf("ToJSON() document mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		data, err := w.ToYAML()
		if err != nil {
			t.Fatalf("ToYAML() error = %v", err)
		}
		var doc wiring.Document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			t.Fatalf("yaml.Unmarshal() error = %v", err)
		}
		if len(doc.Bundles) != 6 || doc.Bundles[0].Name != "base" {
			t.Errorf("ToYAML() bundles = %+v, want 6 starting with base", doc.Bundles)
		}
	})

	t.Run("dot", func(t *testing.T) {
		dot := w.ToDOT()
		for _, want := range []string{"digraph wiring {", `"6" -> "3" [label="bundle"]`, `"4" -> "3" [label="host"]`, "style=dashed"} {
			if !strings.Contains(dot, want) {
				t.Errorf("ToDOT() missing %q in:\n%s", want, dot)
			}
		}
	})

	t.Run("text", func(t *testing.T) {
		text := w.ToText()
		for _, want := range []string{"Resolved bundles: 6", "Dependency Tree:", "app_1.0.0 (6)", "(fragment)"} {
			if !strings.Contains(text, want) {
				t.Errorf("ToText() missing %q in:\n%s", want, text)
			}
		}
	})
}
