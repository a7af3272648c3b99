package bundlestate

import (
	"errors"
	"testing"

	"github.com/albertocavalcante/go-bundlestate/version"
)

func TestBuild(t *testing.T) {
	b := mustBuild(t, BundleSpec{
		ID:           7,
		SymbolicName: "acme.core",
		Version:      "1.2",
		Singleton:    true,
		Attributes:   map[string]any{"size": 3},
		Location:     "file:/bundles/core.jar",
		Requires:     []RequireBundleSpec{{Name: "acme.base", Reexport: true, Optional: true}},
		Imports:      []ImportSpec{{Name: "org.log", Range: "[1.0,2.0)"}, {Name: "org.dyn.*", Resolution: Dynamic}},
		Exports:      []ExportSpec{{Name: "acme.core.api", Version: "1.2.0", Uses: []string{"org.log"}}},
	})

	if b.ID() != 7 || b.SymbolicName() != "acme.core" {
		t.Errorf("identity = %d %s, want 7 acme.core", b.ID(), b.SymbolicName())
	}
	if got := b.Version().String(); got != "1.2.0" {
		t.Errorf("Version() = %s, want 1.2.0", got)
	}
	if !b.IsSingleton() || b.IsFragment() {
		t.Errorf("IsSingleton() = %v, IsFragment() = %v, want true, false", b.IsSingleton(), b.IsFragment())
	}
	if got := b.Attributes()["size"]; got != int64(3) {
		t.Errorf("size attribute = %#v, want int64(3)", got)
	}
	if b.Location() != "file:/bundles/core.jar" {
		t.Errorf("Location() = %q", b.Location())
	}
	if !b.HasDynamicImports() {
		t.Error("HasDynamicImports() = false, want true")
	}
	if b.IdentityCapability().Directives[DirectiveSingleton] != "true" {
		t.Error("identity capability lacks singleton directive")
	}

	req := b.Requires()[0]
	if !req.IsOptional() || !req.Reexport() || req.Owner() != b {
		t.Errorf("require-bundle optional=%v reexport=%v", req.IsOptional(), req.Reexport())
	}

	exp := b.Exports()[0]
	wantAttrs := map[string]any{
		NamespacePackage:       "acme.core.api",
		AttrVersion:            version.MustParse("1.2.0"),
		AttrBundleSymbolicName: "acme.core",
		AttrBundleVersion:      version.MustParse("1.2.0"),
	}
	for k, want := range wantAttrs {
		if got := exp.Attributes[k]; !attributeEqual(got, want) {
			t.Errorf("export attribute %s = %v, want %v", k, got, want)
		}
	}
	if exp.Package().EEIndex != -1 {
		t.Errorf("EEIndex = %d, want -1", exp.Package().EEIndex)
	}
	if got := len(b.Capabilities()); got != 4 {
		t.Errorf("len(Capabilities()) = %d, want 4", got)
	}
}

func TestBuildFragment(t *testing.T) {
	b := mustBuild(t, BundleSpec{
		ID:           2,
		SymbolicName: "acme.nls",
		Version:      "1.0.0",
		Host:         &HostSpec{Name: "acme.core", Range: "[1.0,2.0)"},
	})
	if !b.IsFragment() {
		t.Fatal("IsFragment() = false, want true")
	}
	if got := b.IdentityCapability().Attributes[AttrIdentityType]; got != IdentityTypeFragment {
		t.Errorf("identity type = %v, want %s", got, IdentityTypeFragment)
	}
	if b.Host().Name != "acme.core" || b.Host().Kind() != ReqHost {
		t.Errorf("Host() = %v", b.Host())
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name  string
		spec  BundleSpec
		field string
	}{
		{"bad version", BundleSpec{Version: "1.x"}, "version"},
		{"collision", BundleSpec{Attributes: map[string]any{"k": 1}, Directives: map[string]string{"k": "v"}}, "symbolic-name"},
		{"bad platform filter", BundleSpec{PlatformFilter: "(os=linux"}, "platform-filter"},
		{"empty environment", BundleSpec{ExecutionEnvironments: []string{" "}}, "execution-environments"},
		{"host without name", BundleSpec{Host: &HostSpec{}}, "fragment-host"},
		{"duplicate require", BundleSpec{Requires: []RequireBundleSpec{{Name: "a"}, {Name: "a"}}}, "require-bundle"},
		{"bad require range", BundleSpec{Requires: []RequireBundleSpec{{Name: "a", Range: "[1.0"}}}, "require-bundle"},
		{"static wildcard", BundleSpec{Imports: []ImportSpec{{Name: "a.*"}}}, "import-package"},
		{"duplicate import", BundleSpec{Imports: []ImportSpec{{Name: "a"}, {Name: "a"}}}, "import-package"},
		{"strict java import", BundleSpec{Strict: true, Imports: []ImportSpec{{Name: "java.util"}}}, "import-package"},
		{"strict java export", BundleSpec{Strict: true, Exports: []ExportSpec{{Name: "java.lang"}}}, "export-package"},
		{"wildcard export", BundleSpec{Exports: []ExportSpec{{Name: "a.*"}}}, "export-package"},
		{"non integer ee", BundleSpec{Exports: []ExportSpec{{Name: "a", Attributes: map[string]any{AttrEEIndex: "one"}}}}, "export-package"},
		{"capability namespace", BundleSpec{Capabilities: []CapabilitySpec{{}}}, "provide-capability"},
		{"requirement filter", BundleSpec{Requirements: []RequirementSpec{{Namespace: "x", Filter: "x=1"}}}, "require-capability"},
		{"native without paths", BundleSpec{NativeCode: []NativeCodeSpec{{OSNames: []string{"linux"}}}}, "native-code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.spec.ID = 42
			_, err := Build(tt.spec)
			var be *BuildError
			if !errors.As(err, &be) {
				t.Fatalf("Build() error = %v, want *BuildError", err)
			}
			if be.Field != tt.field || be.Bundle != 42 {
				t.Errorf("BuildError = {Bundle: %d, Field: %q}, want {42, %q}", be.Bundle, be.Field, tt.field)
			}
		})
	}
}

func TestBuildAllowsDynamicDuplicates(t *testing.T) {
	_, err := Build(BundleSpec{Imports: []ImportSpec{
		{Name: "a"},
		{Name: "a", Resolution: Dynamic},
		{Name: "a", Resolution: Dynamic},
	}})
	if err != nil {
		t.Errorf("Build() error = %v, want nil", err)
	}
}
