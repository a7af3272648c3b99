package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	bundlestate "github.com/albertocavalcante/go-bundlestate"
	"github.com/albertocavalcante/go-bundlestate/resolver"
	"github.com/google/go-cmp/cmp"
)

const example = `
# Example platform and bundles.
platform(
    os_name = "linux",
    processor = "x86_64",
    execution_environments = ["JavaSE-17", "JavaSE-11"],
    properties = {"osgi.ws": "gtk"},
)

bundle(
    id = 1,
    name = "org.example.api",
    version = "1.2.0",
    singleton = True,
    location = "file:api.jar",
    execution_environments = ["JavaSE-11"],
    attributes = {"vendor": "example", "level": 3},
    exports = [
        export_package("org.example.api", version = "1.2.0", uses = ["org.example.spi"]),
        export_package("org.example.impl", internal = True),
    ],
    capabilities = [capability("example.service", attributes = {"example.service": "greeter"})],
)

bundle(
    id = 2,
    name = "org.example.app",
    requires = [require_bundle("org.example.api", range = "[1.0.0,2.0.0)", reexport = True)],
    imports = [import_package("org.example.util", resolution = "optional", bundle = "org.example.api")],
    requirements = [requirement("example.service", filter = "(example.service=greeter)", multiple = True)],
    native_code = [native_code(paths = ["lib/libapp.so"], os_names = ["linux"], processors = ["x86_64"])],
    native_code_optional = True,
)

bundle(
    id = 3,
    name = "org.example.api.nls",
    version = "1.0.0",
    fragment_attachment = "never",
    host = fragment_host("org.example.api", range = "[1.0.0,2.0.0)"),
)
`

func TestParse(t *testing.T) {
	f, err := Parse("example.bundles", []byte(example))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	wantPlatform := []bundlestate.Properties{{
		"osgi.ws":                             "gtk",
		bundlestate.PropOSName:                "linux",
		bundlestate.PropProcessor:             "x86_64",
		bundlestate.PropExecutionEnvironments: []string{"JavaSE-17", "JavaSE-11"},
	}}
	if diff := cmp.Diff(wantPlatform, f.Platforms); diff != "" {
		t.Errorf("Platforms mismatch (-want +got):\n%s", diff)
	}

	var specs []bundlestate.BundleSpec
	for _, d := range f.Declarations {
		specs = append(specs, d.Spec)
	}
	want := []bundlestate.BundleSpec{
		{
			ID:                    1,
			SymbolicName:          "org.example.api",
			Version:               "1.2.0",
			Singleton:             true,
			Location:              "file:api.jar",
			ExecutionEnvironments: []string{"JavaSE-11"},
			Attributes:            map[string]any{"vendor": "example", "level": int64(3)},
			Exports: []bundlestate.ExportSpec{
				{Name: "org.example.api", Version: "1.2.0", Uses: []string{"org.example.spi"}},
				{Name: "org.example.impl", Internal: true},
			},
			Capabilities: []bundlestate.CapabilitySpec{
				{Namespace: "example.service", Attributes: map[string]any{"example.service": "greeter"}},
			},
		},
		{
			ID:           2,
			SymbolicName: "org.example.app",
			Version:      "0.0.0",
			Requires: []bundlestate.RequireBundleSpec{
				{Name: "org.example.api", Range: "[1.0.0,2.0.0)", Reexport: true},
			},
			Imports: []bundlestate.ImportSpec{
				{Name: "org.example.util", Resolution: bundlestate.Optional, BundleSymbolicName: "org.example.api"},
			},
			Requirements: []bundlestate.RequirementSpec{
				{Namespace: "example.service", Filter: "(example.service=greeter)", Multiple: true},
			},
			NativeCode: []bundlestate.NativeCodeSpec{
				{Paths: []string{"lib/libapp.so"}, OSNames: []string{"linux"}, Processors: []string{"x86_64"}},
			},
			NativeCodeOptional: true,
		},
		{
			ID:           3,
			SymbolicName: "org.example.api.nls",
			Version:      "1.0.0",
			Attachment:   bundlestate.AttachNever,
			Host:         &bundlestate.HostSpec{Name: "org.example.api", Range: "[1.0.0,2.0.0)"},
		},
	}
	if diff := cmp.Diff(want, specs); diff != "" {
		t.Errorf("Declarations mismatch (-want +got):\n%s", diff)
	}

	if got := f.Declarations[1].Pos; got.Line != 25 || got.Column != 1 {
		t.Errorf("Declarations[1].Pos = %v, want line 25 column 1", got)
	}
	if len(f.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", f.Warnings)
	}

	bundles, err := f.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(bundles) != 3 || !bundles[2].IsFragment() || bundles[0].Version().String() != "1.2.0" {
		t.Errorf("Build() = %v, want api, app and the nls fragment", bundles)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "syntax error",
			content: `bundle(id = 1`,
			want:    "syntax error",
		},
		{
			name:    "unknown declaration",
			content: `module(name = "x")`,
			want:    `unknown declaration "module"`,
		},
		{
			name:    "missing id",
			content: `bundle(name = "x")`,
			want:    "missing or invalid id",
		},
		{
			name:    "duplicate id",
			content: "bundle(id = 1, name = \"a\")\nbundle(id = 1, name = \"b\")",
			want:    "duplicate bundle id 1",
		},
		{
			name:    "invalid resolution",
			content: `bundle(id = 1, imports = [import_package("p", resolution = "sometimes")])`,
			want:    `invalid resolution mode "sometimes"`,
		},
		{
			name:    "invalid attachment",
			content: `bundle(id = 1, fragment_attachment = "later")`,
			want:    `invalid fragment attachment policy "later"`,
		},
		{
			name:    "wrong nested call",
			content: `bundle(id = 1, exports = [import_package("p")])`,
			want:    "expected export_package(...), got import_package(...)",
		},
		{
			name:    "two hosts",
			content: `bundle(id = 1, host = [fragment_host("a"), fragment_host("b")])`,
			want:    "more than one fragment_host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.bundles", []byte(tt.content))
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Errorf("Parse() error = %T, want *ParseError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestParseKeepsValidBundlesAfterError(t *testing.T) {
	content := "bundle(name = \"broken\")\nbundle(id = 2, name = \"ok\")\n"
	f, err := Parse("mixed.bundles", []byte(content))
	if err == nil {
		t.Fatal("Parse() error = nil, want error")
	}
	if len(f.Declarations) != 1 || f.Declarations[0].Spec.SymbolicName != "ok" {
		t.Errorf("Declarations = %+v, want only bundle ok", f.Declarations)
	}
}

func TestParseWarnings(t *testing.T) {
	content := `
x = 1
bundle(id = 1, name = "a", colour = "blue", exports = [export_package("p", since = "1.0")])
`
	f, err := Parse("warn.bundles", []byte(content))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	var msgs []string
	for _, w := range f.Warnings {
		msgs = append(msgs, w.Message)
	}
	want := []string{
		"ignoring statement that is not a call",
		`bundle: ignoring unknown argument "colour"`,
		`export_package: ignoring unknown argument "since"`,
	}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("Warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundles.star")
	if err := os.WriteFile(path, []byte(example), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	f, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if f.Path != path || len(f.Declarations) != 3 {
		t.Errorf("ParseFile() = %s with %d bundles, want %s with 3", f.Path, len(f.Declarations), path)
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.star")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ParseFile(missing) error = %v, want os.ErrNotExist", err)
	}
}

func TestApply(t *testing.T) {
	r, err := resolver.New()
	if err != nil {
		t.Fatalf("resolver.New() error = %v", err)
	}
	s, err := bundlestate.NewState(bundlestate.WithResolver(r))
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}

	first := `
platform(os_name = "linux")
bundle(id = 1, name = "lib", version = "1.0.0", exports = [export_package("lib.api", version = "1.0.0")])
bundle(id = 2, name = "app", version = "1.0.0", imports = [import_package("lib.api")])
bundle(id = 3, name = "tool", version = "1.0.0")
`
	f, err := Parse("first.bundles", []byte(first))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	sum, err := f.Apply(s)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if sum != (Summary{Added: 3}) {
		t.Errorf("Apply() = %+v, want 3 added", sum)
	}
	if got := s.PlatformProperties(); len(got) != 1 || got[0].String(bundlestate.PropOSName) != "linux" {
		t.Errorf("PlatformProperties() = %v, want linux", got)
	}
	if _, err := s.Resolve(); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if app := s.Bundle(2); !app.IsResolved() {
		t.Fatalf("app unresolved: %v", s.ResolverErrors(app))
	}

	second := `
bundle(id = 1, name = "lib", version = "1.1.0", exports = [export_package("lib.api", version = "1.1.0")])
bundle(id = 2, name = "app", version = "1.0.0", imports = [import_package("lib.api")])
bundle(id = 4, name = "extra", version = "1.0.0")
`
	f, err = Parse("second.bundles", []byte(second))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	sum, err = f.Apply(s)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if want := (Summary{Added: 1, Updated: 2, Removed: 1}); sum != want {
		t.Errorf("Apply() = %+v, want %+v", sum, want)
	}
	if s.Bundle(3) != nil {
		t.Errorf("Bundle(3) = %v, want removed", s.Bundle(3))
	}
	if got := s.PlatformProperties(); len(got) != 1 {
		t.Errorf("PlatformProperties() = %v, want the first file's environment kept", got)
	}

	if _, err := s.ResolveBundles(); err != nil {
		t.Fatalf("ResolveBundles() error = %v", err)
	}
	lib := s.Bundle(1)
	if !lib.IsResolved() || lib.Version().String() != "1.1.0" {
		t.Errorf("Bundle(1) = %v resolved=%v, want lib 1.1.0 resolved", lib, lib.IsResolved())
	}
}

func TestApplyBuildError(t *testing.T) {
	s, err := bundlestate.NewState()
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	f, err := Parse("bad.bundles", []byte(`bundle(id = 1, name = "a", version = "x.y")`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	_, err = f.Apply(s)
	var berr *bundlestate.BuildError
	if !errors.As(err, &berr) || berr.Field != "version" {
		t.Errorf("Apply() error = %v, want *BuildError on version", err)
	}
	if !strings.HasPrefix(err.Error(), "bad.bundles:1:1: ") {
		t.Errorf("Apply() error = %q, want position prefix", err)
	}
	if len(s.Bundles()) != 0 {
		t.Errorf("Bundles() = %v, want none after a failed Apply", s.Bundles())
	}
}
