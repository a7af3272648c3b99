package bundlestate_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	bundlestate "github.com/albertocavalcante/go-bundlestate"
	"github.com/albertocavalcante/go-bundlestate/resolver"
	"github.com/google/go-cmp/cmp"
)

// pendingState returns a state holding lib 2.0.0, app wired to a
// removal-pending lib 1.0.0, a disabled entry and one platform.
func pendingState(t *testing.T) *bundlestate.State {
	t.Helper()
	linux := bundlestate.Properties{bundlestate.PropOSName: "linux", bundlestate.PropProcessor: "x86-64"}
	s, _, app := resolvedPair(t, bundlestate.WithPlatformProperties(linux))
	if ok, err := s.UpdateBundle(mustBuild(t, libSpec("2.0.0"))); !ok || err != nil {
		t.Fatalf("UpdateBundle() = %v, %v, want true, nil", ok, err)
	}
	if err := s.AddDisabledInfo(bundlestate.DisabledInfo{Policy: "admin", Message: "hold", Bundle: app}); err != nil {
		t.Fatalf("AddDisabledInfo() error = %v", err)
	}
	return s
}

func writeFiles(t *testing.T, s *bundlestate.State) (header, lazy string) {
	t.Helper()
	dir := t.TempDir()
	header, lazy = filepath.Join(dir, "state.cache"), filepath.Join(dir, "state.lazy")
	if err := s.WriteFiles(header, lazy); err != nil {
		t.Fatalf("WriteFiles() error = %v", err)
	}
	return header, lazy
}

func readFiles(t *testing.T, header, lazy string, opts ...bundlestate.Option) *bundlestate.State {
	t.Helper()
	r, err := resolver.New()
	if err != nil {
		t.Fatalf("resolver.New() error = %v", err)
	}
	s, ok, err := bundlestate.ReadStateFiles(header, lazy, append([]bundlestate.Option{bundlestate.WithResolver(r)}, opts...)...)
	if err != nil || !ok {
		t.Fatalf("ReadStateFiles() = %v, %v, want ok", ok, err)
	}
	return s
}

func TestCacheRoundTrip(t *testing.T) {
	orig := pendingState(t)
	header, lazy := writeFiles(t, orig)
	s := readFiles(t, header, lazy)

	if s.Timestamp() != orig.Timestamp() {
		t.Errorf("Timestamp() = %d, want %d", s.Timestamp(), orig.Timestamp())
	}
	if s.IsResolved() {
		t.Error("IsResolved() = true, want false")
	}
	if diff := cmp.Diff([]bundlestate.BundleID{1, 2}, ids(s.Bundles())); diff != "" {
		t.Errorf("Bundles() mismatch (-want +got):\n%s", diff)
	}
	if got := s.Bundle(1).Version().String(); got != "2.0.0" {
		t.Errorf("Bundle(1).Version() = %s, want 2.0.0", got)
	}

	pending := s.RemovalPending()
	if len(pending) != 1 || pending[0].Version().String() != "1.0.0" || !pending[0].IsRemovalPending() {
		t.Fatalf("RemovalPending() = %v, want lib 1.0.0", pending)
	}
	app := s.Bundle(2)
	if !app.IsResolved() {
		t.Fatal("app not resolved after reading")
	}
	if deps := app.Dependencies(); len(deps) != 1 || deps[0] != pending[0] {
		t.Errorf("Dependencies() = %v, want the removal-pending lib", deps)
	}
	imports := app.ResolvedImports()
	if len(imports) != 1 || imports[0].Name != "lib.api" || imports[0].Provider() != pending[0] {
		t.Errorf("ResolvedImports() = %v, want lib.api from the removal-pending lib", imports)
	}

	infos := s.DisabledInfos(app)
	if len(infos) != 1 || infos[0].Policy != "admin" || infos[0].Message != "hold" {
		t.Errorf("DisabledInfos() = %v, want admin/hold", infos)
	}
	platform := s.PlatformProperties()
	if len(platform) != 1 || platform[0].String(bundlestate.PropOSName) != "linux" {
		t.Errorf("PlatformProperties() = %v, want linux", platform)
	}

	// The read state keeps working: the refresh completes the removal and
	// the disabled app stays unresolved.
	if _, err := s.ResolveBundles(); err != nil {
		t.Fatalf("ResolveBundles() error = %v", err)
	}
	if len(s.RemovalPending()) != 0 || app.IsResolved() || !s.Bundle(1).IsResolved() {
		t.Errorf("pending = %d, app resolved = %v, lib resolved = %v", len(s.RemovalPending()), app.IsResolved(), s.Bundle(1).IsResolved())
	}
}

func TestReadStateRejects(t *testing.T) {
	orig := pendingState(t)
	var header, lazy bytes.Buffer
	if err := orig.Write(&header, &lazy); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data := header.Bytes()
	if data[0] != bundlestate.CacheVersion {
		t.Fatalf("first byte = %d, want %d", data[0], bundlestate.CacheVersion)
	}

	t.Run("timestamp", func(t *testing.T) {
		s, ok, err := bundlestate.ReadState(bytes.NewReader(data), bytes.NewReader(lazy.Bytes()),
			bundlestate.WithExpectedTimestamp(orig.Timestamp()+1))
		if s != nil || ok || err != nil {
			t.Errorf("ReadState() = %v, %v, %v, want nil, false, nil", s, ok, err)
		}
	})

	t.Run("matching timestamp", func(t *testing.T) {
		_, ok, err := bundlestate.ReadState(bytes.NewReader(data), bytes.NewReader(lazy.Bytes()),
			bundlestate.WithExpectedTimestamp(orig.Timestamp()))
		if !ok || err != nil {
			t.Errorf("ReadState() = %v, %v, want true, nil", ok, err)
		}
	})

	t.Run("version", func(t *testing.T) {
		stale := bytes.Clone(data)
		stale[0]++
		s, ok, err := bundlestate.ReadState(bytes.NewReader(stale), bytes.NewReader(lazy.Bytes()))
		if s != nil || ok || err != nil {
			t.Errorf("ReadState() = %v, %v, %v, want nil, false, nil", s, ok, err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		_, ok, err := bundlestate.ReadState(bytes.NewReader(data[:len(data)-3]), bytes.NewReader(lazy.Bytes()))
		var fe *bundlestate.FormatError
		if ok || !errors.As(err, &fe) {
			t.Errorf("ReadState() = %v, %v, want *FormatError", ok, err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		dir := t.TempDir()
		_, _, err := bundlestate.ReadStateFiles(filepath.Join(dir, "none"), filepath.Join(dir, "none.lazy"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("ReadStateFiles() error = %v, want os.ErrNotExist", err)
		}
	})
}

func TestExpectedTimestampOnlyForReads(t *testing.T) {
	if _, err := bundlestate.NewState(bundlestate.WithExpectedTimestamp(1)); err == nil {
		t.Error("NewState(WithExpectedTimestamp) error = nil, want error")
	}
}

func TestUnloadLazyData(t *testing.T) {
	orig := pendingState(t)
	header, lazy := writeFiles(t, orig)
	s := readFiles(t, header, lazy)
	lib := s.Bundle(1)

	exportNames := func() []string {
		var out []string
		for _, c := range lib.Exports() {
			out = append(out, c.Name+"@"+c.Version.String())
		}
		return out
	}
	want := exportNames()
	if diff := cmp.Diff([]string{"lib.api@2.0.0"}, want); diff != "" {
		t.Fatalf("Exports() mismatch (-want +got):\n%s", diff)
	}

	if s.UnloadLazyData() {
		t.Error("UnloadLazyData() = true right after an access")
	}
	if !s.UnloadLazyData() {
		t.Fatal("UnloadLazyData() = false without access")
	}
	if diff := cmp.Diff(want, exportNames()); diff != "" {
		t.Errorf("reloaded Exports() mismatch (-want +got):\n%s", diff)
	}
	if err := s.FullyLoad(); err != nil {
		t.Fatalf("FullyLoad() error = %v", err)
	}

	if _, err := s.SetPlatformProperties(bundlestate.Properties{bundlestate.PropOSName: "win32"}); err != nil {
		t.Fatalf("SetPlatformProperties() error = %v", err)
	}
	s.UnloadLazyData()
	if s.UnloadLazyData() {
		t.Error("UnloadLazyData() = true after the state changed")
	}
}

func TestUnloadLazyDataFreshState(t *testing.T) {
	s := newState(t)
	if s.UnloadLazyData() {
		t.Error("UnloadLazyData() = true for a state not read from a cache")
	}
}

func TestCorruptLazyData(t *testing.T) {
	orig := pendingState(t)
	header, lazy := writeFiles(t, orig)
	if err := os.WriteFile(lazy, []byte{0xff, 0xff}, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		op   func(s *bundlestate.State) error
	}{
		{"FullyLoad", func(s *bundlestate.State) error { return s.FullyLoad() }},
		{"ResolveAll", func(s *bundlestate.State) error {
			_, err := s.ResolveAll()
			return err
		}},
		{"ResolveBundles", func(s *bundlestate.State) error {
			_, err := s.ResolveBundles(s.Bundle(1))
			return err
		}},
		{"Snapshot", func(s *bundlestate.State) error {
			_, err := s.Snapshot()
			return err
		}},
		{"ExportedPackages", func(s *bundlestate.State) error {
			_, err := s.ExportedPackages()
			return err
		}},
		{"UpdateBundle", func(s *bundlestate.State) error {
			_, err := s.UpdateBundle(mustBuild(t, libSpec("3.0.0")))
			return err
		}},
		{"ResolveDynamicImport", func(s *bundlestate.State) error {
			_, err := s.ResolveDynamicImport(s.Bundle(2), "lib.spi")
			return err
		}},
		{"Write", func(s *bundlestate.State) error {
			var h, l bytes.Buffer
			return s.Write(&h, &l)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := readFiles(t, header, lazy)
			var fe *bundlestate.FormatError
			if err := tt.op(s); !errors.As(err, &fe) {
				t.Errorf("%s() error = %v, want *FormatError", tt.name, err)
			}
		})
	}
}
