package binfmt

import (
	"errors"
	"testing"

	"github.com/albertocavalcante/go-bundlestate/version"
	"github.com/google/go-cmp/cmp"
)

func TestIndexTable(t *testing.T) {
	tab := NewIndexTable[string]()
	for i, tc := range []struct {
		key       string
		wantIdx   int32
		wantFirst bool
	}{
		{"a", 0, true},
		{"b", 1, true},
		{"a", 0, false},
		{"c", 2, true},
		{"b", 1, false},
	} {
		idx, first := tab.Ref(tc.key)
		if idx != tc.wantIdx || first != tc.wantFirst {
			t.Errorf("step %d: Ref(%q) = (%d, %v), want (%d, %v)", i, tc.key, idx, first, tc.wantIdx, tc.wantFirst)
		}
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, tab.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
	if _, ok := tab.Lookup("z"); ok {
		t.Error("Lookup(z) found an index for an unknown key")
	}
}

func TestObjectTable(t *testing.T) {
	tab := NewObjectTable[string]()
	if err := tab.Put(3, "three"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := tab.Put(3, "again"); err == nil {
		t.Error("Put() with a duplicate index succeeded")
	}
	got, err := tab.Get(3)
	if err != nil || got != "three" {
		t.Errorf("Get(3) = (%q, %v), want (three, nil)", got, err)
	}
	if _, err := tab.Get(4); !errors.Is(err, ErrUnknownIndex) {
		t.Errorf("Get(4) error = %v, want ErrUnknownIndex", err)
	}
}

func TestReaderTruncated(t *testing.T) {
	w := NewWriter()
	w.String("hello")
	w.Int64(42)
	data := w.Bytes()

	r := NewReader(data[:len(data)-3], 100)
	if got := r.String(); got != "hello" {
		t.Fatalf("String() = %q, want hello", got)
	}
	_ = r.Int64()
	var ferr *FormatError
	if !errors.As(r.Err(), &ferr) {
		t.Fatalf("Err() = %v, want *FormatError", r.Err())
	}
	if !errors.Is(r.Err(), ErrTruncated) {
		t.Errorf("Err() = %v, want ErrTruncated", r.Err())
	}
	if ferr.Offset != 106 {
		t.Errorf("FormatError.Offset = %d, want 106", ferr.Offset)
	}
	if got := r.Int32(); got != 0 {
		t.Errorf("read after error = %d, want 0", got)
	}
}

func TestReaderRejectsBadLength(t *testing.T) {
	w := NewWriter()
	w.Int32(1 << 20)
	r := NewReader(w.Bytes(), 0)
	if got := r.Strings(); got != nil {
		t.Errorf("Strings() = %v, want nil", got)
	}
	if r.Err() == nil {
		t.Error("Strings() with an oversized length did not fail")
	}
}

func TestWriterUnsupportedValue(t *testing.T) {
	w := NewWriter()
	w.Value(struct{}{})
	if w.Err() == nil {
		t.Fatal("Value(struct{}{}) did not fail")
	}
	before := w.Offset()
	w.String("ignored")
	if w.Offset() != before {
		t.Error("writes after an error were not ignored")
	}
}

func TestAttributesDeterministic(t *testing.T) {
	attrs := map[string]any{
		"z":       "last",
		"a":       int64(1),
		"version": version.MustParse("1.2.3.q"),
		"list":    []string{"x", "y"},
		"ok":      true,
		"ratio":   0.5,
	}
	first := NewWriter()
	first.Attributes(attrs)
	for range 5 {
		w := NewWriter()
		w.Attributes(attrs)
		if diff := cmp.Diff(first.Bytes(), w.Bytes()); diff != "" {
			t.Fatalf("Attributes() encoding not deterministic (-first +got):\n%s", diff)
		}
	}

	r := NewReader(first.Bytes(), 0)
	got := r.Attributes()
	if r.Err() != nil {
		t.Fatalf("Attributes() error = %v", r.Err())
	}
	if diff := cmp.Diff(attrs, got); diff != "" {
		t.Errorf("Attributes() mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownValueType(t *testing.T) {
	r := NewReader([]byte{99}, 0)
	if v := r.Value(); v != nil {
		t.Errorf("Value() = %v, want nil", v)
	}
	if r.Err() == nil {
		t.Error("Value() with an unknown type code did not fail")
	}
}
