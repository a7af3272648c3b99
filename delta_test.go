package bundlestate

import "testing"

func TestDeltaRecord(t *testing.T) {
	tests := []struct {
		name   string
		events []ChangeType
		want   ChangeType
	}{
		{"added", []ChangeType{Added}, Added},
		{"removed then added", []ChangeType{Removed, Added}, Updated},
		{"added then removed", []ChangeType{Added, Removed}, 0},
		{"updated on added", []ChangeType{Added, Updated}, Added},
		{"removed clears updated", []ChangeType{Updated, Removed}, Removed},
		{"resolved then unresolved", []ChangeType{Resolved, Unresolved}, Unresolved},
		{"unresolved then resolved", []ChangeType{Added | Unresolved, Resolved}, Added | Resolved},
		{"pending then complete", []ChangeType{RemovalPending, RemovalComplete}, RemovalComplete},
		{"complete then pending", []ChangeType{RemovalComplete, RemovalPending}, RemovalPending},
		{"combined", []ChangeType{Updated | Resolved}, Updated | Resolved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDelta()
			b := newBundle(1)
			for _, e := range tt.events {
				d.Record(b, e)
			}
			if got := d.Type(b); got != tt.want {
				t.Errorf("Type() = %v, want %v", got, tt.want)
			}
			if wantLen := map[bool]int{true: 0, false: 1}[tt.want == 0]; d.Len() != wantLen {
				t.Errorf("Len() = %d, want %d", d.Len(), wantLen)
			}
		})
	}
}

func TestDeltaChanges(t *testing.T) {
	a, b, c := newBundle(1), newBundle(2), newBundle(3)
	d := NewDelta()
	d.Record(c, Added|Resolved)
	d.Record(a, Resolved)
	d.Record(b, Removed)

	ids := func(in []BundleDelta) []BundleID {
		var out []BundleID
		for _, e := range in {
			out = append(out, e.Bundle.ID())
		}
		return out
	}
	tests := []struct {
		name  string
		mask  ChangeType
		exact bool
		want  []BundleID
	}{
		{"all", 0, false, []BundleID{1, 2, 3}},
		{"any resolved", Resolved, false, []BundleID{1, 3}},
		{"exactly resolved", Resolved, true, []BundleID{1}},
		{"removed or added", Removed | Added, false, []BundleID{2, 3}},
		{"nothing", Unresolved, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(d.Changes(tt.mask, tt.exact))
			if len(got) != len(tt.want) {
				t.Fatalf("Changes(%v, %v) = %v, want %v", tt.mask, tt.exact, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Changes(%v, %v) = %v, want %v", tt.mask, tt.exact, got, tt.want)
				}
			}
		})
	}
}

func TestDeltaMerge(t *testing.T) {
	b := newBundle(1)
	first := NewDelta()
	first.Record(b, Added)
	second := NewDelta()
	second.Record(b, Removed)

	first.Merge(second)
	first.Merge(nil)
	if !first.IsEmpty() {
		t.Errorf("IsEmpty() = false after add and remove, entries %v", first.All())
	}
}

func TestChangeTypeString(t *testing.T) {
	tests := []struct {
		t    ChangeType
		want string
	}{
		{0, "none"},
		{Added, "added"},
		{Updated | Resolved, "updated|resolved"},
		{RemovalPending, "removal-pending"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
