package version

import (
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"", "0.0.0", false},
		{"1.0", "1.0.0", false},
		{"[1.0,2.0)", "[1.0.0,2.0.0)", false},
		{"(1.0,2.0]", "(1.0.0,2.0.0]", false},
		{"[1.0, 1.0]", "[1.0.0,1.0.0]", false},
		{"(1.0,)", "(1.0.0,)", false},
		{"[2.0,1.0)", "", true},
		{"[1.0;2.0)", "", true},
		{"[1.0,2.0", "", true},
		{"[1.0,]", "", true},
		{"[x,2.0)", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRange(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRange(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got.String() != tt.want {
				t.Errorf("ParseRange(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

// includesReference restates the containment rule directly from the bounds.
func includesReference(r Range, v Version) bool {
	floorOK := v.Compare(r.Floor) > 0 || (r.FloorInclusive && v == r.Floor)
	ceilOK := r.Ceiling == nil || v.Compare(*r.Ceiling) < 0 || (r.CeilingInclusive && v == *r.Ceiling)
	return floorOK && ceilOK
}

func TestRange_Includes(t *testing.T) {
	ranges := []string{"", "1.0", "[1.0,2.0)", "(1.0,2.0]", "[1.0,1.0]", "(1.0,1.5)", "(1.0,)"}
	versions := []string{"0.0.0", "0.9", "1.0", "1.0.0.q", "1.2", "1.5", "2.0", "2.0.0.a", "3.0"}

	for _, rs := range ranges {
		r := MustParseRange(rs)
		for _, vs := range versions {
			v := MustParse(vs)
			if got, want := r.Includes(v), includesReference(r, v); got != want {
				t.Errorf("Range(%q).Includes(%s) = %v, want %v", rs, vs, got, want)
			}
		}
	}
}

func TestRange_Includes_Explicit(t *testing.T) {
	tests := []struct {
		r    string
		v    string
		want bool
	}{
		{"[1.0,2.0)", "1.0", true},
		{"[1.0,2.0)", "2.0", false},
		{"(1.0,2.0]", "1.0", false},
		{"(1.0,2.0]", "2.0", true},
		{"1.0", "99.0", true},
		{"1.0", "0.9.9", false},
		{"", "0.0.0", true},
	}
	for _, tt := range tests {
		if got := MustParseRange(tt.r).Includes(MustParse(tt.v)); got != tt.want {
			t.Errorf("Range(%q).Includes(%s) = %v, want %v", tt.r, tt.v, got, tt.want)
		}
	}
}

func TestRange_Equal(t *testing.T) {
	a := MustParseRange("[1.0,2.0)")
	b := MustParseRange("[1.0.0,2.0.0)")
	if !a.Equal(b) {
		t.Errorf("Equal(%s, %s) = false, want true", a, b)
	}
	if a.Equal(MustParseRange("[1.0,2.0]")) {
		t.Error("Equal should distinguish ceiling inclusivity")
	}
	if !EmptyRange.IsEmpty() || !(Range{FloorInclusive: true}).IsEmpty() {
		t.Error("EmptyRange.IsEmpty() = false, want true")
	}
}
