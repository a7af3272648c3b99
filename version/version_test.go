package version

import (
	"errors"
	"slices"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Version
		wantErr bool
	}{
		{"", Empty, false},
		{"1", New(1, 0, 0, ""), false},
		{"1.2", New(1, 2, 0, ""), false},
		{"1.2.3", New(1, 2, 3, ""), false},
		{"1.2.3.beta-1", New(1, 2, 3, "beta-1"), false},
		{"  2.0.0  ", New(2, 0, 0, ""), false},
		{"1.2.3.a.b", Version{}, true},
		{"1.x", Version{}, true},
		{"-1.0", Version{}, true},
		{"1..2", Version{}, true},
		{"1.2.3.", Version{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				var perr *ParseError
				if !errors.As(err, &perr) {
					t.Errorf("Parse(%q) error type = %T, want *ParseError", tt.input, err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestVersion_Compare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "2.0.0", -1},
		{"1.10.0", "1.9.0", 1},
		{"1.0.1", "1.0.0", 1},
		{"1.0.0", "1.0.0.beta", -1},
		{"1.0.0.alpha", "1.0.0.beta", -1},
		{"1.0.0.b", "1.0.0.B", 1},
		{"0.0.0", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			got := MustParse(tt.a).Compare(MustParse(tt.b))
			if got != tt.want {
				t.Errorf("Compare(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if back := MustParse(tt.b).Compare(MustParse(tt.a)); back != -tt.want {
				t.Errorf("Compare(%s, %s) = %d, want %d", tt.b, tt.a, back, -tt.want)
			}
		})
	}
}

func TestVersion_String(t *testing.T) {
	tests := []struct {
		v    Version
		want string
	}{
		{Empty, "0.0.0"},
		{New(1, 2, 3, ""), "1.2.3"},
		{New(1, 0, 0, "v20240101"), "1.0.0.v20240101"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestSort(t *testing.T) {
	vs := []Version{
		MustParse("2.0"),
		MustParse("1.0.0.rc1"),
		MustParse("1.0"),
		MustParse("1.5"),
	}
	slices.SortFunc(vs, Compare)

	want := []string{"1.0.0", "1.0.0.rc1", "1.5.0", "2.0.0"}
	for i, v := range vs {
		if v.String() != want[i] {
			t.Errorf("sorted[%d] = %s, want %s", i, v, want[i])
		}
	}
}
