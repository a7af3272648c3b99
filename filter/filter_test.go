package filter

import (
	"errors"
	"testing"

	"github.com/albertocavalcante/go-bundlestate/version"
)

func TestParse_Errors(t *testing.T) {
	tests := []string{
		"",
		"osgi.os=linux",
		"(osgi.os=linux",
		"(&)",
		"(=linux)",
		"(a>1)",
		"(a~=b*)",
		"(a=b)(c=d)",
		"(a=b\\",
		"(a=(b))",
	}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", in)
			}
			var serr *SyntaxError
			if !errors.As(err, &serr) {
				t.Errorf("Parse(%q) error type = %T, want *SyntaxError", in, err)
			}
		})
	}
}

func TestFilter_Matches(t *testing.T) {
	attrs := map[string]any{
		"osgi.os":      "linux",
		"Processor":    "x86_64",
		"version":      version.MustParse("1.5.0"),
		"count":        3,
		"ratio":        0.5,
		"debug":        true,
		"languages":    []string{"en", "fr"},
		"package.name": "org.example.util",
	}

	tests := []struct {
		filter string
		want   bool
	}{
		{"(osgi.os=linux)", true},
		{"(OSGI.OS=linux)", true},
		{"(osgi.os=win32)", false},
		{"(processor=x86_64)", true},
		{"(&(osgi.os=linux)(processor=x86_64))", true},
		{"(|(osgi.os=win32)(processor=x86_64))", true},
		{"(!(osgi.os=linux))", false},
		{"(version>=1.2)", true},
		{"(version<=1.2)", false},
		{"(&(version>=1.0)(!(version>=2.0)))", true},
		{"(count>=3)", true},
		{"(count<=2)", false},
		{"(ratio>=0.25)", true},
		{"(debug=true)", true},
		{"(debug=false)", false},
		{"(languages=fr)", true},
		{"(languages=de)", false},
		{"(missing=*)", false},
		{"(debug=*)", true},
		{"(package.name=org.example.*)", true},
		{"(package.name=*util)", true},
		{"(package.name=org*ex*util)", true},
		{"(package.name=org*zz*util)", false},
		{"(osgi.os~= LINUX )", true},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			f := MustParse(tt.filter)
			if got := f.Matches(attrs); got != tt.want {
				t.Errorf("Matches(%s) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}

func TestFilter_NilMatchesEverything(t *testing.T) {
	var f *Filter
	if !f.Matches(nil) {
		t.Error("nil filter should match")
	}
}

func TestFilter_String(t *testing.T) {
	in := "(&(a=b)(|(c>=1)(!(d=*))))"
	if got := MustParse(in).String(); got != in {
		t.Errorf("String() = %q, want %q", got, in)
	}

	built := &Filter{Op: OpAnd, Children: []*Filter{
		{Op: OpEqual, Attr: "a", Value: "x(y)"},
		{Op: OpSubstring, Attr: "b", Substrings: []string{"", "mid", ""}},
	}}
	want := `(&(a=x\(y\))(b=*mid*))`
	if got := built.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	reparsed := MustParse(want)
	if !reparsed.Matches(map[string]any{"a": "x(y)", "b": "amidst"}) {
		t.Error("reparsed filter should match escaped value")
	}
}

func TestFilter_Attributes(t *testing.T) {
	f := MustParse("(&(A=1)(|(b=2)(a=3)))")
	got := f.Attributes()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Attributes() = %v, want [a b]", got)
	}
}
