package version

import (
	"strings"
)

// Range is an interval of versions. A nil Ceiling means the range is open ended.
type Range struct {
	Floor            Version
	FloorInclusive   bool
	Ceiling          *Version
	CeilingInclusive bool
}

// EmptyRange matches every version.
var EmptyRange = Range{Floor: Empty, FloorInclusive: true}

// AtLeast returns the open ended range [v, infinity).
func AtLeast(v Version) Range {
	return Range{Floor: v, FloorInclusive: true}
}

// Exactly returns the range [v, v].
func Exactly(v Version) Range {
	c := v
	return Range{Floor: v, FloorInclusive: true, Ceiling: &c, CeilingInclusive: true}
}

// Between returns a range with the given bounds.
func Between(floor Version, floorInclusive bool, ceiling Version, ceilingInclusive bool) Range {
	c := ceiling
	return Range{Floor: floor, FloorInclusive: floorInclusive, Ceiling: &c, CeilingInclusive: ceilingInclusive}
}

// ParseRange parses interval notation or a bare minimum version.
// An empty string yields EmptyRange.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return EmptyRange, nil
	}

	first := s[0]
	if first != '[' && first != '(' {
		v, err := Parse(s)
		if err != nil {
			return Range{}, err
		}
		return AtLeast(v), nil
	}

	last := s[len(s)-1]
	if last != ']' && last != ')' {
		return Range{}, &ParseError{Input: s, Message: "range must end with ']' or ')'"}
	}

	floorStr, ceilStr, ok := strings.Cut(s[1:len(s)-1], ",")
	if !ok {
		return Range{}, &ParseError{Input: s, Message: "range must contain a comma"}
	}

	floor, err := Parse(floorStr)
	if err != nil {
		return Range{}, err
	}
	if strings.TrimSpace(ceilStr) == "" {
		if last != ')' {
			return Range{}, &ParseError{Input: s, Message: "open ceiling must use ')'"}
		}
		return Range{Floor: floor, FloorInclusive: first == '['}, nil
	}
	ceil, err := Parse(ceilStr)
	if err != nil {
		return Range{}, err
	}

	r := Between(floor, first == '[', ceil, last == ']')
	if r.isInverted() {
		return Range{}, &ParseError{Input: s, Message: "floor is greater than ceiling"}
	}
	return r, nil
}

// MustParseRange parses a range or panics. Use only for constants/tests.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Range) isInverted() bool {
	if r.Ceiling == nil {
		return false
	}
	return r.Floor.Compare(*r.Ceiling) > 0
}

// IsEmpty reports whether r is the match-everything range.
func (r Range) IsEmpty() bool {
	return r.Ceiling == nil && r.FloorInclusive && r.Floor.IsEmpty()
}

// Includes reports whether v lies inside the range.
func (r Range) Includes(v Version) bool {
	c := v.Compare(r.Floor)
	if c < 0 || (c == 0 && !r.FloorInclusive) {
		return false
	}
	if r.Ceiling == nil {
		return true
	}
	c = v.Compare(*r.Ceiling)
	return c < 0 || (c == 0 && r.CeilingInclusive)
}

// Equal reports whether two ranges have identical bounds.
func (r Range) Equal(other Range) bool {
	if r.Floor != other.Floor || r.FloorInclusive != other.FloorInclusive {
		return false
	}
	if (r.Ceiling == nil) != (other.Ceiling == nil) {
		return false
	}
	if r.Ceiling == nil {
		return true
	}
	return *r.Ceiling == *other.Ceiling && r.CeilingInclusive == other.CeilingInclusive
}

// String returns the interval notation, or the bare floor for open ranges.
func (r Range) String() string {
	if r.Ceiling == nil {
		if r.FloorInclusive {
			return r.Floor.String()
		}
		return "(" + r.Floor.String() + ",)"
	}
	var b strings.Builder
	if r.FloorInclusive {
		b.WriteByte('[')
	} else {
		b.WriteByte('(')
	}
	b.WriteString(r.Floor.String())
	b.WriteByte(',')
	b.WriteString(r.Ceiling.String())
	if r.CeilingInclusive {
		b.WriteByte(']')
	} else {
		b.WriteByte(')')
	}
	return b.String()
}
