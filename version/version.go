package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is an immutable four part bundle version.
type Version struct {
	Major     int
	Minor     int
	Micro     int
	Qualifier string
}

// Empty is the distinguished version used when no version was declared.
var Empty = Version{}

// New returns a version built from its parts.
func New(major, minor, micro int, qualifier string) Version {
	return Version{Major: major, Minor: minor, Micro: micro, Qualifier: qualifier}
}

// ParseError describes a malformed version or range string.
type ParseError struct {
	Input   string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid version %q: %s", e.Input, e.Message)
}

// Parse parses a version string. Surrounding whitespace is ignored and an
// empty string yields Empty.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Empty, nil
	}

	parts := strings.SplitN(s, ".", 4)
	var nums [3]int
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 || parts[i] == "" || strings.HasPrefix(parts[i], "+") {
			return Empty, &ParseError{Input: s, Message: fmt.Sprintf("segment %d is not a non-negative integer", i+1)}
		}
		nums[i] = n
	}

	var qualifier string
	if len(parts) == 4 {
		qualifier = parts[3]
		if qualifier == "" {
			return Empty, &ParseError{Input: s, Message: "empty qualifier"}
		}
		for _, r := range qualifier {
			if !isQualifierRune(r) {
				return Empty, &ParseError{Input: s, Message: fmt.Sprintf("invalid qualifier character %q", r)}
			}
		}
	}

	return Version{Major: nums[0], Minor: nums[1], Micro: nums[2], Qualifier: qualifier}, nil
}

func isQualifierRune(r rune) bool {
	return r == '_' || r == '-' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

// MustParse parses a version or panics. Use only for constants/tests.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the canonical form, omitting an empty qualifier.
func (v Version) String() string {
	base := strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) + "." + strconv.Itoa(v.Micro)
	if v.Qualifier == "" {
		return base
	}
	return base + "." + v.Qualifier
}

// IsEmpty reports whether v is the empty version 0.0.0.
func (v Version) IsEmpty() bool {
	return v == Empty
}

// Compare returns -1, 0 or 1 when v is less than, equal to or greater than other.
func (v Version) Compare(other Version) int {
	if c := intCompare(v.Major, other.Major); c != 0 {
		return c
	}
	if c := intCompare(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := intCompare(v.Micro, other.Micro); c != 0 {
		return c
	}
	return strings.Compare(v.Qualifier, other.Qualifier)
}

// Less reports whether v < other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// Compare compares two versions; usable with slices.SortFunc.
func Compare(a, b Version) int {
	return a.Compare(b)
}

func intCompare(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
