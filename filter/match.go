package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/albertocavalcante/go-bundlestate/version"
)

// Matches evaluates the filter against attrs. A nil filter matches everything.
func (f *Filter) Matches(attrs map[string]any) bool {
	if f == nil {
		return true
	}
	switch f.Op {
	case OpAnd:
		for _, c := range f.Children {
			if !c.Matches(attrs) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range f.Children {
			if c.Matches(attrs) {
				return true
			}
		}
		return false
	case OpNot:
		return !f.Children[0].Matches(attrs)
	}

	val, ok := lookup(attrs, f.Attr)
	if !ok {
		return false
	}
	if f.Op == OpPresent {
		return true
	}
	return f.compare(val)
}

func lookup(attrs map[string]any, key string) (any, bool) {
	if v, ok := attrs[key]; ok {
		return v, true
	}
	for k, v := range attrs {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func (f *Filter) compare(val any) bool {
	switch v := val.(type) {
	case string:
		return f.compareString(v)
	case []string:
		for _, s := range v {
			if f.compareString(s) {
				return true
			}
		}
		return false
	case []any:
		for _, e := range v {
			if f.compare(e) {
				return true
			}
		}
		return false
	case version.Version:
		return f.compareVersion(v)
	case []version.Version:
		for _, e := range v {
			if f.compareVersion(e) {
				return true
			}
		}
		return false
	case int:
		return f.compareInt(int64(v))
	case int32:
		return f.compareInt(int64(v))
	case int64:
		return f.compareInt(v)
	case []int64:
		for _, e := range v {
			if f.compareInt(e) {
				return true
			}
		}
		return false
	case float64:
		return f.compareFloat(v)
	case bool:
		return f.compareBool(v)
	case fmt.Stringer:
		return f.compareString(v.String())
	default:
		return false
	}
}

func (f *Filter) compareString(s string) bool {
	switch f.Op {
	case OpEqual:
		return s == f.Value
	case OpApprox:
		return normalizeApprox(s) == normalizeApprox(f.Value)
	case OpGreaterEqual:
		return s >= f.Value
	case OpLessEqual:
		return s <= f.Value
	case OpSubstring:
		return matchSubstring(s, f.Substrings)
	}
	return false
}

func normalizeApprox(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func matchSubstring(s string, pieces []string) bool {
	if len(pieces) == 0 {
		return false
	}
	if !strings.HasPrefix(s, pieces[0]) {
		return false
	}
	s = s[len(pieces[0]):]
	last := len(pieces) - 1
	for _, piece := range pieces[1:last] {
		idx := strings.Index(s, piece)
		if idx < 0 {
			return false
		}
		s = s[idx+len(piece):]
	}
	return strings.HasSuffix(s, pieces[last])
}

func (f *Filter) compareVersion(v version.Version) bool {
	if f.Op == OpSubstring {
		return matchSubstring(v.String(), f.Substrings)
	}
	other, err := version.Parse(f.Value)
	if err != nil {
		return false
	}
	c := v.Compare(other)
	switch f.Op {
	case OpEqual, OpApprox:
		return c == 0
	case OpGreaterEqual:
		return c >= 0
	case OpLessEqual:
		return c <= 0
	}
	return false
}

func (f *Filter) compareInt(n int64) bool {
	if f.Op == OpSubstring {
		return matchSubstring(strconv.FormatInt(n, 10), f.Substrings)
	}
	other, err := strconv.ParseInt(strings.TrimSpace(f.Value), 10, 64)
	if err != nil {
		return false
	}
	switch f.Op {
	case OpEqual, OpApprox:
		return n == other
	case OpGreaterEqual:
		return n >= other
	case OpLessEqual:
		return n <= other
	}
	return false
}

func (f *Filter) compareFloat(n float64) bool {
	other, err := strconv.ParseFloat(strings.TrimSpace(f.Value), 64)
	if err != nil {
		return false
	}
	switch f.Op {
	case OpEqual, OpApprox:
		return n == other
	case OpGreaterEqual:
		return n >= other
	case OpLessEqual:
		return n <= other
	}
	return false
}

func (f *Filter) compareBool(b bool) bool {
	if f.Op != OpEqual && f.Op != OpApprox {
		return false
	}
	other, err := strconv.ParseBool(strings.TrimSpace(f.Value))
	if err != nil {
		return false
	}
	return b == other
}
