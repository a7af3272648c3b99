package bundlestate

import (
	"slices"
	"strings"
)

// ChangeType is a bitset of the changes recorded for one bundle.
type ChangeType uint16

const (
	Added ChangeType = 1 << iota
	Removed
	Updated
	Resolved
	Unresolved
	RemovalPending
	RemovalComplete
)

var changeNames = []struct {
	t    ChangeType
	name string
}{
	{Added, "added"},
	{Removed, "removed"},
	{Updated, "updated"},
	{Resolved, "resolved"},
	{Unresolved, "unresolved"},
	{RemovalPending, "removal-pending"},
	{RemovalComplete, "removal-complete"},
}

func (t ChangeType) String() string {
	if t == 0 {
		return "none"
	}
	var parts []string
	for _, n := range changeNames {
		if t&n.t != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// BundleDelta is the accumulated change of one bundle.
type BundleDelta struct {
	Bundle *Bundle
	Type   ChangeType
}

// Delta accumulates bundle changes. Events recorded for the same bundle
// merge into one entry:
//
//   - Added after Removed becomes Updated; Removed after Added cancels the entry.
//   - Updated on an Added bundle stays Added; Removed clears Updated.
//   - Resolved and Unresolved replace each other, as do RemovalPending and
//     RemovalComplete.
//
// A Delta is not safe for concurrent mutation. Deltas returned by State
// are owned by the caller.
type Delta struct {
	changes map[*Bundle]ChangeType
}

// NewDelta returns an empty delta.
func NewDelta() *Delta {
	return &Delta{changes: make(map[*Bundle]ChangeType)}
}

// Record merges change t for b into d.
func (d *Delta) Record(b *Bundle, t ChangeType) {
	for _, n := range changeNames {
		if t&n.t != 0 {
			d.record(b, n.t)
		}
	}
}

func (d *Delta) record(b *Bundle, t ChangeType) {
	cur, exists := d.changes[b]
	switch t {
	case Added:
		if cur&Removed != 0 {
			cur = cur&^Removed | Updated
		} else {
			cur |= Added
		}
	case Removed:
		if cur&Added != 0 {
			delete(d.changes, b)
			return
		}
		cur = cur&^Updated | Removed
	case Updated:
		if cur&Added == 0 {
			cur |= Updated
		}
	case Resolved:
		cur = cur&^Unresolved | Resolved
	case Unresolved:
		cur = cur&^Resolved | Unresolved
	case RemovalPending:
		cur = cur&^RemovalComplete | RemovalPending
	case RemovalComplete:
		cur = cur&^RemovalPending | RemovalComplete
	}
	if cur == 0 {
		if exists {
			delete(d.changes, b)
		}
		return
	}
	d.changes[b] = cur
}

// Merge replays every entry of other into d.
func (d *Delta) Merge(other *Delta) {
	if other == nil {
		return
	}
	for _, c := range other.All() {
		d.Record(c.Bundle, c.Type)
	}
}

// Type returns the accumulated change for b.
func (d *Delta) Type(b *Bundle) ChangeType { return d.changes[b] }

// All returns every entry ordered by bundle id.
func (d *Delta) All() []BundleDelta { return d.Changes(0, false) }

// Changes returns the entries matching mask ordered by bundle id. With
// exact set an entry matches only if its type equals mask; otherwise it
// matches if it shares any bit with mask. A zero mask without exact
// matches everything.
func (d *Delta) Changes(mask ChangeType, exact bool) []BundleDelta {
	var out []BundleDelta
	for b, t := range d.changes {
		switch {
		case exact:
			if t != mask {
				continue
			}
		case mask != 0:
			if t&mask == 0 {
				continue
			}
		}
		out = append(out, BundleDelta{Bundle: b, Type: t})
	}
	slices.SortFunc(out, func(a, b BundleDelta) int { return compareBundles(a.Bundle, b.Bundle) })
	return out
}

// Len returns the number of bundles with recorded changes.
func (d *Delta) Len() int { return len(d.changes) }

// IsEmpty reports whether no change is recorded.
func (d *Delta) IsEmpty() bool { return len(d.changes) == 0 }
