package wiring

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/albertocavalcante/go-bundlestate/version"
)

// BundleChange is a bundle present in only one of two documents.
type BundleChange struct {
	ID      int64  `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// BundleUpgrade is a bundle id whose version differs between two documents.
type BundleUpgrade struct {
	ID         int64  `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	OldVersion string `json:"old_version" yaml:"old_version"`
	NewVersion string `json:"new_version" yaml:"new_version"`
}

// Rewire is a requirement whose provider changed.
type Rewire struct {
	ID          int64  `json:"id" yaml:"id"`
	Requirement string `json:"requirement" yaml:"requirement"`
	OldProvider string `json:"old_provider,omitempty" yaml:"old_provider,omitempty"`
	NewProvider string `json:"new_provider,omitempty" yaml:"new_provider,omitempty"`
}

// Diff describes the differences between two wiring documents.
//
// Bundles are matched by id, so a bundle updated in place shows up as an
// upgrade or downgrade rather than as a removal and an addition.
//
//	snap, err := s.Snapshot()
//	before := wiring.New(snap).Document()
//	// ... apply changes, resolve and snapshot again ...
//	d := wiring.DiffDocuments(before, wiring.New(next).Document())
type Diff struct {
	// Added contains bundles resolved in new but not in old.
	Added []BundleChange `json:"added,omitempty" yaml:"added,omitempty"`

	// Removed contains bundles resolved in old but not in new.
	Removed []BundleChange `json:"removed,omitempty" yaml:"removed,omitempty"`

	// Upgraded contains bundles whose new version is higher.
	Upgraded []BundleUpgrade `json:"upgraded,omitempty" yaml:"upgraded,omitempty"`

	// Downgraded contains bundles whose new version is lower.
	Downgraded []BundleUpgrade `json:"downgraded,omitempty" yaml:"downgraded,omitempty"`

	// Rewired contains requirements of bundles present in both documents
	// that are wired to a different provider, or wired on one side only.
	Rewired []Rewire `json:"rewired,omitempty" yaml:"rewired,omitempty"`
}

// IsEmpty reports whether the documents wire the same bundles the same way.
func (d *Diff) IsEmpty() bool {
	return d.TotalChanges() == 0
}

// TotalChanges returns the number of entries across all change lists.
func (d *Diff) TotalChanges() int {
	return len(d.Added) + len(d.Removed) + len(d.Upgraded) + len(d.Downgraded) + len(d.Rewired)
}

// DiffDocuments computes the difference between two wiring documents. A
// nil document is treated as empty. Results are ordered by bundle id.
func DiffDocuments(old, new *Document) *Diff {
	d := &Diff{}
	oldBundles, newBundles := byID(old), byID(new)

	for _, id := range sortedIDs(newBundles) {
		nb := newBundles[id]
		ob, ok := oldBundles[id]
		if !ok {
			d.Added = append(d.Added, BundleChange{ID: id, Name: nb.Name, Version: nb.Version})
			continue
		}
		if ob.Version != nb.Version || ob.Name != nb.Name {
			up := BundleUpgrade{ID: id, Name: nb.Name, OldVersion: ob.Version, NewVersion: nb.Version}
			if compareVersions(nb.Version, ob.Version) >= 0 {
				d.Upgraded = append(d.Upgraded, up)
			} else {
				d.Downgraded = append(d.Downgraded, up)
			}
		}
		d.Rewired = append(d.Rewired, rewires(id, ob, nb)...)
	}
	for _, id := range sortedIDs(oldBundles) {
		if _, ok := newBundles[id]; !ok {
			ob := oldBundles[id]
			d.Removed = append(d.Removed, BundleChange{ID: id, Name: ob.Name, Version: ob.Version})
		}
	}
	return d
}

// String renders d as one line per change.
func (d *Diff) String() string {
	if d.IsEmpty() {
		return "no wiring changes\n"
	}
	var b strings.Builder
	for _, c := range d.Added {
		fmt.Fprintf(&b, "+ %s_%s (%d)\n", c.Name, c.Version, c.ID)
	}
	for _, c := range d.Removed {
		fmt.Fprintf(&b, "- %s_%s (%d)\n", c.Name, c.Version, c.ID)
	}
	for _, u := range d.Upgraded {
		fmt.Fprintf(&b, "^ %s (%d) %s -> %s\n", u.Name, u.ID, u.OldVersion, u.NewVersion)
	}
	for _, u := range d.Downgraded {
		fmt.Fprintf(&b, "v %s (%d) %s -> %s\n", u.Name, u.ID, u.OldVersion, u.NewVersion)
	}
	for _, r := range d.Rewired {
		fmt.Fprintf(&b, "~ (%d) %s: %s -> %s\n", r.ID, r.Requirement, orNone(r.OldProvider), orNone(r.NewProvider))
	}
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// byID indexes the current bundles of doc. Removal-pending entries are
// skipped since they share an id with their replacement.
func byID(doc *Document) map[int64]*BundleEntry {
	out := make(map[int64]*BundleEntry)
	if doc == nil {
		return out
	}
	for i := range doc.Bundles {
		e := &doc.Bundles[i]
		if e.RemovalPending {
			continue
		}
		out[e.ID] = e
	}
	return out
}

func sortedIDs(m map[int64]*BundleEntry) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func rewires(id int64, old, new *BundleEntry) []Rewire {
	oldWires, newWires := providers(old), providers(new)
	var reqs []string
	for r := range oldWires {
		reqs = append(reqs, r)
	}
	for r := range newWires {
		if _, ok := oldWires[r]; !ok {
			reqs = append(reqs, r)
		}
	}
	slices.Sort(reqs)

	var out []Rewire
	for _, r := range reqs {
		if op, np := oldWires[r], newWires[r]; op != np {
			out = append(out, Rewire{ID: id, Requirement: r, OldProvider: op, NewProvider: np})
		}
	}
	return out
}

// providers maps each requirement of e to its providers. Requirements with
// several wires keep all providers, joined in wire order.
func providers(e *BundleEntry) map[string]string {
	out := make(map[string]string, len(e.Wires))
	for _, w := range e.Wires {
		if cur, ok := out[w.Requirement]; ok {
			out[w.Requirement] = cur + ", " + w.Provider
			continue
		}
		out[w.Requirement] = w.Provider
	}
	return out
}

// compareVersions compares two rendered versions, falling back to string
// order for values that do not parse.
func compareVersions(a, b string) int {
	va, errA := version.Parse(a)
	vb, errB := version.Parse(b)
	if errA != nil || errB != nil {
		return cmp.Compare(a, b)
	}
	return version.Compare(va, vb)
}
