package manifest

import (
	"fmt"

	bundlestate "github.com/albertocavalcante/go-bundlestate"
)

// Build constructs a bundle for every declaration in file order.
func (f *File) Build() ([]*bundlestate.Bundle, error) {
	bundles := make([]*bundlestate.Bundle, 0, len(f.Declarations))
	for _, d := range f.Declarations {
		b, err := bundlestate.Build(d.Spec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Pos, err)
		}
		bundles = append(bundles, b)
	}
	return bundles, nil
}

// Apply makes s hold exactly the bundles of f. Declared bundles whose id
// is already present replace the installed bundle, new ids are added and
// installed bundles missing from f are removed. The platform environments
// of s are replaced when f declares any. Apply does not resolve.
func (f *File) Apply(s *bundlestate.State) (Summary, error) {
	var sum Summary
	bundles, err := f.Build()
	if err != nil {
		return sum, err
	}
	if len(f.Platforms) > 0 {
		if _, err := s.SetPlatformProperties(f.Platforms...); err != nil {
			return sum, fmt.Errorf("failed to set platform properties: %w", err)
		}
	}

	declared := make(map[bundlestate.BundleID]bool, len(bundles))
	for _, b := range bundles {
		declared[b.ID()] = true
		updated, err := s.UpdateBundle(b)
		if err != nil {
			return sum, fmt.Errorf("failed to update %v: %w", b, err)
		}
		if updated {
			sum.Updated++
			continue
		}
		added, err := s.AddBundle(b)
		if err != nil {
			return sum, fmt.Errorf("failed to add %v: %w", b, err)
		}
		if added {
			sum.Added++
		}
	}
	for _, b := range s.Bundles() {
		if !declared[b.ID()] && s.RemoveBundle(b.ID()) != nil {
			sum.Removed++
		}
	}
	return sum, nil
}
