// Package version implements bundle version parsing, ordering and version ranges.
//
// A version has four parts: MAJOR.MINOR.MICRO.QUALIFIER. The numeric parts
// default to zero when omitted and the qualifier defaults to the empty string.
//
// # Ordering
//
// Versions are totally ordered by comparing major, then minor, then micro
// numerically and finally the qualifier lexicographically. An empty qualifier
// sorts before any non-empty qualifier, so 1.0.0 < 1.0.0.beta.
//
// # Ranges
//
// A range is written in interval notation:
//
//	[1.0,2.0)   1.0 <= v < 2.0
//	(1.0,2.0]   1.0 <  v <= 2.0
//	1.0         1.0 <= v (no ceiling)
//
// The zero Range (and EmptyRange) includes every version.
package version
