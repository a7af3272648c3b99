// Command bundlestate resolves bundle descriptor files and inspects
// persisted wiring states.
//
// Usage:
//
//	bundlestate resolve bundles.star --cache-dir .bundlestate
//	bundlestate inspect --cache-dir .bundlestate --format dot
//	bundlestate watch bundles.star --metrics-addr :9090
//
// Settings come from flags, BUNDLESTATE_* environment variables and
// .bundlestate.yaml, in that order of precedence.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
