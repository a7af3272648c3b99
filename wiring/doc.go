// Package wiring provides a read-only projection of the resolved part of a
// bundle state.
//
// A Wiring is built from a bundlestate.Snapshot and never changes
// afterwards, so it can be queried without holding any State lock:
//
//	snap, err := state.Snapshot()
//	if err != nil {
//		return err
//	}
//	w := wiring.New(snap)
//
//	// Capabilities and requirements, optionally restricted to a namespace
//	caps := w.Capabilities(b, bundlestate.NamespacePackage)
//
//	// Wires in either direction
//	in := w.Wires(b, "", wiring.Provided)
//
//	// Packages visible to a bundle's class space
//	pkgs := w.VisiblePackages(b)
//
// # Output Formats
//
// The projection can be serialized for inspection:
//
//	jsonBytes, _ := w.ToJSON()
//	yamlBytes, _ := w.ToYAML()
//	dotString := w.ToDOT()
//	textString := w.ToText()
package wiring
