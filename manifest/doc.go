// Package manifest reads bundle descriptor files.
//
// A descriptor file uses Starlark call syntax and declares platform
// environments and bundles:
//
//	platform(
//	    os_name = "linux",
//	    processor = "x86_64",
//	    execution_environments = ["JavaSE-17"],
//	)
//
//	bundle(
//	    id = 1,
//	    name = "org.example.api",
//	    version = "1.0.0",
//	    exports = [export_package("org.example.api", version = "1.0.0")],
//	)
//
//	bundle(
//	    id = 2,
//	    name = "org.example.app",
//	    version = "1.0.0",
//	    requires = [require_bundle("org.example.api", range = "[1.0.0,2.0.0)")],
//	    imports = [import_package("org.example.util", resolution = "optional")],
//	)
//
// Parse and ParseFile produce a File holding one bundlestate.BundleSpec per
// bundle call. File.Build turns the specs into bundles and File.Apply
// synchronizes a State with the file's contents.
//
// The nested calls accepted inside bundle are fragment_host,
// require_bundle, import_package, export_package, capability, requirement
// and native_code. Their first positional argument is the name (or the
// namespace for capability and requirement).
package manifest
