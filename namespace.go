package bundlestate

// Well-known capability/requirement namespaces.
const (
	NamespaceBundle     = "osgi.wiring.bundle"
	NamespaceHost       = "osgi.wiring.host"
	NamespacePackage    = "osgi.wiring.package"
	NamespaceIdentity   = "osgi.identity"
	NamespaceNativeCode = "osgi.native"
	NamespaceEE         = "osgi.ee"
)

// Attribute and directive keys with defined meaning.
const (
	AttrVersion              = "version"
	AttrBundleVersion        = "bundle-version"
	AttrSpecificationVersion = "specification-version"
	AttrBundleSymbolicName   = "bundle-symbolic-name"
	AttrIdentityType         = "type"
	AttrEEIndex              = "equinox.ee"

	DirectiveMandatory   = "mandatory"
	DirectiveUses        = "uses"
	DirectiveResolution  = "resolution"
	DirectiveFilter      = "filter"
	DirectiveFriends     = "x-friends"
	DirectiveInternal    = "x-internal"
	DirectiveSingleton   = "singleton"
	DirectiveAttachment  = "fragment-attachment"
	DirectiveVisibility  = "visibility"
	DirectiveCardinality = "cardinality"
	DirectiveEffective   = "effective"
)

// Identity capability type values.
const (
	IdentityTypeBundle   = "osgi.bundle"
	IdentityTypeFragment = "osgi.fragment"
)

// Platform property keys consulted during resolution.
const (
	PropOSName                = "org.osgi.framework.os.name"
	PropOSVersion             = "org.osgi.framework.os.version"
	PropProcessor             = "org.osgi.framework.processor"
	PropLanguage              = "org.osgi.framework.language"
	PropExecutionEnvironments = "org.osgi.framework.executionenvironment"
)
