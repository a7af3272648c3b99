package bundlestate

import (
	"fmt"
	"slices"
	"strings"

	"github.com/albertocavalcante/go-bundlestate/version"
)

// Properties is one platform environment: a set of framework properties such
// as the OS name, processor and execution environments.
type Properties map[string]any

// String returns the property value for key as a string, or "".
func (p Properties) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// List returns a comma separated or list-valued property as a string slice.
func (p Properties) List(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case string:
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// MatchContext carries the resolution-time facts matching depends on.
type MatchContext struct {
	// Strict enables friends visibility checks for exported packages.
	Strict bool

	// EEIndex is the requirer's execution environment index, or -1.
	EEIndex int

	// Platform lists the active platform environments.
	Platform []Properties
}

// IsSatisfiedBy reports whether c satisfies r using r's owner's current
// execution environment index and no platform environments.
func (r *Requirement) IsSatisfiedBy(c *Capability) bool {
	ctx := MatchContext{EEIndex: -1}
	if r.owner != nil {
		ctx.EEIndex = r.owner.EEIndex()
		if s := r.owner.State(); s != nil {
			ctx.Strict = s.cfg.strict
			ctx.Platform = s.PlatformProperties()
		}
	}
	return r.Matches(c, ctx)
}

// Matches reports whether c satisfies r under ctx.
func (r *Requirement) Matches(c *Capability, ctx MatchContext) bool {
	if c == nil {
		return false
	}
	switch r.kind {
	case ReqRequireBundle:
		return c.kind == KindBundle && r.matchesBundle(c)
	case ReqHost:
		return c.kind == KindHost && r.matchesBundle(c)
	case ReqImport:
		return c.kind == KindPackage && r.matchesPackage(c, ctx)
	case ReqGeneric:
		return (c.kind == KindGeneric || c.kind == KindIdentity) && r.matchesGeneric(c)
	case ReqNativeCode:
		return c.kind == KindNativeCode && MatchesPlatform(c.NativeCode(), ctx.Platform)
	}
	return false
}

func (r *Requirement) matchesBundle(c *Capability) bool {
	if c.provider != nil && c.provider.IsFragment() {
		return false
	}
	if c.Name != r.Name || !r.Range.Includes(c.Version) {
		return false
	}
	if !attributesPresent(r.Attributes, c.Attributes) {
		return false
	}
	for _, key := range c.Mandatory() {
		if key == AttrBundleVersion {
			continue
		}
		if _, ok := r.Attributes[key]; !ok {
			return false
		}
	}
	return true
}

// matchesPackage checks attributes in both directions: every attribute the
// import names must be equal on the export, and every mandatory attribute
// of the export must be named by the import. Other export attributes do
// not constrain the import.
func (r *Requirement) matchesPackage(c *Capability, ctx MatchContext) bool {
	pkg := c.Package()
	if pkg == nil {
		return false
	}
	if pkg.Internal && c.provider != r.owner {
		return false
	}
	if ctx.Strict && len(pkg.Friends) > 0 && c.provider != r.owner {
		if r.owner == nil || !slices.Contains(pkg.Friends, r.owner.SymbolicName()) {
			return false
		}
	}
	if !r.matchesPackageName(c.Name) {
		return false
	}
	if !r.Range.Includes(c.Version) {
		return false
	}
	imp, _ := r.Payload.(*ImportPayload)
	if imp != nil && c.provider != nil {
		if imp.BundleSymbolicName != "" && imp.BundleSymbolicName != c.provider.SymbolicName() {
			return false
		}
		if !imp.BundleRange.Includes(c.provider.Version()) {
			return false
		}
	}
	if !attributesPresent(r.Attributes, c.Attributes) {
		return false
	}
	for _, key := range pkg.Mandatory {
		switch key {
		case AttrVersion, AttrSpecificationVersion:
			continue
		case AttrBundleSymbolicName:
			if imp != nil && imp.BundleSymbolicName != "" {
				continue
			}
		case AttrBundleVersion:
			if imp != nil && !imp.BundleRange.IsEmpty() {
				continue
			}
		}
		if _, ok := r.Attributes[key]; !ok {
			return false
		}
	}
	if ctx.EEIndex >= 0 && pkg.EEIndex >= 0 && pkg.EEIndex != ctx.EEIndex {
		return false
	}
	return true
}

func (r *Requirement) matchesPackageName(name string) bool {
	if r.Name == name {
		return true
	}
	if r.Resolution != Dynamic {
		return false
	}
	if r.Name == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(r.Name, "*"); ok {
		return strings.HasPrefix(name, prefix)
	}
	return false
}

func (r *Requirement) matchesGeneric(c *Capability) bool {
	if c.Namespace != r.Namespace {
		return false
	}
	return r.Filter.Matches(c.Attributes)
}

// attributesPresent reports whether every key in want is present in have
// with an equal value.
func attributesPresent(want, have map[string]any) bool {
	for k, w := range want {
		h, ok := have[k]
		if !ok || !attributeEqual(w, h) {
			return false
		}
	}
	return true
}

func attributeEqual(a, b any) bool {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return av == bv
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return av == bv
		}
	case version.Version:
		if bv, ok := b.(version.Version); ok {
			return av.Compare(bv) == 0
		}
	case []string:
		if bv, ok := b.([]string); ok {
			return slices.Equal(av, bv)
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// MatchesPlatform reports whether a native-code alternative is viable in
// every platform environment. Empty lists on the alternative act as
// wildcards.
func MatchesPlatform(alt *NativeCodePayload, platform []Properties) bool {
	if alt == nil {
		return false
	}
	for _, env := range platform {
		if !matchesEnvironment(alt, env) {
			return false
		}
	}
	return true
}

func matchesEnvironment(alt *NativeCodePayload, env Properties) bool {
	if len(alt.Processors) > 0 {
		want := normalizeProcessor(env.String(PropProcessor))
		if !slices.ContainsFunc(alt.Processors, func(p string) bool { return normalizeProcessor(p) == want }) {
			return false
		}
	}
	if len(alt.OSNames) > 0 {
		want := normalizeOSName(env.String(PropOSName))
		if !slices.ContainsFunc(alt.OSNames, func(n string) bool { return normalizeOSName(n) == want }) {
			return false
		}
	}
	if len(alt.OSVersions) > 0 {
		v := leadingVersion(env.String(PropOSVersion))
		if !slices.ContainsFunc(alt.OSVersions, func(r version.Range) bool { return r.Includes(v) }) {
			return false
		}
	}
	if len(alt.Languages) > 0 {
		want := env.String(PropLanguage)
		if !slices.ContainsFunc(alt.Languages, func(l string) bool { return strings.EqualFold(l, want) }) {
			return false
		}
	}
	if alt.Filter != nil && !alt.Filter.Matches(env) {
		return false
	}
	return true
}

var processorAliases = map[string]string{
	"amd64":   "x86-64",
	"em64t":   "x86-64",
	"x86_64":  "x86-64",
	"x86-64":  "x86-64",
	"i386":    "x86",
	"i486":    "x86",
	"i586":    "x86",
	"i686":    "x86",
	"pentium": "x86",
	"x86":     "x86",
	"arm64":   "aarch64",
	"aarch64": "aarch64",
	"armv8":   "aarch64",
	"power":   "powerpc",
	"ppc":     "powerpc",
}

var osAliases = map[string]string{
	"win32":       "win32",
	"windows":     "win32",
	"windows95":   "win32",
	"windows98":   "win32",
	"windowsnt":   "win32",
	"windowsxp":   "win32",
	"windows7":    "win32",
	"windows10":   "win32",
	"windows11":   "win32",
	"macosx":      "macosx",
	"macos":       "macosx",
	"mac os x":    "macosx",
	"darwin":      "macosx",
	"linux":       "linux",
	"sunos":       "solaris",
	"solaris":     "solaris",
	"aix":         "aix",
	"hpux":        "hpux",
	"hp-ux":       "hpux",
	"freebsd":     "freebsd",
	"netbsd":      "netbsd",
	"openbsd":     "openbsd",
	"qnx":         "qnx",
	"os/2":        "os2",
	"os2":         "os2",
	"irix":        "irix",
	"digitalunix": "digitalunix",
}

func normalizeProcessor(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if alias, ok := processorAliases[p]; ok {
		return alias
	}
	return p
}

func normalizeOSName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := osAliases[name]; ok {
		return alias
	}
	if alias, ok := osAliases[strings.ReplaceAll(name, " ", "")]; ok {
		return alias
	}
	if strings.HasPrefix(name, "windows") {
		return "win32"
	}
	return name
}

// leadingVersion parses the numeric prefix of an OS version such as
// "5.15.0-91-generic", falling back to the empty version.
func leadingVersion(s string) version.Version {
	var parts []string
	for _, seg := range strings.SplitN(s, ".", 3) {
		end := 0
		for end < len(seg) && seg[end] >= '0' && seg[end] <= '9' {
			end++
		}
		if end == 0 {
			break
		}
		parts = append(parts, seg[:end])
		if end < len(seg) {
			break
		}
	}
	v, err := version.Parse(strings.Join(parts, "."))
	if err != nil {
		return version.Empty
	}
	return v
}
