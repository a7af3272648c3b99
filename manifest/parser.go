package manifest

import (
	"errors"
	"fmt"
	"os"
	"slices"

	bundlestate "github.com/albertocavalcante/go-bundlestate"
	"github.com/albertocavalcante/go-bundlestate/internal/buildutil"
	"github.com/bazelbuild/buildtools/build"
)

// Keyword arguments accepted by each call.
var keywords = map[string][]string{
	"platform": {"name", "os_name", "os_version", "processor", "language", "execution_environments", "properties"},
	"bundle": {
		"id", "name", "version", "singleton", "fragment_attachment", "location", "platform_filter",
		"execution_environments", "strict", "attributes", "directives", "mandatory", "host",
		"requires", "imports", "exports", "capabilities", "requirements", "native_code", "native_code_optional",
	},
	"fragment_host":  {"range", "attributes", "directives"},
	"require_bundle": {"range", "optional", "reexport", "attributes", "directives"},
	"import_package": {"range", "resolution", "bundle", "bundle_range", "attributes", "directives"},
	"export_package": {"version", "uses", "mandatory", "friends", "internal", "attributes", "directives"},
	"capability":     {"attributes", "directives"},
	"requirement":    {"filter", "optional", "multiple", "attributes", "directives"},
	"native_code":    {"paths", "processors", "os_names", "os_versions", "languages", "filter"},
}

type parser struct {
	filename string
	errors   []error
	warnings []*ParseError
}

// ParseFile reads and parses a descriptor file from disk.
func ParseFile(filename string) (*File, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return Parse(filename, data)
}

// Parse parses descriptor content. All declaration errors are reported
// together, joined with errors.Join.
func Parse(filename string, content []byte) (*File, error) {
	p := &parser{filename: filename}
	return p.parse(content)
}

func (p *parser) parse(content []byte) (*File, error) {
	raw, err := build.ParseDefault(p.filename, content)
	if err != nil {
		return nil, &ParseError{
			Pos:     Position{Filename: p.filename},
			Message: fmt.Sprintf("syntax error: %v", err),
			Wrapped: err,
		}
	}

	f := &File{Path: p.filename}
	ids := make(map[bundlestate.BundleID]Position)
	for _, stmt := range raw.Stmt {
		call, ok := stmt.(*build.CallExpr)
		if !ok {
			if _, isComment := stmt.(*build.CommentBlock); !isComment {
				p.addWarning(p.position(stmt), "ignoring statement that is not a call")
			}
			continue
		}
		pos := p.position(call)
		switch name := buildutil.FuncName(call); name {
		case "platform":
			p.checkKeywords(call, name)
			f.Platforms = append(f.Platforms, p.parsePlatform(call))
		case "bundle":
			p.checkKeywords(call, name)
			spec, ok := p.parseBundle(call, pos)
			if !ok {
				continue
			}
			if prev, dup := ids[spec.ID]; dup {
				p.addError(pos, "duplicate bundle id %d (first declared at %s)", spec.ID, prev)
				continue
			}
			ids[spec.ID] = pos
			f.Declarations = append(f.Declarations, Declaration{Pos: pos, Spec: spec})
		default:
			p.addError(pos, "unknown declaration %q", name)
		}
	}

	f.Warnings = p.warnings
	if len(p.errors) > 0 {
		return f, errors.Join(p.errors...)
	}
	return f, nil
}

func (p *parser) parsePlatform(call *build.CallExpr) bundlestate.Properties {
	props := bundlestate.Properties{}
	for k, v := range buildutil.Dict(call, "properties") {
		props[k] = v
	}
	set := func(key, value string) {
		if value != "" {
			props[key] = value
		}
	}
	set(bundlestate.PropOSName, buildutil.String(call, "os_name"))
	set(bundlestate.PropOSVersion, buildutil.String(call, "os_version"))
	set(bundlestate.PropProcessor, buildutil.String(call, "processor"))
	set(bundlestate.PropLanguage, buildutil.String(call, "language"))
	if ees := buildutil.StringList(call, "execution_environments"); len(ees) > 0 {
		props[bundlestate.PropExecutionEnvironments] = ees
	}
	return props
}

func (p *parser) parseBundle(call *build.CallExpr, pos Position) (bundlestate.BundleSpec, bool) {
	before := len(p.errors)
	id, ok := buildutil.Int(call, "id")
	if !ok {
		p.addError(pos, "bundle: missing or invalid id")
		return bundlestate.BundleSpec{}, false
	}
	spec := bundlestate.BundleSpec{
		ID:                    bundlestate.BundleID(id),
		SymbolicName:          buildutil.String(call, "name"),
		Version:               buildutil.String(call, "version"),
		Singleton:             buildutil.Bool(call, "singleton"),
		Location:              buildutil.String(call, "location"),
		PlatformFilter:        buildutil.String(call, "platform_filter"),
		ExecutionEnvironments: buildutil.StringList(call, "execution_environments"),
		Strict:                buildutil.Bool(call, "strict"),
		Attributes:            buildutil.Dict(call, "attributes"),
		Directives:            buildutil.StringDict(call, "directives"),
		Mandatory:             buildutil.StringList(call, "mandatory"),
		NativeCodeOptional:    buildutil.Bool(call, "native_code_optional"),
	}
	if spec.Version == "" {
		spec.Version = "0.0.0"
	}
	attach, err := bundlestate.ParseAttachmentPolicy(buildutil.String(call, "fragment_attachment"))
	if err != nil {
		p.addError(pos, "bundle %d: %v", id, err)
		return spec, false
	}
	spec.Attachment = attach

	for _, c := range p.nested(call, "host", "fragment_host") {
		if spec.Host != nil {
			p.addError(p.position(c), "bundle %d: more than one fragment_host", id)
			continue
		}
		spec.Host = &bundlestate.HostSpec{
			Name:       buildutil.String(c, ""),
			Range:      buildutil.String(c, "range"),
			Attributes: buildutil.Dict(c, "attributes"),
			Directives: buildutil.StringDict(c, "directives"),
		}
	}
	for _, c := range p.nested(call, "requires", "require_bundle") {
		spec.Requires = append(spec.Requires, bundlestate.RequireBundleSpec{
			Name:       buildutil.String(c, ""),
			Range:      buildutil.String(c, "range"),
			Optional:   buildutil.Bool(c, "optional"),
			Reexport:   buildutil.Bool(c, "reexport"),
			Attributes: buildutil.Dict(c, "attributes"),
			Directives: buildutil.StringDict(c, "directives"),
		})
	}
	for _, c := range p.nested(call, "imports", "import_package") {
		mode, err := bundlestate.ParseResolutionMode(buildutil.String(c, "resolution"))
		if err != nil {
			p.addError(p.position(c), "bundle %d: %v", id, err)
			continue
		}
		spec.Imports = append(spec.Imports, bundlestate.ImportSpec{
			Name:               buildutil.String(c, ""),
			Range:              buildutil.String(c, "range"),
			Resolution:         mode,
			BundleSymbolicName: buildutil.String(c, "bundle"),
			BundleRange:        buildutil.String(c, "bundle_range"),
			Attributes:         buildutil.Dict(c, "attributes"),
			Directives:         buildutil.StringDict(c, "directives"),
		})
	}
	for _, c := range p.nested(call, "exports", "export_package") {
		spec.Exports = append(spec.Exports, bundlestate.ExportSpec{
			Name:       buildutil.String(c, ""),
			Version:    buildutil.String(c, "version"),
			Uses:       buildutil.StringList(c, "uses"),
			Mandatory:  buildutil.StringList(c, "mandatory"),
			Friends:    buildutil.StringList(c, "friends"),
			Internal:   buildutil.Bool(c, "internal"),
			Attributes: buildutil.Dict(c, "attributes"),
			Directives: buildutil.StringDict(c, "directives"),
		})
	}
	for _, c := range p.nested(call, "capabilities", "capability") {
		spec.Capabilities = append(spec.Capabilities, bundlestate.CapabilitySpec{
			Namespace:  buildutil.String(c, ""),
			Attributes: buildutil.Dict(c, "attributes"),
			Directives: buildutil.StringDict(c, "directives"),
		})
	}
	for _, c := range p.nested(call, "requirements", "requirement") {
		spec.Requirements = append(spec.Requirements, bundlestate.RequirementSpec{
			Namespace:  buildutil.String(c, ""),
			Filter:     buildutil.String(c, "filter"),
			Optional:   buildutil.Bool(c, "optional"),
			Multiple:   buildutil.Bool(c, "multiple"),
			Attributes: buildutil.Dict(c, "attributes"),
			Directives: buildutil.StringDict(c, "directives"),
		})
	}
	for _, c := range p.nested(call, "native_code", "native_code") {
		spec.NativeCode = append(spec.NativeCode, bundlestate.NativeCodeSpec{
			Paths:      buildutil.StringList(c, "paths"),
			Processors: buildutil.StringList(c, "processors"),
			OSNames:    buildutil.StringList(c, "os_names"),
			OSVersions: buildutil.StringList(c, "os_versions"),
			Languages:  buildutil.StringList(c, "languages"),
			Filter:     buildutil.String(c, "filter"),
		})
	}
	return spec, len(p.errors) == before
}

// nested returns the fn calls of the keyword argument attr. Calls to any
// other function are errors.
func (p *parser) nested(call *build.CallExpr, attr, fn string) []*build.CallExpr {
	var out []*build.CallExpr
	for _, c := range buildutil.Calls(call, attr) {
		if name := buildutil.FuncName(c); name != fn {
			p.addError(p.position(c), "%s: expected %s(...), got %s(...)", attr, fn, name)
			continue
		}
		p.checkKeywords(c, fn)
		out = append(out, c)
	}
	return out
}

func (p *parser) checkKeywords(call *build.CallExpr, fn string) {
	allowed := keywords[fn]
	for _, k := range buildutil.Keywords(call) {
		if !slices.Contains(allowed, k) {
			p.addWarning(p.position(call), "%s: ignoring unknown argument %q", fn, k)
		}
	}
}

func (p *parser) position(expr build.Expr) Position {
	start, _ := expr.Span()
	return Position{
		Filename: p.filename,
		Line:     start.Line,
		Column:   start.LineRune,
	}
}

func (p *parser) addError(pos Position, format string, args ...any) {
	p.errors = append(p.errors, &ParseError{
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
	})
}

func (p *parser) addWarning(pos Position, format string, args ...any) {
	p.warnings = append(p.warnings, &ParseError{
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
	})
}
