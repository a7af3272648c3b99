// Package resolver provides the default bundlestate.Resolver.
//
// A resolve round runs in two phases. The module-graph phase turns every
// candidate bundle into a selection.Element whose dependencies are its
// require-bundle and fragment-host requirements and lets the selection
// solver pick a consistent, cycle-free subset. The package phase then wires
// import-package and generic requirements against the capabilities of the
// bundles that survived, honoring uses constraints and export substitution.
// A bundle failing the package phase is excluded and the round starts over,
// so every restart removes at least one bundle.
package resolver

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	bundlestate "github.com/albertocavalcante/go-bundlestate"
	"github.com/albertocavalcante/go-bundlestate/selection"
)

// Resolver is the default resolver. It is safe for concurrent use by
// multiple States.
type Resolver struct {
	cfg     *config
	log     *slog.Logger
	metrics *metrics
}

var _ bundlestate.Resolver = (*Resolver)(nil)

// New creates a Resolver.
func New(opts ...Option) (*Resolver, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	m, err := newMetrics(cfg.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return &Resolver{cfg: cfg, log: cfg.log(), metrics: m}, nil
}

// Resolve implements bundlestate.Resolver.
func (r *Resolver) Resolve(in *bundlestate.ResolveInput) (*bundlestate.ResolveOutput, error) {
	start := time.Now()
	rd := newRound(r, in)
	out, err := rd.run()
	if err != nil {
		return nil, err
	}
	r.metrics.observeRound(start, len(out.Resolutions), len(in.Unresolved)-len(out.Resolutions), rd.cycleBreaks)
	r.log.Debug("resolve round finished",
		"candidates", len(in.Unresolved),
		"resolved", len(out.Resolutions),
		"attempts", rd.attempts,
		"duration", time.Since(start))
	return out, nil
}

type round struct {
	r  *Resolver
	in *bundlestate.ResolveInput

	// fixed holds the resolved, non-pending bundles usable as providers.
	fixed map[*bundlestate.Bundle]bool

	// excluded holds bundles that can no longer resolve this round.
	excluded map[*bundlestate.Bundle][]bundlestate.ResolverError

	eeIndex map[*bundlestate.Bundle]int
	native  map[*bundlestate.Bundle]*bundlestate.Wire

	cycleBreaks int
	attempts    int
}

func newRound(r *Resolver, in *bundlestate.ResolveInput) *round {
	rd := &round{
		r:        r,
		in:       in,
		fixed:    make(map[*bundlestate.Bundle]bool),
		excluded: make(map[*bundlestate.Bundle][]bundlestate.ResolverError),
		eeIndex:  make(map[*bundlestate.Bundle]int),
		native:   make(map[*bundlestate.Bundle]*bundlestate.Wire),
	}
	for _, b := range in.Resolved {
		if !b.IsRemovalPending() {
			rd.fixed[b] = true
		}
	}
	return rd
}

func (rd *round) ctx(b *bundlestate.Bundle) bundlestate.MatchContext {
	ee, ok := rd.eeIndex[b]
	if !ok {
		ee = b.EEIndex()
	}
	return bundlestate.MatchContext{Strict: rd.in.Strict, EEIndex: ee, Platform: rd.in.Platform}
}

func (rd *round) fail(b *bundlestate.Bundle, kind bundlestate.ResolverErrorKind, req *bundlestate.Requirement, data string) {
	rd.excluded[b] = append(rd.excluded[b], bundlestate.ResolverError{
		Kind:        kind,
		Bundle:      b,
		Requirement: req,
		Data:        data,
	})
}

func (rd *round) run() (*bundlestate.ResolveOutput, error) {
	for _, b := range rd.in.Unresolved {
		rd.precheck(b)
	}
	for {
		rd.attempts++
		var live []*bundlestate.Bundle
		for _, b := range rd.in.Unresolved {
			if _, ok := rd.excluded[b]; !ok {
				live = append(live, b)
			}
		}

		graph, err := rd.selectBundles(live)
		if err != nil {
			return nil, fmt.Errorf("failed to select bundles: %w", err)
		}
		pkgs := rd.wirePackages(graph)
		if len(pkgs.failures) == 0 {
			return rd.output(graph, pkgs), nil
		}
		for b, errs := range pkgs.failures {
			rd.excluded[b] = append(rd.excluded[b], errs...)
		}
	}
}

// precheck excludes bundles that cannot resolve regardless of the rest of
// the state.
func (rd *round) precheck(b *bundlestate.Bundle) {
	if infos := rd.in.Disabled[b]; len(infos) > 0 {
		for _, info := range infos {
			rd.fail(b, bundlestate.DisabledBundle, nil, info.Policy+": "+info.Message)
		}
		return
	}
	if f := b.PlatformFilter(); f != nil {
		ok := slices.ContainsFunc(rd.in.Platform, func(env bundlestate.Properties) bool {
			return f.Matches(env)
		})
		if !ok {
			rd.fail(b, bundlestate.PlatformFilter, nil, f.String())
			return
		}
	}

	rd.eeIndex[b] = -1
	if envs := b.ExecutionEnvironments(); len(envs) > 0 {
		idx := slices.IndexFunc(rd.in.Platform, func(env bundlestate.Properties) bool {
			provided := env.List(bundlestate.PropExecutionEnvironments)
			return slices.ContainsFunc(envs, func(ee string) bool { return slices.Contains(provided, ee) })
		})
		if idx < 0 {
			rd.fail(b, bundlestate.MissingExecutionEnvironment, nil, strings.Join(envs, ","))
			return
		}
		rd.eeIndex[b] = idx
	}

	if req := b.NativeCodeRequirement(); req != nil {
		ctx := rd.ctx(b)
		for _, alt := range b.NativeCodeAlternatives() {
			if req.Matches(alt, ctx) {
				rd.native[b] = &bundlestate.Wire{Requirement: req, Capability: alt}
				break
			}
		}
		if rd.native[b] == nil && !req.IsOptional() {
			rd.fail(b, bundlestate.NativeCode, req, "")
		}
	}
}

// moduleGraph is the outcome of the module-graph phase.
type moduleGraph struct {
	// resolvable lists the bundles selected by the solver, ordered by id.
	resolvable []*bundlestate.Bundle
	wires      map[*bundlestate.Bundle][]*bundlestate.Wire
	failures   map[*bundlestate.Bundle][]bundlestate.ResolverError
}

func bundleOf(e *selection.Element) *bundlestate.Bundle {
	return e.Data.(*bundlestate.Bundle)
}

func newElement(b *bundlestate.Bundle) *selection.Element {
	return &selection.Element{
		ID:        int64(b.ID()),
		Name:      b.SymbolicName(),
		Version:   b.Version(),
		Singleton: b.IsSingleton(),
		Data:      b,
	}
}

func (rd *round) selectBundles(live []*bundlestate.Bundle) (*moduleGraph, error) {
	var elements []*selection.Element
	for b := range rd.fixed {
		e := newElement(b)
		e.Resolved = true
		e.Previous = true
		elements = append(elements, e)
	}
	for _, b := range live {
		e := newElement(b)
		e.Previous = rd.in.Previous[b]
		ctx := rd.ctx(b)
		if host := b.Host(); host != nil {
			e.Dependencies = append(e.Dependencies, &selection.Dependency{
				Name:     host.Name,
				Range:    host.Range,
				Multiple: true,
				Allowed:  rd.hostAllowed(host, ctx),
				Data:     host,
			})
		}
		for _, req := range b.Requires() {
			e.Dependencies = append(e.Dependencies, &selection.Dependency{
				Name:     req.Name,
				Range:    req.Range,
				Optional: req.IsOptional(),
				Allowed:  rd.requireAllowed(req, ctx),
				Data:     req,
			})
		}
		elements = append(elements, e)
	}

	res, err := selection.Solve(elements, rd.r.cfg.policy)
	if err != nil {
		return nil, err
	}
	if res.CycleBreaks > 0 {
		rd.r.log.Warn("broke dependency cycles", "count", res.CycleBreaks)
	}
	rd.cycleBreaks += res.CycleBreaks

	g := &moduleGraph{
		wires:    make(map[*bundlestate.Bundle][]*bundlestate.Wire),
		failures: make(map[*bundlestate.Bundle][]bundlestate.ResolverError),
	}
	for e, f := range res.Failures {
		b := bundleOf(e)
		var req *bundlestate.Requirement
		if f.Dependency != nil {
			req = f.Dependency.Data.(*bundlestate.Requirement)
		}
		rerr := bundlestate.ResolverError{Bundle: b, Requirement: req}
		switch f.Kind {
		case selection.FailureSingleton:
			rerr.Kind = bundlestate.SingletonSelection
			rerr.Data = "selected " + bundleOf(f.Winner).String()
		case selection.FailureCycle:
			rerr.Kind = bundlestate.Cycle
		default:
			rerr.Kind = bundlestate.MissingRequireBundle
			if req != nil && req.Kind() == bundlestate.ReqHost {
				rerr.Kind = bundlestate.MissingFragmentHost
			}
		}
		g.failures[b] = append(g.failures[b], rerr)
	}
	for _, e := range res.Resolved {
		b := bundleOf(e)
		g.resolvable = append(g.resolvable, b)
		for _, d := range e.Dependencies {
			req := d.Data.(*bundlestate.Requirement)
			for _, p := range res.Wiring[d] {
				pb := bundleOf(p)
				c := pb.BundleCapability()
				if req.Kind() == bundlestate.ReqHost {
					c = pb.HostCapability()
				}
				g.wires[b] = append(g.wires[b], &bundlestate.Wire{Requirement: req, Capability: c})
			}
		}
	}
	slices.SortFunc(g.resolvable, compareBundles)
	return g, nil
}

func (rd *round) requireAllowed(req *bundlestate.Requirement, ctx bundlestate.MatchContext) func(*selection.Element) bool {
	return func(e *selection.Element) bool {
		c := bundleOf(e).BundleCapability()
		if c == nil || !req.Matches(c, ctx) {
			return false
		}
		return len(bundlestate.FilterMatches(rd.in.Hook, req, []*bundlestate.Capability{c})) == 1
	}
}

func (rd *round) hostAllowed(req *bundlestate.Requirement, ctx bundlestate.MatchContext) func(*selection.Element) bool {
	return func(e *selection.Element) bool {
		h := bundleOf(e)
		c := h.HostCapability()
		if c == nil || !req.Matches(c, ctx) {
			return false
		}
		if e.Resolved && !h.DynamicFragments() {
			return false
		}
		return len(bundlestate.FilterMatches(rd.in.Hook, req, []*bundlestate.Capability{c})) == 1
	}
}

func (rd *round) output(g *moduleGraph, pkgs *packageWiring) *bundlestate.ResolveOutput {
	out := &bundlestate.ResolveOutput{Errors: make(map[*bundlestate.Bundle][]bundlestate.ResolverError)}
	for b, errs := range rd.excluded {
		out.Errors[b] = errs
	}
	for b, errs := range g.failures {
		out.Errors[b] = append(out.Errors[b], errs...)
	}
	for _, b := range g.resolvable {
		res := &bundlestate.Resolution{
			Bundle:               b,
			EEIndex:              rd.eeIndex[b],
			SelectedExports:      pkgs.selected[b],
			SubstitutedExports:   pkgs.substituted[b],
			SelectedCapabilities: b.GenericCapabilities(),
		}
		if w := rd.native[b]; w != nil {
			res.Wires = append(res.Wires, w)
		}
		res.Wires = append(res.Wires, g.wires[b]...)
		res.Wires = append(res.Wires, pkgs.wires[b]...)
		out.Resolutions = append(out.Resolutions, res)
	}
	return out
}

func compareBundles(a, b *bundlestate.Bundle) int {
	return cmp.Compare(a.ID(), b.ID())
}
