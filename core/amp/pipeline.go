// Package amp rewrites an HTML document into an AMP document.
//
// The conversion is an ordered list of steps applied to one parsed tree:
// structural head steps first (amp attribute, charset, runtime, canonical
// link, viewport, boilerplate), then content cleanup (scripts, stylesheet
// defer, div and button attributes), then the <img> and <form> rewrites.
// A Pipeline is immutable after New and safe for concurrent use; every run
// works on its own document.
package amp

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/gaurav-prasanna/amppipe/core"
	"github.com/gaurav-prasanna/amppipe/core/document"
)

// Options configures a Pipeline.
type Options struct {
	// Mode selects the step set. Empty means ModeFull.
	Mode Mode
	// Disabled lists step names to skip.
	Disabled []string
	// Images resolves <img> dimensions. Nil leaves them unset.
	Images core.ImageResolver
	// Logger receives per-step debug output. Nil discards it.
	Logger *slog.Logger
}

// Pipeline runs the conversion steps.
type Pipeline struct {
	steps  []Step
	images core.ImageResolver
	logger *slog.Logger
}

var _ core.Converter = (*Pipeline)(nil)

// New builds a pipeline from opts.
func New(opts Options) (*Pipeline, error) {
	steps, err := Steps(opts.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, opts.Mode)
	}

	known := StepNames()
	for _, name := range opts.Disabled {
		if !slices.Contains(known, name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStep, name)
		}
	}
	steps = slices.DeleteFunc(steps, func(s Step) bool {
		return slices.Contains(opts.Disabled, s.Name)
	})

	p := &Pipeline{
		steps:  steps,
		images: opts.Images,
		logger: opts.Logger,
	}
	if p.images == nil {
		p.images = core.ImageResolverFunc(func(context.Context, string) (core.Size, error) {
			return core.Size{}, ErrNoResolver
		})
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	return p, nil
}

// StepNames returns the names of the steps this pipeline runs, in order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name
	}
	return names
}

// Run applies every step to doc in order. The first failing step aborts
// the run.
func (p *Pipeline) Run(ctx context.Context, doc *document.Document, requestURL string) error {
	env := &Env{
		Doc:        doc,
		RequestURL: requestURL,
		Images:     p.images,
		Logger:     p.logger,
	}

	if !doc.HasHead() {
		p.logger.Debug("document has no head, adding an empty one")
		doc.Head()
	}

	for _, step := range p.steps {
		start := time.Now()
		if err := step.Apply(ctx, env); err != nil {
			return fmt.Errorf("step %s: %w", step.Name, err)
		}
		p.logger.Debug("step applied", "step", step.Name, "duration", time.Since(start))
	}
	return nil
}

// Convert parses src, runs the pipeline and serializes the result.
func (p *Pipeline) Convert(ctx context.Context, src string, requestURL string) (string, error) {
	doc := document.Parse(src)
	if err := p.Run(ctx, doc, requestURL); err != nil {
		return "", err
	}

	out, err := doc.HTML()
	if err != nil {
		return "", fmt.Errorf("serializing document: %w", err)
	}
	return out, nil
}
