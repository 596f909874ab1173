package amp

import (
	"context"
	"log/slog"
	"slices"

	"golang.org/x/net/html"

	"github.com/gaurav-prasanna/amppipe/core"
	"github.com/gaurav-prasanna/amppipe/core/document"
)

// Step names, in pipeline order.
const (
	StepMarkAMP         = "mark-amp"
	StepCharset         = "charset"
	StepRuntimeScript   = "runtime-script"
	StepCanonical       = "canonical"
	StepViewport        = "viewport"
	StepBoilerplate     = "boilerplate"
	StepStripScripts    = "strip-scripts"
	StepStylesheetDefer = "stylesheet-defer"
	StepCleanAttributes = "clean-attributes"
	StepImages          = "amp-img"
	StepForms           = "amp-form"
)

// Mode selects which steps a pipeline runs.
type Mode string

const (
	// ModeFull runs every step.
	ModeFull Mode = "full"
	// ModeMinimal skips script stripping, stylesheet and attribute
	// cleanup and form conversion.
	ModeMinimal Mode = "minimal"
)

// Env is the state a step works on. Steps communicate through Doc and
// the set of nodes the pipeline itself inserted.
type Env struct {
	Doc        *document.Document
	RequestURL string
	Images     core.ImageResolver
	Logger     *slog.Logger

	injected []*html.Node
}

// inject appends n to parent and records it as pipeline-owned.
func (e *Env) inject(parent, n *html.Node) {
	parent.AppendChild(n)
	e.injected = append(e.injected, n)
}

// Injected reports whether n was inserted by a step of this run.
func (e *Env) Injected(n *html.Node) bool {
	return slices.Contains(e.injected, n)
}

// Step is one mutation of the document.
type Step struct {
	Name  string
	Apply func(ctx context.Context, env *Env) error
	// Minimal marks steps that also run in ModeMinimal.
	Minimal bool
}

// Steps returns the steps for mode in execution order.
func Steps(mode Mode) ([]Step, error) {
	all := []Step{
		{Name: StepMarkAMP, Apply: markAMP, Minimal: true},
		{Name: StepCharset, Apply: ensureCharset, Minimal: true},
		{Name: StepRuntimeScript, Apply: injectRuntimeScript, Minimal: true},
		{Name: StepCanonical, Apply: setCanonical, Minimal: true},
		{Name: StepViewport, Apply: ensureViewport, Minimal: true},
		{Name: StepBoilerplate, Apply: injectBoilerplate, Minimal: true},
		{Name: StepStripScripts, Apply: stripScripts},
		{Name: StepStylesheetDefer, Apply: stripStylesheetDefer},
		{Name: StepCleanAttributes, Apply: cleanAttributes},
		{Name: StepImages, Apply: replaceImages, Minimal: true},
		{Name: StepForms, Apply: convertForms},
	}

	switch mode {
	case ModeFull, "":
		return all, nil
	case ModeMinimal:
		var steps []Step
		for _, s := range all {
			if s.Minimal {
				steps = append(steps, s)
			}
		}
		return steps, nil
	default:
		return nil, ErrUnknownMode
	}
}

// StepNames lists every known step name in execution order.
func StepNames() []string {
	steps, _ := Steps(ModeFull)
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}
