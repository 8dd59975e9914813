package pipeline

import (
	"context"
	"errors"
	"fmt"

	rerrors "github.com/conneroisu/storefront/internal/errors"
)

// ErrContract is returned when stages do not line up: a stage needs a
// field nothing produces earlier, or two stages produce the same field.
var ErrContract = errors.New("pipeline contract violation")

// StageFunc transforms the record.
type StageFunc func(ctx context.Context, d Data) (Data, error)

// Stage is one step of the render. Requires lists the fields it reads;
// Provides the fields it must add.
type Stage struct {
	Name     string
	Requires []Field
	Provides []Field
	Run      StageFunc
}

// Hook runs after each successful stage. Returning stop ends the run
// early with the current record.
type Hook func(ctx context.Context, stage string, d Data) (stop bool)

// Pipeline is a fixed linear sequence of stages whose field contracts were
// checked at construction.
type Pipeline struct {
	inputs []Field
	stages []Stage
}

// NewPipeline checks that every stage's requirements are met by the inputs
// or an earlier stage, and that no field is produced twice.
func NewPipeline(inputs []Field, stages ...Stage) (*Pipeline, error) {
	available := make(map[Field]string, len(inputs))
	for _, f := range inputs {
		available[f] = "input"
	}
	names := make(map[string]bool, len(stages))

	for _, s := range stages {
		if s.Name == "" || s.Run == nil {
			return nil, fmt.Errorf("%w: stage %q is incomplete", ErrContract, s.Name)
		}
		if names[s.Name] {
			return nil, fmt.Errorf("%w: duplicate stage %q", ErrContract, s.Name)
		}
		names[s.Name] = true

		for _, f := range s.Requires {
			if _, ok := available[f]; !ok {
				return nil, fmt.Errorf("%w: stage %q requires %q which no earlier stage provides", ErrContract, s.Name, f)
			}
		}
		for _, f := range s.Provides {
			if by, ok := available[f]; ok {
				return nil, fmt.Errorf("%w: stage %q provides %q already provided by %s", ErrContract, s.Name, f, by)
			}
			available[f] = s.Name
		}
	}
	return &Pipeline{inputs: inputs, stages: stages}, nil
}

// Stages returns the stage names in order.
func (p *Pipeline) Stages() []string {
	out := make([]string, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.Name
	}
	return out
}

// Run executes the stages in order. The first failure aborts the run.
func (p *Pipeline) Run(ctx context.Context, d Data, hook Hook) (Data, error) {
	for _, f := range p.inputs {
		if !d.Has(f) {
			return d, fmt.Errorf("%w: input %q is missing", ErrContract, f)
		}
	}

	for _, s := range p.stages {
		if err := ctx.Err(); err != nil {
			return d, rerrors.NewUpstreamTimeoutError(s.Name, err)
		}

		out, err := s.Run(ctx, d)
		if err != nil {
			var re *rerrors.RenderError
			if errors.As(err, &re) {
				return d, err
			}
			return d, rerrors.NewRenderError("stage "+s.Name+" failed", err)
		}
		if err := checkOutput(s, d, out); err != nil {
			return d, err
		}
		d = out

		if hook != nil && hook(ctx, s.Name, d) {
			return d, nil
		}
	}
	return d, nil
}

func checkOutput(s Stage, before, after Data) error {
	for _, f := range before.Fields() {
		if !after.Has(f) {
			return fmt.Errorf("%w: stage %q dropped %q", ErrContract, s.Name, f)
		}
	}
	for _, f := range s.Provides {
		if !after.Has(f) {
			return fmt.Errorf("%w: stage %q did not provide %q", ErrContract, s.Name, f)
		}
	}
	if len(after.fields) != len(before.fields)+len(s.Provides) {
		return fmt.Errorf("%w: stage %q wrote undeclared fields", ErrContract, s.Name)
	}
	return nil
}
