package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/conneroisu/storefront/internal/errors"
)

func stage(name string, requires, provides []Field, run StageFunc) Stage {
	return Stage{Name: name, Requires: requires, Provides: provides, Run: run}
}

func provide(fields ...Field) StageFunc {
	return func(_ context.Context, d Data) (Data, error) {
		var err error
		for _, f := range fields {
			if d, err = d.With(f, string(f)); err != nil {
				return d, err
			}
		}
		return d, nil
	}
}

func TestDataIsWriteOnce(t *testing.T) {
	d := NewData(Request{Domain: "mitienda.com"})
	next, err := d.With(FieldContent, "<p>")
	require.NoError(t, err)

	assert.False(t, d.Has(FieldContent), "With never mutates the receiver")
	assert.Equal(t, "<p>", next.Content())
	assert.Equal(t, []Field{FieldContent, FieldRequest}, next.Fields())

	_, err = next.With(FieldContent, "<div>")
	assert.ErrorIs(t, err, ErrFieldSet)
	_, err = next.With(FieldHTML, nil)
	assert.Error(t, err)

	assert.Nil(t, next.Store())
	assert.Empty(t, next.HTML())
}

func TestNewPipelineChecksContracts(t *testing.T) {
	noop := provide()
	tests := []struct {
		name   string
		stages []Stage
	}{
		{"unmet requirement", []Stage{
			stage("a", []Field{FieldStore}, nil, noop),
		}},
		{"requirement produced later", []Stage{
			stage("a", []Field{FieldHTML}, []Field{FieldStore}, noop),
			stage("b", nil, []Field{FieldHTML}, noop),
		}},
		{"field produced twice", []Stage{
			stage("a", nil, []Field{FieldStore}, noop),
			stage("b", nil, []Field{FieldStore}, noop),
		}},
		{"input produced again", []Stage{
			stage("a", nil, []Field{FieldRequest}, noop),
		}},
		{"duplicate name", []Stage{
			stage("a", nil, []Field{FieldStore}, noop),
			stage("a", nil, []Field{FieldHTML}, noop),
		}},
		{"missing func", []Stage{
			stage("a", nil, nil, nil),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPipeline([]Field{FieldRequest}, tt.stages...)
			assert.ErrorIs(t, err, ErrContract)
		})
	}

	p, err := NewPipeline([]Field{FieldRequest},
		stage("a", []Field{FieldRequest}, []Field{FieldStore}, noop),
		stage("b", []Field{FieldStore, FieldRequest}, []Field{FieldHTML}, noop),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, p.Stages())
}

func TestRunChecksStageOutputs(t *testing.T) {
	ctx := context.Background()
	in := NewData(Request{})

	t.Run("missing provide", func(t *testing.T) {
		p, err := NewPipeline([]Field{FieldRequest}, stage("a", nil, []Field{FieldContent}, provide()))
		require.NoError(t, err)
		_, err = p.Run(ctx, in, nil)
		assert.ErrorIs(t, err, ErrContract)
	})

	t.Run("undeclared write", func(t *testing.T) {
		p, err := NewPipeline([]Field{FieldRequest}, stage("a", nil, nil, provide(FieldHTML)))
		require.NoError(t, err)
		_, err = p.Run(ctx, in, nil)
		assert.ErrorIs(t, err, ErrContract)
	})

	t.Run("dropped field", func(t *testing.T) {
		drop := func(context.Context, Data) (Data, error) { return Data{}, nil }
		p, err := NewPipeline([]Field{FieldRequest}, stage("a", nil, nil, drop))
		require.NoError(t, err)
		_, err = p.Run(ctx, in, nil)
		assert.ErrorIs(t, err, ErrContract)
	})

	t.Run("missing input", func(t *testing.T) {
		p, err := NewPipeline([]Field{FieldRequest})
		require.NoError(t, err)
		_, err = p.Run(ctx, Data{}, nil)
		assert.ErrorIs(t, err, ErrContract)
	})
}

func TestRunAbortsOnFailure(t *testing.T) {
	var ran []string
	track := func(name string, run StageFunc) StageFunc {
		return func(ctx context.Context, d Data) (Data, error) {
			ran = append(ran, name)
			return run(ctx, d)
		}
	}
	boom := func(context.Context, Data) (Data, error) { return Data{}, errors.New("boom") }

	p, err := NewPipeline([]Field{FieldRequest},
		stage("a", nil, []Field{FieldStore}, track("a", provide(FieldStore))),
		stage("b", nil, []Field{FieldContent}, track("b", boom)),
		stage("c", nil, []Field{FieldHTML}, track("c", provide(FieldHTML))),
	)
	require.NoError(t, err)

	out, err := p.Run(context.Background(), NewData(Request{}), nil)
	assert.True(t, errors.Is(err, rerrors.ErrRender), "plain errors become render errors")
	assert.Equal(t, []string{"a", "b"}, ran)
	assert.False(t, out.Has(FieldHTML))
}

func TestRunPassesTypedErrors(t *testing.T) {
	fail := func(context.Context, Data) (Data, error) {
		return Data{}, rerrors.NewTemplateNotFoundError("templates/index.json", nil)
	}
	p, err := NewPipeline([]Field{FieldRequest}, stage("a", nil, nil, fail))
	require.NoError(t, err)
	_, err = p.Run(context.Background(), NewData(Request{}), nil)
	assert.True(t, errors.Is(err, rerrors.ErrTemplateNotFound))
}

func TestRunHookStopsEarly(t *testing.T) {
	p, err := NewPipeline([]Field{FieldRequest},
		stage("a", nil, []Field{FieldStore}, provide(FieldStore)),
		stage("b", nil, []Field{FieldHTML}, provide(FieldHTML)),
	)
	require.NoError(t, err)

	out, err := p.Run(context.Background(), NewData(Request{}), func(_ context.Context, stage string, _ Data) bool {
		return stage == "a"
	})
	require.NoError(t, err)
	assert.True(t, out.Has(FieldStore))
	assert.False(t, out.Has(FieldHTML))
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	p, err := NewPipeline([]Field{FieldRequest}, stage("a", nil, []Field{FieldStore}, provide(FieldStore)))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Run(ctx, NewData(Request{}), nil)
	assert.True(t, errors.Is(err, rerrors.ErrUpstreamTimeout))
}
