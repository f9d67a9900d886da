// Package costmodel computes the simulated execution time of a task batch.
package costmodel

import (
	"fmt"
	"math"

	"github.com/dop251/goja"
	"github.com/me/framesched/internal/config"
	"github.com/me/framesched/pkg/model"
)

// Model returns the execution time, in ticks, of a batch of batchSize tasks
// at the given output size. Implementations must be pure: equal arguments
// always yield equal results.
type Model interface {
	ExecTime(width, height, batchSize int) (int, error)
}

// Linear charges a per-pixel cost plus a fixed overhead per extra task in the
// batch:
//
//	floor(PerPixel*width*height + (batchSize-1)*PerExtraTask) + 1
type Linear struct {
	PerPixel     float64
	PerExtraTask float64
}

// ExecTime implements Model.
func (l Linear) ExecTime(width, height, batchSize int) (int, error) {
	return floorPlusOne(l.raw(width, height, batchSize)), nil
}

func (l Linear) raw(width, height, batchSize int) float64 {
	return l.PerPixel*float64(width)*float64(height) + float64(batchSize-1)*l.PerExtraTask
}

func floorPlusOne(v float64) int {
	return int(math.Floor(v)) + 1
}

type sizeKey struct {
	width, height, batchSize int
}

// ExprModel evaluates a JavaScript expression over width, height, batchSize,
// perPixel and perExtraTask. The result is floored and incremented like the
// linear model. Results are memoized per batch shape, so a script that is not
// itself deterministic still yields one execution time per shape.
type ExprModel struct {
	expr  string
	prog  *goja.Program
	vm    *goja.Runtime
	base  Linear
	cache map[sizeKey]int
}

// NewExprModel compiles expr. base supplies the perPixel and perExtraTask
// constants visible to the script.
func NewExprModel(expr string, base Linear) (*ExprModel, error) {
	prog, err := goja.Compile("cost.expr", expr, true)
	if err != nil {
		return nil, &model.ConfigError{Field: "cost.expr", Message: err.Error()}
	}
	return &ExprModel{
		expr:  expr,
		prog:  prog,
		vm:    goja.New(),
		base:  base,
		cache: make(map[sizeKey]int),
	}, nil
}

// ExecTime implements Model.
func (m *ExprModel) ExecTime(width, height, batchSize int) (int, error) {
	key := sizeKey{width, height, batchSize}
	if t, ok := m.cache[key]; ok {
		return t, nil
	}

	vars := map[string]any{
		"width":        width,
		"height":       height,
		"batchSize":    batchSize,
		"perPixel":     m.base.PerPixel,
		"perExtraTask": m.base.PerExtraTask,
	}
	for name, v := range vars {
		if err := m.vm.Set(name, v); err != nil {
			return 0, fmt.Errorf("set %s: %w", name, err)
		}
	}

	val, err := m.vm.RunProgram(m.prog)
	if err != nil {
		return 0, fmt.Errorf("evaluate cost expression %q: %w", m.expr, err)
	}
	if goja.IsUndefined(val) || goja.IsNull(val) {
		return 0, fmt.Errorf("cost expression %q returned no value", m.expr)
	}
	f := val.ToFloat()
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, fmt.Errorf("cost expression %q returned %v for %dx%d batch of %d", m.expr, val, width, height, batchSize)
	}

	t := floorPlusOne(f)
	m.cache[key] = t
	return t, nil
}

// FromConfig returns the linear model, or an ExprModel when an expression is
// configured.
func FromConfig(cfg config.CostConfig) (Model, error) {
	base := Linear{PerPixel: cfg.PerPixel, PerExtraTask: cfg.PerExtraTask}
	if cfg.Expr == "" {
		return base, nil
	}
	return NewExprModel(cfg.Expr, base)
}
