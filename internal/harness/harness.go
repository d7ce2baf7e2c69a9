package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"

	"github.com/roach88/stockpile/internal/config"
	"github.com/roach88/stockpile/internal/inventory"
	"github.com/roach88/stockpile/internal/model"
	"github.com/roach88/stockpile/internal/store"
	"github.com/roach88/stockpile/internal/testutil"
)

// Harness executes one scenario against one engine.
type Harness struct {
	engine *inventory.Engine
	logger *zap.Logger
}

// Option configures Run.
type Option func(*runOptions)

type runOptions struct {
	logger *zap.Logger
}

// WithLogger routes engine and harness logs to l. Logs are discarded by default.
func WithLogger(l *zap.Logger) Option {
	return func(o *runOptions) { o.logger = l }
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory store with a FakeClock, so
// reruns produce identical state.
//
// Execution flow:
// 1. Open a fresh in-memory engine
// 2. Execute setup steps (each must succeed)
// 3. Execute steps, checking expect clauses
// 4. Evaluate assertions
// 5. Capture final records and history for golden comparison
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := runOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	ctx := context.Background()

	cfg := config.Default()
	cfg.Store.Path = store.MemoryPath
	eng, err := inventory.Open(ctx, cfg, o.logger, inventory.WithClock(testutil.NewFakeClock()))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory engine: %w", err)
	}
	defer eng.Close()

	h := &Harness{engine: eng, logger: o.logger.Named("harness")}

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	actx := &AssertionContext{Engine: eng, Ctx: ctx}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	if err := h.capture(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to capture final state: %w", err)
	}
	return result, nil
}

// executeSetup runs all setup steps. A setup step that does not succeed
// aborts the scenario.
func (h *Harness) executeSetup(ctx context.Context, setup []Step, result *Result) error {
	for i, step := range setup {
		out, err := execute(ctx, h.engine, step)
		if err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Op, err)
		}
		if out.Case != CaseOK {
			return fmt.Errorf("setup step %d (%s): got case %s", i, step.Op, out.Case)
		}
		result.AddStep("setup", step, out)
		h.logger.Debug("setup step completed", zap.Int("step", i), zap.String("op", step.Op))
	}
	return nil
}

// executeSteps runs the flow and validates expect clauses against what
// the engine actually returned.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		out, err := execute(ctx, h.engine, step)
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
		result.AddStep("step", step, out)

		if step.Expect != nil {
			for _, msg := range checkExpect(i, step, out) {
				result.AddError(msg)
			}
		}

		h.logger.Debug("step completed",
			zap.Int("step", i),
			zap.String("op", step.Op),
			zap.String("case", out.Case),
		)
	}
	return nil
}

func checkExpect(index int, step Step, out Outcome) []string {
	var errs []string
	if out.Case != step.Expect.Case {
		errs = append(errs, fmt.Sprintf("steps[%d] %s: expected case %s, got %s",
			index, step.Op, step.Expect.Case, out.Case))
	}

	keys := make([]string, 0, len(step.Expect.Result))
	for k := range step.Expect.Result {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		actual, present := out.Result[k]
		if !present {
			errs = append(errs, fmt.Sprintf("steps[%d] %s: result has no field %q", index, step.Op, k))
			continue
		}
		if !valuesEqual(actual, step.Expect.Result[k]) {
			errs = append(errs, fmt.Sprintf("steps[%d] %s: result %q = %v, expected %v",
				index, step.Op, k, actual, step.Expect.Result[k]))
		}
	}
	return errs
}

// capture records the final store in canonical-ready form: records by
// name, then every audit entry in insertion order, without timestamps.
func (h *Harness) capture(ctx context.Context, result *Result) error {
	recs, err := h.engine.Records().List(ctx)
	if err != nil {
		return err
	}
	result.Records = make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		result.Records = append(result.Records, map[string]any{
			"name":       r.Name,
			"quantity":   r.Quantity,
			"group":      optional(r.Group),
			"attributes": r.Attributes,
		})
	}

	names, err := h.engine.Audit().Names(ctx)
	if err != nil {
		return err
	}
	var entries []model.HistoryEntry
	for _, name := range names {
		hist, err := h.engine.Audit().HistoryFor(ctx, name)
		if err != nil {
			return err
		}
		entries = append(entries, hist...)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	result.History = make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		var qty any
		if e.Quantity != nil {
			qty = *e.Quantity
		}
		result.History = append(result.History, map[string]any{
			"action":   string(e.Action),
			"name":     e.Name,
			"quantity": qty,
			"group":    optional(e.Group),
		})
	}
	return nil
}

// valuesEqual compares a result or row value with a YAML-decoded expected
// value. Both sides are converted to model.Value first, so int and int64
// compare equal.
func valuesEqual(actual, expected any) bool {
	av, err := model.FromAny(actual)
	if err != nil {
		return false
	}
	ev, err := model.FromAny(expected)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(normalizeValue(av), normalizeValue(ev))
}

// normalizeValue gives nil collections one representation.
func normalizeValue(v model.Value) model.Value {
	switch val := v.(type) {
	case model.Object:
		out := make(model.Object, len(val))
		for k, e := range val {
			out[k] = normalizeValue(e)
		}
		return out
	case model.List:
		out := make(model.List, len(val))
		for i, e := range val {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}
