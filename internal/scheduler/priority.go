package scheduler

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/oltfleet/pollerd/internal/domain"
)

// priorityOverride lets an operator annotate a job's queue_hint with an
// expr-lang expression evaluated against the job's own fields to break
// ties within the same (next_run_at, operation_type) bucket before
// falling back to the job ID. This is optional: a queue_hint that is not
// a valid expression, or that evaluates to a non-numeric result, is
// treated as "no override" rather than an error, since tie-breaking must never
// fail a tick.
type priorityOverride struct {
	cache map[string]*vm.Program
}

func newPriorityOverride() *priorityOverride {
	return &priorityOverride{cache: make(map[string]*vm.Program)}
}

// score returns the evaluated priority for a job, or 0 if queue_hint is
// empty or does not compile/evaluate to a number. Higher scores sort
// first.
func (p *priorityOverride) score(job domain.Job) float64 {
	if job.QueueHint == "" {
		return 0
	}
	program, ok := p.cache[job.QueueHint]
	if !ok {
		compiled, err := expr.Compile(job.QueueHint, expr.Env(jobEnv{}), expr.AllowUndefinedVariables())
		if err != nil {
			p.cache[job.QueueHint] = nil
			return 0
		}
		program = compiled
		p.cache[job.QueueHint] = program
	}
	if program == nil {
		return 0
	}
	env := jobEnv{
		OperationType:   string(job.OperationType),
		IntervalSeconds: job.IntervalSeconds,
		MaxRetries:      job.MaxRetries,
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return 0
	}
	switch v := out.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// jobEnv is the variable environment exposed to a queue_hint expression.
type jobEnv struct {
	OperationType   string
	IntervalSeconds int
	MaxRetries      int
}
