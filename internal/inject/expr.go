package inject

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// ExprPolicy rejects ids for which a CEL expression evaluates to true.
// The expression sees:
//
//	id         int     the delivered event id
//	total      int     the configured message count
//	fail_rate  double  the configured failure rate
//	threshold  int     floor(total * fail_rate)
//
// For example "id % 4 == 0" rejects every fourth id, and
// "id <= threshold" reproduces ThresholdPolicy.
type ExprPolicy struct {
	prog      cel.Program
	total     int64
	failRate  float64
	threshold int64
}

// NewExprPolicy compiles expr. An expression that is not boolean is an error.
func NewExprPolicy(expr string, total int, failRate float64) (*ExprPolicy, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty reject expression")
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.IntType),
		cel.Variable("total", cel.IntType),
		cel.Variable("fail_rate", cel.DoubleType),
		cel.Variable("threshold", cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile reject expression: %w", iss.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("reject expression must be boolean, got %s", ast.OutputType())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	return &ExprPolicy{
		prog:      prog,
		total:     int64(total),
		failRate:  failRate,
		threshold: int64(Threshold(total, failRate)),
	}, nil
}

// ShouldReject evaluates the expression. Evaluation errors accept the event.
func (p *ExprPolicy) ShouldReject(id int) bool {
	out, _, err := p.prog.Eval(map[string]any{
		"id":        int64(id),
		"total":     p.total,
		"fail_rate": p.failRate,
		"threshold": p.threshold,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// NewPolicy returns an ExprPolicy when expr is set, otherwise a ThresholdPolicy.
func NewPolicy(expr string, total int, failRate float64) (Policy, error) {
	if strings.TrimSpace(expr) == "" {
		return ThresholdPolicy{Total: total, FailRate: failRate}, nil
	}
	return NewExprPolicy(expr, total, failRate)
}
