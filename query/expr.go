package query

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/zero-day-ai/audityzer/finding"
	"github.com/zero-day-ai/audityzer/scan"
)

// Expression is a compiled CEL predicate over scan jobs.
//
// The following variables are available:
//   - address (string): the target address
//   - status (string): the job status, e.g. "Completed"
//   - submitted_at (timestamp): the submission time
//   - severities (list of string): distinct severities in the result
//   - vulnerability_count (int): number of vulnerabilities in the result
//   - critical_count (int): number of Critical vulnerabilities in the result
//
// Example:
//
//	expr, err := query.CompileExpression(`status == "Completed" && critical_count > 0`)
type Expression struct {
	source  string
	program cel.Program
}

var exprEnv = mustEnv()

func mustEnv() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("address", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("submitted_at", cel.TimestampType),
		cel.Variable("severities", cel.ListType(cel.StringType)),
		cel.Variable("vulnerability_count", cel.IntType),
		cel.Variable("critical_count", cel.IntType),
	)
	if err != nil {
		panic(fmt.Sprintf("query: build CEL environment: %v", err))
	}
	return env
}

// CompileExpression parses and type-checks a CEL predicate. The expression
// must evaluate to a bool.
func CompileExpression(source string) (*Expression, error) {
	ast, issues := exprEnv.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile expression: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", ast.OutputType())
	}
	prg, err := exprEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build program: %w", err)
	}
	return &Expression{source: source, program: prg}, nil
}

// String returns the expression source.
func (e *Expression) String() string {
	return e.source
}

// Match evaluates the predicate for a job. Evaluation errors count as no match.
func (e *Expression) Match(j scan.Job) bool {
	severities := make([]string, 0, 4)
	for _, sev := range j.Result.Severities() {
		severities = append(severities, sev.String())
	}
	var count, critical int
	if j.Result != nil {
		count = len(j.Result.Vulnerabilities)
		critical = len(j.Result.BySeverity(finding.SeverityCritical))
	}

	out, _, err := e.program.Eval(map[string]any{
		"address":             j.TargetAddress,
		"status":              j.Status.String(),
		"submitted_at":        j.SubmittedAt,
		"severities":          severities,
		"vulnerability_count": count,
		"critical_count":      critical,
	})
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}
