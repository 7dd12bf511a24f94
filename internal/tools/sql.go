package tools

import (
	"context"

	"github.com/rahul/exoscope/internal/governance"
	"github.com/rahul/exoscope/internal/plan"
	"github.com/rahul/exoscope/internal/store"
)

// QueryRunner is the query-execution capability. *store.DB satisfies it.
type QueryRunner interface {
	Query(ctx context.Context, sql string) (store.ResultSet, error)
}

// SQLTool validates a query with the SQL guard and only then hands it to the runner.
type SQLTool struct {
	guard  *governance.SQLGuard
	runner QueryRunner
}

func NewSQLTool(guard *governance.SQLGuard, runner QueryRunner) *SQLTool {
	return &SQLTool{guard: guard, runner: runner}
}

func (t *SQLTool) Execute(ctx context.Context, query string) Result {
	clean, err := t.guard.Validate(query)
	if err != nil {
		return failure(plan.ToolExecuteSQL, ErrorValidation, err)
	}
	if t.runner == nil {
		return failuref(plan.ToolExecuteSQL, ErrorUnavailable, "database is not configured")
	}

	rs, err := t.runner.Query(ctx, clean)
	if err != nil {
		return failuref(plan.ToolExecuteSQL, ErrorExecution, "query failed: %w", err)
	}
	return Result{
		Tool:    plan.ToolExecuteSQL,
		Columns: rs.Columns,
		Rows:    rs.Rows,
	}
}
