package dbmcp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// resolvedStatement is a statement ready for execution: SQL text with
// declared placeholders, the bound parameter mapping, and the target
// database handle. Derived per invocation, never persisted.
type resolvedStatement struct {
	database     *Database
	sql          string
	placeholders []string
	params       map[string]any
}

// executeStatement binds parameters through the target dialect and runs the
// statement with a per-statement deadline. The connection slot is released on
// every exit path. Rows are read in a single pass and materialized once.
func (s *Server) executeStatement(ctx context.Context, stmt resolvedStatement) (*Result, error) {
	if err := checkBinding(stmt.placeholders, stmt.params); err != nil {
		return nil, err
	}
	boundSQL, args := stmt.database.dialect.Bind(stmt.sql, stmt.placeholders, stmt.params)

	release, err := stmt.database.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	deadline, rule := stmt.database.timeouts.Resolve(stmt.sql)
	queryCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if rule != "" {
		s.logger.Debug().
			Str("database", stmt.database.name).
			Str("timeout_rule", rule).
			Dur("timeout", deadline).
			Msg("timeout rule matched")
	}

	start := time.Now()
	rows, err := stmt.database.db.QueryContext(queryCtx, boundSQL, args...)
	if err != nil {
		return nil, classifyExecError(ctx, queryCtx, err)
	}
	result, err := collectRows(rows)
	if err != nil {
		return nil, classifyExecError(ctx, queryCtx, err)
	}
	result.Duration = time.Since(start)
	return result, nil
}

// checkBinding validates that placeholder names and supplied parameter names
// match 1:1. Unresolved or extra parameters are a validation failure, never
// silently dropped or defaulted.
func checkBinding(placeholders []string, params map[string]any) error {
	declared := make(map[string]bool, len(placeholders))
	var missing []string
	for _, name := range placeholders {
		declared[name] = true
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	var extra []string
	for name := range params {
		if !declared[name] {
			extra = append(extra, name)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing parameters: %s", strings.Join(missing, ", ")))
	}
	if len(extra) > 0 {
		parts = append(parts, fmt.Sprintf("unexpected parameters: %s", strings.Join(extra, ", ")))
	}
	return failf(KindBindingError, "%s", strings.Join(parts, "; "))
}

// collectRows reads all rows and returns ordered columns plus ordered rows of
// canonicalized values. Column order is the driver's, never re-sorted.
func collectRows(rows *sql.Rows) (*Result, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	resultRows := make([][]any, 0)
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make([]any, len(columns))
		for i, v := range values {
			row[i] = convertValue(v)
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Result{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// classifyExecError maps a driver-call error onto the failure taxonomy.
// A fired statement deadline is Timeout; caller cancellation is Cancelled;
// everything else is DriverError with the driver message preserved. SQL text
// is never included in the failure.
func classifyExecError(ctx, queryCtx context.Context, err error) error {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if ctx.Err() == context.Canceled {
		return failf(KindCancelled, "execution cancelled by caller")
	}
	if queryCtx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
		return failf(KindTimeout, "statement exceeded its execution deadline")
	}
	return failf(KindDriverError, "%s", err.Error())
}

// Execution is a handle for an asynchronous invocation. The point of
// suspension is exactly the driver call; Cancel aborts the in-flight driver
// call and the deferred release returns the connection to the pool.
type Execution struct {
	done    chan struct{}
	cancel  context.CancelFunc
	payload *Payload
	err     error
}

// Done is closed when the execution completes, fails, or is cancelled.
func (e *Execution) Done() <-chan struct{} { return e.done }

// Wait blocks until the execution completes or ctx is done. Waiting is
// side-effect free; the execution keeps running if Wait's ctx expires first.
func (e *Execution) Wait(ctx context.Context) (*Payload, error) {
	select {
	case <-e.done:
		return e.payload, e.err
	case <-ctx.Done():
		return nil, failf(KindCancelled, "wait cancelled before execution completed")
	}
}

// Cancel aborts the in-flight execution. The outcome becomes Cancelled
// unless the execution had already completed.
func (e *Execution) Cancel() { e.cancel() }

func (e *Execution) finish(payload *Payload, err error) {
	e.payload = payload
	e.err = err
	close(e.done)
}
