// Package sqlexec hands statements compiled by sqlbuilder to a database/sql
// connection pool.  Rows come back as sqltypes.Value so callers can use
// sqltypes.ConvertAssignRow to scan them.
package sqlexec

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/dropbox/sqlfluent/database/sqltypes"
	"github.com/dropbox/sqlfluent/errors"
)

// Result holds every row returned by a query.
type Result struct {
	Columns []string
	Rows    [][]sqltypes.Value
}

// Scan copies row i into dest.  NULL columns leave their destination
// untouched.
func (r *Result) Scan(i int, dest ...interface{}) error {
	if i < 0 || i >= len(r.Rows) {
		return errors.Newf("Row %d out of range [0, %d)", i, len(r.Rows))
	}
	return sqltypes.ConvertAssignRow(r.Rows[i], dest...)
}

// Executor runs compiled statement text.  It is safe for concurrent use.
type Executor struct {
	db     *sql.DB
	logger *slog.Logger
}

// New wraps db.  A nil logger means slog.Default().
func New(db *sql.DB, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		db:     db,
		logger: logger,
	}
}

func (e *Executor) DB() *sql.DB {
	return e.db
}

func (e *Executor) Close() error {
	return e.db.Close()
}

// Query runs a SELECT and reads every row.
func (e *Executor) Query(ctx context.Context, text string) (*Result, error) {
	start := time.Now()
	rows, err := e.db.QueryContext(ctx, text)
	if err != nil {
		e.logger.ErrorContext(ctx, "query failed", "sql", text, "error", err)
		return nil, errors.Wrapf(err, "Failed to run %q", text)
	}
	defer rows.Close()

	result, err := readRows(rows)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to read rows of %q", text)
	}
	e.logger.DebugContext(
		ctx,
		"query",
		"sql", text,
		"rows", len(result.Rows),
		"duration", time.Since(start))
	return result, nil
}

// Exec runs a statement and returns the number of affected rows.
func (e *Executor) Exec(ctx context.Context, text string) (int64, error) {
	start := time.Now()
	res, err := e.db.ExecContext(ctx, text)
	if err != nil {
		e.logger.ErrorContext(ctx, "exec failed", "sql", text, "error", err)
		return 0, errors.Wrapf(err, "Failed to run %q", text)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "Driver does not report affected rows")
	}
	e.logger.DebugContext(
		ctx,
		"exec",
		"sql", text,
		"affected", affected,
		"duration", time.Since(start))
	return affected, nil
}

// ExecBatch runs stmts (e.g. the output of UpdateBatch) in one transaction
// and returns the total number of affected rows.  The transaction is rolled
// back on the first failure.
func (e *Executor) ExecBatch(ctx context.Context, stmts []string) (total int64, err error) {
	if len(stmts) == 0 {
		return 0, nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "Failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				e.logger.WarnContext(ctx, "rollback failed", "error", rbErr)
			}
		}
	}()

	for i, text := range stmts {
		res, execErr := tx.ExecContext(ctx, text)
		if execErr != nil {
			e.logger.ErrorContext(ctx, "batch exec failed",
				"statement", i, "sql", text, "error", execErr)
			return 0, errors.Wrapf(execErr, "Statement %d of %d failed", i+1, len(stmts))
		}
		affected, affErr := res.RowsAffected()
		if affErr != nil {
			return 0, errors.Wrap(affErr, "Driver does not report affected rows")
		}
		e.logger.DebugContext(ctx, "batch exec", "statement", i, "affected", affected)
		total += affected
	}

	if err = tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "Failed to commit transaction")
	}
	return total, nil
}

func readRows(rows *sql.Rows) (*Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &Result{Columns: columns}
	raw := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]sqltypes.Value, len(columns))
		for i, v := range raw {
			if row[i], err = toValue(v); err != nil {
				return nil, errors.Wrapf(err, "Column %s", columns[i])
			}
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}

// Drivers hand back text columns as []byte; valid utf8 is kept as a utf8
// string so that encoding it again yields a quoted literal.
func toValue(v interface{}) (sqltypes.Value, error) {
	if b, ok := v.([]byte); ok {
		c := make([]byte, len(b))
		copy(c, b)
		if utf8.Valid(c) {
			return sqltypes.MakeUtf8String(string(c)), nil
		}
		return sqltypes.MakeString(c), nil
	}
	return sqltypes.BuildValue(v)
}
