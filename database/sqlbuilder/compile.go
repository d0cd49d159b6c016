package sqlbuilder

import (
	"strconv"
	"strings"

	"github.com/dropbox/sqlfluent/container/linked_hashmap"
	"github.com/dropbox/sqlfluent/errors"
)

// Maximum number of rows covered by a single batch UPDATE statement.
const BatchChunkSize = 100

// beginTerminal reports whether a terminal call may proceed.
func (q *Query) beginTerminal() error {
	if q.err != nil {
		return q.err
	}
	if q.state == stateCompiled {
		return errors.Statef(
			"Query was already compiled; call Reset before compiling again")
	}
	return nil
}

func (q *Query) finish(sql string) (string, error) {
	q.lastQuery = sql
	q.state = stateCompiled
	return sql, nil
}

// Get adds tables to FROM (if any are given) and compiles a SELECT.  When
// the compile fails the added tables are removed again.
func (q *Query) Get(tables ...string) (string, error) {
	return q.withRollback(
		func() {
			if len(tables) > 0 {
				q.From(tables...)
			}
		},
		q.CompileSelect)
}

// GetWhere is From(table).Where(where) followed by CompileSelect.  Like Get,
// it leaves the query untouched on failure.
func (q *Query) GetWhere(table string, where Key) (string, error) {
	return q.withRollback(
		func() {
			q.From(table)
			if where != nil {
				q.Where(where)
			}
		},
		q.CompileSelect)
}

// withRollback runs build and then compile; if compile fails q is put back
// the way it was before build.
func (q *Query) withRollback(
	build func(),
	compile func() (string, error)) (string, error) {

	saved := q.Copy()
	build()
	sql, err := compile()
	if err != nil {
		*q = *saved
		return "", err
	}
	return sql, nil
}

// CompileSelect assembles a SELECT statement from the accumulated clauses:
//
//	SELECT [DISTINCT ]<fields|*> FROM <tables> [<joins>] [WHERE ...]
//	    [GROUP BY ...] [HAVING ...] [ORDER BY ...] [LIMIT n[ OFFSET m]]
func (q *Query) CompileSelect() (string, error) {
	if err := q.beginTerminal(); err != nil {
		return "", err
	}
	if len(q.from) == 0 {
		return "", errors.Statef("SELECT requires at least one table in FROM")
	}

	limit, err := q.limitClause(true)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if q.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(q.selects) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(q.selects, ", "))
	}
	q.writeSource(&b)
	q.writeGrouping(&b)
	if len(q.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(q.orderBy, ", "))
	}
	b.WriteString(limit)

	return q.finish(b.String())
}

// Count compiles SELECT COUNT(*) AS `numrows` over the accumulated FROM,
// joins, WHERE, GROUP BY and HAVING.  Select list, order and limit are
// ignored.
func (q *Query) Count(tables ...string) (string, error) {
	return q.withRollback(
		func() {
			if len(tables) > 0 {
				q.From(tables...)
			}
		},
		q.compileCount)
}

func (q *Query) compileCount() (string, error) {
	if err := q.beginTerminal(); err != nil {
		return "", err
	}
	if len(q.from) == 0 {
		return "", errors.Statef("COUNT requires at least one table in FROM")
	}

	var b strings.Builder
	b.WriteString("SELECT COUNT(*) AS ")
	b.WriteString(q.EscapeIdentifier("numrows"))
	q.writeSource(&b)
	q.writeGrouping(&b)

	return q.finish(b.String())
}

// Writes FROM, joins and WHERE.
func (q *Query) writeSource(b *strings.Builder) {
	b.WriteString(" FROM ")
	b.WriteString(strings.Join(q.from, ", "))
	if len(q.joins) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(q.joins, " "))
	}
	writeWhere(b, q.where)
}

func (q *Query) writeGrouping(b *strings.Builder) {
	if len(q.groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(q.groupBy, ", "))
	}
	if len(q.having) > 0 {
		b.WriteString(" HAVING ")
		b.WriteString(strings.Join(q.having, " "))
	}
}

func writeWhere(b *strings.Builder, where []string) {
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " "))
	}
}

func (q *Query) limitClause(offsetAllowed bool) (string, error) {
	if q.offset != nil && !offsetAllowed {
		return "", errors.Statef("OFFSET is only supported by SELECT")
	}
	if q.limit == nil {
		if q.offset != nil {
			return "", errors.Statef("OFFSET requires a LIMIT")
		}
		return "", nil
	}
	clause := " LIMIT " + strconv.FormatInt(*q.limit, 10)
	if q.offset != nil {
		clause += " OFFSET " + strconv.FormatInt(*q.offset, 10)
	}
	return clause, nil
}

// resolveTable returns the single escaped target table of an INSERT or
// UPDATE: table when given, otherwise the only FROM entry.
func (q *Query) resolveTable(table string, statement string) (string, error) {
	if table = strings.TrimSpace(table); table != "" {
		tables := splitList(table)
		if len(tables) != 1 {
			return "", errors.Validationf(
				"%s requires exactly one table, got %q", statement, table)
		}
		return q.protect(tables[0], true, true), nil
	}
	switch len(q.from) {
	case 0:
		return "", errors.Statef("No table specified for %s", statement)
	case 1:
		return q.from[0], nil
	}
	return "", errors.Statef(
		"%s requires exactly one table, FROM has %d", statement, len(q.from))
}

// Insert merges row into the SET assignments and compiles
//
//	INSERT [IGNORE ]INTO <table> (<columns>) VALUES (<values>)[ <suffix>]
func (q *Query) Insert(
	table string,
	row FieldMap,
	options ...InsertOption) (string, error) {

	if err := q.beginTerminal(); err != nil {
		return "", err
	}
	opts := &insertOptions{}
	for _, o := range options {
		o(opts)
	}

	target, err := q.resolveTable(table, "INSERT")
	if err != nil {
		return "", err
	}

	assignments := q.set.Copy()
	if err := q.applySet(assignments, row); err != nil {
		return "", err
	}
	if assignments.Len() == 0 {
		return "", errors.Statef("INSERT requires at least one value to set")
	}

	columns := make([]string, 0, assignments.Len())
	values := make([]string, 0, assignments.Len())
	assignments.Do(func(key string, val interface{}) {
		columns = append(columns, key)
		values = append(values, val.(string))
	})

	q.set = assignments
	return q.finish(insertPrefix(opts) + target +
		" (" + strings.Join(columns, ", ") + ")" +
		" VALUES (" + strings.Join(values, ", ") + ")" +
		insertSuffix(opts))
}

func insertPrefix(opts *insertOptions) string {
	if opts.ignore {
		return "INSERT IGNORE INTO "
	}
	return "INSERT INTO "
}

func insertSuffix(opts *insertOptions) string {
	if opts.suffix == "" {
		return ""
	}
	return " " + opts.suffix
}

// InsertBatch compiles one INSERT carrying every row.  All rows must have
// the same columns; values are emitted in the first row's column order.
func (q *Query) InsertBatch(
	table string,
	rows []FieldMap,
	options ...InsertOption) (string, error) {

	if err := q.beginTerminal(); err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", errors.Validationf("InsertBatch requires at least one row")
	}
	opts := &insertOptions{}
	for _, o := range options {
		o(opts)
	}

	target, err := q.resolveTable(table, "INSERT")
	if err != nil {
		return "", err
	}

	var columns []string
	tuples := make([]string, 0, len(rows))
	for i, row := range rows {
		assignments := linked_hashmap.NewLinkedHashmap(len(row))
		if err := q.applySet(assignments, row); err != nil {
			return "", errors.Wrapf(err, "Row %d", i)
		}
		if assignments.Len() == 0 {
			return "", errors.Validationf("Row %d has no columns", i)
		}

		if i == 0 {
			columns = assignments.Keys()
		} else if assignments.Len() != len(columns) {
			return "", errors.Validationf(
				"Row %d has %d columns, expected %d",
				i, assignments.Len(), len(columns))
		}

		values := make([]string, 0, len(columns))
		for _, col := range columns {
			val, ok := assignments.Get(col)
			if !ok {
				return "", errors.Validationf("Row %d is missing column %s", i, col)
			}
			values = append(values, val.(string))
		}
		tuples = append(tuples, "("+strings.Join(values, ", ")+")")
	}

	return q.finish(insertPrefix(opts) + target +
		" (" + strings.Join(columns, ", ") + ")" +
		" VALUES " + strings.Join(tuples, ", ") +
		insertSuffix(opts))
}

// Update merges row into the SET assignments, adds where (if non-nil) and
// compiles
//
//	UPDATE <table> SET <col> = <val>, ... [WHERE ...] [ORDER BY ...] [LIMIT n]
func (q *Query) Update(table string, row FieldMap, where Key) (string, error) {
	if err := q.beginTerminal(); err != nil {
		return "", err
	}

	target, err := q.resolveTable(table, "UPDATE")
	if err != nil {
		return "", err
	}

	assignments := q.set.Copy()
	if err := q.applySet(assignments, row); err != nil {
		return "", err
	}
	if assignments.Len() == 0 {
		return "", errors.Statef("UPDATE requires at least one value to set")
	}

	whereFragments, err := q.withWhere(where, "Update")
	if err != nil {
		return "", err
	}
	limit, err := q.limitClause(false)
	if err != nil {
		return "", err
	}

	sets := make([]string, 0, assignments.Len())
	assignments.Do(func(key string, val interface{}) {
		sets = append(sets, key+" = "+val.(string))
	})

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(target)
	b.WriteString(" SET ")
	b.WriteString(strings.Join(sets, ", "))
	writeWhere(&b, whereFragments)
	if len(q.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(q.orderBy, ", "))
	}
	b.WriteString(limit)

	q.set = assignments
	q.where = whereFragments
	return q.finish(b.String())
}

// withWhere returns the WHERE fragments with where appended, leaving the
// query untouched.
func (q *Query) withWhere(where Key, method string) ([]string, error) {
	fragments := copyStrings(q.where)
	if where == nil {
		return fragments, nil
	}
	extra, err := q.conditionFragments(len(fragments), where, joinerAnd, method)
	if err != nil {
		return nil, err
	}
	return append(fragments, extra...), nil
}

// UpdateBatch compiles one UPDATE per chunk of at most BatchChunkSize rows.
// Every row must carry the index column; each other column becomes
//
//	<col> = CASE WHEN <index> = <id> THEN <value> ... ELSE <col> END
//
// and each statement ends with WHERE [<where> AND ]<index> IN (<ids>).
func (q *Query) UpdateBatch(
	table string,
	rows []FieldMap,
	index string,
	where Key) ([]string, error) {

	if err := q.beginTerminal(); err != nil {
		return nil, err
	}
	index = strings.TrimSpace(index)
	if index == "" {
		return nil, errors.Validationf("UpdateBatch requires an index column")
	}
	if len(rows) == 0 {
		return nil, errors.Validationf("UpdateBatch requires at least one row")
	}

	target, err := q.resolveTable(table, "batch UPDATE")
	if err != nil {
		return nil, err
	}
	whereFragments, err := q.withWhere(where, "UpdateBatch")
	if err != nil {
		return nil, err
	}

	indexColumn := q.protect(index, false, true)

	// Escape every row up front so that a bad row fails the whole batch.
	type escapedRow struct {
		id     string
		values *linked_hashmap.LinkedHashmap
	}
	escaped := make([]escapedRow, 0, len(rows))
	for i, row := range rows {
		values := linked_hashmap.NewLinkedHashmap(len(row))
		if err := q.applySet(values, row); err != nil {
			return nil, errors.Wrapf(err, "Row %d", i)
		}
		id, ok := values.Get(indexColumn)
		if !ok {
			return nil, errors.Validationf(
				"Row %d is missing the index column %s", i, index)
		}
		if id.(string) == "NULL" {
			return nil, errors.Validationf("Row %d has a NULL index value", i)
		}
		values.Remove(indexColumn)
		escaped = append(escaped, escapedRow{id: id.(string), values: values})
	}

	var statements []string
	for start := 0; start < len(escaped); start += BatchChunkSize {
		end := start + BatchChunkSize
		if end > len(escaped) {
			end = len(escaped)
		}
		chunk := escaped[start:end]

		var columns []string
		seen := make(map[string]bool)
		ids := make([]string, 0, len(chunk))
		for _, row := range chunk {
			ids = append(ids, row.id)
			for _, col := range row.values.Keys() {
				if !seen[col] {
					seen[col] = true
					columns = append(columns, col)
				}
			}
		}
		if len(columns) == 0 {
			return nil, errors.Validationf(
				"Rows %d to %d have nothing to update besides %s",
				start, end-1, index)
		}

		sets := make([]string, 0, len(columns))
		for _, col := range columns {
			var b strings.Builder
			b.WriteString(col)
			b.WriteString(" = CASE")
			for _, row := range chunk {
				if val, ok := row.values.Get(col); ok {
					b.WriteString(" WHEN ")
					b.WriteString(indexColumn)
					b.WriteString(" = ")
					b.WriteString(row.id)
					b.WriteString(" THEN ")
					b.WriteString(val.(string))
				}
			}
			b.WriteString(" ELSE ")
			b.WriteString(col)
			b.WriteString(" END")
			sets = append(sets, b.String())
		}

		var b strings.Builder
		b.WriteString("UPDATE (")
		b.WriteString(target)
		b.WriteString(") SET ")
		b.WriteString(strings.Join(sets, ", "))
		b.WriteString(" WHERE ")
		if len(whereFragments) > 0 {
			b.WriteString(strings.Join(whereFragments, " "))
			b.WriteString(" AND ")
		}
		b.WriteString(indexColumn)
		b.WriteString(" IN (")
		b.WriteString(strings.Join(ids, ", "))
		b.WriteString(")")
		statements = append(statements, b.String())
	}

	q.where = whereFragments
	q.lastQuery = strings.Join(statements, "; ")
	q.state = stateCompiled
	return statements, nil
}

// Delete compiles DELETE FROM <tables> [WHERE ...] [LIMIT n].  table may be
// a comma separated list; when empty the FROM tables are used.
func (q *Query) Delete(table string, where Key) (string, error) {
	if err := q.beginTerminal(); err != nil {
		return "", err
	}

	var tables []string
	if items := splitList(table); len(items) > 0 {
		for _, item := range items {
			tables = append(tables, q.protect(item, true, true))
		}
	} else {
		tables = q.from
	}
	if len(tables) == 0 {
		return "", errors.Statef("No table specified for DELETE")
	}

	whereFragments, err := q.withWhere(where, "Delete")
	if err != nil {
		return "", err
	}
	limit, err := q.limitClause(false)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(strings.Join(tables, ", "))
	writeWhere(&b, whereFragments)
	b.WriteString(limit)

	q.where = whereFragments
	return q.finish(b.String())
}
