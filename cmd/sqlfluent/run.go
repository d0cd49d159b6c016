package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	sb "github.com/dropbox/sqlfluent/database/sqlbuilder"
	"github.com/dropbox/sqlfluent/database/sqlexec"
	"github.com/dropbox/sqlfluent/errors"
)

// Compiled is the output of one statement.  Only update_batch produces more
// than one SQL text.
type Compiled struct {
	File string
	Name string
	Type string
	SQL  []string
}

func applyPredicate(q *sb.Query, p Predicate, having bool) error {
	if having {
		return applyHaving(q, p)
	}

	switch {
	case p.Condition != "":
		if p.Or {
			q.OrWhere(sb.Condition(p.Condition))
		} else {
			q.Where(sb.Condition(p.Condition))
		}
	case p.In != nil:
		switch {
		case p.Or && p.Not:
			q.OrWhereNotIn(p.Field, p.In)
		case p.Or:
			q.OrWhereIn(p.Field, p.In)
		case p.Not:
			q.WhereNotIn(p.Field, p.In)
		default:
			q.WhereIn(p.Field, p.In)
		}
	case p.Like != nil:
		side, err := sb.ParseSide(p.Side)
		if err != nil {
			return err
		}
		key := sb.F(p.Field, *p.Like)
		switch {
		case p.Or && p.Not:
			q.OrNotLike(key, side)
		case p.Or:
			q.OrLike(key, side)
		case p.Not:
			q.NotLike(key, side)
		default:
			q.Like(key, side)
		}
	case p.Or:
		q.OrWhere(sb.F(p.Field, p.Value))
	default:
		q.Where(sb.F(p.Field, p.Value))
	}
	return nil
}

// HAVING has no LIKE builder; lists go through the IN / NOT IN operators.
func applyHaving(q *sb.Query, p Predicate) error {
	var key sb.Key
	switch {
	case p.Condition != "":
		key = sb.Condition(p.Condition)
	case p.Like != nil:
		return errors.Validationf(
			"having on %q: like is only supported in where", p.Field)
	case p.In != nil:
		op := " IN"
		if p.Not {
			op = " NOT IN"
		}
		key = sb.F(p.Field+op, p.In)
	default:
		key = sb.F(p.Field, p.Value)
	}

	if p.Or {
		q.OrHaving(key)
	} else {
		q.Having(key)
	}
	return nil
}

// buildQuery runs every builder call named by s.  Builder failures are
// recorded in the query and surface from the terminal call.
func buildQuery(dialect sb.Dialect, s Statement) (*sb.Query, error) {
	q := sb.New(dialect)
	if len(s.Select) > 0 {
		q.Select(s.Select...)
	}
	if s.Distinct {
		q.Distinct()
	}
	if len(s.From) > 0 {
		q.From(s.From...)
	}
	for _, j := range s.Join {
		q.Join(j.Table, j.On, j.Direction)
	}
	for _, p := range s.Where {
		if err := applyPredicate(q, p, false); err != nil {
			return nil, err
		}
	}
	if len(s.GroupBy) > 0 {
		q.GroupBy(s.GroupBy...)
	}
	for _, p := range s.Having {
		if err := applyPredicate(q, p, true); err != nil {
			return nil, err
		}
	}
	if len(s.OrderBy) > 0 {
		q.OrderBy(s.OrderBy...)
	}
	if s.Limit != nil {
		q.Limit(*s.Limit)
	}
	if s.Offset != nil {
		q.Offset(*s.Offset)
	}
	return q, nil
}

func fieldMaps(rows []Row) []sb.FieldMap {
	maps := make([]sb.FieldMap, 0, len(rows))
	for _, r := range rows {
		maps = append(maps, r.Fields)
	}
	return maps
}

func insertOptions(s Statement) []sb.InsertOption {
	var opts []sb.InsertOption
	if s.Ignore {
		opts = append(opts, sb.Ignore())
	}
	if s.OnDuplicate != "" {
		opts = append(opts, sb.OnDuplicate(s.OnDuplicate))
	}
	return opts
}

// CompileStatement turns s into SQL text.
func CompileStatement(dialect sb.Dialect, s Statement) ([]string, error) {
	q, err := buildQuery(dialect, s)
	if err != nil {
		return nil, err
	}

	var tables []string
	if s.Table != "" {
		tables = append(tables, s.Table)
	}

	var text string
	switch s.Type {
	case typeSelect:
		text, err = q.Get(tables...)
	case typeCount:
		text, err = q.Count(tables...)
	case typeInsert:
		text, err = q.Insert(s.Table, s.Set.Fields, insertOptions(s)...)
	case typeInsertBatch:
		text, err = q.InsertBatch(s.Table, fieldMaps(s.Rows), insertOptions(s)...)
	case typeUpdate:
		text, err = q.Update(s.Table, s.Set.Fields, nil)
	case typeUpdateBatch:
		return q.UpdateBatch(s.Table, fieldMaps(s.Rows), s.Index, nil)
	case typeDelete:
		text, err = q.Delete(s.Table, nil)
	default:
		return nil, errors.Validationf("Unknown statement type %q", s.Type)
	}
	if err != nil {
		return nil, err
	}
	return []string{text}, nil
}

// CompileFile compiles every statement of the query file at path.
func CompileFile(dialect sb.Dialect, path string) ([]Compiled, error) {
	file, err := LoadQueryFile(path)
	if err != nil {
		return nil, err
	}

	results := make([]Compiled, 0, len(file.Statements))
	for _, s := range file.Statements {
		sql, err := CompileStatement(dialect, s)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: statement %s", path, s.Name)
		}
		results = append(results, Compiled{
			File: path,
			Name: s.Name,
			Type: s.Type,
			SQL:  sql,
		})
	}
	return results, nil
}

// CompileFiles compiles paths concurrently.  The result keeps the order of
// paths.
func CompileFiles(
	ctx context.Context,
	dialect sb.Dialect,
	paths []string) ([][]Compiled, error) {

	results := make([][]Compiled, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			compiled, err := CompileFile(dialect, path)
			if err != nil {
				return err
			}
			results[i] = compiled
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Print writes each statement as a "-- file:name" header followed by its SQL.
func Print(w io.Writer, compiled []Compiled) error {
	for _, c := range compiled {
		if _, err := fmt.Fprintf(w, "-- %s:%s\n", c.File, c.Name); err != nil {
			return err
		}
		for _, text := range c.SQL {
			if _, err := fmt.Fprintf(w, "%s;\n", text); err != nil {
				return err
			}
		}
	}
	return nil
}

// Execute hands c to exec.  Query results are written to w as tab separated
// rows.
func Execute(
	ctx context.Context,
	exec *sqlexec.Executor,
	logger *slog.Logger,
	c Compiled,
	w io.Writer) error {

	switch c.Type {
	case typeSelect, typeCount:
		result, err := exec.Query(ctx, c.SQL[0])
		if err != nil {
			return err
		}
		for _, row := range result.Rows {
			for i, v := range row {
				if i > 0 {
					if _, err := io.WriteString(w, "\t"); err != nil {
						return err
					}
				}
				if _, err := io.WriteString(w, v.String()); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		logger.InfoContext(ctx, "query done", "statement", c.Name, "rows", len(result.Rows))
	case typeUpdateBatch:
		affected, err := exec.ExecBatch(ctx, c.SQL)
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "batch done", "statement", c.Name, "affected", affected)
	default:
		affected, err := exec.Exec(ctx, c.SQL[0])
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "exec done", "statement", c.Name, "affected", affected)
	}
	return nil
}
