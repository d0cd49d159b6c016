// A library for generating sql programmatically through a fluent, stateful
// query object.
//
// A Query accumulates clause fragments (select list, FROM, joins, WHERE,
// GROUP BY, HAVING, ORDER BY, LIMIT / OFFSET and SET assignments) through
// builder calls, then a terminal call (Get, Count, Insert, InsertBatch,
// Update, UpdateBatch or Delete) assembles the final statement text.
//
//	q := sqlbuilder.New(nil)
//	q.Select("id, name").Where(sqlbuilder.F("type", "rocky")).Limit(5)
//	sql, err := q.Get("planets")
//	// SELECT `id`, `name` FROM `planets` WHERE `type` = 'rocky' LIMIT 5
//
// Builder calls validate their arguments immediately.  A rejected call leaves
// the query untouched and records the error; every later builder call is a
// no-op and the next terminal call returns that error.  Err() exposes it
// earlier.
//
// Identifiers are quoted with the dialect's identifier quotes; values are
// rendered as literals through the dialect's escape function.  MySQL is the
// default dialect.  The builder does not execute statements (see sqlexec).
//
// Known limitations:
//   - does not support subqueries or UNION
//   - does not emit bound-parameter placeholders
//   - does not support update or delete across multiple joined tables
package sqlbuilder
