package sqlbuilder

import (
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/dropbox/sqlfluent/database/sqltypes"
	"github.com/dropbox/sqlfluent/encoding2"
)

// EscapeFunc renders a scalar Go value as a SQL literal.  It is supplied by
// the host driver; the builder only decides when to call it.
type EscapeFunc func(value interface{}) (string, error)

// Dialect describes the few things that differ between SQL flavors as far as
// statement text is concerned.
type Dialect interface {
	Name() string

	// The characters wrapped around every identifier segment.
	IdentifierQuotes() (open byte, close byte)

	// Renders a scalar value as a literal.
	EscapeValue(value interface{}) (string, error)

	// The ORDER BY expression used for random ordering.
	RandomOrder() string

	// Prefix prepended to table names, empty when unused.
	TablePrefix() string
}

// DialectConfig is the set of knobs accepted by NewDialect.  Zero fields fall
// back to the MySQL conventions.
type DialectConfig struct {
	Name        string
	OpenQuote   byte
	CloseQuote  byte
	Escape      EscapeFunc
	RandomOrder string
	TablePrefix string
}

type genericDialect struct {
	cfg DialectConfig
}

func (d *genericDialect) Name() string {
	return d.cfg.Name
}

func (d *genericDialect) IdentifierQuotes() (byte, byte) {
	return d.cfg.OpenQuote, d.cfg.CloseQuote
}

func (d *genericDialect) EscapeValue(value interface{}) (string, error) {
	return d.cfg.Escape(value)
}

func (d *genericDialect) RandomOrder() string {
	return d.cfg.RandomOrder
}

func (d *genericDialect) TablePrefix() string {
	return d.cfg.TablePrefix
}

// NewDialect builds a dialect from cfg.  A driver that quotes identifiers or
// escapes values differently only needs to fill in those fields.
func NewDialect(cfg DialectConfig) Dialect {
	if cfg.Name == "" {
		cfg.Name = "custom"
	}
	if cfg.OpenQuote == 0 {
		cfg.OpenQuote = '`'
	}
	if cfg.CloseQuote == 0 {
		cfg.CloseQuote = cfg.OpenQuote
	}
	if cfg.Escape == nil {
		cfg.Escape = sqltypes.EncodeValue
	}
	if cfg.RandomOrder == "" {
		cfg.RandomOrder = "RAND()"
	}
	return &genericDialect{cfg: cfg}
}

func NewMySQLDialect() Dialect {
	return NewDialect(DialectConfig{
		Name:        "mysql",
		OpenQuote:   '`',
		CloseQuote:  '`',
		Escape:      sqltypes.EncodeValue,
		RandomOrder: "RAND()",
	})
}

func NewPostgresDialect() Dialect {
	return NewDialect(DialectConfig{
		Name:        "postgres",
		OpenQuote:   '"',
		CloseQuote:  '"',
		Escape:      escapePostgres,
		RandomOrder: "RANDOM()",
	})
}

func NewSQLiteDialect() Dialect {
	return NewDialect(DialectConfig{
		Name:        "sqlite",
		OpenQuote:   '"',
		CloseQuote:  '"',
		Escape:      escapeSQLite,
		RandomOrder: "RANDOM()",
	})
}

// DialectByName maps "mysql", "postgres" (or "postgresql") and "sqlite" to
// their dialects.
func DialectByName(name string) (Dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mysql":
		return NewMySQLDialect(), true
	case "postgres", "postgresql":
		return NewPostgresDialect(), true
	case "sqlite", "sqlite3":
		return NewSQLiteDialect(), true
	}
	return nil, false
}

type prefixedDialect struct {
	Dialect
	prefix string
}

func (d *prefixedDialect) TablePrefix() string {
	return d.prefix
}

// WithTablePrefix returns d with every unaliased table reference prefixed by
// prefix.
func WithTablePrefix(d Dialect, prefix string) Dialect {
	return &prefixedDialect{Dialect: d, prefix: prefix}
}

// Postgres literals: standard conforming strings, real booleans and bytea
// hex input.
func escapePostgres(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return quotePostgres(v), nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case time.Time:
		return quotePostgres(v.Format(sqltypes.TimeFormat)), nil
	case []byte:
		return `'\x` + encoding2.HexEncodeToString(v) + "'", nil
	}
	return sqltypes.EncodeValue(value)
}

// pq.QuoteLiteral emits " E'...'" (leading space) for strings holding a
// backslash.
func quotePostgres(s string) string {
	return strings.TrimLeft(pq.QuoteLiteral(s), " ")
}

// SQLite has no backslash escapes; quotes are doubled.
func escapeSQLite(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return "'" + strings.Replace(v, "'", "''", -1) + "'", nil
	case time.Time:
		return "'" + v.Format(sqltypes.TimeFormat) + "'", nil
	}
	return sqltypes.EncodeValue(value)
}
