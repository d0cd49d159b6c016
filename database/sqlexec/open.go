package sqlexec

import (
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dropbox/sqlfluent/errors"
)

// OpenMySQL opens a connection pool through go-sql-driver/mysql.
func OpenMySQL(cfg *mysql.Config) (*sql.DB, error) {
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "Invalid mysql config")
	}
	return sql.OpenDB(connector), nil
}

// OpenPostgres opens a connection pool through lib/pq.
func OpenPostgres(dsn string) (*sql.DB, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "Invalid postgres dsn")
	}
	return sql.OpenDB(connector), nil
}

// OpenSQLite opens (or creates) the SQLite database at path through the pure
// Go modernc.org/sqlite driver.  ":memory:" opens a private in-memory
// database.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "Cannot open sqlite database %s", path)
	}
	if path == ":memory:" {
		// Every new connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Open dispatches on the dialect name used by sqlbuilder.DialectByName.
func Open(dialect string, dsn string) (*sql.DB, error) {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "", "mysql":
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "Invalid mysql dsn")
		}
		return OpenMySQL(cfg)
	case "postgres", "postgresql":
		return OpenPostgres(dsn)
	case "sqlite", "sqlite3":
		return OpenSQLite(dsn)
	}
	return nil, errors.Validationf("Unknown dialect %q", dialect)
}

// Postgres SQLSTATE and MySQL error number for unique key violations.
const (
	pgUniqueViolation   = "23505"
	mysqlDuplicateEntry = 1062
)

// IsDuplicateKey reports whether err is a unique constraint violation
// reported by one of the supported drivers.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if stderrors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	var pgErr *pq.Error
	if stderrors.As(err, &pgErr) {
		return string(pgErr.Code) == pgUniqueViolation
	}

	var liteErr *sqlite.Error
	if stderrors.As(err, &liteErr) {
		code := liteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {

			return true
		}
		// Without extended result codes only the primary code is set.
		return code&0xff == sqlite3.SQLITE_CONSTRAINT &&
			strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
	}

	return false
}
