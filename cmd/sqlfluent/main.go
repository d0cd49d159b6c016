// sqlfluent compiles yaml query files into SQL text and optionally runs it.
//
//	sqlfluent [-dialect mysql|postgres|sqlite] [-prefix p] [-exec -dsn DSN] [-v] file.yaml...
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	sb "github.com/dropbox/sqlfluent/database/sqlbuilder"
	"github.com/dropbox/sqlfluent/database/sqlexec"
	"github.com/dropbox/sqlfluent/errors"
)

type options struct {
	dialect string
	prefix  string
	exec    bool
	dsn     string
	verbose bool
	paths   []string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("sqlfluent", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.dialect, "dialect", "mysql",
		"SQL dialect: mysql, postgres or sqlite.")
	fs.StringVar(&opts.prefix, "prefix", "",
		"Prefix added to every unaliased table name.")
	fs.BoolVar(&opts.exec, "exec", false,
		"Run the compiled statements against -dsn.")
	fs.StringVar(&opts.dsn, "dsn", "",
		"Data source name used with -exec.")
	fs.BoolVar(&opts.verbose, "v", false,
		"Log every statement at debug level.")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts.paths = fs.Args()
	if len(opts.paths) == 0 {
		return nil, errors.Validationf("No query files given")
	}
	if opts.exec && opts.dsn == "" {
		return nil, errors.Validationf("-exec requires -dsn")
	}
	return opts, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, opts.verbose)

	dialect, ok := sb.DialectByName(opts.dialect)
	if !ok {
		return errors.Validationf("Unknown dialect %q", opts.dialect)
	}
	if opts.prefix != "" {
		dialect = sb.WithTablePrefix(dialect, opts.prefix)
	}

	files, err := CompileFiles(ctx, dialect, opts.paths)
	if err != nil {
		return err
	}

	var exec *sqlexec.Executor
	if opts.exec {
		db, err := sqlexec.Open(dialect.Name(), opts.dsn)
		if err != nil {
			return err
		}
		exec = sqlexec.New(db, logger)
		defer exec.Close()
	}

	for _, compiled := range files {
		if err := Print(stdout, compiled); err != nil {
			return err
		}
		if exec == nil {
			continue
		}
		for _, c := range compiled {
			if err := Execute(ctx, exec, logger, c, stdout); err != nil {
				return errors.Wrapf(err, "%s: statement %s", c.File, c.Name)
			}
		}
	}
	return nil
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintln(os.Stderr, errors.GetMessage(err))
		}
		os.Exit(2)
	}
}
