package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/casaviva/backoffice/internal/infrastructure/config"
	"github.com/casaviva/backoffice/internal/infrastructure/logger"
	"github.com/casaviva/backoffice/internal/infrastructure/migration"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const defaultMigrationsDir = "migrations"

var errUsage = errors.New("usage")

// dbCommand runs against a connected migrator.
type dbCommand func(m *migration.Migrator, log *zap.Logger, args []string) error

var dbCommands = map[string]dbCommand{
	"up": func(m *migration.Migrator, _ *zap.Logger, _ []string) error {
		return m.Up()
	},
	"down": func(m *migration.Migrator, _ *zap.Logger, args []string) error {
		if !confirmed(args) {
			return fmt.Errorf("%w: migrate down -confirm", errUsage)
		}
		return m.Down()
	},
	"step": func(m *migration.Migrator, _ *zap.Logger, args []string) error {
		if len(args) < 1 {
			return fmt.Errorf("%w: migrate step <n>", errUsage)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		return m.Steps(n)
	},
	"goto": func(m *migration.Migrator, _ *zap.Logger, args []string) error {
		if len(args) < 1 {
			return fmt.Errorf("%w: migrate goto <version>", errUsage)
		}
		v, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.GoTo(uint(v))
	},
	"status": func(m *migration.Migrator, log *zap.Logger, _ []string) error {
		st, err := m.Status()
		if err != nil {
			return err
		}
		log.Info("Schema status",
			zap.Uint("version", st.Current),
			zap.Uint("latest", st.Latest),
			zap.Bool("dirty", st.Dirty),
			zap.Bool("pending", st.Pending()),
		)
		return nil
	},
	"force": func(m *migration.Migrator, _ *zap.Logger, args []string) error {
		if len(args) < 1 {
			return fmt.Errorf("%w: migrate force <version>", errUsage)
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.Force(v)
	},
	"drop": func(m *migration.Migrator, _ *zap.Logger, args []string) error {
		if !confirmed(args) {
			return fmt.Errorf("%w: migrate drop -confirm", errUsage)
		}
		return m.Drop()
	},
}

func main() {
	var (
		dir      string
		logLevel string
	)
	flag.StringVar(&dir, "path", "", "Read migrations from this directory instead of the embedded set")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}
	command, rest := args[0], args[1:]

	log, err := logger.New(logger.Config{Level: logLevel, Format: "console", Output: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(command, rest, dir, log); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Fatal("Migration command failed", zap.String("command", command), zap.Error(err))
	}
}

func run(command string, args []string, dir string, log *zap.Logger) error {
	switch command {
	case "create":
		if len(args) < 1 {
			return fmt.Errorf("%w: migrate create <name> [description]", errUsage)
		}
		description := ""
		if len(args) > 1 {
			description = args[1]
		}
		mf, err := migration.CreateMigration(orDefault(dir), args[0], description)
		if err != nil {
			return err
		}
		log.Info("Migration created",
			zap.String("version", mf.Version),
			zap.String("up_file", mf.UpPath),
			zap.String("down_file", mf.DownPath),
		)
		return nil

	case "list":
		names, err := migration.ListMigrations(orDefault(dir))
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	}

	cmd, ok := dbCommands[command]
	if !ok {
		printUsage()
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	var m *migration.Migrator
	if dir == "" {
		m, err = migration.New(db, log)
	} else {
		var abs string
		if abs, err = filepath.Abs(dir); err == nil {
			m, err = migration.NewFromPath(db, abs, log)
		}
	}
	if err != nil {
		_ = db.Close()
		return err
	}
	defer m.Close()

	log.Debug("Running migration command",
		zap.String("command", command),
		zap.Bool("embedded", dir == ""),
		zap.String("database", cfg.Database.DBName),
	)
	return cmd(m, log, args)
}

func orDefault(dir string) string {
	if dir == "" {
		return defaultMigrationsDir
	}
	return dir
}

func confirmed(args []string) bool {
	for _, a := range args {
		if a == "-confirm" || a == "--confirm" {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Casaviva back-office schema migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  status                Show the applied and latest versions
  step <n>              Apply n migrations (negative rolls back)
  goto <version>        Migrate up or down to a version
  force <version>       Mark a version as applied after fixing a dirty schema
  down -confirm         Roll back every migration
  drop -confirm         Drop every table
  create <name> [desc]  Write a new migration file pair
  list                  List migrations in the directory

Flags:
  -path string          Migrations directory (default: embedded set;
                        create and list use ./migrations)
  -log-level string     debug, info, warn or error (default: info)

The database is taken from config.toml and CASA_DATABASE_* variables.
`)
}
