package source

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"  // postgres driver
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
	_ "modernc.org/sqlite"              // sqlite driver

	"github.com/relstack-labs/relq/pkg/plan"
)

// SQLSource reads rows from any database/sql backend. It issues one
// projected SELECT per scan and streams the result.
type SQLSource struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLSource wraps an open database handle. If logger is nil, a discard
// logger is used. The source takes ownership of db and closes it.
func NewSQLSource(db *sql.DB, logger *slog.Logger) *SQLSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLSource{db: db, logger: logger}
}

// OpenDuckDB opens a DuckDB database file, or an in-memory database when
// path is empty.
func OpenDuckDB(ctx context.Context, path string, logger *slog.Logger) (*SQLSource, error) {
	if path == "" {
		path = ":memory:"
	}
	return open(ctx, "duckdb", path, logger)
}

// OpenSQLite opens a SQLite database file.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLSource, error) {
	return open(ctx, "sqlite", path, logger)
}

// PostgresConfig describes a postgres connection.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
}

// OpenPostgres connects to PostgreSQL through the pgx driver.
func OpenPostgres(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*SQLSource, error) {
	return open(ctx, "pgx", buildPostgresDSN(cfg), logger)
}

func open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*SQLSource, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return NewSQLSource(db, logger), nil
}

func buildPostgresDSN(cfg PostgresConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		host, port, cfg.Database, sslmode)
	if cfg.Username != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.Username)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}
	return dsn
}

// Scan implements Source.
func (s *SQLSource) Scan(ctx context.Context, table string, columns []string) (RowIterator, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("scan of %q requests no columns", table)
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdent(table))

	s.logger.Debug("scanning table", slog.String("table", table), slog.String("stmt", stmt))

	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", table, err)
	}
	return &sqlIterator{rows: rows, width: len(columns)}, nil
}

// Resolve reports the schema of a table by preparing a zero-row SELECT and
// reading the driver's column type metadata. It lets a SQLSource double as
// a catalog the same way Memory does.
func (s *SQLSource) Resolve(table string) (*plan.Schema, error) {
	stmt := fmt.Sprintf("SELECT * FROM %s WHERE 1=0", quoteIdent(table))

	rows, err := s.db.Query(stmt)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", table, err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", table, err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resolve %q: %w", table, err)
	}

	cols := make([]plan.Column, len(types))
	for i, ct := range types {
		cols[i] = plan.Column{
			Name: ct.Name(),
			Type: typeFromDatabase(ct.DatabaseTypeName()),
		}
	}
	schema := plan.NewSchema(cols...)
	return &schema, nil
}

// typeFromDatabase maps driver type names onto plan types. Unknown names
// fall back to string, which every operator can carry.
func typeFromDatabase(name string) plan.Type {
	switch {
	case strings.Contains(name, "INT") || strings.Contains(name, "SERIAL"):
		return plan.TypeInt
	case strings.Contains(name, "BOOL"):
		return plan.TypeBool
	case strings.Contains(name, "FLOAT") || strings.Contains(name, "DOUBLE") ||
		strings.Contains(name, "REAL") || strings.Contains(name, "NUMERIC") ||
		strings.Contains(name, "DECIMAL"):
		return plan.TypeFloat
	default:
		return plan.TypeString
	}
}

// Close implements Source.
func (s *SQLSource) Close() error { return s.db.Close() }

// quoteIdent double-quotes an identifier, escaping embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

type sqlIterator struct {
	rows  *sql.Rows
	width int
}

func (it *sqlIterator) Next(ctx context.Context) (plan.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	raw := make([]any, it.width)
	ptrs := make([]any, it.width)
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := it.rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	out := make(plan.Row, it.width)
	for i, v := range raw {
		out[i] = normalizeValue(v)
	}
	return out, nil
}

func (it *sqlIterator) Close() error { return it.rows.Close() }

// normalizeValue maps driver values onto the engine's value vocabulary.
func normalizeValue(v any) plan.Value {
	switch x := v.(type) {
	case nil:
		return nil
	case bool, int64, float64, string:
		return x
	case []byte:
		return string(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
