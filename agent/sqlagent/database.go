// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package sqlagent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSampleLimit is the number of rows [Database.Samples] returns by default.
const DefaultSampleLimit = 5

// Database is the read-only view of the database the agent answers questions about.
type Database struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Dialector returns the gorm dialector for dsn. PostgreSQL URLs use the
// postgres driver; sqlite:// URLs, file: URIs, :memory: and paths ending in
// .db, .sqlite or .sqlite3 use the pure Go sqlite driver.
func Dialector(dsn string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), nil
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return sqlite.Open(dsn), nil
	}
	path, _, _ := strings.Cut(dsn, "?")
	for _, ext := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(path, ext) {
			return sqlite.Open(dsn), nil
		}
	}
	return nil, fmt.Errorf("unsupported database url %q", redact(dsn))
}

// Open connects to the database at dsn.
func Open(dsn string, logger *slog.Logger) (*Database, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dialector, err := Dialector(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.NewSlogLogger(logger, gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", redact(dsn), err)
	}
	logger.Info("database connection established", "dialect", db.Dialector.Name())
	return &Database{db: db, logger: logger}, nil
}

// NewDatabase wraps an existing gorm connection.
func NewDatabase(db *gorm.DB, logger *slog.Logger) *Database {
	if logger == nil {
		logger = slog.Default()
	}
	return &Database{db: db, logger: logger}
}

// DB returns the underlying gorm connection.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Dialect returns the name of the SQL dialect, e.g. "postgres" or "sqlite".
func (d *Database) Dialect() string {
	return d.db.Dialector.Name()
}

// Close closes the connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// QueryResult holds the rows of a query together with their column order.
type QueryResult struct {
	Columns []string
	Rows    []map[string]any
}

// Query runs a read-only statement and returns its rows. Columns sharing a
// name, as in SELECT a.id, b.id, are renamed id, id_2 and so on.
func (d *Database) Query(ctx context.Context, query string) (*QueryResult, error) {
	if err := CheckReadOnly(query); err != nil {
		return nil, err
	}

	var result *QueryResult
	err := d.readOnly(ctx, func(tx *gorm.DB) error {
		rows, err := tx.Raw(query).Rows()
		if err != nil {
			return fmt.Errorf("execute query: %w", err)
		}
		defer rows.Close()

		columns, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("read columns: %w", err)
		}
		columns = uniqueColumns(columns)

		result = &QueryResult{Columns: columns, Rows: []map[string]any{}}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		for rows.Next() {
			if err := rows.Scan(ptrs...); err != nil {
				return fmt.Errorf("scan row: %w", err)
			}
			row := make(map[string]any, len(columns))
			for i, col := range columns {
				row[col] = normalize(values[i])
			}
			result.Rows = append(result.Rows, row)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate rows: %w", err)
		}
		return nil
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "query execution failed", "query", query, "error", err)
		return nil, err
	}
	return result, nil
}

// readOnly runs fn in a transaction the database itself keeps from writing:
// a READ ONLY transaction on PostgreSQL, query_only mode on SQLite.
func (d *Database) readOnly(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db := d.db.WithContext(ctx)
	switch d.Dialect() {
	case "postgres":
		return db.Transaction(fn, &sql.TxOptions{ReadOnly: true})
	case "sqlite":
		return db.Transaction(func(tx *gorm.DB) (err error) {
			if err := tx.Exec("PRAGMA query_only = ON").Error; err != nil {
				return fmt.Errorf("enter read-only mode: %w", err)
			}
			defer func() {
				// the connection goes back to the pool; reset it even if ctx is done
				reset := tx.WithContext(context.WithoutCancel(ctx)).Exec("PRAGMA query_only = OFF").Error
				if reset != nil && err == nil {
					err = fmt.Errorf("leave read-only mode: %w", reset)
				}
			}()
			return fn(tx)
		})
	default:
		return fn(db)
	}
}

// uniqueColumns suffixes repeated column names with _2, _3, ... skipping
// names the result already uses.
func uniqueColumns(columns []string) []string {
	taken := make(map[string]bool, len(columns))
	for _, c := range columns {
		taken[c] = true
	}
	seen := make(map[string]bool, len(columns))
	out := make([]string, len(columns))
	for i, c := range columns {
		if !seen[c] {
			seen[c] = true
			out[i] = c
			continue
		}
		for n := 2; ; n++ {
			name := fmt.Sprintf("%s_%d", c, n)
			if !taken[name] {
				taken[name] = true
				seen[name] = true
				out[i] = name
				break
			}
		}
	}
	return out
}

func normalize(v any) any {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return v
	}
}

// Tables lists the tables of the database in alphabetical order.
func (d *Database) Tables(ctx context.Context) ([]string, error) {
	tables, err := d.db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	slices.Sort(tables)
	return tables, nil
}

// Column describes one column of a table.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	Default    string `json:"default,omitempty"`
}

// Index describes one index of a table.
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// TableSchema describes one table.
type TableSchema struct {
	Name        string   `json:"name"`
	Columns     []Column `json:"columns"`
	PrimaryKeys []string `json:"primary_keys,omitempty"`
	Indexes     []Index  `json:"indexes,omitempty"`
}

// Schema introspects every table of the database.
func (d *Database) Schema(ctx context.Context) ([]TableSchema, error) {
	tables, err := d.Tables(ctx)
	if err != nil {
		return nil, err
	}
	migrator := d.db.WithContext(ctx).Migrator()

	schema := make([]TableSchema, 0, len(tables))
	for _, table := range tables {
		columnTypes, err := migrator.ColumnTypes(table)
		if err != nil {
			return nil, fmt.Errorf("describe table %s: %w", table, err)
		}
		ts := TableSchema{Name: table}
		for _, ct := range columnTypes {
			col := Column{Name: ct.Name(), Type: ct.DatabaseTypeName(), Nullable: true}
			if nullable, ok := ct.Nullable(); ok {
				col.Nullable = nullable
			}
			if pk, ok := ct.PrimaryKey(); ok && pk {
				col.PrimaryKey = true
				ts.PrimaryKeys = append(ts.PrimaryKeys, col.Name)
			}
			if def, ok := ct.DefaultValue(); ok {
				col.Default = def
			}
			ts.Columns = append(ts.Columns, col)
		}

		indexes, err := migrator.GetIndexes(table)
		if err != nil {
			// Not every dialect reports indexes.
			d.logger.DebugContext(ctx, "index introspection unavailable", "table", table, "error", err)
		}
		for _, idx := range indexes {
			unique, _ := idx.Unique()
			ts.Indexes = append(ts.Indexes, Index{Name: idx.Name(), Columns: idx.Columns(), Unique: unique})
		}
		schema = append(schema, ts)
	}
	return schema, nil
}

// SchemaString renders the schema as the prompt-friendly text the translator sends to the model.
func (d *Database) SchemaString(ctx context.Context) (string, error) {
	schema, err := d.Schema(ctx)
	if err != nil {
		return "", err
	}
	return FormatSchema(schema), nil
}

// FormatSchema renders schema as text, one block per table.
func FormatSchema(schema []TableSchema) string {
	var b strings.Builder
	for i, table := range schema {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Table: %s\nColumns:\n", table.Name)
		for _, col := range table.Columns {
			b.WriteString("  - " + col.Name + " " + col.Type)
			if col.Nullable {
				b.WriteString(" NULL")
			} else {
				b.WriteString(" NOT NULL")
			}
			if col.Default != "" {
				b.WriteString(" DEFAULT " + col.Default)
			}
			if col.PrimaryKey {
				b.WriteString(" PRIMARY KEY")
			}
			b.WriteByte('\n')
		}
		if len(table.Indexes) > 0 {
			b.WriteString("Indexes:\n")
			for _, idx := range table.Indexes {
				unique := ""
				if idx.Unique {
					unique = "UNIQUE "
				}
				fmt.Fprintf(&b, "  - %s%s (%s)\n", unique, idx.Name, strings.Join(idx.Columns, ", "))
			}
		}
	}
	return b.String()
}

// ErrUnknownTable is returned for table names the database does not have.
var ErrUnknownTable = errors.New("unknown table")

// Samples returns up to limit rows of table. A non-positive limit means [DefaultSampleLimit].
func (d *Database) Samples(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	tables, err := d.Tables(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(tables, table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	var rows []map[string]any
	if err := d.db.WithContext(ctx).Table(table).Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sample table %s: %w", table, err)
	}
	for _, row := range rows {
		for k, v := range row {
			row[k] = normalize(v)
		}
	}
	return rows, nil
}

// redact hides the password of a database url.
func redact(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	if user, _, hasPass := strings.Cut(userinfo, ":"); hasPass {
		return scheme + "://" + user + ":xxxxx@" + host
	}
	return dsn
}
