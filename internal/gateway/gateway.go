package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

const defaultSampleRows = 3

// BookkeepingTable records applied sample scripts. It is never described to
// the model.
const BookkeepingTable = "dbchat_sample_versions"

type ConnectParams struct {
	Dialect                Dialect
	Host                   string
	Port                   int
	User                   string
	Password               string
	Database               string
	TrustServerCertificate bool
}

// Gateway owns a single live connection to the target database.
type Gateway struct {
	db         *sql.DB
	dialect    Dialect
	sampleRows int
}

type Option func(*Gateway)

func WithSampleRows(n int) Option {
	return func(g *Gateway) {
		if n >= 0 {
			g.sampleRows = n
		}
	}
}

func Connect(ctx context.Context, params ConnectParams, opts ...Option) (*Gateway, error) {
	if params.Dialect == "" {
		params.Dialect = DialectMSSQL
	}
	driver := params.Dialect.driverName()
	if driver == "" {
		return nil, fmt.Errorf("unsupported dialect %q", params.Dialect)
	}
	if params.Dialect.requiresHost() && strings.TrimSpace(params.Host) == "" {
		return nil, fmt.Errorf("connect %s: host is required", params.Dialect)
	}

	dsn, err := BuildDSN(params)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", params.Dialect, err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: open: %w", params.Dialect, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: ping: %w", params.Dialect, err)
	}

	return New(db, params.Dialect, opts...), nil
}

func New(db *sql.DB, dialect Dialect, opts ...Option) *Gateway {
	g := &Gateway{db: db, dialect: dialect, sampleRows: defaultSampleRows}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Dialect() Dialect {
	return g.dialect
}

func (g *Gateway) DB() *sql.DB {
	return g.db
}

func (g *Gateway) Ping(ctx context.Context) error {
	if err := g.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", g.dialect, err)
	}
	return nil
}

func (g *Gateway) Close() error {
	return g.db.Close()
}

type column struct {
	name     string
	dataType string
	nullable bool
}

type table struct {
	name    string
	columns []column
}

// DescribeSchema renders every base table as a CREATE TABLE statement
// followed by a few sample rows. Nothing is cached.
func (g *Gateway) DescribeSchema(ctx context.Context) (string, error) {
	tables, err := g.listTables(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, tbl := range tables {
		if i > 0 {
			b.WriteString("\n\n")
		}
		g.writeCreateTable(&b, tbl)
		if g.sampleRows <= 0 {
			continue
		}
		columns, rows, err := g.query(ctx, g.dialect.sampleQuery(tbl.name, g.sampleRows))
		if err != nil {
			continue
		}
		writeSampleRows(&b, tbl.name, columns, rows, g.sampleRows)
	}
	return b.String(), nil
}

func (g *Gateway) listTables(ctx context.Context) ([]table, error) {
	rows, err := g.db.QueryContext(ctx, g.dialect.columnsQuery())
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]table, 0)
	for rows.Next() {
		var tableName, columnName, dataType, isNullable string
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		if strings.EqualFold(tableName, BookkeepingTable) {
			continue
		}
		if len(tables) == 0 || tables[len(tables)-1].name != tableName {
			tables = append(tables, table{name: tableName})
		}
		current := &tables[len(tables)-1]
		current.columns = append(current.columns, column{
			name:     columnName,
			dataType: dataType,
			nullable: !strings.EqualFold(strings.TrimSpace(isNullable), "NO"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}
	return tables, nil
}

func (g *Gateway) writeCreateTable(b *strings.Builder, tbl table) {
	b.WriteString("CREATE TABLE ")
	b.WriteString(g.dialect.QuoteIdent(tbl.name))
	b.WriteString(" (\n")
	for i, col := range tbl.columns {
		b.WriteString("\t")
		b.WriteString(g.dialect.QuoteIdent(col.name))
		if col.dataType != "" {
			b.WriteString(" ")
			b.WriteString(col.dataType)
		}
		if !col.nullable {
			b.WriteString(" NOT NULL")
		}
		if i < len(tbl.columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
}

// Execute runs sqlText verbatim and renders the outcome as text. Statements
// that produce rows render as a table; anything else renders the number of
// affected rows.
func (g *Gateway) Execute(ctx context.Context, sqlText string) (string, error) {
	if strings.TrimSpace(sqlText) == "" {
		return "", fmt.Errorf("sql is required")
	}
	if !g.dialect.returnsRows(sqlText) {
		result, err := g.db.ExecContext(ctx, sqlText)
		if err != nil {
			return "", fmt.Errorf("execute statement: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return "statement executed", nil
		}
		return fmt.Sprintf("%d row(s) affected", affected), nil
	}

	columns, rows, err := g.query(ctx, sqlText)
	if err != nil {
		return "", fmt.Errorf("execute query: %w", err)
	}
	if len(columns) == 0 {
		return "statement executed", nil
	}
	return renderResult(columns, rows), nil
}

func (g *Gateway) query(ctx context.Context, sqlText string) ([]string, [][]any, error) {
	rows, err := g.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, resultRows, nil
}
