package gateway

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

type Dialect string

const (
	DialectMSSQL    Dialect = "mssql"
	DialectPostgres Dialect = "postgres"
	DialectDuckDB   Dialect = "duckdb"
	DialectSQLite   Dialect = "sqlite"
)

func ParseDialect(raw string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "mssql", "sqlserver":
		return DialectMSSQL, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "duckdb":
		return DialectDuckDB, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", raw)
	}
}

// DisplayName is the product name used when addressing the model.
func (d Dialect) DisplayName() string {
	switch d {
	case DialectMSSQL:
		return "SQL Server"
	case DialectPostgres:
		return "PostgreSQL"
	case DialectDuckDB:
		return "DuckDB"
	case DialectSQLite:
		return "SQLite"
	default:
		return string(d)
	}
}

func (d Dialect) driverName() string {
	switch d {
	case DialectMSSQL:
		return "sqlserver"
	case DialectPostgres:
		return "pgx"
	case DialectDuckDB:
		return "duckdb"
	case DialectSQLite:
		return "sqlite"
	default:
		return ""
	}
}

func (d Dialect) requiresHost() bool {
	return d == DialectMSSQL || d == DialectPostgres
}

func (d Dialect) QuoteIdent(value string) string {
	if d == DialectMSSQL {
		return "[" + strings.ReplaceAll(value, "]", "]]") + "]"
	}
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func (d Dialect) columnsQuery() string {
	switch d {
	case DialectMSSQL:
		return `
SELECT c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE, c.IS_NULLABLE
FROM INFORMATION_SCHEMA.COLUMNS c
JOIN INFORMATION_SCHEMA.TABLES t ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
WHERE t.TABLE_TYPE = 'BASE TABLE' AND c.TABLE_SCHEMA = SCHEMA_NAME()
ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`
	case DialectSQLite:
		return `
SELECT m.name, p.name, p.type, CASE WHEN p."notnull" = 1 THEN 'NO' ELSE 'YES' END
FROM sqlite_master m
JOIN pragma_table_info(m.name) p
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
ORDER BY m.name, p.cid`
	default:
		return `
SELECT c.table_name, c.column_name, c.data_type, c.is_nullable
FROM information_schema.columns c
JOIN information_schema.tables t ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE t.table_type = 'BASE TABLE' AND c.table_schema = current_schema()
ORDER BY c.table_name, c.ordinal_position`
	}
}

func (d Dialect) sampleQuery(table string, limit int) string {
	if d == DialectMSSQL {
		return "SELECT TOP " + strconv.Itoa(limit) + " * FROM " + d.QuoteIdent(table)
	}
	return "SELECT * FROM " + d.QuoteIdent(table) + " LIMIT " + strconv.Itoa(limit)
}

// BuildDSN renders the driver-specific connection string for params.
func BuildDSN(params ConnectParams) (string, error) {
	switch params.Dialect {
	case DialectMSSQL:
		return buildSQLServerDSN(params)
	case DialectPostgres:
		return buildPostgresDSN(params)
	case DialectDuckDB:
		return strings.TrimSpace(params.Database), nil
	case DialectSQLite:
		path := strings.TrimSpace(params.Database)
		if path == "" {
			return ":memory:", nil
		}
		return path, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", params.Dialect)
	}
}

func buildSQLServerDSN(params ConnectParams) (string, error) {
	host, instance := splitInstance(strings.TrimSpace(params.Host))
	if host == "" {
		return "", fmt.Errorf("host is required")
	}
	if params.Port > 0 {
		host = net.JoinHostPort(host, strconv.Itoa(params.Port))
	}

	u := &url.URL{Scheme: "sqlserver", Host: host}
	if instance != "" {
		u.Path = "/" + instance
	}
	if params.User != "" {
		u.User = url.UserPassword(params.User, params.Password)
	}
	query := url.Values{}
	if db := strings.TrimSpace(params.Database); db != "" {
		query.Set("database", db)
	}
	if params.TrustServerCertificate {
		query.Set("TrustServerCertificate", "true")
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func buildPostgresDSN(params ConnectParams) (string, error) {
	host := strings.TrimSpace(params.Host)
	if host == "" {
		return "", fmt.Errorf("host is required")
	}
	if params.Port > 0 {
		host = net.JoinHostPort(host, strconv.Itoa(params.Port))
	}

	u := &url.URL{Scheme: "postgres", Host: host, Path: "/" + strings.TrimSpace(params.Database)}
	if params.User != "" {
		u.User = url.UserPassword(params.User, params.Password)
	}
	sslMode := "verify-full"
	if params.TrustServerCertificate {
		sslMode = "require"
	}
	u.RawQuery = url.Values{"sslmode": {sslMode}}.Encode()
	return u.String(), nil
}

// splitInstance splits SQL Server's HOST\INSTANCE notation.
func splitInstance(host string) (string, string) {
	if idx := strings.Index(host, `\`); idx >= 0 {
		return host[:idx], host[idx+1:]
	}
	return host, ""
}
