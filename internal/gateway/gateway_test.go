package gateway

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestDescribeSchemaRendersTablesAndSamples(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(DialectMSSQL.columnsQuery())).
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE"}).
			AddRow("Artist", "ArtistId", "int", "NO").
			AddRow("Artist", "Name", "nvarchar", "YES").
			AddRow("Track", "TrackId", "int", "NO"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT TOP 3 * FROM [Artist]")).
		WillReturnRows(sqlmock.NewRows([]string{"ArtistId", "Name"}).
			AddRow(int64(1), []byte("AC/DC")).
			AddRow(int64(2), nil))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT TOP 3 * FROM [Track]")).
		WillReturnError(errors.New("permission denied"))

	g := New(db, DialectMSSQL)
	schema, err := g.DescribeSchema(context.Background())
	if err != nil {
		t.Fatalf("DescribeSchema() error = %v", err)
	}

	want := "CREATE TABLE [Artist] (\n\t[ArtistId] int NOT NULL,\n\t[Name] nvarchar\n)" +
		"\n\n/*\n3 rows from Artist table:\nArtistId\tName\n1\tAC/DC\n2\tNULL\n*/" +
		"\n\nCREATE TABLE [Track] (\n\t[TrackId] int NOT NULL\n)"
	if schema != want {
		t.Fatalf("DescribeSchema() =\n%s\nwant\n%s", schema, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestDescribeSchemaSkipsBookkeepingTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(DialectPostgres.columnsQuery())).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "is_nullable"}).
			AddRow("artist", "artistid", "integer", "NO").
			AddRow(BookkeepingTable, "version", "bigint", "NO"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "artist" LIMIT 3`)).
		WillReturnRows(sqlmock.NewRows([]string{"artistid"}).AddRow(int64(1)))

	schema, err := New(db, DialectPostgres).DescribeSchema(context.Background())
	if err != nil {
		t.Fatalf("DescribeSchema() error = %v", err)
	}
	if strings.Contains(schema, BookkeepingTable) {
		t.Fatalf("schema should not mention %s:\n%s", BookkeepingTable, schema)
	}
	if !strings.Contains(schema, `CREATE TABLE "artist"`) {
		t.Fatalf("schema missing artist table:\n%s", schema)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestDescribeSchemaPropagatesListError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(DialectPostgres.columnsQuery())).WillReturnError(errors.New("boom"))

	_, err = New(db, DialectPostgres).DescribeSchema(context.Background())
	if err == nil || !strings.Contains(err.Error(), "list columns") {
		t.Fatalf("DescribeSchema() error = %v", err)
	}
}

func TestExecuteRendersRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	sqlText := "SELECT TOP 3 ArtistId, COUNT(*) as track_count FROM Track GROUP BY ArtistId ORDER BY track_count DESC;"
	mock.ExpectQuery(regexp.QuoteMeta(sqlText)).
		WillReturnRows(sqlmock.NewRows([]string{"ArtistId", "track_count"}).
			AddRow(int64(90), int64(213)).
			AddRow(int64(150), int64(135)))

	got, err := New(db, DialectMSSQL).Execute(context.Background(), sqlText)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := "ArtistId | track_count\n90 | 213\n150 | 135"
	if got != want {
		t.Fatalf("Execute() = %q, want %q", got, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestExecuteRendersRowsAffectedForMutations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM Track WHERE TrackId = 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := New(db, DialectMSSQL).Execute(context.Background(), "DELETE FROM Track WHERE TrackId = 1")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != "1 row(s) affected" {
		t.Fatalf("Execute() = %q", got)
	}
}

func TestExecuteQueriesStoredProcedureBatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	sqlText := "EXEC dbo.TopArtists @limit = 2"
	mock.ExpectQuery(regexp.QuoteMeta(sqlText)).
		WillReturnRows(sqlmock.NewRows([]string{"Name"}).AddRow("AC/DC").AddRow("Accept"))

	got, err := New(db, DialectMSSQL).Execute(context.Background(), sqlText)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != "Name\nAC/DC\nAccept" {
		t.Fatalf("Execute() = %q", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestReturnsRowsByDialect(t *testing.T) {
	cases := []struct {
		dialect Dialect
		sql     string
		want    bool
	}{
		{DialectMSSQL, "SELECT 1", true},
		{DialectMSSQL, "EXEC sp_who", true},
		{DialectMSSQL, "DECLARE @n INT = 3; SELECT TOP (@n) * FROM Artist", true},
		{DialectMSSQL, "UPDATE Artist SET Name = 'x'", false},
		{DialectPostgres, "EXECUTE stmt", false},
		{DialectSQLite, "WITH t AS (SELECT 1) SELECT * FROM t", true},
	}
	for _, tc := range cases {
		if got := tc.dialect.returnsRows(tc.sql); got != tc.want {
			t.Fatalf("%s returnsRows(%q) = %v, want %v", tc.dialect, tc.sql, got, tc.want)
		}
	}
}

func TestExecuteReturnsQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT nope FROM Artist")).WillReturnError(errors.New("invalid column name"))

	_, err = New(db, DialectMSSQL).Execute(context.Background(), "SELECT nope FROM Artist")
	if err == nil || !strings.Contains(err.Error(), "invalid column name") {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestExecuteRejectsEmptySQL(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := New(db, DialectMSSQL).Execute(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty sql")
	}
}

func TestFirstKeyword(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{input: "SELECT 1", want: "select"},
		{input: "  -- top artists\nWITH x AS (SELECT 1) SELECT * FROM x", want: "with"},
		{input: "/* note */ (SELECT 1)", want: "select"},
		{input: "update Track set Name = 'x'", want: "update"},
		{input: "-- only a comment", want: ""},
	}
	for _, tc := range cases {
		if got := firstKeyword(tc.input); got != tc.want {
			t.Fatalf("firstKeyword(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestConnectRequiresHostForServerDialects(t *testing.T) {
	_, err := Connect(context.Background(), ConnectParams{Dialect: DialectMSSQL})
	if err == nil {
		t.Fatal("expected error for missing host")
	}
}

func TestConnectUnreachableHostFails(t *testing.T) {
	_, err := Connect(context.Background(), ConnectParams{
		Dialect:  DialectPostgres,
		Host:     "127.0.0.1",
		Port:     1,
		User:     "postgres",
		Password: "postgres",
		Database: "postgres",
	})
	if err == nil {
		t.Fatal("expected connection error")
	}
	if !strings.Contains(err.Error(), "connect postgres") {
		t.Fatalf("error = %v", err)
	}
}
