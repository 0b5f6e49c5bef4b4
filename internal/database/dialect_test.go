package database

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestDialectSQLite(t *testing.T) {
	dialect := NewSQLiteDialect()

	t.Run("DriverName", func(t *testing.T) {
		assert.Equal(t, "sqlite3", dialect.DriverName())
	})

	t.Run("SupportsLastInsertId", func(t *testing.T) {
		assert.True(t, dialect.SupportsLastInsertId())
	})

	t.Run("MigrationsSubdir", func(t *testing.T) {
		assert.Equal(t, "sqlite", dialect.MigrationsSubdir())
	})

	t.Run("DSN", func(t *testing.T) {
		dsn := dialect.DSN(DialectConfig{Path: "/tmp/muenzbox.db"})
		assert.Contains(t, dsn, "file:/tmp/muenzbox.db?")
		assert.Contains(t, dsn, "_txlock=immediate")
		assert.Contains(t, dsn, "_foreign_keys=on")
	})

	t.Run("LockSuffix", func(t *testing.T) {
		assert.Empty(t, dialect.LockSuffix())
	})
}

func TestDialectPostgreSQL(t *testing.T) {
	dialect := NewPostgresDialect()

	t.Run("DriverName", func(t *testing.T) {
		assert.Equal(t, "postgres", dialect.DriverName())
	})

	t.Run("SupportsLastInsertId", func(t *testing.T) {
		assert.False(t, dialect.SupportsLastInsertId())
	})

	t.Run("MigrationsSubdir", func(t *testing.T) {
		assert.Equal(t, "postgres", dialect.MigrationsSubdir())
	})

	t.Run("LockSuffix", func(t *testing.T) {
		assert.Equal(t, " FOR UPDATE", dialect.LockSuffix())
	})
}

func TestDialectMySQL(t *testing.T) {
	dialect := NewMySQLDialect()

	t.Run("DriverName", func(t *testing.T) {
		assert.Equal(t, "mysql", dialect.DriverName())
	})

	t.Run("SupportsLastInsertId", func(t *testing.T) {
		assert.True(t, dialect.SupportsLastInsertId())
	})

	t.Run("MigrationsSubdir", func(t *testing.T) {
		assert.Equal(t, "mysql", dialect.MigrationsSubdir())
	})

	t.Run("DSN adds parseTime", func(t *testing.T) {
		assert.Equal(t, "user:pw@tcp(db:3306)/muenzbox?parseTime=true&loc=UTC",
			dialect.DSN(DialectConfig{URL: "user:pw@tcp(db:3306)/muenzbox"}))
		assert.Equal(t, "user:pw@tcp(db:3306)/muenzbox?tls=false&parseTime=true&loc=UTC",
			dialect.DSN(DialectConfig{URL: "user:pw@tcp(db:3306)/muenzbox?tls=false"}))
		assert.Equal(t, "u@/m?parseTime=false",
			dialect.DSN(DialectConfig{URL: "u@/m?parseTime=false"}))
	})
}

func TestRewriteQuery(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		query    string
		expected string
	}{
		{
			name:     "SQLite no change",
			dialect:  NewSQLiteDialect(),
			query:    "SELECT * FROM children WHERE id = ?",
			expected: "SELECT * FROM children WHERE id = ?",
		},
		{
			name:     "PostgreSQL single placeholder",
			dialect:  NewPostgresDialect(),
			query:    "SELECT * FROM children WHERE id = ?",
			expected: "SELECT * FROM children WHERE id = $1",
		},
		{
			name:     "PostgreSQL multiple placeholders",
			dialect:  NewPostgresDialect(),
			query:    "INSERT INTO coin_log (child_id, delta) VALUES (?, ?)",
			expected: "INSERT INTO coin_log (child_id, delta) VALUES ($1, $2)",
		},
		{
			name:     "MySQL no change",
			dialect:  NewMySQLDialect(),
			query:    "UPDATE children SET tv_coins = ? WHERE id = ?",
			expected: "UPDATE children SET tv_coins = ? WHERE id = ?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.dialect.RewriteQuery(tt.query))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		err     error
		want    bool
	}{
		{"sqlite unique", NewSQLiteDialect(), sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, true},
		{"sqlite check", NewSQLiteDialect(), sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintCheck}, false},
		{"postgres unique", NewPostgresDialect(), &pq.Error{Code: "23505"}, true},
		{"postgres fk", NewPostgresDialect(), &pq.Error{Code: "23503"}, false},
		{"mysql duplicate", NewMySQLDialect(), &mysql.MySQLError{Number: 1062}, true},
		{"mysql other", NewMySQLDialect(), &mysql.MySQLError{Number: 1452}, false},
		{"plain error", NewSQLiteDialect(), errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.IsUniqueViolation(tt.err))
		})
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- header\nCREATE TABLE a (id INT);\n\nCREATE INDEX i ON a(id);\n")
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE INDEX i ON a(id)"}, stmts)
}
