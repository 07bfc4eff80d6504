package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialector(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/chat":             "postgres",
		"postgresql://u:p@localhost:5432/chat":           "postgres",
		"sqlite://file::memory:?cache=shared":            "sqlite",
		"file:test.db":                                   "sqlite",
		":memory:":                                       "sqlite",
		"mysql://app:pw@tcp(127.0.0.1:3306)/chat":        "mysql",
		"app:pw@tcp(127.0.0.1:3306)/chat?parseTime=true": "mysql",
	}
	for dsn, want := range cases {
		_, got := Dialector(dsn)
		assert.Equal(t, want, got, dsn)
	}
}

func TestConnect_SQLite(t *testing.T) {
	gdb, err := Connect("sqlite://file:connect_test?mode=memory&cache=shared")
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, sqlDB.Ping())
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}
