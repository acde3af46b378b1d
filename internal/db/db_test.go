package db

import (
	"net/url"
	"testing"

	"github.com/codearena/judge/config"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "judge",
		Password: "p@ss/word",
		DBName:   "judge_db",
		UseSSL:   true,
	})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	require.Equal(t, "postgres", u.Scheme)
	require.Equal(t, "db.internal:5433", u.Host)
	require.Equal(t, "/judge_db", u.Path)
	require.Equal(t, "require", u.Query().Get("sslmode"))

	password, ok := u.User.Password()
	require.True(t, ok)
	require.Equal(t, "p@ss/word", password)
}

func TestDSNDisablesSSLByDefault(t *testing.T) {
	u, err := url.Parse(DSN(config.DatabaseConfig{Host: "localhost", Port: 5432}))
	require.NoError(t, err)
	require.Equal(t, "disable", u.Query().Get("sslmode"))
}
