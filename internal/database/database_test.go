package database

import (
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDSN(t *testing.T) {
	cfg := Config{User: "u", Password: "p", Host: "h", Port: 5432, Database: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", cfg.DSN())
}

func TestConfigDSNEscapesCredentials(t *testing.T) {
	cfg := Config{
		User:     "svc@docs",
		Password: "p@ss:w/rd?#",
		Host:     "db.internal",
		Port:     6543,
		Database: "doc_workflows",
		SSLMode:  "require",
	}

	parsed, err := pgconn.ParseConfig(cfg.DSN())
	require.NoError(t, err)
	assert.Equal(t, "svc@docs", parsed.User)
	assert.Equal(t, "p@ss:w/rd?#", parsed.Password)
	assert.Equal(t, "db.internal", parsed.Host)
	assert.Equal(t, uint16(6543), parsed.Port)
	assert.Equal(t, "doc_workflows", parsed.Database)
}
