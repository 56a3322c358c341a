package repository

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsMissingRow(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no rows", pgx.ErrNoRows, true},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), true},
		{"id is not a uuid", &pgconn.PgError{Code: pgInvalidTextFormat}, true},
		{"wrapped invalid uuid", fmt.Errorf("query: %w", &pgconn.PgError{Code: pgInvalidTextFormat}), true},
		{"unique violation", &pgconn.PgError{Code: pgUniqueViolation}, false},
		{"connection failure", stderrors.New("connection refused"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isMissingRow(tt.err))
		})
	}
}
