package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-doc-workflows/internal/config"
	"github.com/pesio-ai/be-doc-workflows/internal/logger"
)

func stubServe(t *testing.T) *[]bool {
	t.Helper()
	var calls []bool
	orig := runServe
	runServe = func(_ context.Context, cfg *config.Config, _ *logger.Logger, migrate bool) error {
		require.NotNil(t, cfg)
		calls = append(calls, migrate)
		return nil
	}
	t.Cleanup(func() { runServe = orig })
	return &calls
}

func TestRootCommandServesByDefault(t *testing.T) {
	calls := stubServe(t)

	root := newRootCmd()
	root.SetArgs([]string{})
	require.NoError(t, root.Execute())

	assert.Equal(t, []bool{false}, *calls)
}

func TestServeCommandPassesMigrateFlag(t *testing.T) {
	calls := stubServe(t)

	root := newRootCmd()
	root.SetArgs([]string{"serve", "--migrate"})
	require.NoError(t, root.Execute())

	assert.Equal(t, []bool{true}, *calls)
}

func TestRootCommandRejectsUnknownArgs(t *testing.T) {
	calls := stubServe(t)

	root := newRootCmd()
	root.SetArgs([]string{"bogus"})
	assert.Error(t, root.Execute())
	assert.Empty(t, *calls)
}
