//go:build cgo

package vistag

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/vistag/store"
	"github.com/brunobiangulo/vistag/taxonomy"
)

func TestAuditTrail(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuditDBPath = filepath.Join(t.TempDir(), "audit.db")
	tg, err := New(cfg, WithProvider(newStubGateway(portraitReplies())))
	require.NoError(t, err)
	require.NotNil(t, tg.Store())

	ok := tg.Process(context.Background(), "https://example.com/a.jpg")
	bad := tg.Process(context.Background(), "")

	// Close drains the recorder; reopen the file to read what was written.
	require.NoError(t, tg.Close())
	s, err := store.New(cfg.AuditDBPath)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	run, err := s.GetRun(ctx, ok.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, run.Status)
	assert.Equal(t, ok.FinalLabels, run.Tags)
	assert.Equal(t, taxonomy.DefaultVersion, run.TaxonomyVersion)

	calls, err := s.BranchCalls(ctx, ok.RunID)
	require.NoError(t, err)
	assert.Len(t, calls, 4)
	for _, c := range calls {
		assert.Equal(t, "Qwen2.5-VL-7B-Instruct", c.Model)
		assert.NotEmpty(t, c.Instruction)
	}

	failed, err := s.GetRun(ctx, bad.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, bad.Error, failed.Error)
}
