package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexxcrz/IXORA-sub001/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data", "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestImportLog_Lifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.LastImportLog()
	require.True(t, errors.Is(err, ErrNotFound))

	id, err := s.CreateImportLog(NewImportLog{
		RunID:       "run-1",
		Filename:    "productos.csv",
		FileSize:    120,
		FileHash:    "abc",
		Mode:        model.ModeCreateAndUpdate,
		InventoryID: 2,
		TotalRows:   3,
	})
	require.NoError(t, err)

	running, err := s.GetImportLog("run-1")
	require.NoError(t, err)
	require.Equal(t, string(model.RunRunning), running.Status)
	require.Nil(t, running.CompletedAt)

	run := &model.ImportRun{
		ID: "run-1", State: model.RunCompleted,
		Total: 3, Processed: 3, Succeeded: 2, Failed: 1, Created: 1, Updated: 1,
	}
	errs := []ImportError{{Row: 4, Operation: "fail", Message: "Fila 4: registro sin código"}}
	require.NoError(t, s.FinishImportLog(id, run, "2 procesados, 1 errores", errs))

	got, err := s.GetImportLog("run-1")
	require.NoError(t, err)
	require.Equal(t, string(model.RunCompleted), got.Status)
	require.Equal(t, 2, got.SucceededRows)
	require.Equal(t, 1, got.FailedRows)
	require.NotNil(t, got.CompletedAt)
	require.Len(t, got.Errors, 1)
	require.Equal(t, 4, got.Errors[0].Row)

	last, err := s.LastImportLog()
	require.NoError(t, err)
	require.Equal(t, "run-1", last.RunID)
	require.Empty(t, last.Errors)

	_, err = s.GetImportLog("missing")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestListImportLogs_NewestFirst(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, runID := range []string{"a", "b", "c"} {
		_, err := s.CreateImportLog(NewImportLog{RunID: runID, Filename: runID + ".csv", Mode: model.ModeCreateOnly})
		require.NoError(t, err)
	}

	logs, err := s.ListImportLogs(2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "c", logs[0].RunID)
	require.Equal(t, "b", logs[1].RunID)
}

func TestImportPreferences_DefaultsAndOverride(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	defaults := ImportPreferences{Mode: model.ModeCreateAndUpdate, InventoryID: 1}
	prefs, err := s.GetImportPreferences(defaults)
	require.NoError(t, err)
	require.Equal(t, defaults, prefs)

	require.NoError(t, s.SetImportPreferences(ImportPreferences{Mode: model.ModeUpdateOnly, InventoryID: 7}))
	prefs, err = s.GetImportPreferences(defaults)
	require.NoError(t, err)
	require.Equal(t, model.ModeUpdateOnly, prefs.Mode)
	require.Equal(t, int64(7), prefs.InventoryID)

	// 非法值回退到默认
	require.NoError(t, s.SetConfig(configKeyInventoryID, "x"))
	prefs, err = s.GetImportPreferences(defaults)
	require.NoError(t, err)
	require.Equal(t, int64(1), prefs.InventoryID)
}
