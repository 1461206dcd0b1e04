package persistence

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"tinker/pkg/plan"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history", "tinker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenCreatesSchema(t *testing.T) {
	s := openTestStore(t)
	version, err := GetSchemaVersion(s.DB())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tinker.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.StartRun(&Run{ID: "r1", Firmware: "fw.bin"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	run, err := s.GetRun("r1")
	require.NoError(t, err)
	assert.Equal(t, "fw.bin", run.Firmware)
}

func TestMigrationFromVersion1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE schema_version (version INTEGER PRIMARY KEY, applied_at DATETIME)`,
		`INSERT INTO schema_version (version) VALUES (1)`,
		`CREATE TABLE runs (id TEXT PRIMARY KEY, firmware TEXT NOT NULL, project_path TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT '', model TEXT NOT NULL DEFAULT '', max_iter INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'running', errors_json TEXT NOT NULL DEFAULT '[]',
			started_at TEXT NOT NULL, finished_at TEXT)`,
		`CREATE TABLE rounds (run_id TEXT NOT NULL, round INTEGER NOT NULL, plan_id TEXT NOT NULL DEFAULT '',
			plan_json TEXT NOT NULL DEFAULT '', fallback INTEGER NOT NULL DEFAULT 0,
			discovery_state TEXT NOT NULL DEFAULT 'normal', discovery_variable TEXT NOT NULL DEFAULT '',
			completed INTEGER NOT NULL DEFAULT 0, partial INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0, skipped INTEGER NOT NULL DEFAULT 0,
			config_diff TEXT NOT NULL DEFAULT '', error TEXT NOT NULL DEFAULT '', created_at TEXT NOT NULL,
			PRIMARY KEY (run_id, round))`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	version, err := GetSchemaVersion(s.DB())
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	require.NoError(t, s.StartRun(&Run{ID: "r1", Firmware: "fw"}))
	require.NoError(t, s.RecordRound(&Round{RunID: "r1", Round: 1, PromptTokens: 10}))
}

func TestNewerSchemaIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE schema_version (version INTEGER PRIMARY KEY, applied_at DATETIME)`)
	require.NoError(t, err)
	_, err = db.Exec(fmt.Sprintf(`INSERT INTO schema_version (version) VALUES (%d)`, CurrentSchemaVersion+1))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path)
	assert.ErrorContains(t, err, "newer than supported")
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	run := &Run{Firmware: "fw.bin", Provider: "ollama", Model: "qwen3", MaxIter: 5, StartedAt: started}
	require.NoError(t, s.StartRun(run))
	require.NotEmpty(t, run.ID)
	require.NoError(t, s.SetProjectPath(run.ID, "/out/fw"))

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunRunning, got.Status)
	assert.Equal(t, "/out/fw", got.ProjectPath)
	assert.Nil(t, got.FinishedAt)
	assert.Empty(t, got.Errors)

	finished := started.Add(90 * time.Minute)
	require.NoError(t, s.FinishRun(run.ID, RunCompleted, []string{"Round 2 failed: boom"}, finished))

	got, err = s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, got.Status)
	assert.Equal(t, []string{"Round 2 failed: boom"}, got.Errors)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))
	assert.True(t, started.Equal(got.StartedAt))
}

func TestFinishUnknownRun(t *testing.T) {
	s := openTestStore(t)
	err := s.FinishRun("missing", RunAborted, nil, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetRun("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.StartRun(&Run{ID: fmt.Sprintf("r%d", i), Firmware: "fw", StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	runs, err := s.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "r2", runs[0].ID)

	runs, err = s.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRoundsAndActions(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.StartRun(&Run{ID: "r1", Firmware: "fw"}))

	require.NoError(t, s.RecordRound(&Round{RunID: "r1", Round: 2, PlanID: "p2", DiscoveryState: "discovery", DiscoveryVariable: "sxid"}))
	require.NoError(t, s.RecordRound(&Round{RunID: "r1", Round: 1, PlanID: "p1", Fallback: true, Completed: 1}))
	// Re-recording a round replaces it.
	require.NoError(t, s.RecordRound(&Round{RunID: "r1", Round: 1, PlanID: "p1", Fallback: true, Completed: 2, Failed: 1}))

	rounds, err := s.ListRounds("r1")
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, 1, rounds[0].Round)
	assert.True(t, rounds[0].Fallback)
	assert.Equal(t, 2, rounds[0].Completed)
	assert.Equal(t, 1, rounds[0].Failed)
	assert.Equal(t, "sxid", rounds[1].DiscoveryVariable)

	records := []plan.ActionRecord{
		{
			StepID: "1-opt_1", Round: 1, OptionID: "opt_1", Tool: "add_device_model",
			Input: map[string]any{"device_path": "/dev/mtd0"}, OutputURI: "/p/config.yaml",
			Summary: "All 1 tool calls executed successfully", Status: plan.StatusSuccess,
			Calls: []plan.CallOutcome{{Tool: "add_device_model", Success: true, Message: "ok"}},
		},
		{StepID: "1-opt_2", Round: 1, OptionID: "opt_2", Tool: "unknown", Summary: "Skipped: nothing to do", Status: plan.StatusSkipped},
	}
	require.NoError(t, s.RecordActions("r1", records, time.Now()))
	require.NoError(t, s.RecordActions("r1", nil, time.Now()))

	actions, err := s.ListActions("r1")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "/dev/mtd0", actions[0].Input["device_path"])
	assert.Contains(t, actions[0].CallsJSON, `"add_device_model"`)
	assert.Equal(t, "skipped", actions[1].Status)
	assert.Equal(t, map[string]any{}, actions[1].Input)
	assert.Equal(t, "[]", actions[1].CallsJSON)
}

func TestActionsRequireRun(t *testing.T) {
	s := openTestStore(t)
	err := s.RecordActions("nope", []plan.ActionRecord{{StepID: "1-a", Status: plan.StatusSuccess}}, time.Now())
	assert.Error(t, err)

	actions, err := s.ListActions("nope")
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestCloseNilStore(t *testing.T) {
	var s *Store
	assert.NoError(t, s.Close())
}
