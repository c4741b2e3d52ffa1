package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vergabeflow/internal/types"
	"vergabeflow/internal/wizard"
)

func openTestStore(t *testing.T) *HistoryStore {
	t.Helper()
	s, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sample(id string, updated time.Time) Analysis {
	return Analysis{
		ID:              id,
		Stage:           "summary",
		ProcurementType: "Hardware",
		Description:     "Beschaffung von 50 Laptops",
		Questions: []types.Question{
			{ID: "q-0", Text: "Bildschirmgröße?", Options: []string{"13", "15"}},
			{ID: "q-1", Text: "Betriebssystem?", Options: []string{}},
		},
		Answers:   []types.Answer{{QuestionID: "q-0", Text: "15"}},
		CreatedAt: updated,
		UpdatedAt: updated,
	}
}

func TestHistory_SaveGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.UnixMilli(1_700_000_000_000)

	want := sample("3f2a-1", ts)
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Get(ctx, "3f2a-1")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("analysis mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, got.Complete())
}

func TestHistory_UpsertKeepsCreatedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	created := time.UnixMilli(1_000)

	a := sample("id-1", created)
	require.NoError(t, s.Save(ctx, a))

	a.CreatedAt = time.Time{}
	a.UpdatedAt = time.UnixMilli(5_000)
	a.Stage = "final_description"
	a.FinalDescription = "Fertig"
	require.NoError(t, s.Save(ctx, a))

	got, err := s.Get(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, time.UnixMilli(5_000), got.UpdatedAt)
	assert.True(t, got.Complete())

	list, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestHistory_ListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, sample(id, time.UnixMilli(int64(i+1)*1000))))
	}

	list, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestHistory_FindByPrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sample("abc-111", time.UnixMilli(1))))
	require.NoError(t, s.Save(ctx, sample("abc-222", time.UnixMilli(2))))
	require.NoError(t, s.Save(ctx, sample("x_y", time.UnixMilli(3))))

	a, err := s.Find(ctx, "abc-2")
	require.NoError(t, err)
	assert.Equal(t, "abc-222", a.ID)

	a, err = s.Find(ctx, "abc-111")
	require.NoError(t, err)
	assert.Equal(t, "abc-111", a.ID)

	_, err = s.Find(ctx, "abc")
	assert.ErrorIs(t, err, ErrAmbiguous)

	_, err = s.Find(ctx, "zzz")
	assert.ErrorIs(t, err, ErrNotFound)

	// wildcard characters are literal
	_, err = s.Find(ctx, "x%")
	assert.ErrorIs(t, err, ErrNotFound)
	a, err = s.Find(ctx, "x_")
	require.NoError(t, err)
	assert.Equal(t, "x_y", a.ID)

	_, err = s.Find(ctx, " ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHistory_Delete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sample("gone", time.UnixMilli(1))))

	require.NoError(t, s.Delete(ctx, "gone"))
	_, err := s.Get(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "gone"), ErrNotFound)
}

func TestHistory_SaveRequiresID(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.Save(context.Background(), Analysis{}))
}

func TestHistory_InMemory(t *testing.T) {
	s, err := OpenHistory(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(context.Background(), sample("m", time.UnixMilli(1))))
	list, err := s.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestHistory_ReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := OpenHistory(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), sample("keep", time.UnixMilli(1))))
	require.NoError(t, s.Close())

	s, err = OpenHistory(path)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Get(context.Background(), "keep")
	assert.NoError(t, err)
}

func TestRecorder_SavesStatesWithQuestions(t *testing.T) {
	s := openTestStore(t)
	rec := NewRecorder(s)

	rec.StateChanged(wizard.State{Stage: wizard.StageProjectInfo})
	rec.StateChanged(wizard.State{AnalysisID: "no-questions", Stage: wizard.StageProjectInfo})

	st := wizard.State{
		AnalysisID:      "an-1",
		Stage:           wizard.StageSummary,
		ProcurementType: "Hardware",
		Description:     "Laptops",
		Questions:       []types.Question{{ID: "q-0", Text: "Größe?"}},
		Answers:         []types.Answer{{QuestionID: "q-0", Text: "15"}},
		UpdatedAt:       time.UnixMilli(42),
	}
	rec.StateChanged(st)

	list, err := s.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "an-1", list[0].ID)
	assert.Equal(t, "summary", list[0].Stage)

	r := list[0].Report()
	assert.Equal(t, "an-1", r.AnalysisID)
	require.Len(t, r.Pairs, 1)
	assert.Equal(t, "15", r.Pairs[0].Answer)
}

func TestHistory_MarkExported(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.UnixMilli(1_700_000_000_000)
	s.now = func() time.Time { return at }

	require.NoError(t, s.Save(ctx, sample("a1", at)))
	require.NoError(t, s.MarkExported(ctx, "a1", "/tmp/analyse.pdf"))

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/analyse.pdf", got.ExportedPath)
	assert.True(t, got.ExportedAt.Equal(at))

	// later saves from the wizard keep the export record
	require.NoError(t, s.Save(ctx, sample("a1", at.Add(time.Minute))))
	got, err = s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/analyse.pdf", got.ExportedPath)

	assert.ErrorIs(t, s.MarkExported(ctx, "missing", "x.pdf"), ErrNotFound)
}

func TestMigrations_UpgradeV1Database(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE analyses (
		id TEXT PRIMARY KEY,
		stage TEXT NOT NULL,
		procurement_type TEXT NOT NULL,
		description TEXT NOT NULL,
		questions TEXT NOT NULL DEFAULT '[]',
		answers TEXT NOT NULL DEFAULT '[]',
		final_description TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO analyses (id, stage, procurement_type, description, created_at, updated_at)
		VALUES ('old', 'summary', 'Bau', 'Sanierung', 1, 1)`)
	require.NoError(t, err)
	require.Equal(t, 0, GetSchemaVersion(db))
	require.NoError(t, db.Close())

	s, err := OpenHistory(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, CurrentSchemaVersion, GetSchemaVersion(s.db))
	assert.True(t, columnExists(s.db, "analyses", "exported_path"))
	assert.True(t, columnExists(s.db, "analyses", "exported_at"))

	got, err := s.Get(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, "Sanierung", got.Description)
	assert.Empty(t, got.ExportedPath)
	assert.True(t, got.ExportedAt.IsZero())

	// running again is a no-op
	require.NoError(t, RunMigrations(s.db))
}
