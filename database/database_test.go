package database

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w00dy1981/DigitalAssetsDownloader/types"
)

func TestRunStatsAndFailures(t *testing.T) {
	db, err := InitDatabase(filepath.Join(t.TempDir(), "downloads.db"))
	require.NoError(t, err)
	defer db.Close()

	runID := uuid.NewString()
	require.NoError(t, StartRun(db, runID, "parts.xlsx", 3))

	ok := types.WorkItem{RowIndex: 2, Identifier: "A1", Source: "https://x/a.jpg", DestinationPath: "/out/A1.jpg", Kind: types.KindImage}
	require.NoError(t, StoreFetchResult(db, runID, ok, types.FetchResult{
		Succeeded: true, HTTPStatus: 200, ContentType: "image/jpeg_processed", ByteSize: 1200, Message: "Success", BackgroundApplied: true,
	}))

	bad := types.WorkItem{RowIndex: 3, Identifier: "B2", Source: "https://x/b.jpg", DestinationPath: "/out/B2.jpg", Kind: types.KindImage}
	require.NoError(t, StoreFetchResult(db, runID, bad, types.Failed(404, "", types.Errorf(types.ErrRequest, "HTTP 404"))))

	doc := types.WorkItem{RowIndex: 3, Identifier: "B2", Source: "/share/b.pdf", DestinationPath: "/pdf/B2.pdf", Kind: types.KindDocument}
	require.NoError(t, StoreFetchResult(db, runID, doc, types.FetchResult{Succeeded: true, HTTPStatus: 200, ByteSize: 300}))

	require.NoError(t, FinishRun(db, runID, false))

	stats, err := GetRunStats(db, runID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalItems)
	assert.Equal(t, 3, stats.Recorded)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, int64(1500), stats.TotalBytes)
	assert.Equal(t, 1, stats.BackgroundApplied)
	assert.False(t, stats.Cancelled)

	failures, err := ListFailures(db, runID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "B2", failures[0].Identifier)
	assert.Equal(t, 404, failures[0].HTTPStatus)
	assert.Equal(t, "RequestError", failures[0].ErrorKind)

	latest, err := LatestRunID(db)
	require.NoError(t, err)
	assert.Equal(t, runID, latest)
}

func TestStoreFetchResultReplacesSameDestination(t *testing.T) {
	db, err := InitDatabase(filepath.Join(t.TempDir(), "downloads.db"))
	require.NoError(t, err)
	defer db.Close()

	runID := uuid.NewString()
	require.NoError(t, StartRun(db, runID, "", 1))

	item := types.WorkItem{Identifier: "A", DestinationPath: "/out/A.jpg"}
	require.NoError(t, StoreFetchResult(db, runID, item, types.Failed(0, "", types.Errorf(types.ErrTimeout, "timeout"))))
	require.NoError(t, StoreFetchResult(db, runID, item, types.FetchResult{Succeeded: true, ByteSize: 10}))

	stats, err := GetRunStats(db, runID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Recorded)
	assert.Equal(t, 1, stats.Succeeded)
}

func TestInitDatabaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "downloads.db")

	db, err := InitDatabase(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = InitDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	latest, err := LatestRunID(db)
	require.NoError(t, err)
	assert.Empty(t, latest)

	_, err = GetRunStats(db, "missing")
	assert.Error(t, err)
}
