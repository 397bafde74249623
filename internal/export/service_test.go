package export

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"customer-export/internal/config"
	"customer-export/internal/diagnostics"
	"customer-export/internal/misa"
	"customer-export/internal/scope"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func customerWorkbook(t *testing.T) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	rows := [][]any{
		{"Mã khách hàng", "Tên khách hàng", "Email"},
		{"KH001", "Công ty A", "a@example.com"},
		{"KH002", "Công ty B", "b@example.com"},
		{"Tổng", nil, nil},
	}
	for i, row := range rows {
		for j, value := range row {
			if value == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, value))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func writeScopeFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "context.json")
	content := `{"DatabaseId":"db-1","BranchId":"br-1","UserId":"us-1"}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Misa: config.MisaConfig{
			BaseURL:        baseURL,
			Token:          "tok",
			Device:         "dev",
			FileName:       "customer_list",
			FileType:       "xlsx",
			PollMax:        5,
			PollIntervalMs: 1,
		},
	}
}

func TestRunFullWorkflow(t *testing.T) {
	workbookBytes := customerWorkbook(t)
	pollCalls := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/g2/api/export/v1/export/save_param_worker_queue", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Data":{"export_id":"exp-1"}}`))
	})
	mux.HandleFunc("/g2/api/export/v1/export/get_notify_export_by_pull/", func(w http.ResponseWriter, r *http.Request) {
		pollCalls++
		if pollCalls < 2 {
			_, _ = w.Write([]byte(`{"Data":{"status":1}}`))
			return
		}
		_, _ = w.Write([]byte(`{"Data":{"FileUrl":"/files/customer_list.xlsx"}}`))
	})
	mux.HandleFunc("/files/customer_list.xlsx", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(workbookBytes)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	cfg := testConfig(ts.URL)
	svc := NewService(cfg, scope.NewLoader(writeScopeFile(t)), nil, zerolog.Nop())

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "exp-1", result.Metadata.ExportID)
	assert.Equal(t, "db-1", result.Metadata.DatabaseID)
	require.Len(t, result.Rows, 2, "footer row must be filtered")
	assert.Equal(t, "KH001", result.Rows[0]["customerCode"])
	assert.Equal(t, "KH002", result.Rows[1]["customerCode"])

	require.NotNil(t, result.Artifact)
	assert.Equal(t, "customer_list.xlsx", result.Artifact.Name)
	assert.Equal(t, workbookBytes, result.Artifact.Body)
	assert.Contains(t, result.Metadata.SourceURL, "/files/customer_list.xlsx")
}

func TestRunRetainsArtifact(t *testing.T) {
	workbookBytes := customerWorkbook(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/g2/api/export/v1/export/save_param_worker_queue", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Data":{"export_id":"exp-1"}}`))
	})
	mux.HandleFunc("/g2/api/export/v1/export/get_notify_export_by_pull/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Data":{"FileUrl":"/files/f.xlsx"}}`))
	})
	mux.HandleFunc("/files/f.xlsx", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(workbookBytes)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	exportDir := t.TempDir()
	cfg := testConfig(ts.URL)
	cfg.Exports = config.ExportsConfig{Retain: true, Path: exportDir}
	svc := NewService(cfg, scope.NewLoader(writeScopeFile(t)), nil, zerolog.Nop())

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(exportDir, "customer_list.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, workbookBytes, data)
}

func TestRunMissingConfigFailsBeforeNetwork(t *testing.T) {
	networkCalled := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		networkCalled = true
	}))
	t.Cleanup(ts.Close)

	cfg := testConfig(ts.URL)
	cfg.Misa.Token = ""
	svc := NewService(cfg, scope.NewLoader(writeScopeFile(t)), nil, zerolog.Nop())

	_, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN")
	assert.False(t, networkCalled, "validation must fail before any network call")
}

func TestRunPollFailurePersistsSnapshot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/g2/api/export/v1/export/save_param_worker_queue", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Data":{"export_id":"exp-1"}}`))
	})
	mux.HandleFunc("/g2/api/export/v1/export/get_notify_export_by_pull/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Data":{"Status":3}}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := diagnostics.NewStore(client, time.Hour)

	cfg := testConfig(ts.URL)
	svc := NewService(cfg, scope.NewLoader(writeScopeFile(t)), store, zerolog.Nop())

	_, err := svc.Run(context.Background())
	var notReady *misa.NotReadyError
	require.ErrorAs(t, err, &notReady)

	keys := mr.Keys()
	require.Len(t, keys, 1, "a failed run must leave one snapshot behind")

	ctx := context.Background()
	snap, err := store.Get(ctx, keys[0][len("export_snapshot:"):])
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "poll", snap.Stage)
	assert.Equal(t, "exp-1", snap.ExportID)
	assert.Contains(t, string(snap.LastPoll), "Status")
}

func TestRunQueueFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Data":{}}`))
	}))
	t.Cleanup(ts.Close)

	cfg := testConfig(ts.URL)
	svc := NewService(cfg, scope.NewLoader(writeScopeFile(t)), nil, zerolog.Nop())

	_, err := svc.Run(context.Background())
	var queueErr *misa.QueueError
	require.ErrorAs(t, err, &queueErr)
}

func TestConfigOverridesScopeIdentifiers(t *testing.T) {
	cfg := testConfig("http://unused.invalid")
	cfg.Misa.DatabaseID = "override-db"
	svc := NewService(cfg, scope.NewLoader(writeScopeFile(t)), nil, zerolog.Nop())

	scopeCtx, err := svc.scope.Load()
	require.NoError(t, err)
	ids := svc.resolveIdentifiers(scopeCtx)
	assert.Equal(t, "override-db", ids.databaseID)
	assert.Equal(t, "br-1", ids.branchID)
}
