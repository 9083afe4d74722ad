package api

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/stojala/internal/blobstore"
	"github.com/erazemk/stojala/internal/docstore"
	"github.com/erazemk/stojala/internal/inventory"
	"github.com/erazemk/stojala/internal/model"
	"github.com/erazemk/stojala/internal/settings"
	"github.com/erazemk/stojala/internal/toast"
)

var testStoreConfig = map[string]string{
	"apiKey":     "test-api-key-1234",
	"authDomain": "stojala.test",
	"projectId":  "hall",
}

type testServer struct {
	*httptest.Server
	mem      *docstore.Memory
	services *Services
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	mem := docstore.NewMemory()
	handle := docstore.NewHandle(docstore.MemoryConnector(mem))
	blobs := blobstore.New(filepath.Join(dir, "blobs"), "http://stojala.test")
	notices := toast.NewQueue(time.Minute, toast.DefaultLimit)
	t.Cleanup(notices.Close)

	stored, err := settings.Open(filepath.Join(dir, "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { stored.Close() })

	catalog := inventory.NewCatalog(handle, blobs, inventory.ProcessImage)
	t.Cleanup(catalog.Close)

	s := &Services{
		Context:  context.Background(),
		Store:    handle,
		Settings: stored,
		Catalog:  catalog,
		Blobs:    blobs,
		Notices:  notices,
	}

	server := httptest.NewServer(LoggingMiddleware(NewRouter(s)))
	t.Cleanup(server.Close)
	return &testServer{Server: server, mem: mem, services: s}
}

// configure applies the test store settings through the API.
func (ts *testServer) configure(t *testing.T) {
	t.Helper()
	status := ts.do(t, http.MethodPut, "/api/settings", testStoreConfig, nil)
	require.Equal(t, http.StatusOK, status)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ts.services.Catalog.Wait(ctx))
}

// do sends a JSON request and decodes the response into out when non-nil.
func (ts *testServer) do(t *testing.T, method, path string, body, out any) int {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

func TestUnconfiguredStore(t *testing.T) {
	ts := setupTestServer(t)

	var body map[string]string
	status := ts.do(t, http.MethodGet, "/api/materials", nil, &body)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "store is not configured", body["error"])

	status = ts.do(t, http.MethodPost, "/api/stands", map[string]string{"number": "1"}, &body)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	var settingsResp settingsResponse
	status = ts.do(t, http.MethodGet, "/api/settings", nil, &settingsResp)
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, settingsResp.Configured)

	assert.Zero(t, ts.mem.Calls(), "no store call may happen before configuration")
}

func TestSettingsFlow(t *testing.T) {
	ts := setupTestServer(t)

	status := ts.do(t, http.MethodPut, "/api/settings", map[string]string{"authDomain": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, ts.services.Store.Configured())

	ts.configure(t)

	var resp settingsResponse
	status = ts.do(t, http.MethodGet, "/api/settings", nil, &resp)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Configured)
	assert.NotEqual(t, testStoreConfig["apiKey"], resp.Store.APIKey)
	assert.True(t, strings.HasSuffix(resp.Store.APIKey, "1234"))
	assert.Contains(t, resp.Missing, "storageBucket")

	saved, err := ts.services.Settings.Load()
	require.NoError(t, err)
	assert.Equal(t, testStoreConfig["apiKey"], saved.Store.APIKey)
}

func TestClearSettings(t *testing.T) {
	ts := setupTestServer(t)
	ts.configure(t)

	require.Equal(t, http.StatusCreated,
		ts.do(t, http.MethodPost, "/api/materials", map[string]string{"name": "Poster"}, nil))
	eventually(t, func() bool { return len(ts.services.Catalog.Materials.Items()) == 1 })

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/api/settings", nil, nil))

	var resp settingsResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/settings", nil, &resp))
	assert.False(t, resp.Configured)
	_, err := ts.services.Settings.Load()
	assert.ErrorIs(t, err, settings.ErrNotFound)

	assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodGet, "/api/materials", nil, nil))
	eventually(t, func() bool {
		return errors.Is(ts.services.Catalog.Materials.Err(), docstore.ErrNotConfigured)
	})

	// Reconnecting brings the same data back.
	ts.configure(t)
	var list listResponse[model.Material]
	eventually(t, func() bool {
		ts.do(t, http.MethodGet, "/api/materials", nil, &list)
		return len(list.Items) == 1 && list.Error == ""
	})
}

func TestMaterialsAPIFlow(t *testing.T) {
	ts := setupTestServer(t)
	ts.configure(t)

	var created map[string]string
	status := ts.do(t, http.MethodPost, "/api/materials", map[string]string{"name": "Brochure"}, &created)
	require.Equal(t, http.StatusCreated, status)
	id := created["id"]
	require.NotEmpty(t, id)

	status = ts.do(t, http.MethodPost, "/api/materials", map[string]string{"name": " "}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	var list listResponse[model.Material]
	eventually(t, func() bool {
		ts.do(t, http.MethodGet, "/api/materials", nil, &list)
		return len(list.Items) == 1
	})
	assert.Equal(t, "Brochure", list.Items[0].Name)
	assert.False(t, list.Loading)

	status = ts.do(t, http.MethodPut, "/api/materials/"+id, map[string]string{"name": "Leaflet"}, nil)
	require.Equal(t, http.StatusOK, status)
	eventually(t, func() bool {
		ts.do(t, http.MethodGet, "/api/materials", nil, &list)
		return len(list.Items) == 1 && list.Items[0].Name == "Leaflet"
	})

	status = ts.do(t, http.MethodDelete, "/api/materials/"+id, nil, nil)
	require.Equal(t, http.StatusOK, status)
	eventually(t, func() bool {
		ts.do(t, http.MethodGet, "/api/materials", nil, &list)
		return len(list.Items) == 0
	})
}

func TestStandIssueReceiveFlow(t *testing.T) {
	ts := setupTestServer(t)
	ts.configure(t)
	catalog := ts.services.Catalog

	var created map[string]string
	require.Equal(t, http.StatusCreated,
		ts.do(t, http.MethodPost, "/api/stands", map[string]string{"number": "12", "theme": "Family"}, &created))
	standID := created["id"]

	require.Equal(t, http.StatusCreated,
		ts.do(t, http.MethodPost, "/api/responsibles", map[string]string{"firstName": "Ana", "lastName": "Novak"}, &created))
	personID := created["id"]

	require.Equal(t, http.StatusCreated,
		ts.do(t, http.MethodPost, "/api/checklist", map[string]string{"question": "Are all shelves intact?"}, &created))
	questionID := created["id"]

	eventually(t, func() bool {
		_, ok := catalog.Checklist.Find(questionID)
		return ok && len(catalog.Stands.Items()) == 1
	})

	var stand standResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/stands/lookup?code=stand:12", nil, &stand))
	assert.Equal(t, standID, stand.Stand.ID)
	assert.Len(t, stand.Shelves, model.DefaultShelfCount)

	issue := map[string]string{"responsibleId": personID}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/stands/"+standID+"/issue", issue, nil))
	eventually(t, func() bool {
		s, ok := catalog.Stands.Find(standID)
		return ok && s.Status == "Ana Novak"
	})
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/api/stands/"+standID+"/issue", issue, nil))

	receive := map[string]any{
		"responsibleId": personID,
		"answers":       []map[string]any{{"questionId": questionID, "answer": false, "notes": "bent"}},
	}
	var received map[string]string
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/stands/"+standID+"/receive", receive, &received))

	var reports listResponse[model.Report]
	eventually(t, func() bool {
		ts.do(t, http.MethodGet, "/api/reports?open=true", nil, &reports)
		return len(reports.Items) == 1
	})
	report := reports.Items[0]
	assert.Equal(t, received["reportId"], report.ID)
	assert.Equal(t, "12", report.StandNumber)
	assert.Equal(t, "Ana Novak", report.ResponsibleName)
	require.Len(t, report.Answers, 1)
	assert.Equal(t, "Are all shelves intact?", report.Answers[0].Question)

	var txs listResponse[model.Transaction]
	eventually(t, func() bool {
		ts.do(t, http.MethodGet, "/api/transactions?standId="+standID, nil, &txs)
		return len(txs.Items) == 2
	})

	service := map[string]string{"servicedBy": "Maintenance", "notes": "fixed"}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/reports/"+report.ID+"/service", service, nil))
	eventually(t, func() bool {
		ts.do(t, http.MethodGet, "/api/reports?open=true", nil, &reports)
		return len(reports.Items) == 0
	})

	var got model.Report
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/reports/"+report.ID, nil, &got))
	assert.True(t, got.IsServiced)
	assert.Equal(t, "Maintenance", got.ServicedBy)
}

func TestReportForMissingStand(t *testing.T) {
	ts := setupTestServer(t)
	ts.configure(t)

	var created map[string]string
	status := ts.do(t, http.MethodPost, "/api/reports", map[string]any{"standId": "gone"}, &created)
	require.Equal(t, http.StatusCreated, status)

	eventually(t, func() bool {
		r, ok := ts.services.Catalog.Reports.Find(created["id"])
		return ok && r.StandNumber == model.UnknownValue
	})
}

func TestNoticesFlow(t *testing.T) {
	ts := setupTestServer(t)
	ts.configure(t)

	ts.do(t, http.MethodPost, "/api/materials", map[string]string{"name": "Poster"}, nil)
	ts.do(t, http.MethodPost, "/api/materials", map[string]string{"name": ""}, nil)

	var notices []toast.Notice
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/notices", nil, &notices))
	require.Len(t, notices, 3)
	assert.Equal(t, "Settings saved", notices[0].Message)
	assert.Equal(t, toast.Success, notices[1].Severity)
	assert.Equal(t, toast.Error, notices[2].Severity)
	assert.True(t, strings.HasPrefix(notices[2].Message, "Could not add material"))

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/api/notices/"+notices[0].ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/notices/"+notices[0].ID, nil, nil))
}

func TestStreamUnknownCollection(t *testing.T) {
	ts := setupTestServer(t)
	ts.configure(t)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/stream/users", nil, nil))
}

func TestStreamUnconfigured(t *testing.T) {
	ts := setupTestServer(t)
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodGet, "/api/stream/materials", nil, nil))
}

func TestStreamSnapshots(t *testing.T) {
	ts := setupTestServer(t)
	ts.configure(t)
	require.NoError(t, ts.mem.Set(context.Background(), inventory.CollMaterials, "m1", map[string]any{"name": "Bible"}))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream/materials", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// next returns the data line of the next event with the given name.
	scanner := bufio.NewScanner(resp.Body)
	next := func(event string) string {
		t.Helper()
		var current string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				current = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: ") && current == event:
				return strings.TrimPrefix(line, "data: ")
			}
		}
		t.Fatalf("stream ended before %q event: %v", event, scanner.Err())
		return ""
	}

	var snap listResponse[model.Material]
	require.NoError(t, json.Unmarshal([]byte(next("snapshot")), &snap))
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "m1", snap.Items[0].ID)

	require.NoError(t, ts.mem.Set(context.Background(), inventory.CollMaterials, "m2", map[string]any{"name": "Atlas"}))
	require.NoError(t, json.Unmarshal([]byte(next("snapshot")), &snap))
	require.Len(t, snap.Items, 2)
	assert.Equal(t, "Atlas", snap.Items[0].Name)
}

func TestExports(t *testing.T) {
	ts := setupTestServer(t)
	ts.configure(t)
	ctx := context.Background()
	require.NoError(t, ts.mem.Set(ctx, inventory.CollReports, "r1", map[string]any{
		"standId":     "s1",
		"standNumber": "7",
		"date":        docstore.FromTime(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)),
		"answers":     []any{map[string]any{"questionId": "q1", "question": "Clean?", "answer": true}},
	}))
	require.NoError(t, ts.mem.Set(ctx, inventory.CollTransactions, "t1", map[string]any{
		"type":        model.TransactionIssue,
		"standId":     "s1",
		"standNumber": "7",
		"date":        docstore.FromTime(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
	}))
	eventually(t, func() bool {
		return len(ts.services.Catalog.Reports.Items()) == 1 && len(ts.services.Catalog.Transactions.Items()) == 1
	})

	tests := []struct {
		path        string
		contentType string
		prefix      string
	}{
		{"/api/reports/export.pdf", "application/pdf", "%PDF"},
		{"/api/reports/export.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "PK"},
		{"/api/transactions/export.csv", "text/csv; charset=utf-8", "date,type,stand"},
	}

	for _, tt := range tests {
		resp, err := http.Get(ts.URL + tt.path)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode, tt.path)
		assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"), tt.path)
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment", tt.path)
		assert.True(t, bytes.HasPrefix(body, []byte(tt.prefix)), tt.path)
	}
}

func TestStandQR(t *testing.T) {
	ts := setupTestServer(t)
	ts.configure(t)

	var created map[string]string
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/stands", map[string]string{"number": "3"}, &created))
	eventually(t, func() bool {
		_, ok := ts.services.Catalog.Stands.Find(created["id"])
		return ok
	})

	resp, err := http.Get(ts.URL + "/api/stands/" + created["id"] + "/qr.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(body, []byte("\x89PNG")))
}

func TestStandQRFilenameEscaped(t *testing.T) {
	ts := setupTestServer(t)
	ts.configure(t)

	var created map[string]string
	number := `7"A; x=y`
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/stands", map[string]string{"number": number}, &created))
	eventually(t, func() bool {
		_, ok := ts.services.Catalog.Stands.Find(created["id"])
		return ok
	})

	resp, err := http.Get(ts.URL + "/api/stands/" + created["id"] + "/qr.png")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	disposition, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "inline", disposition)
	assert.Equal(t, "stand-"+number+".png", params["filename"])
	assert.NotContains(t, params, "x")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
