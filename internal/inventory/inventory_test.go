package inventory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/stojala/internal/docstore"
	"github.com/erazemk/stojala/internal/model"
)

// plainClient hides Batch so the compensating path is used.
type plainClient struct {
	docstore.Client
}

// flakyClient is a plainClient whose transaction writes fail while failing is set.
type flakyClient struct {
	docstore.Client
	failing atomic.Bool
}

func (f *flakyClient) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if collection == CollTransactions && f.failing.Load() {
		return errors.New("store unavailable")
	}
	return f.Client.Set(ctx, collection, id, data)
}

// racingClient runs before once, just ahead of the next batch.
type racingClient struct {
	*docstore.Memory
	before func()
}

func (r *racingClient) Batch(ctx context.Context, ops []docstore.Op) error {
	if r.before != nil {
		before := r.before
		r.before = nil
		before()
	}
	return r.Memory.Batch(ctx, ops)
}

type fakeUploader struct {
	category, filename string
	data               []byte
}

func (f *fakeUploader) Upload(_ context.Context, category, filename string, data []byte) (string, error) {
	f.category, f.filename, f.data = category, filename, data
	return "http://blobs/" + category + "/" + filename, nil
}

func newTestCatalog(t *testing.T, wrap func(docstore.Client) docstore.Client) (*Catalog, *docstore.Memory) {
	t.Helper()
	mem := docstore.NewMemory()
	var client docstore.Client = mem
	if wrap != nil {
		client = wrap(mem)
	}
	h := docstore.NewHandle(func(context.Context, docstore.Config) (docstore.Client, error) {
		return client, nil
	})
	require.NoError(t, h.Configure(context.Background(), docstore.Config{APIKey: "k", AuthDomain: "d"}))

	c := NewCatalog(h, &fakeUploader{}, func(r io.Reader) ([]byte, error) { return io.ReadAll(r) })
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
	return c, mem
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func seedStand(t *testing.T, mem *docstore.Memory, id, number, status string) {
	t.Helper()
	require.NoError(t, mem.Set(context.Background(), CollStands, id, map[string]any{
		"number": number,
		"status": status,
	}))
}

func seedPerson(t *testing.T, mem *docstore.Memory, id, name string) {
	t.Helper()
	require.NoError(t, mem.Set(context.Background(), CollResponsibles, id, map[string]any{"name": name}))
}

func TestNotConfigured(t *testing.T) {
	mem := docstore.NewMemory()
	h := docstore.NewHandle(docstore.MemoryConnector(mem))
	c := NewCatalog(h, nil, nil)
	ctx := context.Background()

	assert.ErrorIs(t, c.Start(ctx), docstore.ErrNotConfigured)
	_, err := c.CreateStand(ctx, StandInput{Number: "1"})
	assert.ErrorIs(t, err, docstore.ErrNotConfigured)
	_, err = c.CreateReport(ctx, ReportInput{StandID: "s1"})
	assert.ErrorIs(t, err, docstore.ErrNotConfigured)
	_, err = c.ReceiveStand(ctx, "s1", ReceiveInput{})
	assert.ErrorIs(t, err, docstore.ErrNotConfigured)
	_, err = NewReconciler(c, 0).Sweep(ctx)
	assert.ErrorIs(t, err, docstore.ErrNotConfigured)

	assert.Zero(t, mem.Calls())
}

func TestCreateStand(t *testing.T) {
	c, _ := newTestCatalog(t, nil)
	ctx := context.Background()

	id, err := c.CreateStand(ctx, StandInput{Number: " 042 ", Theme: "Family"})
	require.NoError(t, err)

	stand, ok, err := c.Stands.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "042", stand.Number)
	assert.Equal(t, model.StatusInHall, stand.Status)
	assert.Equal(t, "stand:042", stand.QRCode)
	assert.Len(t, stand.Shelves, model.DefaultShelfCount)
	assert.False(t, stand.CreatedAt.IsZero())

	_, err = c.CreateStand(ctx, StandInput{})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestReportSnapshotsStandNumber(t *testing.T) {
	c, mem := newTestCatalog(t, nil)
	ctx := context.Background()
	seedStand(t, mem, "s1", "042", model.StatusInHall)

	id, err := c.CreateReport(ctx, ReportInput{StandID: "s1"})
	require.NoError(t, err)

	require.NoError(t, c.UpdateStand(ctx, "s1", StandInput{Number: "999"}))

	report, ok, err := c.Reports.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "042", report.StandNumber)

	stand, _, err := c.Stands.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "999", stand.Number)
	assert.Equal(t, "stand:999", stand.QRCode)
}

func TestReportUnknownFallbacks(t *testing.T) {
	c, mem := newTestCatalog(t, nil)
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, CollChecklist, "q1", map[string]any{"question": "Is it clean?", "order": 1}))
	eventually(t, func() bool { _, ok := c.Checklist.Find("q1"); return ok })

	id, err := c.CreateReport(ctx, ReportInput{
		StandID:       "gone",
		ResponsibleID: "nobody",
		Answers: []model.ChecklistAnswer{
			{QuestionID: "q1", Answer: true},
			{QuestionID: "q2", Answer: false},
		},
	})
	require.NoError(t, err)

	report, ok, err := c.Reports.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.UnknownValue, report.StandNumber)
	assert.Equal(t, model.UnknownValue, report.ResponsibleName)
	require.Len(t, report.Answers, 2)
	assert.Equal(t, "Is it clean?", report.Answers[0].Question)
	assert.Equal(t, model.UnknownValue, report.Answers[1].Question)
	assert.True(t, report.HasIssues())
	assert.False(t, report.Date.IsZero())
}

func TestServiceReport(t *testing.T) {
	c, mem := newTestCatalog(t, nil)
	ctx := context.Background()
	seedStand(t, mem, "s1", "1", model.StatusInHall)

	id, err := c.CreateReport(ctx, ReportInput{StandID: "s1"})
	require.NoError(t, err)

	require.NoError(t, c.ServiceReport(ctx, id, ServiceInput{ServicedBy: "Ana", Notes: "fixed"}))
	require.NoError(t, c.ServiceReport(ctx, id, ServiceInput{ServicedBy: "Bor"}))

	report, _, err := c.Reports.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, report.IsServiced)
	assert.Equal(t, "Bor", report.ServicedBy)
	require.NotNil(t, report.ServicedAt)

	assert.ErrorIs(t, c.ServiceReport(ctx, id, ServiceInput{}), ErrInvalid)
}

func TestShelvesAndLookup(t *testing.T) {
	c, _ := newTestCatalog(t, nil)
	ctx := context.Background()

	standID, err := c.CreateStand(ctx, StandInput{Number: "7"})
	require.NoError(t, err)
	poster, err := c.CreateMaterial(ctx, "Poster")
	require.NoError(t, err)

	require.NoError(t, c.SetShelf(ctx, standID, 0, []string{poster, poster, "missing"}))
	require.NoError(t, c.SetShelf(ctx, standID, 3, []string{poster}))
	assert.ErrorIs(t, c.SetShelf(ctx, standID, 9, nil), ErrInvalid)
	assert.ErrorIs(t, c.SetShelf(ctx, "nope", 0, nil), ErrNotFound)

	eventually(t, func() bool {
		s, ok := c.Stands.Find(standID)
		return ok && len(s.Shelves) == 4
	})
	eventually(t, func() bool { _, ok := c.Materials.Find(poster); return ok })

	for _, code := range []string{standID, "stand:7", "7"} {
		s, ok := c.LookupStand(code)
		require.True(t, ok, code)
		assert.Equal(t, standID, s.ID)
	}
	_, ok := c.LookupStand("stand:8")
	assert.False(t, ok)

	s, _ := c.Stands.Find(standID)
	shelves := c.ResolveShelves(s)
	require.Len(t, shelves, 4)
	require.Len(t, shelves[0].Materials, 2)
	assert.Equal(t, "Poster", shelves[0].Materials[0].Name)
	assert.Equal(t, model.UnknownValue, shelves[0].Materials[1].Name)
	assert.Empty(t, shelves[1].Materials)
	assert.Equal(t, model.ShelfID(3), shelves[3].ID)
}

func TestIssueAndReceiveBatched(t *testing.T) {
	c, mem := newTestCatalog(t, nil)
	ctx := context.Background()
	seedStand(t, mem, "s1", "042", model.StatusInHall)
	seedPerson(t, mem, "p1", "Ana Novak")

	txID, err := c.IssueStand(ctx, "s1", IssueInput{ResponsibleID: "p1"})
	require.NoError(t, err)

	stand, _, err := c.Stands.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Novak", stand.Status)

	tx, ok, err := c.Transactions.Get(ctx, txID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.TransactionIssue, tx.Type)
	assert.Equal(t, "042", tx.StandNumber)

	_, err = c.IssueStand(ctx, "s1", IssueInput{ResponsibleID: "p1"})
	assert.ErrorIs(t, err, ErrConflict)

	reportID, err := c.ReceiveStand(ctx, "s1", ReceiveInput{})
	require.NoError(t, err)

	stand, _, err = c.Stands.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, stand.InHall())

	report, ok, err := c.Reports.Get(ctx, reportID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, report.Pending)
	assert.Equal(t, "Ana Novak", report.ResponsibleName)

	receipt, ok, err := c.Transactions.Get(ctx, ReceiptID(reportID))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.TransactionReceive, receipt.Type)
	assert.Equal(t, reportID, receipt.ReportID)

	_, err = c.ReceiveStand(ctx, "s1", ReceiveInput{})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestReceiveWithoutBatch(t *testing.T) {
	c, mem := newTestCatalog(t, func(cl docstore.Client) docstore.Client { return plainClient{cl} })
	ctx := context.Background()
	seedStand(t, mem, "s1", "5", "Bor")

	reportID, err := c.ReceiveStand(ctx, "s1", ReceiveInput{})
	require.NoError(t, err)

	report, ok, err := c.Reports.Get(ctx, reportID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, report.Pending)
	assert.Equal(t, "Bor", report.ResponsibleName)

	_, ok, err = c.Transactions.Get(ctx, ReceiptID(reportID))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInterruptedReceiptIsReconciled(t *testing.T) {
	var flaky *flakyClient
	c, mem := newTestCatalog(t, func(cl docstore.Client) docstore.Client {
		flaky = &flakyClient{Client: cl}
		return flaky
	})
	ctx := context.Background()
	seedStand(t, mem, "s1", "5", "Bor")

	flaky.failing.Store(true)
	reportID, err := c.ReceiveStand(ctx, "s1", ReceiveInput{})
	require.NoError(t, err)

	report, _, err := c.Reports.Get(ctx, reportID)
	require.NoError(t, err)
	assert.True(t, report.Pending)
	stand, _, err := c.Stands.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, stand.InHall())

	r := NewReconciler(c, time.Hour)
	n, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "recent receipts are left alone")

	flaky.failing.Store(false)
	r = NewReconciler(c, 0)
	c.now = func() time.Time { return time.Now().Add(time.Minute) }
	n, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	report, _, err = c.Reports.Get(ctx, reportID)
	require.NoError(t, err)
	assert.False(t, report.Pending)
	_, ok, err := c.Transactions.Get(ctx, ReceiptID(reportID))
	require.NoError(t, err)
	assert.True(t, ok)

	n, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepRemovesOrphanedReport(t *testing.T) {
	c, mem := newTestCatalog(t, func(cl docstore.Client) docstore.Client { return plainClient{cl} })
	ctx := context.Background()
	seedStand(t, mem, "s1", "5", "Bor")

	require.NoError(t, c.Reports.Put(ctx, "r1", model.Report{StandID: "s1", Pending: true}))
	c.now = func() time.Time { return time.Now().Add(time.Minute) }

	n, err := NewReconciler(c, 0).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err := c.Reports.Get(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPeopleAndChecklist(t *testing.T) {
	c, _ := newTestCatalog(t, nil)
	ctx := context.Background()

	id, err := c.CreateResponsible(ctx, ResponsibleInput{FirstName: "Ana", LastName: "Novak"})
	require.NoError(t, err)
	p, _, err := c.Responsibles.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ana Novak", p.Name)

	_, err = c.CreateResponsible(ctx, ResponsibleInput{})
	assert.ErrorIs(t, err, ErrInvalid)

	first, err := c.CreateChecklistItem(ctx, ChecklistInput{Question: "Clean?"})
	require.NoError(t, err)
	eventually(t, func() bool { _, ok := c.Checklist.Find(first); return ok })

	second, err := c.CreateChecklistItem(ctx, ChecklistInput{Question: "Complete?"})
	require.NoError(t, err)
	item, _, err := c.Checklist.Get(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, item.Order)
}

func TestSetMaterialImage(t *testing.T) {
	c, _ := newTestCatalog(t, nil)
	ctx := context.Background()
	uploader := c.blobs.(*fakeUploader)

	id, err := c.CreateMaterial(ctx, "Flyer")
	require.NoError(t, err)

	url, err := c.SetMaterialImage(ctx, id, "my flyer.png", bytes.NewReader([]byte("img")))
	require.NoError(t, err)
	assert.Equal(t, "http://blobs/materials/my_flyer.jpg", url)
	assert.Equal(t, CollMaterials, uploader.category)
	assert.Equal(t, "img", string(uploader.data))

	m, _, err := c.Materials.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, url, m.ImageURL)
}

func TestConcurrentIssueConflicts(t *testing.T) {
	ctx := context.Background()
	racer := &racingClient{}
	c, mem := newTestCatalog(t, func(inner docstore.Client) docstore.Client {
		racer.Memory = inner.(*docstore.Memory)
		return racer
	})
	seedStand(t, mem, "s1", "9", model.StatusInHall)
	seedPerson(t, mem, "p1", "Ana")

	// Another issue lands between the status check and the write.
	racer.before = func() {
		require.NoError(t, mem.Update(ctx, CollStands, "s1", map[string]any{"status": "Bor"}))
	}
	_, err := c.IssueStand(ctx, "s1", IssueInput{ResponsibleID: "p1"})
	require.ErrorIs(t, err, ErrConflict)

	stand, _, err := c.Stands.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Bor", stand.Status)
	txs, err := mem.Query(ctx, CollTransactions, docstore.Query{})
	require.NoError(t, err)
	assert.Empty(t, txs)

	// The same race on receive leaves no report behind.
	racer.before = func() {
		require.NoError(t, mem.Update(ctx, CollStands, "s1", map[string]any{"status": model.StatusInHall}))
	}
	_, err = c.ReceiveStand(ctx, "s1", ReceiveInput{ResponsibleID: "p1"})
	require.ErrorIs(t, err, ErrConflict)
	reports, err := mem.Query(ctx, CollReports, docstore.Query{})
	require.NoError(t, err)
	assert.Empty(t, reports)
}
