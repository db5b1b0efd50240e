package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"

	"soundscape/cache"
	"soundscape/core/entitle"
	"soundscape/core/ledger"
	"soundscape/model"
)

// memProgress is an in-process progressStore for handler tests.
type memProgress struct {
	mu sync.Mutex
	m  map[string]cache.Progress
}

func newMemProgress() *memProgress {
	return &memProgress{m: make(map[string]cache.Progress)}
}

func (p *memProgress) Set(_ context.Context, pr cache.Progress) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[pr.JobID] = pr
	return nil
}

func (p *memProgress) SetIfAbsent(_ context.Context, pr cache.Progress) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.m[pr.JobID]; exists {
		return false, nil
	}
	p.m[pr.JobID] = pr
	return true, nil
}

func (p *memProgress) Get(_ context.Context, jobID string) (cache.Progress, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.m[jobID]
	return pr, ok, nil
}

func newExportHandler(t *testing.T, device string, credits int) (*APIHandler, string) {
	t.Helper()
	repo := ledger.NewMemoryRepository()
	hash := entitle.HashDeviceID(device)
	repo.Credit(hash, credits)
	h := &APIHandler{
		ledger:   ledger.NewService(repo),
		progress: newMemProgress(),
	}
	return h, hash
}

func deviceRequest(method, target, device string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(context.WithValue(req.Context(), deviceIDKey, device))
}

func completeJob(h *APIHandler, jobID, device string) *httptest.ResponseRecorder {
	req := deviceRequest(http.MethodPost, "/api/export/"+jobID+"/complete", device)
	req = mux.SetURLVars(req, map[string]string{"id": jobID})
	rec := httptest.NewRecorder()
	h.CompleteExportHandler(rec, req)
	return rec
}

func TestCompleteExportHandlerAcksAndIsIdempotent(t *testing.T) {
	h, hash := newExportHandler(t, "device-a", 10)
	job, err := h.ledger.Start(context.Background(), hash, "", "seed", 15)
	if err != nil {
		t.Fatal(err)
	}

	rec := completeJob(h, job.ID, "device-a")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got model.ExportJob
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != model.JobCompleted {
		t.Fatalf("status = %q, want %q", got.Status, model.JobCompleted)
	}

	if rec := completeJob(h, job.ID, "device-a"); rec.Code != http.StatusOK {
		t.Fatalf("repeated complete = %d, want 200", rec.Code)
	}
}

func TestCompleteExportHandlerHidesForeignJobs(t *testing.T) {
	h, hash := newExportHandler(t, "device-a", 10)
	job, err := h.ledger.Start(context.Background(), hash, "", "seed", 15)
	if err != nil {
		t.Fatal(err)
	}

	if rec := completeJob(h, job.ID, "device-b"); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign device = %d, want 404", rec.Code)
	}
	if rec := completeJob(h, "no-such-job", "device-a"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job = %d, want 404", rec.Code)
	}

	current, err := h.ledger.Job(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if current.Status != model.JobReserved {
		t.Fatalf("job mutated by foreign device: %q", current.Status)
	}
}

func TestCompleteExportHandlerConflictsWithCanceled(t *testing.T) {
	h, hash := newExportHandler(t, "device-a", 10)
	job, err := h.ledger.Start(context.Background(), hash, "", "seed", 15)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.ledger.Cancel(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}

	if rec := completeJob(h, job.ID, "device-a"); rec.Code != http.StatusConflict {
		t.Fatalf("complete after cancel = %d, want 409", rec.Code)
	}
}

func TestConcurrentStartRetriesElectOneRender(t *testing.T) {
	h, hash := newExportHandler(t, "device-a", 10)
	job, err := h.ledger.Start(context.Background(), hash, "retry-key", "seed", 15)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var wins int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.claimRender(context.Background(), job) {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("render claimed %d times, want exactly 1", wins)
	}

	done, err := h.ledger.Complete(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if h.claimRender(context.Background(), done) {
		t.Fatal("terminal job must never claim a render")
	}
}
