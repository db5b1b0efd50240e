package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"soundscape/model"
)

func newTestService(credits int) (*Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	repo.Credit("dev-1", credits)
	return NewService(repo), repo
}

func TestCostFor(t *testing.T) {
	cases := []struct{ min, want int }{
		{5, 1}, {15, 3}, {30, 6}, {60, 12},
		{1, 1}, {0, 1}, // floor
		{6, 2},
	}
	for _, c := range cases {
		if got := CostFor(c.min); got != c.want {
			t.Errorf("CostFor(%d) = %d, want %d", c.min, got, c.want)
		}
	}
}

func TestStartReservesCredits(t *testing.T) {
	svc, _ := newTestService(5)
	ctx := context.Background()

	job, err := svc.Start(ctx, "dev-1", "key-1", "seed", 15)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobReserved || job.CreditsCost != 3 {
		t.Fatalf("job = %+v", job)
	}
	if bal, _ := svc.Balance(ctx, "dev-1"); bal != 2 {
		t.Fatalf("balance = %d, want 2", bal)
	}
}

func TestStartRejectsOffMenuDuration(t *testing.T) {
	svc, _ := newTestService(100)
	for _, d := range []int{0, -5, 7, 10, 61, 120} {
		_, err := svc.Start(context.Background(), "dev-1", "", "s", d)
		if !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("duration %d: err = %v, want ErrInvalidDuration", d, err)
		}
	}
	if bal, _ := svc.Balance(context.Background(), "dev-1"); bal != 100 {
		t.Fatalf("invalid requests must not touch the balance, got %d", bal)
	}
}

func TestStartInsufficientCredits(t *testing.T) {
	svc, _ := newTestService(2)
	_, err := svc.Start(context.Background(), "dev-1", "", "s", 15)
	ice, ok := IsInsufficientCredits(err)
	if !ok {
		t.Fatalf("err = %v, want InsufficientCreditsError", err)
	}
	if ice.Balance != 2 || ice.Cost != 3 {
		t.Fatalf("details = %+v", ice)
	}
	if bal, _ := svc.Balance(context.Background(), "dev-1"); bal != 2 {
		t.Fatalf("failed start must not debit, balance = %d", bal)
	}
}

func TestStartIdempotentRetry(t *testing.T) {
	svc, _ := newTestService(3)
	ctx := context.Background()

	first, err := svc.Start(ctx, "dev-1", "retry-key", "seed", 15)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Start(ctx, "dev-1", "retry-key", "seed", 15)
	if err != nil {
		t.Fatalf("retry must succeed, got %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("retry created a new job: %s vs %s", second.ID, first.ID)
	}
	if bal, _ := svc.Balance(ctx, "dev-1"); bal != 0 {
		t.Fatalf("retry debited again, balance = %d", bal)
	}
}

func TestStartIdempotentAfterCompletion(t *testing.T) {
	// A retry that arrives after the export finished still maps to the
	// original job, reported as success with its terminal status.
	svc, _ := newTestService(3)
	ctx := context.Background()

	job, _ := svc.Start(ctx, "dev-1", "k", "seed", 15)
	if _, err := svc.Complete(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	again, err := svc.Start(ctx, "dev-1", "k", "seed", 15)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != job.ID || again.Status != model.JobCompleted {
		t.Fatalf("retry = %+v", again)
	}
}

func TestConcurrentStartsSameKey(t *testing.T) {
	svc, _ := newTestService(3)
	ctx := context.Background()

	const n = 16
	jobs := make([]model.ExportJob, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			jobs[i], errs[i] = svc.Start(ctx, "dev-1", "same-key", "seed", 15)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("request %d failed: %v", i, errs[i])
		}
		if jobs[i].ID != jobs[0].ID {
			t.Fatalf("requests observed different jobs: %s vs %s", jobs[i].ID, jobs[0].ID)
		}
	}
	if bal, _ := svc.Balance(ctx, "dev-1"); bal != 0 {
		t.Fatalf("exactly one debit expected, balance = %d", bal)
	}
}

func TestConcurrentStartsDistinctKeysRespectBalance(t *testing.T) {
	// 4 credits, cost 3 each: exactly one of the concurrent distinct
	// requests can win.
	svc, _ := newTestService(4)
	ctx := context.Background()

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Start(ctx, "dev-1", "", "seed", 15)
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else if _, ok := IsInsufficientCredits(err); !ok {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("winners = %d, want 1", won)
	}
	if bal, _ := svc.Balance(ctx, "dev-1"); bal != 1 {
		t.Fatalf("balance = %d, want 1", bal)
	}
}

func TestCancelRestoresCredits(t *testing.T) {
	svc, _ := newTestService(3)
	ctx := context.Background()

	job, _ := svc.Start(ctx, "dev-1", "", "seed", 15)
	if bal, _ := svc.Balance(ctx, "dev-1"); bal != 0 {
		t.Fatalf("balance after reserve = %d", bal)
	}

	canceled, err := svc.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if canceled.Status != model.JobCanceled {
		t.Fatalf("status = %s", canceled.Status)
	}
	if bal, _ := svc.Balance(ctx, "dev-1"); bal != 3 {
		t.Fatalf("balance after cancel = %d, want 3", bal)
	}
}

func TestCancelIdempotent(t *testing.T) {
	svc, _ := newTestService(3)
	ctx := context.Background()

	job, _ := svc.Start(ctx, "dev-1", "", "seed", 15)
	if _, err := svc.Cancel(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("second cancel must be a no-op, got %v", err)
	}
	if bal, _ := svc.Balance(ctx, "dev-1"); bal != 3 {
		t.Fatalf("double refund detected, balance = %d", bal)
	}
}

func TestCompleteIdempotentAndTerminalConflicts(t *testing.T) {
	svc, _ := newTestService(6)
	ctx := context.Background()

	job, _ := svc.Start(ctx, "dev-1", "", "seed", 15)
	if _, err := svc.Complete(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Complete(ctx, job.ID); err != nil {
		t.Fatalf("second complete must be a no-op, got %v", err)
	}
	// completed jobs cannot be canceled: the credits were consumed
	if _, err := svc.Cancel(ctx, job.ID); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("cancel after complete: err = %v, want ErrStatusConflict", err)
	}

	other, _ := svc.Start(ctx, "dev-1", "", "seed", 5)
	if _, err := svc.Cancel(ctx, other.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Complete(ctx, other.ID); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("complete after cancel: err = %v, want ErrStatusConflict", err)
	}
}

func TestJobNotFound(t *testing.T) {
	svc, _ := newTestService(0)
	if _, err := svc.Job(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v", err)
	}
	if _, err := svc.Complete(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestBalanceUnknownDevice(t *testing.T) {
	svc, _ := newTestService(0)
	if bal, err := svc.Balance(context.Background(), "never-seen"); err != nil || bal != 0 {
		t.Fatalf("balance = %d, %v", bal, err)
	}
}
