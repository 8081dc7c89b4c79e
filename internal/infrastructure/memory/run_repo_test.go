package memory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/infrastructure/memory"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/repository"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, repo *memory.RunRepository, n int, jobID string) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := repo.Create(context.Background(), &domain.JobRun{
			ID:        fmt.Sprintf("%s-%d", jobID, i),
			JobID:     jobID,
			Attempt:   1,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			EndedAt:   base.Add(time.Duration(i)*time.Minute + time.Second),
			Outcome:   domain.OutcomeSuccess,
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}
}

func TestList_NewestFirstAndFiltered(t *testing.T) {
	repo := memory.NewRunRepository(100)
	seed(t, repo, 3, "orders")
	seed(t, repo, 2, "users")

	runs, err := repo.List(context.Background(), repository.ListRunsInput{JobID: "orders"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != "orders-2" || runs[2].ID != "orders-0" {
		t.Errorf("unexpected order: %s .. %s", runs[0].ID, runs[2].ID)
	}

	all, _ := repo.List(context.Background(), repository.ListRunsInput{Limit: 2})
	if len(all) != 2 || all[0].ID != "users-1" {
		t.Errorf("limit not applied or wrong order: %+v", all)
	}
}

func TestCreate_EvictsOldestAtCapacity(t *testing.T) {
	repo := memory.NewRunRepository(3)
	seed(t, repo, 5, "orders")

	runs, _ := repo.List(context.Background(), repository.ListRunsInput{})
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[2].ID != "orders-2" {
		t.Errorf("expected oldest kept run orders-2, got %s", runs[2].ID)
	}
}

func TestList_ReturnsCopies(t *testing.T) {
	repo := memory.NewRunRepository(10)
	seed(t, repo, 1, "orders")

	runs, _ := repo.List(context.Background(), repository.ListRunsInput{})
	runs[0].JobID = "mutated"

	again, _ := repo.List(context.Background(), repository.ListRunsInput{})
	if again[0].JobID != "orders" {
		t.Error("List must not expose internal state")
	}
}

func TestDeleteBefore_RespectsCutoffAndLimit(t *testing.T) {
	repo := memory.NewRunRepository(100)
	seed(t, repo, 10, "orders")

	// runs 0..4 ended before base+5m
	cutoff := base.Add(5 * time.Minute)

	n, err := repo.DeleteBefore(context.Background(), cutoff, 3)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deleted, got %d", n)
	}

	n, _ = repo.DeleteBefore(context.Background(), cutoff, 100)
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}

	runs, _ := repo.List(context.Background(), repository.ListRunsInput{})
	if len(runs) != 5 {
		t.Errorf("expected 5 runs left, got %d", len(runs))
	}
}
