package engine

import (
	"context"
	"testing"
	"time"
)

func TestQueue_DueRespectsSchedule(t *testing.T) {
	queue := setupTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	dueJob := Job{DeliveryID: "dlv_due", SubscriptionID: "sub_1"}
	futureJob := Job{DeliveryID: "dlv_future", SubscriptionID: "sub_1"}

	if err := queue.Enqueue(ctx, dueJob, now.Add(-time.Second)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := queue.Enqueue(ctx, futureJob, now.Add(time.Hour)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	members, err := queue.Due(ctx, now, 10)
	if err != nil {
		t.Fatalf("due failed: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 due member, got %d", len(members))
	}

	job, err := DecodeJob(members[0])
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if job.DeliveryID != "dlv_due" {
		t.Errorf("due job = %q, want dlv_due", job.DeliveryID)
	}
}

func TestQueue_ClaimIsExclusive(t *testing.T) {
	queue := setupTestQueue(t)
	ctx := context.Background()

	job := Job{DeliveryID: "dlv_1", SubscriptionID: "sub_1"}
	if err := queue.Enqueue(ctx, job, time.Now()); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	members, _ := queue.Due(ctx, time.Now(), 10)
	if len(members) != 1 {
		t.Fatalf("expected 1 due member, got %d", len(members))
	}

	claimed, err := queue.Claim(ctx, members[0])
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if !claimed {
		t.Error("first claim should succeed")
	}

	// A second poller racing on the same member loses.
	claimed, err = queue.Claim(ctx, members[0])
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	if claimed {
		t.Error("second claim should report the member already taken")
	}
}

func TestQueue_ReEnqueueMovesDueTime(t *testing.T) {
	queue := setupTestQueue(t)
	ctx := context.Background()

	job := Job{DeliveryID: "dlv_1", SubscriptionID: "sub_1"}
	queue.Enqueue(ctx, job, time.Now().Add(-time.Minute))
	queue.Enqueue(ctx, job, time.Now().Add(time.Hour))

	depth, _ := queue.Depth(ctx)
	if depth != 1 {
		t.Errorf("re-enqueueing the same job should not duplicate it, depth = %d", depth)
	}

	members, _ := queue.Due(ctx, time.Now(), 10)
	if len(members) != 0 {
		t.Errorf("job should no longer be due after rescheduling, got %d", len(members))
	}
}
