package followup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestRedisGuardAcquireOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	guard := NewRedisGuard(client)
	ctx := context.Background()
	step := Step{
		LeadID:     uuid.New(),
		Generation: 2,
		StepIndex:  1,
		DueAt:      time.Now(),
		EnqueuedAt: time.Now(),
	}

	ok, err := guard.Acquire(ctx, step)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if !ok {
		t.Fatal("first Acquire should succeed")
	}

	ok, err = guard.Acquire(ctx, step)
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if ok {
		t.Fatal("second Acquire for the same step must fail")
	}
}

func TestRedisGuardKeysAreScopedPerStep(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	guard := NewRedisGuard(client)
	ctx := context.Background()
	leadID := uuid.New()

	base := Step{LeadID: leadID, Generation: 0, StepIndex: 0}
	if ok, _ := guard.Acquire(ctx, base); !ok {
		t.Fatal("base step should acquire")
	}

	// Same lead, different step or generation, is an independent claim.
	variants := []Step{
		{LeadID: leadID, Generation: 0, StepIndex: 1},
		{LeadID: leadID, Generation: 1, StepIndex: 0},
		{LeadID: uuid.New(), Generation: 0, StepIndex: 0},
	}
	for i, s := range variants {
		ok, err := guard.Acquire(ctx, s)
		if err != nil {
			t.Fatalf("variant %d: %v", i, err)
		}
		if !ok {
			t.Errorf("variant %d should be an independent claim", i)
		}
	}
}

func TestMemoryGuardAcquireOnce(t *testing.T) {
	guard := NewMemoryGuard()
	ctx := context.Background()
	step := Step{LeadID: uuid.New(), Generation: 0, StepIndex: 0}

	if ok, _ := guard.Acquire(ctx, step); !ok {
		t.Fatal("first Acquire should succeed")
	}
	if ok, _ := guard.Acquire(ctx, step); ok {
		t.Fatal("second Acquire must fail")
	}
}
