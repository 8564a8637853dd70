// internal/tenant/quota_test.go
//
// Unit-tests for daily quotas, concurrency caps, and rate limits.

package tenant

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
)

func TestDailyQuotaIsAtomic(t *testing.T) {
	src := NewStaticSource(map[string]Config{
		"acme": {Quotas: Quotas{MaxOperationsPerDay: 10}},
	})
	p := newProvider(t, src)
	ten, _ := p.Load(context.Background(), "acme")
	ctx := WithTenant(context.Background(), ten)

	var ok, denied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.IncrementTransformationCount(ctx)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrQuotaExceeded):
				denied.Add(1)
			default:
				t.Errorf("unexpected err: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 10 || denied.Load() != 40 {
		t.Fatalf("ok=%d denied=%d, want 10/40", ok.Load(), denied.Load())
	}
	if p.HasTransformationQuota(ctx) {
		t.Fatal("HasTransformationQuota true after limit")
	}
}

func TestDailyQuotaRollsOverAtUTCMidnight(t *testing.T) {
	now := time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC)
	src := NewStaticSource(map[string]Config{
		"acme": {Quotas: Quotas{MaxOperationsPerDay: 1}},
	})
	p := newProvider(t, src, func(o *Options) { o.Now = func() time.Time { return now } })
	ten, _ := p.Load(context.Background(), "acme")
	ctx := WithTenant(context.Background(), ten)

	if _, err := p.IncrementTransformationCount(ctx); err != nil {
		t.Fatalf("first increment: %v", err)
	}
	_, err := p.IncrementTransformationCount(ctx)
	if platformerrors.GetCode(err) != platformerrors.CodeRateLimit {
		t.Fatalf("second increment code = %s", platformerrors.GetCode(err))
	}

	now = now.Add(2 * time.Minute)
	if !p.HasTransformationQuota(ctx) {
		t.Fatal("quota not reset on new day")
	}
	if n, err := p.IncrementTransformationCount(ctx); err != nil || n != 1 {
		t.Fatalf("after rollover = %d, %v", n, err)
	}
}

func TestUnlimitedQuota(t *testing.T) {
	p := newProvider(t, nil)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if _, err := p.IncrementTransformationCount(ctx); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	if got := p.TransformationCount(ctx); got != 100 {
		t.Fatalf("count = %d", got)
	}
}

func TestAcquireOperation(t *testing.T) {
	src := NewStaticSource(map[string]Config{
		"acme": {Quotas: Quotas{MaxConcurrentOperations: 2}},
	})
	p := newProvider(t, src)
	ten, _ := p.Load(context.Background(), "acme")
	ctx := WithTenant(context.Background(), ten)

	r1, err := p.AcquireOperation(ctx)
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	r2, err := p.AcquireOperation(ctx)
	if err != nil {
		t.Fatalf("acquire 2: %v", err)
	}
	if _, err := p.AcquireOperation(ctx); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("acquire 3 err = %v", err)
	}

	r1()
	r1() // idempotent
	r3, err := p.AcquireOperation(ctx)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if _, err := p.AcquireOperation(ctx); err == nil {
		t.Fatal("double release freed two slots")
	}
	r2()
	r3()
}

func TestAllow(t *testing.T) {
	src := NewStaticSource(map[string]Config{
		"acme": {RateLimit: RateLimit{RequestsPerSecond: 1, Burst: 3}},
	})
	p := newProvider(t, src)
	ten, _ := p.Load(context.Background(), "acme")
	ctx := WithTenant(context.Background(), ten)

	allowed := 0
	for i := 0; i < 10; i++ {
		if p.Allow(ctx) {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("allowed %d, want burst of 3", allowed)
	}
	if !p.Allow(context.Background()) {
		t.Fatal("default tenant should be unlimited")
	}
}
