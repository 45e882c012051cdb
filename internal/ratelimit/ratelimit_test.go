package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterAllowsUpToMax(t *testing.T) {
	l := NewLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if res := l.Check(1); !res.Allowed {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}

	res := l.Check(1)
	if res.Allowed {
		t.Error("Request over the limit should be denied")
	}
	if res.Wait <= 0 {
		t.Errorf("Expected positive wait, got %v", res.Wait)
	}
}

func TestLimiterWindowSlides(t *testing.T) {
	current := time.Now()
	l := NewLimiter(2, time.Minute)
	l.now = func() time.Time { return current }

	l.Check(1)
	l.Check(1)
	if res := l.Check(1); res.Allowed {
		t.Fatal("Third request inside the window should be denied")
	}

	current = current.Add(61 * time.Second)
	if res := l.Check(1); !res.Allowed {
		t.Error("Request after the window slid should be allowed")
	}
}

func TestLimiterIsolatesUsers(t *testing.T) {
	l := NewLimiter(1, time.Minute)

	l.Check(1)
	if res := l.Check(2); !res.Allowed {
		t.Error("Second user should not share the first user's quota")
	}
}

func TestCleanupDropsIdleUsers(t *testing.T) {
	current := time.Now()
	l := NewLimiter(5, time.Minute)
	l.now = func() time.Time { return current }

	l.Check(1)
	l.Check(2)

	current = current.Add(2 * time.Minute)
	l.Cleanup()

	if len(l.users) != 0 {
		t.Errorf("Expected all idle users dropped, got %d", len(l.users))
	}
}
