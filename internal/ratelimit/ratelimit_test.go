package ratelimit

import (
	"testing"
	"time"
)

func TestAllow_BurstThenThrottle(t *testing.T) {
	l := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d within burst should be allowed", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Error("request beyond burst should be rejected")
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	l := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer l.Stop()

	if !l.Allow("10.0.0.1") {
		t.Fatal("first key should be allowed")
	}
	if !l.Allow("10.0.0.2") {
		t.Fatal("second key should have its own bucket")
	}
}

func TestAllow_RefillsOverTime(t *testing.T) {
	l := New(Config{
		RequestsPerMinute: 6000, // 100/sec for a fast test
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer l.Stop()

	if !l.Allow("key") {
		t.Fatal("first request should pass")
	}
	if l.Allow("key") {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(50 * time.Millisecond)
	if !l.Allow("key") {
		t.Error("bucket should have refilled")
	}
}
