package rotation

import (
	"testing"
	"time"
)

func TestPickRandomSkipsBlacklisted(t *testing.T) {
	p := NewPool("account", []string{"a.json", "b.json"}, time.Minute, nil)

	var bad *Item
	for i := 0; i < 10; i++ {
		it := p.PickRandom()
		if it == nil {
			t.Fatal("pick returned nil from a fresh pool")
		}
		if it.Value == "a.json" {
			bad = it
			break
		}
	}
	if bad == nil {
		t.Fatal("never picked a.json in 10 tries")
	}

	p.MarkBad(bad, "login expired")
	for i := 0; i < 50; i++ {
		it := p.PickRandom()
		if it == nil {
			t.Fatal("pick returned nil with one eligible item left")
		}
		if it.Value == "a.json" {
			t.Fatal("picked a blacklisted item")
		}
	}
}

func TestBlacklistTTLExpiry(t *testing.T) {
	p := NewPool("proxy", []string{"http://p1:8080"}, 30*time.Second, nil)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	p.SetClock(func() time.Time { return now })

	it := p.PickRandom()
	if it == nil {
		t.Fatal("pick returned nil")
	}
	p.MarkBad(it, "timeout")

	if got := p.PickRandom(); got != nil {
		t.Fatalf("picked %q before TTL expiry", got.Value)
	}

	now = base.Add(29 * time.Second)
	if got := p.PickRandom(); got != nil {
		t.Fatalf("picked %q 1s before TTL expiry", got.Value)
	}

	now = base.Add(30 * time.Second)
	got := p.PickRandom()
	if got == nil {
		t.Fatal("item not eligible again after TTL elapsed")
	}
	if got.ConsecutiveFailures != 1 {
		t.Fatalf("ConsecutiveFailures = %d, want 1", got.ConsecutiveFailures)
	}
}

func TestZeroTTLIsPermanent(t *testing.T) {
	p := NewPool("proxy", []string{"http://p1:8080"}, 0, nil)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	p.SetClock(func() time.Time { return now })

	it := p.PickRandom()
	p.MarkBad(it, "banned")

	now = base.Add(24 * time.Hour)
	if got := p.PickRandom(); got != nil {
		t.Fatalf("zero-TTL blacklist should last the whole run, got %q", got.Value)
	}
}

func TestEmptyPool(t *testing.T) {
	p := NewPool("account", nil, time.Minute, nil)
	if p.Size() != 0 {
		t.Fatalf("Size = %d, want 0", p.Size())
	}
	if got := p.PickRandom(); got != nil {
		t.Fatalf("empty pool pick = %v, want nil", got)
	}
}

func TestParseProxyPool(t *testing.T) {
	got := ParseProxyPool("http://a:1, http://b:2\nhttp://c:3,\n")
	want := []string{"http://a:1", "http://b:2", "http://c:3"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if out := ParseProxyPool("  "); out != nil {
		t.Fatalf("blank pool = %v, want nil", out)
	}
}
