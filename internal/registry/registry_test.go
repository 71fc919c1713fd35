package registry

import (
	"net/netip"
	"testing"
)

func TestAddEnforcesQuota(t *testing.T) {
	t.Parallel()
	r := New()
	a1 := netip.MustParseAddrPort("10.0.0.1:1")
	a2 := netip.MustParseAddrPort("10.0.0.1:2")
	a3 := netip.MustParseAddrPort("10.0.0.1:3")

	if err := r.Add(a1, "bob", "example.com", 2, nil); err != nil {
		t.Fatalf("Add 1: %v", err)
	}
	if err := r.Add(a2, "bob", "example.com", 2, nil); err != nil {
		t.Fatalf("Add 2: %v", err)
	}
	if err := r.Add(a3, "bob", "example.com", 2, nil); err == nil {
		t.Fatal("expected third allocation to be rejected by quota")
	}
	if got := r.Count("bob", "example.com"); got != 2 {
		t.Errorf("expected count 2, got %d", got)
	}
}

func TestDelFreesQuota(t *testing.T) {
	t.Parallel()
	r := New()
	a1 := netip.MustParseAddrPort("10.0.0.1:1")
	a2 := netip.MustParseAddrPort("10.0.0.1:2")

	if err := r.Add(a1, "bob", "example.com", 1, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	r.Del(a1, "bob", "example.com")
	if got := r.Count("bob", "example.com"); got != 0 {
		t.Errorf("expected count 0 after Del, got %d", got)
	}
	if err := r.Add(a2, "bob", "example.com", 1, nil); err != nil {
		t.Fatalf("Add after Del: %v", err)
	}
}

func TestUnlimitedQuota(t *testing.T) {
	t.Parallel()
	r := New()
	for i := 0; i < 10; i++ {
		addr := netip.AddrPortFrom(netip.MustParseAddr("10.0.0.1"), uint16(1000+i))
		if err := r.Add(addr, "bob", "example.com", 0, nil); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}
}
