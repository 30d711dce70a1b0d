package project

import "testing"

func TestRegisterAssignsIncreasingSlots(t *testing.T) {
	reg, err := NewAt(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	a, err := reg.Register(Info{Name: "A", ID: NewID(), Path: "/p/a", Version: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Slot < 1 {
		t.Fatalf("expected slot >= 1, got %d", a.Slot)
	}
	wantBase := uint16(56000 + (int(a.Slot)-1)*200)
	if a.DiscoveryPort != wantBase {
		t.Fatalf("discovery port mismatch: got %d want %d", a.DiscoveryPort, wantBase)
	}
	if a.PortRange.End != a.DiscoveryPort+199 {
		t.Fatalf("port range end mismatch: %+v", a.PortRange)
	}

	if _, err := reg.Register(Info{Name: "A", ID: NewID(), Path: "/p/a2", Version: "v1"}); err == nil {
		t.Fatal("expected ProjectAlreadyRegistered error")
	}

	b, err := reg.Register(Info{Name: "B", ID: NewID(), Path: "/p/b", Version: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	if b.Slot <= a.Slot {
		t.Fatalf("expected slot B (%d) > slot A (%d), gaps are never reused", b.Slot, a.Slot)
	}
}

func TestGetCurrentMatchesPathPrefix(t *testing.T) {
	reg, err := NewAt(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register(Info{Name: "proj", ID: NewID(), Path: "/work/proj", Version: "v1"}); err != nil {
		t.Fatal(err)
	}

	got, err := reg.GetCurrent("/work/proj/sub/dir")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Name != "proj" {
		t.Fatalf("expected to find proj, got %+v", got)
	}

	none, err := reg.GetCurrent("/elsewhere")
	if err != nil {
		t.Fatal(err)
	}
	if none != nil {
		t.Fatalf("expected no match, got %+v", none)
	}
}

func TestPortAllocationWithinRangeAndPersists(t *testing.T) {
	dir := t.TempDir()
	pm, err := NewPortManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := pm.SetBasePort(56000); err != nil {
		t.Fatal(err)
	}

	port, err := pm.Allocate("System.Gateway", nil)
	if err != nil {
		t.Fatal(err)
	}
	if port < 56000 || port > 56199 {
		t.Fatalf("port %d out of range", port)
	}

	// Idempotent.
	again, err := pm.Allocate("System.Gateway", nil)
	if err != nil {
		t.Fatal(err)
	}
	if again != port {
		t.Fatalf("expected idempotent allocation, got %d then %d", port, again)
	}

	other, err := pm.Allocate("System.Other", nil)
	if err != nil {
		t.Fatal(err)
	}
	if other == port {
		t.Fatal("expected distinct ports for distinct kernels")
	}

	// Reload from disk: allocation survives restart.
	pm2, err := NewPortManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	reloaded, ok := pm2.Get("System.Gateway")
	if !ok || reloaded != port {
		t.Fatalf("expected persisted port %d, got %d (ok=%v)", port, reloaded, ok)
	}
}

func TestPortAllocationWithoutBaseFails(t *testing.T) {
	pm, err := NewPortManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pm.Allocate("X", nil); err == nil {
		t.Fatal("expected error allocating without a base port")
	}
}
