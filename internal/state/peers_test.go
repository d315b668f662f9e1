package state

import "testing"

func TestUpsertAndGet(t *testing.T) {
	tbl := NewPeerTable()
	tbl.Upsert("p1", []string{"/ip4/10.0.0.1/tcp/4001"})

	p, ok := tbl.Get("p1")
	if !ok {
		t.Fatal("peer missing")
	}
	if len(p.Addrs) != 1 || p.Addrs[0] != "/ip4/10.0.0.1/tcp/4001" {
		t.Fatalf("addrs: got %v", p.Addrs)
	}
	if p.FirstSeen.IsZero() || p.LastSeen.IsZero() {
		t.Fatal("timestamps not set")
	}
	if p.Connected {
		t.Fatal("peer connected before any connection")
	}
}

func TestUpsertPreservesConnected(t *testing.T) {
	tbl := NewPeerTable()
	tbl.SetConnected("p1", true)
	tbl.Upsert("p1", []string{"/ip4/10.0.0.1/tcp/4001"})

	p, _ := tbl.Get("p1")
	if !p.Connected {
		t.Fatal("upsert cleared connected flag")
	}
}

func TestUpsertKeepsAddrsWhenEmpty(t *testing.T) {
	tbl := NewPeerTable()
	tbl.Upsert("p1", []string{"/ip4/10.0.0.1/tcp/4001"})
	tbl.Upsert("p1", nil)

	p, _ := tbl.Get("p1")
	if len(p.Addrs) != 1 {
		t.Fatalf("addrs dropped on empty upsert: %v", p.Addrs)
	}
}

func TestRemove(t *testing.T) {
	tbl := NewPeerTable()
	tbl.Upsert("p1", nil)
	tbl.Upsert("p2", nil)
	tbl.Remove("p1")

	if _, ok := tbl.Get("p1"); ok {
		t.Fatal("p1 still present")
	}
	if tbl.Len() != 1 {
		t.Fatalf("len: got %d", tbl.Len())
	}
	if ids := tbl.IDs(); len(ids) != 1 || ids[0] != "p2" {
		t.Fatalf("ids: got %v", ids)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tbl := NewPeerTable()
	tbl.Upsert("p1", nil)
	snap := tbl.Snapshot()
	tbl.Remove("p1")
	if _, ok := snap["p1"]; !ok {
		t.Fatal("snapshot mutated by later removal")
	}
}
