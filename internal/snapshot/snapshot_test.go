package snapshot

import "testing"

func TestRemoteAddr(t *testing.T) {
	t.Run("empty string is absent", func(t *testing.T) {
		if !OneAddr("").IsNone() {
			t.Error("expected absent address")
		}
	})

	t.Run("single value round-trips", func(t *testing.T) {
		addr := OneAddr("10.0.0.5")
		got, ok := addr.Single()
		if !ok {
			t.Fatal("expected single address")
		}
		if got != "10.0.0.5" {
			t.Errorf("expected 10.0.0.5, got %s", got)
		}
	})

	t.Run("list collapses empties", func(t *testing.T) {
		addr := ManyAddr([]string{"", "10.0.0.5", ""})
		if addr.IsMultiple() {
			t.Error("expected single address after dropping empties")
		}
		if got, _ := addr.Single(); got != "10.0.0.5" {
			t.Errorf("expected 10.0.0.5, got %s", got)
		}
	})

	t.Run("multiple values flagged", func(t *testing.T) {
		addr := ManyAddr([]string{"10.0.0.5", "10.0.0.6"})
		if !addr.IsMultiple() {
			t.Error("expected multiple addresses")
		}
		if _, ok := addr.Single(); ok {
			t.Error("Single should fail for multiple addresses")
		}
	})
}

func TestMergedNeighbors(t *testing.T) {
	snap := &Snapshot{
		Neighbors: map[string]Neighbor{
			"1": {Addr: OneAddr("10.0.0.1"), Port: "ge-0/0/1", ID: "sw1"},
			"2": {Addr: OneAddr("10.0.0.2"), Port: "ge-0/0/2", ID: "sw2"},
		},
		NeighborAddrsV6: map[string]RemoteAddr{
			"1": OneAddr("2001:db8::1"),
			"2": NoAddr,
			"3": OneAddr("2001:db8::3"),
		},
	}

	merged := snap.MergedNeighbors()

	t.Run("v6 wins when present on both sides", func(t *testing.T) {
		got, _ := merged["1"].Addr.Single()
		if got != "2001:db8::1" {
			t.Errorf("expected 2001:db8::1, got %s", got)
		}
		if merged["1"].Port != "ge-0/0/1" {
			t.Errorf("expected port preserved, got %s", merged["1"].Port)
		}
	})

	t.Run("undefined v6 does not shadow v4", func(t *testing.T) {
		got, _ := merged["2"].Addr.Single()
		if got != "10.0.0.2" {
			t.Errorf("expected 10.0.0.2, got %s", got)
		}
	})

	t.Run("v6-only entry survives", func(t *testing.T) {
		entry, ok := merged["3"]
		if !ok {
			t.Fatal("expected v6-only entry in merge")
		}
		if got, _ := entry.Addr.Single(); got != "2001:db8::3" {
			t.Errorf("expected 2001:db8::3, got %s", got)
		}
	})

	t.Run("merge does not mutate the snapshot", func(t *testing.T) {
		if got, _ := snap.Neighbors["1"].Addr.Single(); got != "10.0.0.1" {
			t.Errorf("expected original v4 table untouched, got %s", got)
		}
	})
}
