package area

import "testing"

func TestLookup(t *testing.T) {
	cfg, err := Lookup(Area2)
	if err != nil {
		t.Fatalf("Lookup(area-2) failed: %v", err)
	}
	if cfg.PlotTable != "plots_area2" {
		t.Errorf("area-2 plot table = %q, want plots_area2", cfg.PlotTable)
	}
	if cfg.Name != "Industrial Area 2" {
		t.Errorf("area-2 name = %q", cfg.Name)
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := Lookup(ID("area-9")); err == nil {
		t.Fatal("expected error for unknown area")
	}
	if Valid(ID("area-9")) {
		t.Fatal("area-9 must not be valid")
	}
}

func TestAllOrdered(t *testing.T) {
	ids := AllIDs()
	want := []ID{Area1, Area2, Area3}
	if len(ids) != len(want) {
		t.Fatalf("AllIDs() returned %d ids, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("AllIDs()[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
	configs := All()
	for i, cfg := range configs {
		if cfg.ID != want[i] {
			t.Errorf("All()[%d].ID = %q, want %q", i, cfg.ID, want[i])
		}
	}
}

func TestPlotTablesDistinct(t *testing.T) {
	seen := map[string]ID{}
	for _, cfg := range All() {
		if prev, dup := seen[cfg.PlotTable]; dup {
			t.Fatalf("plot table %q shared by %s and %s", cfg.PlotTable, prev, cfg.ID)
		}
		seen[cfg.PlotTable] = cfg.ID
	}
}
