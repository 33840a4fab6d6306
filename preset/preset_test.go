package preset

import (
	"fmt"
	"testing"

	"capstation/store"
)

func seeded() *Store {
	s := NewStore()
	s.Replace([]store.ProductPreset{
		{ID: "p1", ProductName: "FilmA", Structure: "3-layer", MachineID: "m1"},
		{ID: "p2", ProductName: "FilmB", Structure: "PET/AL/PE", MachineID: "m1"},
		{ID: "p3", ProductName: "filmA-matte", Structure: "2-layer", MachineID: "m1"},
		{ID: "p4", ProductName: "FilmA", Structure: "3-layer", MachineID: "m2"},
	})
	return s
}

func TestByMachinePreservesOrder(t *testing.T) {
	s := seeded()
	got := s.ByMachine("m1")
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"p1", "p2", "p3"} {
		if got[i].ID != want {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestSearchEmptyQueryReturnsAll(t *testing.T) {
	s := seeded()
	got := s.Search("m1", "")
	if len(got) != 3 {
		t.Errorf("len = %d, want 3 (empty query matches all)", len(got))
	}
}

func TestSearchCaseInsensitive(t *testing.T) {
	s := seeded()
	got := s.Search("m1", "FILMA")
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "p1" || got[1].ID != "p3" {
		t.Errorf("order = %s, %s; want p1, p3", got[0].ID, got[1].ID)
	}
}

func TestSearchMatchesStructure(t *testing.T) {
	s := seeded()
	got := s.Search("m1", "pet/al")
	if len(got) != 1 || got[0].ID != "p2" {
		t.Errorf("got %+v, want just p2", got)
	}
}

func TestSearchScopedToMachine(t *testing.T) {
	s := seeded()
	got := s.Search("m2", "filma")
	if len(got) != 1 || got[0].ID != "p4" {
		t.Errorf("got %+v, want just p4", got)
	}
}

func TestSearchFindsAllMatchesBeyondDisplayCap(t *testing.T) {
	s := NewStore()
	var presets []store.ProductPreset
	for i := 0; i < 120; i++ {
		presets = append(presets, store.ProductPreset{
			ID:          fmt.Sprintf("p%d", i),
			ProductName: fmt.Sprintf("Film-%03d", i),
			MachineID:   "m1",
		})
	}
	s.Replace(presets)

	all := s.Search("m1", "film")
	if len(all) != 120 {
		t.Errorf("filter found %d, want all 120 (the cap must not affect matching)", len(all))
	}

	capped := TopN(all, DisplayCap)
	if len(capped) != DisplayCap {
		t.Errorf("TopN = %d, want %d", len(capped), DisplayCap)
	}
	for i := range capped {
		if capped[i].ID != all[i].ID {
			t.Fatalf("TopN is not a strict prefix at index %d", i)
		}
	}
}

func TestTopNShortInput(t *testing.T) {
	s := seeded()
	got := TopN(s.ByMachine("m1"), DisplayCap)
	if len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
}

func TestUpsertByNameUpdates(t *testing.T) {
	s := seeded()
	p := s.Upsert(store.ProductPreset{ProductName: "FilmA", Structure: "5-layer", MachineID: "m1"})
	if p.ID != "p1" {
		t.Errorf("upsert by name should reuse id p1, got %s", p.ID)
	}
	got, _ := s.Get("p1")
	if got.Structure != "5-layer" {
		t.Errorf("structure = %s, want 5-layer", got.Structure)
	}
	if len(s.ByMachine("m1")) != 3 {
		t.Error("update-by-name must not grow the list")
	}
}

func TestUpsertNewNameInserts(t *testing.T) {
	s := seeded()
	p := s.Upsert(store.ProductPreset{ProductName: "FilmC", MachineID: "m1"})
	if p.ID == "" {
		t.Fatal("fresh insert should assign an id")
	}
	list := s.ByMachine("m1")
	if len(list) != 4 || list[3].ID != p.ID {
		t.Errorf("new preset should append, got %+v", list)
	}
}

func TestReplaceIsWholesale(t *testing.T) {
	s := seeded()
	s.Upsert(store.ProductPreset{ProductName: "Scratch", MachineID: "m1"})
	s.Replace([]store.ProductPreset{{ID: "p9", ProductName: "Fresh", MachineID: "m1"}})
	got := s.All()
	if len(got) != 1 || got[0].ID != "p9" {
		t.Errorf("replace must discard prior state, got %+v", got)
	}
}
