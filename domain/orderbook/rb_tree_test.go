package orderbook

import (
	"math/rand"
	"sort"
	"testing"
)

func TestRBTreeInsertFindDelete(t *testing.T) {
	tree := NewRBTree()
	pl1 := tree.UpsertLevel(100)
	if pl1 == nil {
		t.Fatal("UpsertLevel failed")
	}
	if pl2 := tree.FindLevel(100); pl2 != pl1 {
		t.Error("FindLevel did not return same PriceLevel")
	}

	tree.UpsertLevel(200)
	if tree.MinLevel().Price != 100 {
		t.Error("expected min=100")
	}
	if tree.MaxLevel().Price != 200 {
		t.Error("expected max=200")
	}

	if !tree.DeleteLevel(100) {
		t.Error("DeleteLevel failed")
	}
	if tree.FindLevel(100) != nil {
		t.Error("expected level 100 to be gone")
	}
	if tree.Size() != 1 {
		t.Errorf("expected size 1, got %d", tree.Size())
	}
}

func TestDeleteNonExistentLevel(t *testing.T) {
	tree := NewRBTree()
	if tree.DeleteLevel(123) {
		t.Error("expected false when deleting non-existent level")
	}
}

func TestEmptyTreeMinMax(t *testing.T) {
	tree := NewRBTree()
	if tree.MinLevel() != nil || tree.MaxLevel() != nil {
		t.Error("expected nil for min/max on empty tree")
	}
}

func TestUpsertDuplicateLevel(t *testing.T) {
	tree := NewRBTree()
	pl1 := tree.UpsertLevel(150)
	pl2 := tree.UpsertLevel(150)
	if pl1 != pl2 {
		t.Error("Upsert should return the same node for duplicate level")
	}
}

func TestSuccessorPredecessor(t *testing.T) {
	tree := NewRBTree()
	for _, p := range []int64{50, 10, 30, 40, 20} {
		tree.UpsertLevel(p)
	}
	if got := tree.Successor(30); got == nil || got.Price != 40 {
		t.Errorf("successor of 30: %v", got)
	}
	if got := tree.Successor(35); got == nil || got.Price != 40 {
		t.Errorf("successor of 35: %v", got)
	}
	if tree.Successor(50) != nil {
		t.Error("expected no successor above max")
	}
	if got := tree.Predecessor(30); got == nil || got.Price != 20 {
		t.Errorf("predecessor of 30: %v", got)
	}
	if tree.Predecessor(10) != nil {
		t.Error("expected no predecessor below min")
	}
}

func TestOrderedWalkAfterChurn(t *testing.T) {
	tree := NewRBTree()
	for p := int64(1); p <= 500; p++ {
		tree.UpsertLevel((p * 7919) % 1009)
	}
	for p := int64(0); p < 1009; p += 3 {
		tree.DeleteLevel(p)
	}

	var prev int64 = -1
	count := 0
	tree.ForEachAscending(func(pl *PriceLevel) bool {
		if pl.Price <= prev {
			t.Fatalf("ascending walk out of order: %d after %d", pl.Price, prev)
		}
		if pl.Price%3 == 0 {
			t.Fatalf("deleted level %d still present", pl.Price)
		}
		prev = pl.Price
		count++
		return true
	})
	if count != tree.Size() {
		t.Errorf("walk saw %d levels, size says %d", count, tree.Size())
	}

	prev = 1 << 62
	tree.ForEachDescending(func(pl *PriceLevel) bool {
		if pl.Price >= prev {
			t.Fatalf("descending walk out of order: %d after %d", pl.Price, prev)
		}
		prev = pl.Price
		return true
	})
}

func TestDeleteRightChildRebalances(t *testing.T) {
	tree := NewRBTree()
	for _, p := range []int64{55, 47, 19, 35} {
		tree.UpsertLevel(p)
	}
	if !tree.DeleteLevel(47) {
		t.Fatal("DeleteLevel(47) failed")
	}
	if err := tree.checkShape(); err != nil {
		t.Fatal(err)
	}
	assertKeys(t, tree, []int64{19, 35, 55})
}

func TestRandomChurnKeepsShape(t *testing.T) {
	for seed := int64(1); seed <= 300; seed++ {
		rng := rand.New(rand.NewSource(seed))
		tree := NewRBTree()
		model := make(map[int64]bool)

		for op := 0; op < 300; op++ {
			p := rng.Int63n(60)
			if rng.Intn(2) == 0 {
				tree.UpsertLevel(p)
				model[p] = true
			} else {
				if got := tree.DeleteLevel(p); got != model[p] {
					t.Fatalf("seed %d op %d: DeleteLevel(%d) = %v, want %v", seed, op, p, got, model[p])
				}
				delete(model, p)
			}
			if err := tree.checkShape(); err != nil {
				t.Fatalf("seed %d op %d: %v", seed, op, err)
			}
		}

		want := make([]int64, 0, len(model))
		for p := range model {
			want = append(want, p)
		}
		sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
		assertKeys(t, tree, want)
	}
}

func assertKeys(t *testing.T, tree *RBTree, want []int64) {
	t.Helper()
	var got []int64
	tree.ForEachAscending(func(pl *PriceLevel) bool {
		got = append(got, pl.Price)
		return true
	})
	if len(got) != len(want) || tree.Size() != len(want) {
		t.Fatalf("levels %v (size %d), want %v", got, tree.Size(), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("levels %v, want %v", got, want)
		}
	}
}
