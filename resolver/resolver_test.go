package resolver

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSortWeightedOrdering is the deterministic property from spec §8:
// "Sorting the weighted results with seed 0 and inputs
// [{10,0,5269,a},{10,5,5269,b},{20,0,5269,c}] yields a list where a and b
// precede c."
func TestSortWeightedOrdering(t *testing.T) {
	recs := []SRVRecord{
		{Target: "a", Port: 5269, Priority: 10, Weight: 0},
		{Target: "b", Port: 5269, Priority: 10, Weight: 5},
		{Target: "c", Port: 5269, Priority: 20, Weight: 0},
	}
	rnd := rand.New(rand.NewSource(0))
	sorted := SortWeighted(recs, rnd)
	require.Len(t, sorted, 3)

	indexOf := func(target string) int {
		for i, r := range sorted {
			if r.Target == target {
				return i
			}
		}
		return -1
	}
	require.Less(t, indexOf("a"), indexOf("c"))
	require.Less(t, indexOf("b"), indexOf("c"))
}

func TestSortWeightedZeroWeightIsDeterministic(t *testing.T) {
	recs := []SRVRecord{
		{Target: "x", Port: 5269, Priority: 5, Weight: 0},
		{Target: "y", Port: 5269, Priority: 5, Weight: 0},
	}
	first := SortWeighted(recs, rand.New(rand.NewSource(1)))
	second := SortWeighted(recs, rand.New(rand.NewSource(1)))
	require.Equal(t, first, second)
}

func TestSortWeightedDoesNotMutateInput(t *testing.T) {
	recs := []SRVRecord{
		{Target: "a", Priority: 1, Weight: 0},
		{Target: "b", Priority: 0, Weight: 0},
	}
	cp := append([]SRVRecord(nil), recs...)
	_ = SortWeighted(recs, rand.New(rand.NewSource(2)))
	require.Equal(t, cp, recs)
}
