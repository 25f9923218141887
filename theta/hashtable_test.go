package theta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchInsertHash(t *testing.T) {
	lg := uint8(4)
	tab := make([]uint64, 1<<lg)

	idx, inserted := insertHash(tab, lg, 123)
	require.True(t, inserted)
	assert.Equal(t, uint64(123), tab[idx])

	idx2, inserted2 := insertHash(tab, lg, 123)
	assert.False(t, inserted2)
	assert.Equal(t, idx, idx2)

	foundIdx, found := searchHash(tab, lg, 123)
	assert.True(t, found)
	assert.Equal(t, idx, foundIdx)

	_, found = searchHash(tab, lg, 999)
	assert.False(t, found)
}

func TestInsertHashCollisionProbes(t *testing.T) {
	lg := uint8(3)
	tab := make([]uint64, 1<<lg)
	mask := uint32(1<<lg) - 1

	var keys []uint64
	for k := uint64(1); len(keys) < int(mask); k++ {
		if uint32(k)&mask == 1 {
			keys = append(keys, k)
		}
	}

	for _, k := range keys {
		_, inserted := insertHash(tab, lg, k)
		require.True(t, inserted)
	}
	for _, k := range keys {
		_, found := searchHash(tab, lg, k)
		assert.True(t, found, "key %d should be retrievable after collision chain", k)
	}
}

func TestConvertToHashTable(t *testing.T) {
	entries := []uint64{10, 20, 30, 0, 40}
	theta := uint64(35)

	tab, lg := convertToHashTable(entries, theta, rebuildThreshold)

	for _, h := range []uint64{10, 20, 30} {
		_, found := searchHash(tab, lg, h)
		assert.True(t, found, "hash %d below theta should be present", h)
	}
	_, found := searchHash(tab, lg, 40)
	assert.False(t, found, "hash at/above theta must be excluded")
}

func TestCompactCache(t *testing.T) {
	tab := []uint64{0, 5, 0, 15, 25, 0}
	out := compactCache(tab, 20, true)
	assert.Equal(t, []uint64{5, 15}, out)
}

func TestGrowingTableGrowsUntilNominal(t *testing.T) {
	lgNom := uint8(6)
	lgStart := startingSubMultiple(lgNom+1, MinLgK, uint8(ResizeX2))
	table := newGrowingTable(lgStart, lgNom, ResizeX2, MaxTheta)

	for h := uint64(1); h <= uint64(1)<<lgNom; h++ {
		require.NoError(t, table.insert(h))
	}
	assert.LessOrEqual(t, table.numEntries, uint32(1)<<table.lgCurSize)
}

func TestGrowingTableRebuildsPastCapacity(t *testing.T) {
	lgNom := uint8(5)
	table := newGrowingTable(lgNom+1, lgNom, ResizeX1, MaxTheta)

	nominal := uint32(1) << lgNom
	for h := uint64(1); h <= uint64(nominal)*2; h++ {
		require.NoError(t, table.insert(h))
	}
	assert.LessOrEqual(t, table.numEntries, nominal)
	assert.Less(t, table.theta, MaxTheta)
}

func TestGrowingTableCapacityExceeded(t *testing.T) {
	lgNom := uint8(10)
	table := newGrowingTable(MinLgK, lgNom, ResizeX2, MaxTheta)
	table.capLongs = int(1) << MinLgK
	table.memRequest = func(current, required int) bool { return false }

	var err error
	for h := uint64(1); h <= uint64(1)<<(lgNom); h++ {
		if err = table.insert(h); err != nil {
			break
		}
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestGrowingTableMemoryRequestApproval(t *testing.T) {
	lgNom := uint8(8)
	table := newGrowingTable(MinLgK, lgNom, ResizeX2, MaxTheta)
	table.capLongs = int(1) << MinLgK
	approved := 0
	table.memRequest = func(current, required int) bool {
		approved++
		table.capLongs = required
		return true
	}

	for h := uint64(1); h <= uint64(1)<<lgNom; h++ {
		require.NoError(t, table.insert(h))
	}
	assert.Positive(t, approved)
}

func TestStartingSubMultiple(t *testing.T) {
	assert.Equal(t, MinLgK, startingSubMultiple(MinLgK, MinLgK, 2))
	assert.Equal(t, MinLgK+1, startingSubMultiple(MinLgK+1, MinLgK, 0))
}

func TestStartingThetaFromP(t *testing.T) {
	assert.Equal(t, MaxTheta, startingThetaFromP(1.0))
	assert.Less(t, startingThetaFromP(0.5), MaxTheta)
}
