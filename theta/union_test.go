package theta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sketchOf(t *testing.T, seed uint64, entries []uint64, theta uint64, ordered bool) *CompactSketch {
	t.Helper()
	seedHash, err := ComputeSeedHash(seed)
	require.NoError(t, err)
	return newCompactSketchFromEntries(len(entries) == 0 && theta == MaxTheta, ordered, seedHash, theta, entries)
}

func TestUnionOfDisjointExactSketches(t *testing.T) {
	u, err := NewUnion(WithUnionLgK(12), WithUnionSeed(DefaultSeed))
	require.NoError(t, err)

	a := sketchOf(t, DefaultSeed, []uint64{1, 2, 3}, MaxTheta, true)
	b := sketchOf(t, DefaultSeed, []uint64{4, 5}, MaxTheta, true)

	require.NoError(t, u.Update(a))
	require.NoError(t, u.Update(b))

	res, err := u.GetResult(true)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), res.NumRetained())
	assert.False(t, res.IsEmpty())
	assert.Equal(t, float64(5), res.Estimate())
}

func TestUnionOfOverlappingSketchesDeduplicates(t *testing.T) {
	u, err := NewUnion(WithUnionLgK(12), WithUnionSeed(DefaultSeed))
	require.NoError(t, err)

	a := sketchOf(t, DefaultSeed, []uint64{1, 2, 3}, MaxTheta, true)
	b := sketchOf(t, DefaultSeed, []uint64{2, 3, 4}, MaxTheta, true)

	require.NoError(t, u.Update(a))
	require.NoError(t, u.Update(b))

	res, err := u.GetResult(true)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), res.NumRetained())
}

func TestUnionTakesMinTheta(t *testing.T) {
	u, err := NewUnion(WithUnionLgK(12), WithUnionSeed(DefaultSeed))
	require.NoError(t, err)

	theta := uint64(25)
	a := sketchOf(t, DefaultSeed, []uint64{10, 20, 30}, MaxTheta, true)
	b := sketchOf(t, DefaultSeed, []uint64{5, 15}, theta, true)

	require.NoError(t, u.Update(a))
	require.NoError(t, u.Update(b))

	res, err := u.GetResult(true)
	require.NoError(t, err)
	assert.Equal(t, theta, res.Theta64())
	// 30 >= theta, so it must have been screened out once theta dropped.
	var got []uint64
	for h := range res.All() {
		got = append(got, h)
	}
	assert.NotContains(t, got, uint64(30))
}

func TestUnionRejectsSeedMismatch(t *testing.T) {
	u, err := NewUnion(WithUnionSeed(DefaultSeed))
	require.NoError(t, err)

	other := sketchOf(t, DefaultSeed+1, []uint64{1}, MaxTheta, true)
	err = u.Update(other)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSeedMismatch)
}

func TestUnionUpdateNilOrEmptyIsNoOp(t *testing.T) {
	u, err := NewUnion(WithUnionSeed(DefaultSeed))
	require.NoError(t, err)

	require.NoError(t, u.Update(nil))
	res, err := u.GetResult(true)
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())

	empty := EmptyCompactSketch(res.seedHash)
	require.NoError(t, u.Update(empty))
	res, err = u.GetResult(true)
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())
}

func TestUnionGetResultDoesNotMutateAccumulator(t *testing.T) {
	u, err := NewUnion(WithUnionSeed(DefaultSeed))
	require.NoError(t, err)

	a := sketchOf(t, DefaultSeed, []uint64{1, 2}, MaxTheta, true)
	require.NoError(t, u.Update(a))

	first, err := u.GetResult(true)
	require.NoError(t, err)
	second, err := u.GetResult(true)
	require.NoError(t, err)
	assert.Equal(t, first.NumRetained(), second.NumRetained())

	b := sketchOf(t, DefaultSeed, []uint64{3}, MaxTheta, true)
	require.NoError(t, u.Update(b))
	third, err := u.GetResult(true)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), third.NumRetained())
}

func TestUnionResetReturnsToVirginState(t *testing.T) {
	u, err := NewUnion(WithUnionSeed(DefaultSeed))
	require.NoError(t, err)

	a := sketchOf(t, DefaultSeed, []uint64{1, 2, 3}, MaxTheta, true)
	require.NoError(t, u.Update(a))
	u.Reset()

	res, err := u.GetResult(true)
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())
	assert.Equal(t, uint32(0), res.NumRetained())
}

func TestUnionToBytesHeapifyRoundTrip(t *testing.T) {
	u, err := NewUnion(WithUnionLgK(8), WithUnionSeed(DefaultSeed))
	require.NoError(t, err)

	a := sketchOf(t, DefaultSeed, []uint64{11, 22, 33}, MaxTheta, true)
	require.NoError(t, u.Update(a))

	buf, err := u.ToBytes()
	require.NoError(t, err)

	back, err := HeapifyUnion(buf, DefaultSeed)
	require.NoError(t, err)

	resOrig, err := u.GetResult(true)
	require.NoError(t, err)
	resBack, err := back.GetResult(true)
	require.NoError(t, err)
	assert.Equal(t, resOrig.NumRetained(), resBack.NumRetained())
	assert.Equal(t, resOrig.Theta64(), resBack.Theta64())
}

func TestUnionMemoryBackedRejectsUndersizedBuffer(t *testing.T) {
	b := NewBuilder(WithNomEntries(1<<10), WithSeed(DefaultSeed))
	_, err := b.BuildUnion(make([]byte, 8))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUnionMemoryBackedGrowsUntilDenied(t *testing.T) {
	approvals := 0
	b := NewBuilder(
		WithNomEntries(1<<8),
		WithSeed(DefaultSeed),
		WithResizeFactor(ResizeX2),
		WithMemoryRequestServer(func(current, required int) bool {
			approvals++
			return false
		}),
	)
	startLg := startingSubMultiple(b.lgNomLongs()+1, MinLgK, uint8(ResizeX2))
	u, err := b.BuildUnion(make([]byte, (1<<startLg)*8))
	require.NoError(t, err)

	a := sketchOf(t, DefaultSeed, []uint64{1}, MaxTheta, true)
	require.NoError(t, u.Update(a))

	many := make([]uint64, 1<<startLg)
	for i := range many {
		many[i] = uint64(i + 100)
	}
	overflow := sketchOf(t, DefaultSeed, many, MaxTheta, true)

	err = u.Update(overflow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Positive(t, approvals)

	// A declined growth request must leave the accumulator exactly as
	// it was before this Update: still just a's one hash at theta=MAX.
	res, err := u.GetResult(true)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), res.NumRetained())
	assert.Equal(t, MaxTheta, res.Theta64())
	assert.False(t, res.IsEmpty())
}

func TestUnionUpdateRollsBackOnCapacityExceeded(t *testing.T) {
	b := NewBuilder(
		WithNomEntries(1<<8),
		WithSeed(DefaultSeed),
		WithResizeFactor(ResizeX2),
		WithMemoryRequestServer(func(current, required int) bool { return false }),
	)
	startLg := startingSubMultiple(b.lgNomLongs()+1, MinLgK, uint8(ResizeX2))
	u, err := b.BuildUnion(make([]byte, (1<<startLg)*8))
	require.NoError(t, err)

	a := sketchOf(t, DefaultSeed, []uint64{1}, MaxTheta, true)
	require.NoError(t, u.Update(a))

	snapTheta := u.table.theta
	snapEntries := u.table.numEntries
	snapLg := u.table.lgCurSize

	many := make([]uint64, 1<<startLg)
	for i := range many {
		many[i] = uint64(i + 100)
	}
	overflow := sketchOf(t, DefaultSeed, many, MaxTheta/2, true)

	err = u.Update(overflow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	// theta must not have been left lowered by the aborted update, and
	// the working table's size/occupancy must be exactly as before.
	assert.Equal(t, snapTheta, u.table.theta)
	assert.Equal(t, snapEntries, u.table.numEntries)
	assert.Equal(t, snapLg, u.table.lgCurSize)
}
