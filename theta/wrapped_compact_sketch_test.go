package theta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapEmpty(t *testing.T) {
	s := EmptyCompactSketch(42)
	buf, err := s.ToBytes()
	require.NoError(t, err)

	w, err := Wrap(buf, DefaultSeed)
	require.NoError(t, err)
	assert.True(t, w.IsEmpty())
	assert.Equal(t, uint32(0), w.NumRetained())
}

func TestWrapSingleItem(t *testing.T) {
	seedHash, err := ComputeSeedHash(DefaultSeed)
	require.NoError(t, err)
	s := newCompactSketchFromEntries(false, false, seedHash, MaxTheta, []uint64{123})
	buf, err := s.ToBytes()
	require.NoError(t, err)

	w, err := Wrap(buf, DefaultSeed)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), w.NumRetained())
	var got []uint64
	for h := range w.All() {
		got = append(got, h)
	}
	assert.Equal(t, []uint64{123}, got)
}

func TestWrapEstimationModeAliasesBuffer(t *testing.T) {
	seedHash, err := ComputeSeedHash(DefaultSeed)
	require.NoError(t, err)
	entries := []uint64{5, 15, 25}
	theta := MaxTheta / 4
	s := newCompactSketchFromEntries(false, true, seedHash, theta, entries)
	buf, err := s.ToBytes()
	require.NoError(t, err)

	w, err := Wrap(buf, DefaultSeed)
	require.NoError(t, err)
	assert.Equal(t, theta, w.Theta64())
	assert.True(t, w.IsOrdered())

	var got []uint64
	for h := range w.All() {
		got = append(got, h)
	}
	assert.Equal(t, entries, got)

	est := w.Estimate()
	assert.Greater(t, est, float64(len(entries)))

	lb, err := w.LowerBound(2)
	require.NoError(t, err)
	ub, err := w.UpperBound(2)
	require.NoError(t, err)
	assert.LessOrEqual(t, lb, est)
	assert.GreaterOrEqual(t, ub, est)
}

func TestWrapRejectsLegacySerialVersions(t *testing.T) {
	buf := make([]byte, 24)
	buf[0] = 3
	buf[1] = serialVersion2
	buf[2] = byte(FamilyCompact)

	_, err := Wrap(buf, DefaultSeed)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestWrapStringDelegatesToHeapCopy(t *testing.T) {
	seedHash, err := ComputeSeedHash(DefaultSeed)
	require.NoError(t, err)
	s := newCompactSketchFromEntries(false, true, seedHash, MaxTheta, []uint64{1, 2})
	buf, err := s.ToBytes()
	require.NoError(t, err)

	w, err := Wrap(buf, DefaultSeed)
	require.NoError(t, err)
	assert.Contains(t, w.String(false), "num retained entries : 2")
}
