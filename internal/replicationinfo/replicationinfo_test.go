package replicationinfo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObserveTimeTracksMax(t *testing.T) {
	i := New()
	i.ObserveTime(3)
	i.ObserveTime(7)
	i.ObserveTime(5)

	snap := i.Snapshot()
	require.Equal(t, uint64(7), snap.Max)
	require.True(t, snap.Have[3])
	require.True(t, snap.Have[7])
	require.True(t, snap.Have[5])
}

func TestRecordMergeIncrementsProgress(t *testing.T) {
	i := New()
	i.RecordMerge(1)
	i.RecordMerge(2)
	require.Equal(t, uint64(2), i.Progress())
}

func TestResetZeroes(t *testing.T) {
	i := New()
	i.ObserveTime(10)
	i.RecordMerge(10)
	i.Reset()

	snap := i.Snapshot()
	require.Equal(t, uint64(0), snap.Max)
	require.Equal(t, uint64(0), snap.Progress)
	require.Empty(t, snap.Have)
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	i := New()
	i.ObserveTime(1)
	snap := i.Snapshot()
	i.ObserveTime(2)

	require.False(t, snap.Have[2])
}
