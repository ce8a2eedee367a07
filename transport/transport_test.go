package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSegmentReassembleRoundTrip(t *testing.T) {
	fragment := make([]byte, 700)
	for i := range fragment {
		fragment[i] = byte(i)
	}

	segs := Segment(fragment, 5)
	require.Len(t, segs, 3)

	r := NewReassembler(0)
	var got []byte
	for i, seg := range segs {
		out, err := r.Feed(seg)
		require.NoError(t, err)
		if i < len(segs)-1 {
			require.Nil(t, out)
		} else {
			got = out
		}
	}
	require.Equal(t, fragment, got)
}

func TestSingleSegmentFragment(t *testing.T) {
	fragment := []byte("hello")
	segs := Segment(fragment, 0)
	require.Len(t, segs, 1)

	r := NewReassembler(0)
	out, err := r.Feed(segs[0])
	require.NoError(t, err)
	require.Equal(t, fragment, out)
}

func TestEmptyFragment(t *testing.T) {
	segs := Segment(nil, 3)
	require.Len(t, segs, 1)

	r := NewReassembler(0)
	out, err := r.Feed(segs[0])
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestSequenceGapDiscardsAndResets(t *testing.T) {
	fragment := make([]byte, 600)
	segs := Segment(fragment, 10)
	require.Len(t, segs, 3)

	r := NewReassembler(0)
	_, err := r.Feed(segs[0])
	require.NoError(t, err)

	// skip segs[1], feed segs[2] directly: sequence gap
	_, err = r.Feed(segs[2])
	require.Error(t, err)

	// a fresh FIR segment recovers cleanly
	out, err := r.Feed(segs[0])
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestFragmentExceedsMaximumAborts(t *testing.T) {
	fragment := make([]byte, 300)
	segs := Segment(fragment, 0)

	r := NewReassembler(100)
	_, err := r.Feed(segs[0])
	require.ErrorIs(t, err, ErrFragmentTooLarge)
}

func TestMissingFINBeforeFIRRestarts(t *testing.T) {
	fragment := make([]byte, 600)
	segs := Segment(fragment, 0)

	r := NewReassembler(0)
	_, err := r.Feed(segs[0])
	require.NoError(t, err)
	_, err = r.Feed(segs[1])
	require.NoError(t, err)

	// a new FIR arrives before FIN: reset and start over
	fresh := []byte("short")
	freshSegs := Segment(fresh, 0)
	out, err := r.Feed(freshSegs[0])
	require.NoError(t, err)
	require.Equal(t, fresh, out)
}
