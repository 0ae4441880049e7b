package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dridi14/p1-router/internal/color"
)

func TestValidateRejectsOverlap(t *testing.T) {
	_, err := Validate([]Range{
		{From: 1, To: 10, ControllerIP: "10.0.0.1", Universe: 0, ChannelStart: 1},
		{From: 5, To: 15, ControllerIP: "10.0.0.1", Universe: 0, ChannelStart: 100},
	})
	require.Error(t, err)
	var mErr *Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, ErrOverlap, mErr.Kind)
}

func TestValidateRejectsOutOfRangeSpan(t *testing.T) {
	_, err := Validate([]Range{
		{From: 1, To: 200, ControllerIP: "10.0.0.1", Universe: 0, ChannelStart: 1, Channels: color.DefaultLayout},
	})
	require.Error(t, err)
	var mErr *Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, ErrOutOfRange, mErr.Kind)
}

func TestValidateRejectsBadChannelStart(t *testing.T) {
	_, err := Validate([]Range{
		{From: 1, To: 1, ControllerIP: "10.0.0.1", Universe: 0, ChannelStart: 0},
	})
	require.Error(t, err)
}

func TestResolveFindsCoveringRange(t *testing.T) {
	snap, err := Validate([]Range{
		{From: 1, To: 10, ControllerIP: "10.0.0.1", Universe: 0, ChannelStart: 1, Channels: color.DefaultLayout},
		{From: 11, To: 20, ControllerIP: "10.0.0.2", Universe: 1, ChannelStart: 1, Channels: color.DefaultLayout},
	})
	require.NoError(t, err)

	key, offset, layout, ok := snap.Resolve(15)
	require.True(t, ok)
	assert.Equal(t, UBKey{"10.0.0.2", 1}, key)
	assert.Equal(t, (15-11)*3, offset)
	assert.Len(t, layout, 3)
}

func TestResolveMissOutsideAnyRange(t *testing.T) {
	snap, err := Validate([]Range{
		{From: 1, To: 10, ControllerIP: "10.0.0.1", Universe: 0, ChannelStart: 1, Channels: color.DefaultLayout},
	})
	require.NoError(t, err)

	_, _, _, ok := snap.Resolve(11)
	assert.False(t, ok)
}

func TestResolveRespectsChannelStart(t *testing.T) {
	snap, err := Validate([]Range{
		{From: 1, To: 1, ControllerIP: "10.0.0.1", Universe: 0, ChannelStart: 5, Channels: []color.Channel{color.ChannelR, color.ChannelG, color.ChannelB, color.ChannelW}},
	})
	require.NoError(t, err)

	_, offset, layout, ok := snap.Resolve(1)
	require.True(t, ok)
	assert.Equal(t, 4, offset)
	assert.Len(t, layout, 4)
}

func TestKeysDeduplicatesAndSorts(t *testing.T) {
	snap, err := Validate([]Range{
		{From: 1, To: 1, ControllerIP: "10.0.0.2", Universe: 0, ChannelStart: 1, Channels: color.DefaultLayout},
		{From: 2, To: 2, ControllerIP: "10.0.0.1", Universe: 1, ChannelStart: 1, Channels: color.DefaultLayout},
		{From: 3, To: 3, ControllerIP: "10.0.0.1", Universe: 1, ChannelStart: 100, Channels: color.DefaultLayout},
	})
	require.NoError(t, err)

	keys := snap.Keys()
	require.Len(t, keys, 2)
	assert.Equal(t, UBKey{"10.0.0.1", 1}, keys[0])
	assert.Equal(t, UBKey{"10.0.0.2", 0}, keys[1])
}

func TestEmptySnapshotResolvesNothing(t *testing.T) {
	snap := Empty()
	_, _, _, ok := snap.Resolve(1)
	assert.False(t, ok)
	assert.Empty(t, snap.Keys())
}
