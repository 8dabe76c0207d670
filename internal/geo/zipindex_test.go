package geo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAndLookup(t *testing.T) {
	idx := NewIndex()
	n, err := idx.Load(strings.NewReader("zip,city,state\n27601,Raleigh,NC\n90210,Beverly Hills,CA\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, idx.Len())

	loc, ok := idx.Lookup("27601")
	require.True(t, ok)
	assert.Equal(t, "Raleigh", loc.City)
	assert.Equal(t, "NC", loc.State)

	_, ok = idx.Lookup("00000")
	assert.False(t, ok)
}

func TestLoadWithoutHeader(t *testing.T) {
	idx := NewIndex()
	n, err := idx.Load(strings.NewReader("27601,Raleigh,NC\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLoadMalformedRowLeavesIndexUnchanged(t *testing.T) {
	idx := NewIndex()
	_, err := idx.Load(strings.NewReader("27601,Raleigh,NC\n"))
	require.NoError(t, err)

	_, err = idx.Load(strings.NewReader("90210,Beverly Hills,CA\nnot-a-zip,Nowhere,XX\n"))
	require.Error(t, err)

	// The earlier contents survive a failed reload.
	assert.Equal(t, 1, idx.Len())
	_, ok := idx.Lookup("27601")
	assert.True(t, ok)
	_, ok = idx.Lookup("90210")
	assert.False(t, ok)
}

func TestLoadRejectsShortZip(t *testing.T) {
	idx := NewIndex()
	_, err := idx.Load(strings.NewReader("123,Somewhere,NC\n"))
	assert.Error(t, err)
}

func TestClear(t *testing.T) {
	idx := NewIndex()
	_, err := idx.Load(strings.NewReader("27601,Raleigh,NC\n"))
	require.NoError(t, err)

	idx.Clear()
	assert.Equal(t, 0, idx.Len())
	_, ok := idx.Lookup("27601")
	assert.False(t, ok)
}
