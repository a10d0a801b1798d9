package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListKey(t *testing.T) {
	assert.Equal(t, "app|cassa|web", ListKey([]string{"web", "cassa", "app"}))
	assert.Equal(t, "app|cassa|web", ListKey([]string{"app", "cassa", "web"}))
	assert.Equal(t, "", ListKey(nil))
	assert.Equal(t, "cassa", ListKey([]string{"cassa"}))
}

func TestListKeyDeduplicates(t *testing.T) {
	// duplicated members collapse to one, so permutations with repeats
	// still map to the same cache row
	assert.Equal(t, "app|cassa", ListKey([]string{"cassa", "app", "cassa", "app"}))
	assert.Equal(t, ListKey([]string{"app", "app", "cassa"}), ListKey([]string{"cassa", "app"}))
}

func TestNormDay(t *testing.T) {
	in := time.Date(2026, time.February, 1, 18, 42, 3, 999, time.UTC)
	got := NormDay(in)
	assert.Equal(t, time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestStringListRoundTrip(t *testing.T) {
	v, err := StringList{"cassa", "app"}.Value()
	require.NoError(t, err)

	var back StringList
	require.NoError(t, back.Scan(v))
	assert.Equal(t, StringList{"cassa", "app"}, back)

	var fromNil StringList
	require.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)
}

func TestJSONMapRoundTrip(t *testing.T) {
	v, err := JSONMap{"total_sold": map[string]interface{}{"current": 120.5}}.Value()
	require.NoError(t, err)

	var back JSONMap
	require.NoError(t, back.Scan([]byte(v.(string))))
	require.Contains(t, back, "total_sold")
}
