package timetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapCache is the in-memory Cache used across package tests.
type mapCache struct {
	values map[string]string
}

func newMapCache() *mapCache {
	return &mapCache{values: make(map[string]string)}
}

func (c *mapCache) Save(key, value string) error {
	c.values[key] = value
	return nil
}

func (c *mapCache) Load(key string) (string, bool, error) {
	value, ok := c.values[key]
	return value, ok, nil
}

func TestWeeksRoundTripPerSemester(t *testing.T) {
	cache := newMapCache()
	weeks := Aggregate([]RawWeek{scheduleWeek()}, nil, Filter{}).Weeks

	require.NoError(t, SaveWeeks(cache, "20242", weeks))

	loaded, ok, err := LoadWeeks(cache, "20242")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, weeks, loaded)

	_, ok, err = LoadWeeks(cache, "20243")
	require.NoError(t, err)
	assert.False(t, ok, "semesters must not share cache slots")
}

func TestLoadWeeksCorruptPayload(t *testing.T) {
	cache := newMapCache()
	cache.values["weeks:20242"] = "{not json"
	_, ok, err := LoadWeeks(cache, "20242")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestLastSemesterAndToken(t *testing.T) {
	cache := newMapCache()

	_, ok, err := LoadLastSemester(cache)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SaveLastSemester(cache, "20242"))
	code, ok, err := LoadLastSemester(cache)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "20242", code)

	require.NoError(t, SaveToken(cache, "bearer-abc"))
	token, ok, err := LoadToken(cache)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bearer-abc", token)
}

func TestSemestersRoundTrip(t *testing.T) {
	cache := newMapCache()
	semesters := []Semester{
		{Code: "20241", DisplayName: "Học kỳ 1"},
		{Code: "20242", DisplayName: "Học kỳ 2"},
	}
	require.NoError(t, SaveSemesters(cache, semesters))
	loaded, ok, err := LoadSemesters(cache)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, semesters, loaded)
}
