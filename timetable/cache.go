package timetable

import (
	"encoding/json"
	"fmt"
)

// Cache is the injected string key/value persistence provider. The
// aggregation cache has no expiry: stale weeks are acceptable as a
// fallback and get overwritten after every successful fetch.
type Cache interface {
	Save(key, value string) error
	Load(key string) (string, bool, error)
}

const (
	weeksKeyPrefix  = "weeks:"
	semestersKey    = "semesters"
	lastSemesterKey = "last_semester"
	bearerTokenKey  = "bearer_token"
)

func SaveWeeks(cache Cache, semesterCode string, weeks []WeekBucket) error {
	payload, err := json.Marshal(weeks)
	if err != nil {
		return fmt.Errorf("could not serialize week buckets: %w", err)
	}
	return cache.Save(weeksKeyPrefix+semesterCode, string(payload))
}

func LoadWeeks(cache Cache, semesterCode string) ([]WeekBucket, bool, error) {
	raw, ok, err := cache.Load(weeksKeyPrefix + semesterCode)
	if err != nil || !ok {
		return nil, false, err
	}
	var weeks []WeekBucket
	if err := json.Unmarshal([]byte(raw), &weeks); err != nil {
		return nil, false, fmt.Errorf("could not parse cached week buckets: %w", err)
	}
	return weeks, true, nil
}

func SaveSemesters(cache Cache, semesters []Semester) error {
	payload, err := json.Marshal(semesters)
	if err != nil {
		return fmt.Errorf("could not serialize semesters: %w", err)
	}
	return cache.Save(semestersKey, string(payload))
}

func LoadSemesters(cache Cache) ([]Semester, bool, error) {
	raw, ok, err := cache.Load(semestersKey)
	if err != nil || !ok {
		return nil, false, err
	}
	var semesters []Semester
	if err := json.Unmarshal([]byte(raw), &semesters); err != nil {
		return nil, false, fmt.Errorf("could not parse cached semesters: %w", err)
	}
	return semesters, true, nil
}

func SaveLastSemester(cache Cache, code string) error {
	return cache.Save(lastSemesterKey, code)
}

func LoadLastSemester(cache Cache) (string, bool, error) {
	return cache.Load(lastSemesterKey)
}

// The last-used bearer token lives in the same store so one-off
// commands can run without re-authenticating.

func SaveToken(cache Cache, token string) error {
	return cache.Save(bearerTokenKey, token)
}

func LoadToken(cache Cache) (string, bool, error) {
	return cache.Load(bearerTokenKey)
}
