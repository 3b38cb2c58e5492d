package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Naive layouts written by older data files. Fractional seconds are accepted
// after the seconds field without being named in the layout.
var naiveTimeLayouts = []string{
	"2006-01-02T15:04:05",
	time.DateTime,
	"2006-01-02T15:04",
	time.DateOnly,
}

// ParseTime accepts RFC 3339 and the naive ISO layouts, which are read in
// local time. An empty string is the zero time.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// looseTime decodes any layout ParseTime accepts. It only appears in the
// decode shadows below; encoding stays RFC 3339 through time.Time.
type looseTime struct {
	time.Time
}

func (t *looseTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t *looseTime) ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// UnmarshalJSON also reads the digest from the older "password" key.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	aux := struct {
		*plain
		CreatedAt      looseTime `json:"created_at"`
		LegacyPassword string    `json:"password"`
	}{plain: (*plain)(u)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	u.CreatedAt = aux.CreatedAt.Time
	if u.PasswordHash == "" {
		u.PasswordHash = aux.LegacyPassword
	}
	return nil
}

func (p *Problem) UnmarshalJSON(data []byte) error {
	type plain Problem
	aux := struct {
		*plain
		CreatedAt looseTime `json:"created_at"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.CreatedAt = aux.CreatedAt.Time
	return nil
}

func (r *SolvedProblemRecord) UnmarshalJSON(data []byte) error {
	type plain SolvedProblemRecord
	aux := struct {
		*plain
		Timestamp looseTime  `json:"timestamp"`
		GradedAt  *looseTime `json:"graded_at"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Timestamp = aux.Timestamp.Time
	r.GradedAt = aux.GradedAt.ptr()
	return nil
}

func (s *SessionSummary) UnmarshalJSON(data []byte) error {
	type plain SessionSummary
	aux := struct {
		*plain
		SessionDate looseTime `json:"session_date"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.SessionDate = aux.SessionDate.Time
	return nil
}

func (p *SessionProblem) UnmarshalJSON(data []byte) error {
	type plain SessionProblem
	aux := struct {
		*plain
		Timestamp looseTime `json:"timestamp"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.Timestamp = aux.Timestamp.Time
	return nil
}
