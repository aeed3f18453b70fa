// Package models defines core data structures for feed items, cluster queries, and cluster results.
package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Item is a single normalized feed entry.
type Item struct {
	ID          string `json:"id" db:"id"`
	Title       string `json:"title" db:"title"`
	Link        string `json:"link" db:"link"`
	Summary     string `json:"summary,omitempty" db:"summary"`
	PublishedAt string `json:"publishedAt,omitempty" db:"published_at"` // ISO-8601, UTC
	Source      string `json:"source" db:"source"`
	Image       string `json:"image,omitempty" db:"image"`
}

// Published parses PublishedAt. ok is false when the field is empty or malformed.
func (it *Item) Published() (t time.Time, ok bool) {
	if it.PublishedAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, it.PublishedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// UnmarshalJSON accepts a title of any JSON scalar type. Numbers and booleans keep their
// text form and null becomes the empty string, so one odd entry never rejects a batch.
func (it *Item) UnmarshalJSON(data []byte) error {
	type plain Item
	aux := struct {
		*plain
		Title json.RawMessage `json:"title"`
	}{plain: (*plain)(it)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	it.Title = scalarText(aux.Title)
	return nil
}

func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case 't', 'f':
		return string(raw)
	default:
		if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
			if math.Abs(f) >= 1e21 {
				return strconv.FormatFloat(f, 'g', -1, 64)
			}
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return string(raw)
}
