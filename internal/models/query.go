package models

import (
	"fmt"
	"math"
)

// DefaultThreshold is the similarity a new item needs to join an existing cluster.
const DefaultThreshold = 0.78

// ClusterQuery represents a clustering request. Items are clustered in the given order.
type ClusterQuery struct {
	Items     []*Item  `json:"items"`
	Threshold *float64 `json:"threshold,omitempty"` // nil means DefaultThreshold; any finite value is accepted
}

// Validate sets the default threshold and rejects values that cannot be compared (NaN).
// Out-of-range thresholds are intentionally accepted: above 1 forces singletons, at or
// below -1 forces a single cluster.
func (q *ClusterQuery) Validate() error {
	if q.Threshold == nil {
		t := DefaultThreshold
		q.Threshold = &t
	}
	if math.IsNaN(*q.Threshold) {
		return fmt.Errorf("threshold must be a number")
	}
	for i, it := range q.Items {
		if it == nil {
			return fmt.Errorf("item %d is null", i)
		}
	}
	return nil
}

// ThresholdValue returns the effective threshold.
func (q *ClusterQuery) ThresholdValue() float64 {
	if q.Threshold == nil {
		return DefaultThreshold
	}
	return *q.Threshold
}

// TitleQuery is a standalone title extraction request.
type TitleQuery struct {
	Titles   []string `json:"titles"`
	MaxWords int      `json:"max_words,omitempty"`
}
