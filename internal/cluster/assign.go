// Package cluster groups feed items by embedding similarity and labels each group.
package cluster

import (
	"fmt"
	"math"

	"github.com/hyperjump/matome/internal/vector"
)

// CentroidStrategy selects how a group's centroid follows its members.
type CentroidStrategy string

const (
	// CentroidMean updates the stored unit centroid as a running mean of members and
	// renormalizes it after every join.
	CentroidMean CentroidStrategy = "mean"
	// CentroidSum keeps the raw sum of member vectors and derives the centroid from it
	// after every join, which avoids drift from repeatedly rescaling the running mean.
	CentroidSum CentroidStrategy = "sum"
)

// ParseCentroidStrategy maps a config value to a strategy. Empty means CentroidMean.
func ParseCentroidStrategy(s string) (CentroidStrategy, error) {
	switch CentroidStrategy(s) {
	case CentroidMean, "":
		return CentroidMean, nil
	case CentroidSum:
		return CentroidSum, nil
	default:
		return "", fmt.Errorf("unknown centroid strategy: %s (supported: mean, sum)", s)
	}
}

// Group is a cluster under construction. Members holds input indices in arrival order and
// only ever grows.
type Group struct {
	Members  []int
	Centroid []float32
	sum      []float64
}

// Size returns the number of members.
func (g *Group) Size() int {
	return len(g.Members)
}

func newGroup(idx int, v []float32, strategy CentroidStrategy) *Group {
	g := &Group{Members: []int{idx}, Centroid: vector.Clone(v)}
	if strategy == CentroidSum {
		g.sum = make([]float64, len(v))
		for k, x := range v {
			g.sum[k] = float64(x)
		}
	}
	return g
}

func (g *Group) add(idx int, v []float32, strategy CentroidStrategy) {
	g.Members = append(g.Members, idx)
	n := float64(len(g.Members))
	if strategy == CentroidSum {
		for k, x := range v {
			g.sum[k] += float64(x)
			g.Centroid[k] = float32(g.sum[k])
		}
	} else {
		for k := range g.Centroid {
			g.Centroid[k] = float32((float64(g.Centroid[k])*(n-1) + float64(v[k])) / n)
		}
	}
	vector.NormalizeL2(g.Centroid)
}

// Assign runs one greedy pass over vectors in order. Each vector joins the group whose
// centroid it is most similar to when that similarity is >= threshold, and otherwise
// starts a new group. On an exact tie the earliest created group wins. Groups are
// returned in creation order. The threshold is not range checked.
func Assign(vectors [][]float32, threshold float64, strategy CentroidStrategy) ([]*Group, error) {
	var groups []*Group
	for i, v := range vectors {
		if i > 0 && !vector.SameDimension(v, vectors[0]) {
			return nil, fmt.Errorf("%w: item %d has dimension %d, item 0 has %d",
				ErrInconsistentEmbeddingSpace, i, len(v), len(vectors[0]))
		}
		if len(groups) == 0 {
			groups = append(groups, newGroup(i, v, strategy))
			continue
		}

		best := 0
		bestSim := vector.Dot(v, groups[0].Centroid)
		for c := 1; c < len(groups); c++ {
			// Strict > keeps the first maximum.
			if sim := vector.Dot(v, groups[c].Centroid); sim > bestSim {
				best, bestSim = c, sim
			}
		}

		// Rounding can put the dot product of opposite unit vectors just below -1.
		if math.Max(bestSim, -1) >= threshold {
			groups[best].add(i, v, strategy)
		} else {
			groups = append(groups, newGroup(i, v, strategy))
		}
	}
	return groups, nil
}
