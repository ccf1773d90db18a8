package analysis

import (
	"sort"
	"strconv"
)

// Direction of a corner as seen from the driver.
const (
	DirectionLeft  = "L"
	DirectionRight = "R"
)

// Corner is a session-wide corner location.
type Corner struct {
	ID                int     `json:"id"`
	ReferenceDistance float64 `json:"reference_distance"`
	Lat               float64 `json:"lat"`
	Lon               float64 `json:"lon"`
	Direction         string  `json:"direction"`
	Members           int     `json:"members"`
}

// Label is the short name used on charts and tables.
func (c Corner) Label() string { return "C" + strconv.Itoa(c.ID) }

// CornerMap is the ordered set of corners of one session.
type CornerMap struct {
	Corners []Corner `json:"corners"`
}

// Len returns the number of corners.
func (m CornerMap) Len() int { return len(m.Corners) }

// Empty reports whether no corner was detected.
func (m CornerMap) Empty() bool { return len(m.Corners) == 0 }

type cluster struct {
	n                  int
	sumDist, sumLat    float64
	sumLon, sumHeading float64
	lastDist           float64
}

func (c *cluster) add(cand CornerCandidate) {
	c.n++
	c.sumDist += cand.Distance
	c.sumLat += cand.Lat
	c.sumLon += cand.Lon
	c.sumHeading += cand.Heading
	c.lastDist = cand.Distance
}

// BuildCornerMap pools candidates from several laps into corners. Sorted by
// distance, a candidate joins the open cluster when it lies less than gap
// meters past the cluster's last member. Each cluster becomes one corner at
// the mean of its members. A cluster's mean lies within its own span and
// clusters are separated by at least gap, so consecutive corners are always
// at least gap apart.
func BuildCornerMap(candidates []CornerCandidate, gap float64) CornerMap {
	if len(candidates) == 0 {
		return CornerMap{}
	}
	sorted := make([]CornerCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Distance < sorted[j].Distance })

	var clusters []cluster
	cur := cluster{}
	cur.add(sorted[0])
	for _, c := range sorted[1:] {
		if c.Distance-cur.lastDist < gap {
			cur.add(c)
			continue
		}
		clusters = append(clusters, cur)
		cur = cluster{}
		cur.add(c)
	}
	clusters = append(clusters, cur)

	out := CornerMap{Corners: make([]Corner, len(clusters))}
	for i, c := range clusters {
		n := float64(c.n)
		dir := DirectionLeft
		if c.sumHeading < 0 {
			dir = DirectionRight
		}
		out.Corners[i] = Corner{
			ID:                i + 1,
			ReferenceDistance: c.sumDist / n,
			Lat:               c.sumLat / n,
			Lon:               c.sumLon / n,
			Direction:         dir,
			Members:           c.n,
		}
	}
	return out
}
