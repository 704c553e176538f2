// Package feedsim produces a live network feed from SGP4-propagated
// satellites and fixed ground stations.
package feedsim

import (
	"fmt"
	"sort"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/mapdraw/model"
)

const (
	// DefaultMinElevationDeg is the lowest elevation at which a ground
	// station can see a satellite.
	DefaultMinElevationDeg = 10.0
	// DefaultMaxCrossLinkKm bounds satellite-to-satellite links.
	DefaultMaxCrossLinkKm = 5000.0
	// unreachableMetric is reported for a node with no visible peer.
	unreachableMetric = -10.0
)

// GroundStation is a fixed node on the Earth's surface.
type GroundStation struct {
	ID  string
	Lng float64
	Lat float64
}

// DefaultGroundStations spread a few terminals across latitudes.
var DefaultGroundStations = []GroundStation{
	{ID: "gs-svalbard", Lng: 15.4, Lat: 78.2},
	{ID: "gs-madrid", Lng: -4.2, Lat: 40.4},
	{ID: "gs-nairobi", Lng: 36.8, Lat: -1.3},
	{ID: "gs-singapore", Lng: 103.8, Lat: 1.35},
	{ID: "gs-santiago", Lng: -70.7, Lat: -33.4},
	{ID: "gs-hawaii", Lng: -155.6, Lat: 19.8},
}

type orbiter struct {
	id  string
	sat satellite.Satellite
}

// Simulator computes feed snapshots for a given instant. It is immutable
// after construction and safe for concurrent use.
type Simulator struct {
	sats            []orbiter
	ground          []GroundStation
	minElevationDeg float64
	maxCrossLinkKm  float64
}

// Option customises a Simulator.
type Option func(*Simulator)

func WithMinElevation(deg float64) Option {
	return func(s *Simulator) { s.minElevationDeg = deg }
}

func WithMaxCrossLink(km float64) Option {
	return func(s *Simulator) { s.maxCrossLinkKm = km }
}

// New builds a simulator from element sets and ground stations.
func New(tles []TLE, ground []GroundStation, opts ...Option) (*Simulator, error) {
	s := &Simulator{
		ground:          append([]GroundStation(nil), ground...),
		minElevationDeg: DefaultMinElevationDeg,
		maxCrossLinkKm:  DefaultMaxCrossLinkKm,
	}
	seen := make(map[string]bool)
	for _, t := range tles {
		if seen[t.Name] {
			return nil, fmt.Errorf("feedsim: duplicate node id %q", t.Name)
		}
		seen[t.Name] = true
		s.sats = append(s.sats, orbiter{
			id:  t.Name,
			sat: satellite.TLEToSat(t.Line1, t.Line2, satellite.GravityWGS72),
		})
	}
	for _, g := range ground {
		if seen[g.ID] {
			return nil, fmt.Errorf("feedsim: duplicate node id %q", g.ID)
		}
		seen[g.ID] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Len is the number of nodes in every snapshot.
func (s *Simulator) Len() int { return len(s.sats) + len(s.ground) }

type node struct {
	id     string
	pos    Vec3
	ground bool
	best   float64
	links  []string
}

// Snapshot returns the feed at t: satellites first, then ground stations.
// A node's signal metric is the best estimated SNR over its links.
func (s *Simulator) Snapshot(t time.Time) model.FeedSnapshot {
	t = t.UTC()
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()
	jd := satellite.JDay(year, int(month), day, hour, minute, sec)
	gmst := satellite.ThetaG_JD(jd)

	nodes := make([]*node, 0, s.Len())
	for _, o := range s.sats {
		eci, _ := satellite.Propagate(o.sat, year, int(month), day, hour, minute, sec)
		ecef := satellite.ECIToECEF(eci, gmst)
		nodes = append(nodes, &node{id: o.id, pos: Vec3{X: ecef.X, Y: ecef.Y, Z: ecef.Z}, best: unreachableMetric})
	}
	for _, g := range s.ground {
		nodes = append(nodes, &node{id: g.ID, pos: SurfacePoint(g.Lng, g.Lat), ground: true, best: unreachableMetric})
	}

	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			a, b := nodes[i], nodes[j]
			if !s.linked(a, b) {
				continue
			}
			snr := EstimateSNRdB(a.pos.DistanceTo(b.pos))
			a.best = max(a.best, snr)
			b.best = max(b.best, snr)
			// The satellite end lists the link.
			if !a.ground {
				a.links = append(a.links, b.id)
			} else {
				b.links = append(b.links, a.id)
			}
		}
	}

	out := make(model.FeedSnapshot, len(nodes))
	for i, n := range nodes {
		lng, lat := n.pos.LngLat()
		sort.Strings(n.links)
		out[i] = model.NodeRecord{
			ID:           n.id,
			Position:     model.Coordinate{Lng: lng, Lat: lat},
			SignalMetric: n.best,
			Connections:  n.links,
		}
	}
	return out
}

func (s *Simulator) linked(a, b *node) bool {
	switch {
	case a.ground && b.ground:
		return false
	case a.ground:
		return ElevationDegrees(a.pos, b.pos) >= s.minElevationDeg
	case b.ground:
		return ElevationDegrees(b.pos, a.pos) >= s.minElevationDeg
	}
	return a.pos.DistanceTo(b.pos) <= s.maxCrossLinkKm && hasLineOfSight(a.pos, b.pos)
}
