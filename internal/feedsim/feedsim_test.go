package feedsim

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/mapdraw/core"
)

func TestLineOfSight(t *testing.T) {
	t.Parallel()

	leo := EarthRadiusKm + 550
	tests := []struct {
		name string
		a, b Vec3
		want bool
	}{
		{name: "neighbouring sats", a: Vec3{X: leo}, b: Vec3{X: leo * math.Cos(0.3), Y: leo * math.Sin(0.3)}, want: true},
		{name: "antipodal sats", a: Vec3{X: leo}, b: Vec3{X: -leo}, want: false},
		{name: "same point in orbit", a: Vec3{Z: leo}, b: Vec3{Z: leo}, want: true},
		{name: "same point underground", a: Vec3{Z: 10}, b: Vec3{Z: 10}, want: false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := hasLineOfSight(tc.a, tc.b); got != tc.want {
				t.Fatalf("hasLineOfSight = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestElevation(t *testing.T) {
	ground := SurfacePoint(0, 0)
	overhead := Vec3{X: EarthRadiusKm + 500}
	if got := ElevationDegrees(ground, overhead); math.Abs(got-90) > 1e-9 {
		t.Fatalf("overhead elevation = %v, want 90", got)
	}
	behind := Vec3{X: -(EarthRadiusKm + 500)}
	if got := ElevationDegrees(ground, behind); got >= 0 {
		t.Fatalf("elevation through the Earth = %v, want negative", got)
	}
}

func TestLngLatRoundTrip(t *testing.T) {
	for _, c := range [][2]float64{{0, 0}, {45, 30}, {-120, -60}, {179, 1}} {
		lng, lat := SurfacePoint(c[0], c[1]).LngLat()
		if math.Abs(lng-c[0]) > 1e-9 || math.Abs(lat-c[1]) > 1e-9 {
			t.Fatalf("LngLat(SurfacePoint(%v)) = %v, %v", c, lng, lat)
		}
	}
}

func TestEstimateSNRMonotonic(t *testing.T) {
	prev := math.Inf(1)
	for _, d := range []float64{0.5, 1, 500, 1000, 2000, 5000, 20000} {
		snr := EstimateSNRdB(d)
		if snr > prev {
			t.Fatalf("SNR(%v km) = %v rises over %v", d, snr, prev)
		}
		prev = snr
	}
	// Spread across quality buckets over typical LEO ranges.
	if core.ClassifySignal(EstimateSNRdB(500)) != core.SignalExcellent {
		t.Fatalf("500 km not excellent: %v", EstimateSNRdB(500))
	}
	if core.ClassifySignal(EstimateSNRdB(20000)) != core.SignalPoor {
		t.Fatalf("20000 km not poor: %v", EstimateSNRdB(20000))
	}
}

func TestParseTLE(t *testing.T) {
	input := strings.Join([]string{
		"ISS (ZARYA)",
		DefaultConstellation[0].Line1,
		DefaultConstellation[0].Line2,
		"",
		DefaultConstellation[1].Line1,
		DefaultConstellation[1].Line2,
	}, "\n")
	got, err := ParseTLE(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseTLE: %v", err)
	}
	if len(got) != 2 || got[0].Name != "ISS (ZARYA)" || got[1].Name != "90002" {
		t.Fatalf("ParseTLE = %+v", got)
	}

	bad := []string{
		DefaultConstellation[0].Line1 + "\n" + DefaultConstellation[1].Line2,
		DefaultConstellation[0].Line1,
		DefaultConstellation[0].Line1 + "\nname\n" + DefaultConstellation[0].Line2,
		"1 short\n2 short",
	}
	for _, in := range bad {
		if _, err := ParseTLE(strings.NewReader(in)); err == nil {
			t.Fatalf("ParseTLE(%q) accepted bad input", in)
		}
	}
}

func TestSimulatorSnapshot(t *testing.T) {
	sim, err := New(DefaultConstellation, DefaultGroundStations)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	at := time.Date(2021, 10, 2, 12, 0, 0, 0, time.UTC)
	snap := sim.Snapshot(at)
	if len(snap) != sim.Len() || sim.Len() != len(DefaultConstellation)+len(DefaultGroundStations) {
		t.Fatalf("snapshot size = %d, want %d", len(snap), sim.Len())
	}

	ids := make(map[string]bool)
	for _, rec := range snap {
		ids[rec.ID] = true
		if rec.Position.Lat < -90 || rec.Position.Lat > 90 || rec.Position.Lng < -180 || rec.Position.Lng > 180 {
			t.Fatalf("%s position out of range: %v", rec.ID, rec.Position)
		}
	}
	for i, rec := range snap[:len(DefaultConstellation)] {
		// Inclination bounds the sub-satellite latitude.
		if math.Abs(rec.Position.Lat) > 52 {
			t.Fatalf("sat %d latitude %v exceeds inclination", i, rec.Position.Lat)
		}
		for _, c := range rec.Connections {
			if !ids[c] {
				t.Fatalf("%s links to unknown node %s", rec.ID, c)
			}
		}
	}
	for _, rec := range snap[len(DefaultConstellation):] {
		if len(rec.Connections) != 0 {
			t.Fatalf("ground station %s lists links %v", rec.ID, rec.Connections)
		}
	}

	later := sim.Snapshot(at.Add(10 * time.Minute))
	if later[0].Position == snap[0].Position {
		t.Fatalf("satellite did not move in 10 minutes")
	}
	if later[len(later)-1].Position != snap[len(snap)-1].Position {
		t.Fatalf("ground station moved")
	}

	if core.BuildOverlay(snap).Len() != len(snap) {
		t.Fatalf("overlay does not align with snapshot")
	}
}

func TestSimulatorRejectsDuplicateIDs(t *testing.T) {
	if _, err := New(DefaultConstellation[:1], []GroundStation{{ID: "sim-01"}}); err == nil {
		t.Fatalf("New accepted a duplicate id")
	}
}
