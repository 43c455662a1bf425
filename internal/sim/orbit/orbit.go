// Package orbit decides whether a vessel can see a ground station. A vessel
// on a TLE orbit is propagated with SGP4 each tick; the link is open while
// any station sees it above its minimum elevation.
package orbit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// ErrInvalidTLE indicates TLE lines that cannot be propagated.
var ErrInvalidTLE = errors.New("invalid TLE")

// Propagator yields the ECEF position of a vessel at a given time.
type Propagator interface {
	PositionECEF(t time.Time) Vec3
}

// StaticPosition is a Propagator for a vessel that does not move.
type StaticPosition Vec3

func (p StaticPosition) PositionECEF(time.Time) Vec3 { return Vec3(p) }

// SGP4 propagates a two-line element set.
type SGP4 struct {
	sat satellite.Satellite
}

// NewSGP4 parses TLE lines.
func NewSGP4(line1, line2 string) (*SGP4, error) {
	line1, line2 = strings.TrimSpace(line1), strings.TrimSpace(line2)
	if len(line1) < 69 || len(line2) < 69 || line1[0] != '1' || line2[0] != '2' {
		return nil, fmt.Errorf("%w: expected two 69-column lines starting with 1 and 2", ErrInvalidTLE)
	}
	return &SGP4{sat: satellite.TLEToSat(line1, line2, satellite.GravityWGS72)}, nil
}

// PositionECEF propagates to t. go-satellite works in kilometres.
func (m *SGP4) PositionECEF(t time.Time) Vec3 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(m.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	posECEF := satellite.ECIToECEF(posECI, satellite.ThetaG_JD(jd))
	return Vec3{X: posECEF.X, Y: posECEF.Y, Z: posECEF.Z}
}

// GroundStation is a fixed receiver on the Earth's surface.
type GroundStation struct {
	ID     string
	LatDeg float64
	LonDeg float64
	AltKm  float64

	// MinElevationDeg is the lowest elevation the station can track.
	MinElevationDeg float64
}

// Position returns the station in ECEF kilometres.
func (g GroundStation) Position() Vec3 {
	return GeodeticToECEF(g.LatDeg, g.LonDeg, g.AltKm)
}

// Contact describes the best station in view at one instant.
type Contact struct {
	StationID    string
	ElevationDeg float64
	RangeKm      float64
}

// Tracker evaluates ground station visibility for one vessel.
type Tracker struct {
	prop     Propagator
	stations []GroundStation
	pos      []Vec3
}

// NewTracker builds a tracker. With no stations nothing is ever in view.
func NewTracker(prop Propagator, stations ...GroundStation) *Tracker {
	t := &Tracker{prop: prop, stations: stations, pos: make([]Vec3, len(stations))}
	for i, s := range stations {
		t.pos[i] = s.Position()
	}
	return t
}

// Visible returns the highest-elevation station that sees the vessel at
// time t, if any.
func (t *Tracker) Visible(at time.Time) (Contact, bool) {
	vessel := t.prop.PositionECEF(at)

	var (
		best  Contact
		found bool
	)
	for i, s := range t.stations {
		station := t.pos[i]
		if !hasLineOfSight(station, vessel) {
			continue
		}
		elev := ElevationDegrees(station, vessel)
		if elev < s.MinElevationDeg {
			continue
		}
		if !found || elev > best.ElevationDeg {
			best = Contact{
				StationID:    s.ID,
				ElevationDeg: elev,
				RangeKm:      vessel.Sub(station).Norm(),
			}
			found = true
		}
	}
	return best, found
}
