// Package projection maps the native radar grid to geographic coordinates
// with an ellipsoidal Lambert azimuthal equal-area projection (WGS84).
package projection

import (
	"fmt"
	"math"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
)

// WGS84 ellipsoid.
const (
	semiMajor  = 6378137.0
	flattening = 1 / 298.257223563
)

// LAEA is an oblique Lambert azimuthal equal-area projection on the WGS84
// ellipsoid, following the authalic-latitude formulation (Snyder 1987, §24).
// Coordinates are metres from the projection centre.
type LAEA struct {
	origin domain.LatLon

	e, e2 float64
	qp    float64
	rq    float64
	d     float64
	sinB1 float64
	cosB1 float64
	lon0  float64
	apa   [3]float64 // authalic -> geodetic latitude series coefficients
	polar bool
	south bool
}

// NewLAEA builds a projection centred at origin.
func NewLAEA(origin domain.LatLon) (*LAEA, error) {
	if math.IsNaN(origin.Lat) || math.IsNaN(origin.Lon) ||
		origin.Lat < -90 || origin.Lat > 90 || origin.Lon < -180 || origin.Lon > 180 {
		return nil, fmt.Errorf("new laea: %w: origin %v out of range", domain.ErrProjection, origin)
	}

	p := &LAEA{origin: origin}
	p.e2 = flattening * (2 - flattening)
	p.e = math.Sqrt(p.e2)
	p.qp = p.q(1)
	p.rq = semiMajor * math.Sqrt(p.qp/2)
	p.lon0 = radians(origin.Lon)

	e4 := p.e2 * p.e2
	e6 := e4 * p.e2
	p.apa = [3]float64{
		p.e2/3 + 31*e4/180 + 517*e6/5040,
		23*e4/360 + 251*e6/3780,
		761 * e6 / 45360,
	}

	phi1 := radians(origin.Lat)
	if math.Abs(math.Abs(origin.Lat)-90) < 1e-10 {
		p.polar = true
		p.south = origin.Lat < 0
		return p, nil
	}
	sinPhi1 := math.Sin(phi1)
	b1 := math.Asin(p.q(sinPhi1) / p.qp)
	p.sinB1 = math.Sin(b1)
	p.cosB1 = math.Cos(b1)
	p.d = semiMajor * math.Cos(phi1) / (math.Sqrt(1-p.e2*sinPhi1*sinPhi1) * p.rq * p.cosB1)
	return p, nil
}

// Origin returns the projection centre.
func (p *LAEA) Origin() domain.LatLon {
	return p.origin
}

// q is Snyder's q as a function of sin(latitude).
func (p *LAEA) q(sinPhi float64) float64 {
	es := p.e * sinPhi
	return (1 - p.e2) * (sinPhi/(1-es*sinPhi) - 1/(2*p.e)*math.Log((1-es)/(1+es)))
}

// Forward projects a geographic position to plane coordinates.
func (p *LAEA) Forward(pos domain.LatLon) (x, y float64, err error) {
	if pos.Lat < -90 || pos.Lat > 90 || math.IsNaN(pos.Lat) || math.IsNaN(pos.Lon) {
		return 0, 0, fmt.Errorf("laea forward: %w: latitude %v out of range", domain.ErrProjection, pos.Lat)
	}
	lam := radians(pos.Lon) - p.lon0
	qv := p.q(math.Sin(radians(pos.Lat)))

	if p.polar {
		rho := semiMajor * math.Sqrt(p.qp-qv)
		if p.south {
			rho = semiMajor * math.Sqrt(p.qp+qv)
			return rho * math.Sin(lam), rho * math.Cos(lam), nil
		}
		return rho * math.Sin(lam), -rho * math.Cos(lam), nil
	}

	sinB := qv / p.qp
	if sinB > 1 {
		sinB = 1
	} else if sinB < -1 {
		sinB = -1
	}
	cosB := math.Sqrt(1 - sinB*sinB)
	denom := 1 + p.sinB1*sinB + p.cosB1*cosB*math.Cos(lam)
	if denom <= 1e-12 {
		return 0, 0, fmt.Errorf("laea forward: %w: antipode of the projection centre", domain.ErrProjection)
	}
	b := p.rq * math.Sqrt(2/denom)
	x = b * p.d * cosB * math.Sin(lam)
	y = (b / p.d) * (p.cosB1*sinB - p.sinB1*cosB*math.Cos(lam))
	return x, y, nil
}

// Inverse maps plane coordinates back to a geographic position.
func (p *LAEA) Inverse(x, y float64) (domain.LatLon, error) {
	var sinB, lam float64

	if p.polar {
		rho := math.Hypot(x, y)
		if rho < 1e-10 {
			return p.origin, nil
		}
		qv := p.qp - (rho*rho)/(semiMajor*semiMajor)
		if p.south {
			qv = -qv
		}
		sinB = qv / p.qp
		if p.south {
			lam = math.Atan2(x, y)
		} else {
			lam = math.Atan2(x, -y)
		}
	} else {
		xs, ys := x/p.d, y*p.d
		rho := math.Hypot(xs, ys)
		if rho < 1e-10 {
			return p.origin, nil
		}
		s := rho / (2 * p.rq)
		if s > 1+1e-12 {
			return domain.LatLon{}, fmt.Errorf("laea inverse: %w: point (%.1f, %.1f) outside the projection disc", domain.ErrProjection, x, y)
		}
		ce := 2 * math.Asin(math.Min(s, 1))
		sinCe, cosCe := math.Sin(ce), math.Cos(ce)
		sinB = cosCe*p.sinB1 + ys*sinCe*p.cosB1/rho
		lam = math.Atan2(xs*sinCe, rho*p.cosB1*cosCe-ys*p.sinB1*sinCe)
	}

	if sinB > 1 {
		sinB = 1
	} else if sinB < -1 {
		sinB = -1
	}
	beta := math.Asin(sinB)
	phi := beta + p.apa[0]*math.Sin(2*beta) + p.apa[1]*math.Sin(4*beta) + p.apa[2]*math.Sin(6*beta)

	return domain.LatLon{Lat: degrees(phi), Lon: normalizeLon(degrees(lam + p.lon0))}, nil
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func normalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
