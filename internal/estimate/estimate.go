// Package estimate produces the distance and price range attached to a
// quote. The real estimator is an external LLM service behind the
// Estimator interface; Fallback is the deterministic stand-in used when
// no client is configured or the external call fails.
package estimate

import (
	"context"
	"fmt"
	"math"
	"strings"
)

type Input struct {
	OriginCity   string
	OriginState  string
	DestCity     string
	DestState    string
	PropertyType string
}

type Estimate struct {
	DistanceKm    float64
	PriceMinCents int64
	PriceMaxCents int64
	Explanation   string
	OriginCity    string
	OriginState   string
	DestCity      string
	DestState     string
}

type Estimator interface {
	Estimate(ctx context.Context, in Input) (*Estimate, error)
}

// capital coordinates per UF, used to approximate interstate distance.
var stateCoords = map[string][2]float64{
	"AC": {-9.97, -67.81}, "AL": {-9.65, -35.73}, "AP": {0.03, -51.07},
	"AM": {-3.12, -60.02}, "BA": {-12.97, -38.51}, "CE": {-3.72, -38.54},
	"DF": {-15.78, -47.93}, "ES": {-20.32, -40.34}, "GO": {-16.68, -49.25},
	"MA": {-2.53, -44.30}, "MT": {-15.60, -56.10}, "MS": {-20.44, -54.65},
	"MG": {-19.92, -43.94}, "PA": {-1.46, -48.50}, "PB": {-7.12, -34.88},
	"PR": {-25.43, -49.27}, "PE": {-8.05, -34.88}, "PI": {-5.09, -42.80},
	"RJ": {-22.91, -43.17}, "RN": {-5.79, -35.21}, "RS": {-30.03, -51.23},
	"RO": {-8.76, -63.90}, "RR": {2.82, -60.67}, "SC": {-27.60, -48.55},
	"SP": {-23.55, -46.63}, "SE": {-10.91, -37.07}, "TO": {-10.25, -48.32},
}

// localFloorKm is the assumed distance for moves inside the same state,
// where capital-to-capital distance degenerates to zero.
const localFloorKm = 30

var basePriceCents = map[string]int64{
	"kitnet":      60000,
	"apartamento": 120000,
	"casa":        180000,
	"comercial":   250000,
}

const (
	defaultBaseCents = 120000
	perKmCents       = 350
)

// Fallback estimates from the fixed capital-distance table and per-km
// pricing bands. It never calls out and always answers for known UFs.
type Fallback struct{}

func (Fallback) Estimate(_ context.Context, in Input) (*Estimate, error) {
	origin, ok := stateCoords[normalizeUF(in.OriginState)]
	if !ok {
		return nil, fmt.Errorf("estado de origem desconhecido: %q", in.OriginState)
	}
	dest, ok := stateCoords[normalizeUF(in.DestState)]
	if !ok {
		return nil, fmt.Errorf("estado de destino desconhecido: %q", in.DestState)
	}

	dist := haversineKm(origin, dest)
	if dist < localFloorKm {
		dist = localFloorKm
	}

	base, ok := basePriceCents[strings.ToLower(strings.TrimSpace(in.PropertyType))]
	if !ok {
		base = defaultBaseCents
	}
	min := base + int64(math.Round(dist))*perKmCents
	max := min + min*2/5

	return &Estimate{
		DistanceKm:    math.Round(dist),
		PriceMinCents: min,
		PriceMaxCents: max,
		Explanation: fmt.Sprintf(
			"estimativa baseada em distância aproximada de %.0f km entre %s/%s e %s/%s",
			math.Round(dist), in.OriginCity, normalizeUF(in.OriginState), in.DestCity, normalizeUF(in.DestState),
		),
		OriginCity:  in.OriginCity,
		OriginState: normalizeUF(in.OriginState),
		DestCity:    in.DestCity,
		DestState:   normalizeUF(in.DestState),
	}, nil
}

func normalizeUF(uf string) string {
	return strings.ToUpper(strings.TrimSpace(uf))
}

func haversineKm(a, b [2]float64) float64 {
	const earthRadiusKm = 6371
	lat1, lon1 := a[0]*math.Pi/180, a[1]*math.Pi/180
	lat2, lon2 := b[0]*math.Pi/180, b[1]*math.Pi/180
	dLat, dLon := lat2-lat1, lon2-lon1
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
