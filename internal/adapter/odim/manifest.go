// Package odim reads staged ODIM composite products from a directory.
//
// The HDF5 container is unpacked upstream into a JSON manifest that mirrors
// the ODIM attribute tree, plus one binary file per data array:
//
//	ODC.REF_202401151430.json            manifest (what/where/datasets)
//	ODC.REF_202401151430.dataset1.f32.gz DBZH, row-major little-endian float32
//	ODC.REF_202401151430.dataset2.f32.gz QIND, same layout
//
// Array files ending in ".gz" are gzip-compressed.
package odim

import (
	"math"
	"strconv"
	"strings"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
)

// Quantity names used by ODIM.
const (
	QuantityReflectivity = "DBZH"
	QuantityQuality      = "QIND"
)

// Manifest is the JSON form of an ODIM product's attribute tree.
type Manifest struct {
	What     What               `json:"what"`
	Where    *Where             `json:"where,omitempty"`
	Datasets map[string]Dataset `json:"datasets"`
}

// What carries the top-level or per-dataset "what" attributes.
type What struct {
	Object    string `json:"object,omitempty"`
	Quantity  string `json:"quantity,omitempty"`
	StartDate string `json:"startdate,omitempty"`
	StartTime string `json:"starttime,omitempty"`
}

// Where carries the composite grid attributes.
type Where struct {
	ProjDef string  `json:"projdef"`
	XSize   int     `json:"xsize"`
	YSize   int     `json:"ysize"`
	XScale  float64 `json:"xscale"`
	YScale  float64 `json:"yscale"`
	LLLat   float64 `json:"LL_lat"`
	LLLon   float64 `json:"LL_lon"`
	URLat   float64 `json:"UR_lat"`
	URLon   float64 `json:"UR_lon"`
}

// Dataset is one ODIM datasetN group with its data1 array.
type Dataset struct {
	What  What `json:"what"`
	Data1 Data `json:"data1"`
}

// Data references the binary file holding one array.
type Data struct {
	File  string `json:"file"`
	Shape [2]int `json:"shape"` // rows, columns
}

// Geometry converts the where block to a grid geometry. It returns false
// when the block is absent, incomplete, not a LAEA projection, or carries a
// non-finite number.
func (w *Where) Geometry() (domain.GridGeometry, bool) {
	if w == nil || w.XSize <= 0 || w.YSize <= 0 || w.XScale <= 0 || w.YScale <= 0 {
		return domain.GridGeometry{}, false
	}
	params := parseProjDef(w.ProjDef)
	if params["proj"] != "laea" {
		return domain.GridGeometry{}, false
	}
	lat0, errLat := strconv.ParseFloat(params["lat_0"], 64)
	lon0, errLon := strconv.ParseFloat(params["lon_0"], 64)
	if errLat != nil || errLon != nil {
		return domain.GridGeometry{}, false
	}
	for _, v := range []float64{w.XScale, w.YScale, w.LLLat, w.LLLon, w.URLat, w.URLon, lat0, lon0} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.GridGeometry{}, false
		}
	}
	return domain.GridGeometry{
		CellSizeX:  w.XScale,
		CellSizeY:  w.YScale,
		Columns:    w.XSize,
		Rows:       w.YSize,
		LowerLeft:  domain.LatLon{Lat: w.LLLat, Lon: w.LLLon},
		UpperRight: domain.LatLon{Lat: w.URLat, Lon: w.URLon},
		Origin:     domain.LatLon{Lat: lat0, Lon: lon0},
	}, true
}

// WhereFromGeometry renders a geometry as an ODIM where block.
func WhereFromGeometry(g domain.GridGeometry) *Where {
	return &Where{
		ProjDef: "+proj=laea +lat_0=" + strconv.FormatFloat(g.Origin.Lat, 'f', -1, 64) +
			" +lon_0=" + strconv.FormatFloat(g.Origin.Lon, 'f', -1, 64) + " +units=m +ellps=WGS84",
		XSize:  g.Columns,
		YSize:  g.Rows,
		XScale: g.CellSizeX,
		YScale: g.CellSizeY,
		LLLat:  g.LowerLeft.Lat,
		LLLon:  g.LowerLeft.Lon,
		URLat:  g.UpperRight.Lat,
		URLon:  g.UpperRight.Lon,
	}
}

// parseProjDef splits a proj.4 definition such as
// "+proj=laea +lat_0=55.0 +lon_0=10.0 +units=m" into key/value pairs.
func parseProjDef(def string) map[string]string {
	out := make(map[string]string)
	for _, tok := range strings.Fields(def) {
		tok = strings.TrimPrefix(tok, "+")
		key, value, _ := strings.Cut(tok, "=")
		out[key] = value
	}
	return out
}

// dataset finds the dataset carrying quantity, falling back to the
// conventional ODIM position when no dataset declares a quantity.
func (m Manifest) dataset(quantity, fallback string) (string, Dataset, bool) {
	for name, ds := range m.Datasets {
		if strings.EqualFold(ds.What.Quantity, quantity) {
			return name, ds, true
		}
	}
	ds, ok := m.Datasets[fallback]
	if ok && ds.What.Quantity != "" && !strings.EqualFold(ds.What.Quantity, quantity) {
		return "", Dataset{}, false
	}
	return fallback, ds, ok
}
