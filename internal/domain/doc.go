// Package domain models single-sweep weather radar composites and the hail
// detections derived from them.
//
// # Data Source
//
// Products are OPERA/ODIM composite reflectivity images. Each product carries
// two co-registered datasets on the same Cartesian grid:
//
//	dataset1/data1  DBZH  horizontal reflectivity in dBZ
//	dataset2/data1  QIND  quality indicator in [0, 1]
//
// The scan time comes from the "what" group of the first dataset:
//
//	startdate  "YYYYMMDD", e.g. "20240115"
//	starttime  "HHMMSS",   e.g. "143000"
//
// and is rendered as "2024-01-15 14:30:00" (see [FormatScanTimestamp]).
// Product files are named "ODC.REF_<YYYYMMDDHHMM>" plus an extension; the
// twelve digit suffix is the product identifier (see [ParseProductID]).
//
// # Grid Conventions
//
// Row 0 of a dataset is the northernmost row. Cartesian y grows northward, so
// the y coordinate of a row is (rows-1-row)*cellSizeY. Cell (rows-1, 0) sits
// on the lower-left corner of the grid, which is anchored to the projection
// by forward-projecting [GridGeometry.LowerLeft].
//
// The default network grid is 1900 x 2200 cells of 2 km on a Lambert
// azimuthal equal-area projection centred at 55N 10E (WGS84).
//
// # Hail Signature
//
// A cell is a hail candidate when its reflectivity is finite and inside the
// half-open band [min, max) and its quality indicator is at least the
// configured minimum. The defaults (65 dBZ, 80 dBZ, 0.8) are carried by
// [DefaultThresholds]. Saturated cells are stored as +Inf and treated as
// missing. Each cell is evaluated on its own; there is no smoothing or
// clustering.
package domain
