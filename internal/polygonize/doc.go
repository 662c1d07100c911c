// Package polygonize converts labeled segmentation masks into vector
// geometry.
//
// A mask is a 2-D grid where 0 is background and every other value names a
// region. Shapes traces each connected run of equal values into a polygon
// (with holes where the run encloses other cells). Aggregate then collects
// those fragments per label: a label seen once becomes a Polygon, a label
// split into several disjoint runs becomes a MultiPolygon whose parts are
// kept as traced.
//
// Coordinates are pixel corners: x is the column, y the row, and the cell at
// (col, row) covers the unit square from (col, row) to (col+1, row+1).
package polygonize
