package spatial

import (
	"math"

	"collision-server/internal/geom"
)

const (
	// DefaultCellSize is roughly twice the largest expected collider radius.
	DefaultCellSize = 4.0

	// maxSpan bounds how many cells one entry may cover before it goes to
	// the oversize list that every query visits.
	maxSpan = 64
)

type cellKey struct {
	x, z int32
}

// Grid is an unbounded hash grid on the X/Z plane for broad-phase queries.
// Cell slices are recycled across Clear calls.
type Grid struct {
	cellSize float64
	index    map[cellKey]int
	cells    [][]int32
	used     int
	oversize []int32
}

func NewGrid(cellSize float64) *Grid {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return &Grid{cellSize: cellSize, index: make(map[cellKey]int)}
}

// Clear resets all cells (keeps allocated capacity)
func (g *Grid) Clear() {
	for i := 0; i < g.used; i++ {
		g.cells[i] = g.cells[i][:0]
	}
	g.used = 0
	clear(g.index)
	g.oversize = g.oversize[:0]
}

// cellCoord maps a world coordinate to a cell index clamped to the int32
// key range.
func (g *Grid) cellCoord(v float64) int64 {
	c := math.Floor(v / g.cellSize)
	switch {
	case math.IsNaN(c):
		return 0
	case c < math.MinInt32:
		return math.MinInt32
	case c > math.MaxInt32:
		return math.MaxInt32
	}
	return int64(c)
}

func (g *Grid) span(b geom.AABB) (minX, minZ, maxX, maxZ int64) {
	return g.cellCoord(b.Min.X()), g.cellCoord(b.Min.Z()), g.cellCoord(b.Max.X()), g.cellCoord(b.Max.Z())
}

// spanCells is the number of cells in a span, saturating at MaxInt64.
func spanCells(minX, minZ, maxX, maxZ int64) int64 {
	w, h := maxX-minX+1, maxZ-minZ+1
	if w <= 0 || h <= 0 {
		return 0
	}
	if w > math.MaxInt64/h {
		return math.MaxInt64
	}
	return w * h
}

// InsertAABB adds ref to every cell the box covers.
func (g *Grid) InsertAABB(b geom.AABB, ref int32) {
	minX, minZ, maxX, maxZ := g.span(b)
	if spanCells(minX, minZ, maxX, maxZ) > maxSpan*maxSpan {
		g.oversize = append(g.oversize, ref)
		return
	}
	for z := minZ; z <= maxZ; z++ {
		for x := minX; x <= maxX; x++ {
			k := cellKey{int32(x), int32(z)}
			i, ok := g.index[k]
			if !ok {
				if g.used == len(g.cells) {
					g.cells = append(g.cells, nil)
				}
				i = g.used
				g.used++
				g.index[k] = i
			}
			g.cells[i] = append(g.cells[i], ref)
		}
	}
}

// QueryBuf appends refs from every cell the box covers, avoiding per-call
// allocation. Refs may repeat when an entry spans several cells.
func (g *Grid) QueryBuf(b geom.AABB, buf []int32) []int32 {
	buf = append(buf, g.oversize...)
	minX, minZ, maxX, maxZ := g.span(b)
	if spanCells(minX, minZ, maxX, maxZ) > int64(g.used) {
		// Cheaper to scan the occupied cells than the covered range.
		for k, i := range g.index {
			x, z := int64(k.x), int64(k.z)
			if x >= minX && x <= maxX && z >= minZ && z <= maxZ {
				buf = append(buf, g.cells[i]...)
			}
		}
		return buf
	}
	for z := minZ; z <= maxZ; z++ {
		for x := minX; x <= maxX; x++ {
			if i, ok := g.index[cellKey{int32(x), int32(z)}]; ok {
				buf = append(buf, g.cells[i]...)
			}
		}
	}
	return buf
}
