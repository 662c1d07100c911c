package polygonize

import (
	"fmt"
	"iter"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/bioimg-tools/bioimg/internal/raster"
)

// Connectivity selects which neighbours join cells into one fragment.
type Connectivity int

const (
	FourConnected  Connectivity = 4
	EightConnected Connectivity = 8
)

// Options tune the tracer. The zero value traces 4-connected fragments.
type Options struct {
	Connectivity Connectivity
}

func (o Options) validate() error {
	switch o.Connectivity {
	case 0, FourConnected, EightConnected:
		return nil
	}
	return fmt.Errorf("connectivity must be 4 or 8, got %d", o.Connectivity)
}

// direction of a unit boundary edge in image coordinates (y grows downwards).
type direction uint8

const (
	east direction = iota
	south
	west
	north
)

// left is the direction after a left turn as seen on screen.
func (d direction) left() direction { return (d + 3) % 4 }

type edge struct {
	fromX, fromY int
	dir          direction
}

func (e edge) to() (int, int) {
	switch e.dir {
	case east:
		return e.fromX + 1, e.fromY
	case south:
		return e.fromX, e.fromY + 1
	case west:
		return e.fromX - 1, e.fromY
	}
	return e.fromX, e.fromY - 1
}

// Shapes traces g into one polygon per connected run of equal non-zero
// cells and yields it with the run's label. Zero cells never produce a
// fragment. Fragments come out in raster scan order of their first cell.
//
// The sequence is single pass: it labels cells as it goes and cannot be
// restarted.
func Shapes(g *raster.Grid[uint64], opts Options) iter.Seq2[orb.Polygon, uint64] {
	return func(yield func(orb.Polygon, uint64) bool) {
		t := newTracer(g, opts.Connectivity)
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				i := y*g.Width + x
				if g.Pix[i] == 0 || t.comp[i] != 0 {
					continue
				}
				cells := t.fill(x, y)
				if !yield(t.polygon(cells), g.Pix[i]) {
					return
				}
			}
		}
	}
}

type tracer struct {
	g     *raster.Grid[uint64]
	eight bool
	comp  []int32
	next  int32
}

func newTracer(g *raster.Grid[uint64], c Connectivity) *tracer {
	return &tracer{
		g:     g,
		eight: c == EightConnected,
		comp:  make([]int32, len(g.Pix)),
	}
}

// fill marks the fragment containing (x, y) and returns its cell indices.
func (t *tracer) fill(startX, startY int) []int {
	t.next++
	id := t.next
	w, h := t.g.Width, t.g.Height
	label := t.g.Pix[startY*w+startX]

	var cells []int
	stack := []int{startY*w + startX}
	t.comp[stack[0]] = id
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cells = append(cells, i)
		x, y := i%w, i/w

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				if !t.eight && dx != 0 && dy != 0 {
					continue
				}
				nx, ny := x+dx, y+dy
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				n := ny*w + nx
				if t.comp[n] != 0 || t.g.Pix[n] != label {
					continue
				}
				t.comp[n] = id
				stack = append(stack, n)
			}
		}
	}
	return cells
}

func (t *tracer) inside(x, y int, id int32) bool {
	if x < 0 || y < 0 || x >= t.g.Width || y >= t.g.Height {
		return false
	}
	return t.comp[y*t.g.Width+x] == id
}

// polygon builds the shell and holes of one fragment. Boundary edges keep the
// fragment on their right on screen, which makes shells counter-clockwise in
// (x, y) coordinates and holes clockwise.
func (t *tracer) polygon(cells []int) orb.Polygon {
	w := t.g.Width
	id := t.comp[cells[0]]
	slices.Sort(cells)

	var edges []edge
	for _, i := range cells {
		x, y := i%w, i/w
		if !t.inside(x, y-1, id) {
			edges = append(edges, edge{x, y, east})
		}
		if !t.inside(x+1, y, id) {
			edges = append(edges, edge{x + 1, y, south})
		}
		if !t.inside(x, y+1, id) {
			edges = append(edges, edge{x + 1, y + 1, west})
		}
		if !t.inside(x-1, y, id) {
			edges = append(edges, edge{x, y + 1, north})
		}
	}

	stride := w + 1
	out := make(map[int][]int, len(edges))
	for k, e := range edges {
		v := e.fromY*stride + e.fromX
		out[v] = append(out[v], k)
	}

	used := make([]bool, len(edges))
	var shell orb.Ring
	var holes []orb.Ring
	for k := range edges {
		if used[k] {
			continue
		}
		ring := walk(edges, out, used, k, stride)
		if ring.Orientation() == orb.CCW {
			if shell == nil || planar.Area(ring) > planar.Area(shell) {
				shell = ring
			}
			continue
		}
		holes = append(holes, ring)
	}
	return append(orb.Polygon{shell}, holes...)
}

// walk follows unused edges from start until the ring closes. Where two
// outgoing edges meet at a vertex the left turn is taken, so a ring keeps
// the same outside cell on its left and holes touching the shell at a single
// point stay separate rings.
func walk(edges []edge, out map[int][]int, used []bool, start, stride int) orb.Ring {
	var corners []edge
	k := start
	for {
		used[k] = true
		corners = append(corners, edges[k])
		x, y := edges[k].to()
		cand := out[y*stride+x]

		next := -1
		for _, c := range cand {
			if used[c] && c != start {
				continue
			}
			if next == -1 || edges[c].dir == edges[k].dir.left() {
				next = c
			}
		}
		if next == -1 || next == start {
			break
		}
		k = next
	}

	ring := make(orb.Ring, 0, len(corners)+1)
	for i, e := range corners {
		prev := corners[(i+len(corners)-1)%len(corners)]
		if prev.dir == e.dir {
			continue
		}
		ring = append(ring, orb.Point{float64(e.fromX), float64(e.fromY)})
	}
	return append(ring, ring[0])
}
