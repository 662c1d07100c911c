// Package expand grows labelled regions into the surrounding background.
package expand

import (
	"fmt"
	"math"

	"github.com/bioimg-tools/bioimg/internal/raster"
)

// Labels returns a copy of g in which every background pixel within
// Euclidean distance pixels of a labelled pixel takes the label of the
// nearest one. Labelled pixels keep their value, so regions never overwrite
// each other.
func Labels(g *raster.Grid[uint64], pixels float64) (*raster.Grid[uint64], error) {
	if pixels <= 0 || math.IsNaN(pixels) {
		return nil, fmt.Errorf("expansion distance must be positive, got %v", pixels)
	}
	out := raster.NewGrid[uint64](g.Width, g.Height)
	copy(out.Pix, g.Pix)
	if len(g.Pix) == 0 {
		return out, nil
	}

	dist, nearest := Transform(g)
	limit := pixels * pixels
	for i, v := range g.Pix {
		if v == 0 && nearest[i] >= 0 && dist[i] <= limit {
			out.Pix[i] = g.Pix[nearest[i]]
		}
	}
	return out, nil
}

// Transform computes, for every pixel, the squared Euclidean distance to the
// nearest non-zero pixel and that pixel's index in g.Pix. Pixels of an
// all-zero grid get +Inf and -1. It runs the separable lower-envelope
// algorithm of Felzenszwalb and Huttenlocher, columns first, then rows.
func Transform(g *raster.Grid[uint64]) ([]float64, []int) {
	w, h := g.Width, g.Height
	n := max(w, h)
	env := newEnvelope(n)

	// Column pass: distance to the nearest feature in the same column.
	colDist := make([]float64, w*h)
	colRow := make([]int, w*h)
	f := make([]float64, n)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			f[y] = math.Inf(1)
			if g.Pix[y*w+x] != 0 {
				f[y] = 0
			}
		}
		env.run(f[:h])
		for y := 0; y < h; y++ {
			colDist[y*w+x] = env.d[y]
			colRow[y*w+x] = env.arg[y]
		}
	}

	dist := make([]float64, w*h)
	nearest := make([]int, w*h)
	for y := 0; y < h; y++ {
		env.run(colDist[y*w : (y+1)*w])
		for x := 0; x < w; x++ {
			i := y*w + x
			dist[i] = env.d[x]
			nearest[i] = -1
			if nx := env.arg[x]; nx >= 0 {
				if ny := colRow[y*w+nx]; ny >= 0 {
					nearest[i] = ny*w + nx
				}
			}
		}
	}
	return dist, nearest
}

// envelope holds the scratch space of the 1-D transform.
type envelope struct {
	v   []int
	z   []float64
	d   []float64
	arg []int
}

func newEnvelope(n int) *envelope {
	return &envelope{
		v:   make([]int, n),
		z:   make([]float64, n+1),
		d:   make([]float64, n),
		arg: make([]int, n),
	}
}

// intersect is where the parabolas rooted at q and p cross.
func intersect(f []float64, q, p int) float64 {
	return ((f[q] + float64(q*q)) - (f[p] + float64(p*p))) / float64(2*q-2*p)
}

// run computes d[q] = min_p (q-p)^2 + f[p] and the minimising p. Infinite
// samples never join the envelope.
func (e *envelope) run(f []float64) {
	n := len(f)
	k := -1
	for q := 0; q < n; q++ {
		if math.IsInf(f[q], 1) {
			continue
		}
		if k < 0 {
			k = 0
			e.v[0] = q
			e.z[0] = math.Inf(-1)
			e.z[1] = math.Inf(1)
			continue
		}
		s := intersect(f, q, e.v[k])
		for s <= e.z[k] {
			k--
			s = intersect(f, q, e.v[k])
		}
		k++
		e.v[k] = q
		e.z[k] = s
		e.z[k+1] = math.Inf(1)
	}

	if k < 0 {
		for q := 0; q < n; q++ {
			e.d[q] = math.Inf(1)
			e.arg[q] = -1
		}
		return
	}
	j := 0
	for q := 0; q < n; q++ {
		for e.z[j+1] < float64(q) {
			j++
		}
		p := e.v[j]
		e.d[q] = float64((q-p)*(q-p)) + f[p]
		e.arg[q] = p
	}
}
