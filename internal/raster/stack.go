package raster

import "fmt"

// Stack is a channel-first (CYX) image: every channel has the same size and
// depth.
type Stack struct {
	Channels []Plane
}

// NewStack validates that all planes share size and depth.
func NewStack(planes ...Plane) (*Stack, error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("%w: stack has no channels", ErrDimension)
	}
	w, h := planes[0].Size()
	d := planes[0].Depth()
	for i, p := range planes[1:] {
		pw, ph := p.Size()
		if pw != w || ph != h {
			return nil, fmt.Errorf("%w: channel %d is %dx%d, channel 0 is %dx%d", ErrDimension, i+1, pw, ph, w, h)
		}
		if p.Depth() != d {
			return nil, fmt.Errorf("%w: channel %d is %v, channel 0 is %v", ErrDimension, i+1, p.Depth(), d)
		}
	}
	return &Stack{Channels: planes}, nil
}

// Shape returns (channels, height, width).
func (s *Stack) Shape() (c, h, w int) {
	if len(s.Channels) == 0 {
		return 0, 0, 0
	}
	w, h = s.Channels[0].Size()
	return len(s.Channels), h, w
}

func (s *Stack) Depth() Depth {
	if len(s.Channels) == 0 {
		return Invalid
	}
	return s.Channels[0].Depth()
}

// Bytes estimates the in-memory size of all channels.
func (s *Stack) Bytes() uint64 {
	c, h, w := s.Shape()
	return uint64(c) * uint64(h) * uint64(w) * uint64(s.Depth().Bytes())
}

// Range returns the smallest and largest sample over all channels.
func (s *Stack) Range() (lo, hi float64) {
	for i, p := range s.Channels {
		plo, phi := PlaneRange(p)
		if i == 0 || plo < lo {
			lo = plo
		}
		if i == 0 || phi > hi {
			hi = phi
		}
	}
	return lo, hi
}

// PlaneRange returns the smallest and largest sample of p.
func PlaneRange(p Plane) (lo, hi float64) {
	switch g := p.(type) {
	case *Grid[uint8]:
		a, b := g.Bounds()
		return float64(a), float64(b)
	case *Grid[uint16]:
		a, b := g.Bounds()
		return float64(a), float64(b)
	case *Grid[uint32]:
		a, b := g.Bounds()
		return float64(a), float64(b)
	case *Grid[uint64]:
		a, b := g.Bounds()
		return float64(a), float64(b)
	case *Grid[float32]:
		a, b := g.Bounds()
		return float64(a), float64(b)
	case *Grid[float64]:
		return g.Bounds()
	}
	w, h := p.Size()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := p.Float64At(x, y)
			if (x == 0 && y == 0) || v < lo {
				lo = v
			}
			if (x == 0 && y == 0) || v > hi {
				hi = v
			}
		}
	}
	return lo, hi
}
