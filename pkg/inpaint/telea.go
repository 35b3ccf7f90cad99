package inpaint

import (
	"container/heap"
	"image"
	"math"
)

const (
	flagKnown uint8 = iota
	flagBand
	flagInside
)

const infDist = 1e6

// Telea fills every pixel of img whose fill mask value is non-zero using
// Telea's fast marching method: unknown pixels are visited in order of
// their distance to the known region, and each is set to a weighted average
// of the known pixels within radius. img and fill must both start at the
// origin and have the same size; img is modified in place.
func Telea(img *image.NRGBA, fill *image.Gray, radius int) {
	if radius < 1 {
		radius = 1
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w == 0 || h == 0 {
		return
	}

	fm := &marcher{
		img:    img,
		w:      w,
		h:      h,
		radius: radius,
		flags:  make([]uint8, w*h),
		dist:   make([]float64, w*h),
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if fill.Pix[y*fill.Stride+x] != 0 {
				fm.flags[i] = flagInside
				fm.dist[i] = infDist
			}
		}
	}

	// the initial narrow band is every known pixel touching the unknown region
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if fm.flags[i] != flagKnown {
				continue
			}
			if fm.touchesInside(x, y) {
				fm.flags[i] = flagBand
				heap.Push(&fm.queue, bandPixel{idx: i, dist: 0})
			}
		}
	}

	fm.march()
}

type marcher struct {
	img    *image.NRGBA
	w, h   int
	radius int
	flags  []uint8
	dist   []float64
	queue  bandQueue
}

var neighbours4 = [4][2]int{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}

func (m *marcher) touchesInside(x, y int) bool {
	for _, d := range neighbours4 {
		nx, ny := x+d[0], y+d[1]
		if nx < 0 || ny < 0 || nx >= m.w || ny >= m.h {
			continue
		}
		if m.flags[ny*m.w+nx] == flagInside {
			return true
		}
	}
	return false
}

func (m *marcher) march() {
	for m.queue.Len() > 0 {
		p := heap.Pop(&m.queue).(bandPixel)
		m.flags[p.idx] = flagKnown
		px, py := p.idx%m.w, p.idx/m.w

		for _, d := range neighbours4 {
			x, y := px+d[0], py+d[1]
			if x < 0 || y < 0 || x >= m.w || y >= m.h {
				continue
			}
			i := y*m.w + x
			if m.flags[i] != flagInside {
				continue
			}

			m.dist[i] = math.Min(
				math.Min(m.solve(x, y-1, x-1, y), m.solve(x, y+1, x-1, y)),
				math.Min(m.solve(x, y-1, x+1, y), m.solve(x, y+1, x+1, y)),
			)
			m.paint(x, y)
			m.flags[i] = flagBand
			heap.Push(&m.queue, bandPixel{idx: i, dist: m.dist[i]})
		}
	}
}

// at returns the arrival time at (x,y) and whether that pixel is already reached
func (m *marcher) at(x, y int) (float64, bool) {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return infDist, false
	}
	i := y*m.w + x
	return m.dist[i], m.flags[i] != flagInside
}

// solve is the first-order upwind solution of |grad T| = 1 from two neighbours
func (m *marcher) solve(x1, y1, x2, y2 int) float64 {
	t1, ok1 := m.at(x1, y1)
	t2, ok2 := m.at(x2, y2)

	switch {
	case ok1 && ok2:
		if math.Abs(t1-t2) >= 1 {
			return 1 + math.Min(t1, t2)
		}
		d := t1 - t2
		return (t1 + t2 + math.Sqrt(2-d*d)) * 0.5
	case ok1:
		return 1 + t1
	case ok2:
		return 1 + t2
	default:
		return 1 + math.Min(t1, t2)
	}
}

func (m *marcher) gradient(x, y int) (float64, float64) {
	t0 := m.dist[y*m.w+x]
	axis := func(tPrev float64, okPrev bool, tNext float64, okNext bool) float64 {
		switch {
		case okPrev && okNext:
			return (tNext - tPrev) * 0.5
		case okNext:
			return tNext - t0
		case okPrev:
			return t0 - tPrev
		}
		return 0
	}
	lx, okl := m.at(x-1, y)
	rx, okr := m.at(x+1, y)
	uy, oku := m.at(x, y-1)
	dy, okd := m.at(x, y+1)
	return axis(lx, okl, rx, okr), axis(uy, oku, dy, okd)
}

// paint sets (x,y) to the weighted average of reached pixels inside the radius
func (m *marcher) paint(x, y int) {
	gx, gy := m.gradient(x, y)
	t0 := m.dist[y*m.w+x]
	r2 := m.radius * m.radius

	var sr, sg, sb, sw float64
	for ny := y - m.radius; ny <= y+m.radius; ny++ {
		if ny < 0 || ny >= m.h {
			continue
		}
		for nx := x - m.radius; nx <= x+m.radius; nx++ {
			if nx < 0 || nx >= m.w {
				continue
			}
			i := ny*m.w + nx
			if m.flags[i] == flagInside {
				continue
			}
			rx, ry := x-nx, y-ny
			l2 := rx*rx + ry*ry
			if l2 == 0 || l2 > r2 {
				continue
			}

			dst := 1 / (float64(l2) * math.Sqrt(float64(l2)))
			lev := 1 / (1 + math.Abs(m.dist[i]-t0))
			dir := float64(rx)*gx + float64(ry)*gy
			if math.Abs(dir) <= 0.01 {
				dir = 1e-6
			}
			wt := math.Abs(dst * lev * dir)

			o := m.img.PixOffset(m.img.Rect.Min.X+nx, m.img.Rect.Min.Y+ny)
			sr += wt * float64(m.img.Pix[o])
			sg += wt * float64(m.img.Pix[o+1])
			sb += wt * float64(m.img.Pix[o+2])
			sw += wt
		}
	}
	if sw == 0 {
		return
	}

	o := m.img.PixOffset(m.img.Rect.Min.X+x, m.img.Rect.Min.Y+y)
	m.img.Pix[o] = clampByte(sr / sw)
	m.img.Pix[o+1] = clampByte(sg / sw)
	m.img.Pix[o+2] = clampByte(sb / sw)
	m.img.Pix[o+3] = 0xff
}

func clampByte(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

type bandPixel struct {
	idx  int
	dist float64
}

// bandQueue is a min-heap of narrow band pixels ordered by arrival time
type bandQueue []bandPixel

func (q bandQueue) Len() int            { return len(q) }
func (q bandQueue) Less(i, j int) bool  { return q[i].dist < q[j].dist }
func (q bandQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *bandQueue) Push(x interface{}) { *q = append(*q, x.(bandPixel)) }
func (q *bandQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
