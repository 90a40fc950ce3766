// Package curve resolves slider path geometry: it flattens the parametric
// path kinds into polylines and measures their length. Results are
// deterministic for identical input; sums run strictly left to right.
package curve

import (
	"math"

	"hitstat/dotosu"
)

// DefaultTolerance is the flatness bound for adaptive bezier subdivision, in
// osu!pixels.
const DefaultTolerance = 0.25

const (
	arcTolerance  = 0.10 // sagitta bound for arc stepping
	catmullDetail = 50   // samples per catmull segment
)

// Vec is a 2D point in playfield coordinates.
type Vec struct{ X, Y float64 }

// Resolved is the geometric summary of one slider path.
type Resolved struct {
	Polyline []Vec
	// Length is the path length in osu!pixels. For circular arcs it is the
	// exact arc length r·|Δθ|; for other kinds it is the polyline sum.
	Length float64
}

// Resolve flattens a path and measures it. tolerance bounds the bezier
// flatness error; pass DefaultTolerance unless tighter bounds are needed.
// Degenerate control point sets (coincident points, collinear arc triples)
// resolve to the straight line between first and last point: a policy, not
// an error.
func Resolve(p dotosu.Path, tolerance float64) Resolved {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	poly := flatten(p, tolerance)
	length := polylineLength(poly)

	if p.Type == dotosu.PathPerfect && len(p.Segments) == 1 {
		pts := toVecs(p.Segments[0].Points)
		if len(pts) == 3 {
			if exact, ok := arcLength(pts[0], pts[1], pts[2]); ok {
				length = exact
			}
		}
	}
	return Resolved{Polyline: poly, Length: length}
}

func flatten(p dotosu.Path, tolerance float64) []Vec {
	var poly []Vec
	add := func(v Vec) {
		if n := len(poly); n == 0 || poly[n-1] != v {
			poly = append(poly, v)
		}
	}
	addAll := func(pts []Vec) {
		for _, v := range pts {
			add(v)
		}
	}

	switch p.Type {
	case dotosu.PathLinear:
		addAll(toVecs(p.Segments[0].Points))

	case dotosu.PathCatmull:
		addAll(flattenCatmull(toVecs(p.Segments[0].Points)))

	case dotosu.PathPerfect:
		pts := toVecs(p.Segments[0].Points)
		if len(pts) == 3 {
			addAll(flattenArc(pts[0], pts[1], pts[2]))
		} else {
			addAll(flattenBezier(pts, tolerance))
		}

	default: // bezier, segmented at red anchors
		for _, seg := range p.Segments {
			pts := toVecs(seg.Points)
			if len(pts) < 2 {
				continue
			}
			addAll(flattenBezier(pts, tolerance))
		}
	}

	if len(poly) == 0 {
		return []Vec{{}}
	}
	return poly
}

// PointAt walks distance d along the polyline and returns the position,
// extrapolating along the final segment when d exceeds the total length.
func PointAt(poly []Vec, d float64) Vec {
	if len(poly) == 0 {
		return Vec{}
	}
	if len(poly) == 1 || d <= 0 {
		return poly[0]
	}
	for i := 1; i < len(poly); i++ {
		step := dist(poly[i-1], poly[i])
		if d <= step {
			t := d / step
			return Vec{
				X: poly[i-1].X + (poly[i].X-poly[i-1].X)*t,
				Y: poly[i-1].Y + (poly[i].Y-poly[i-1].Y)*t,
			}
		}
		d -= step
	}
	last := poly[len(poly)-1]
	prev := poly[len(poly)-2]
	l := dist(prev, last)
	if l == 0 {
		return last
	}
	return Vec{
		X: last.X + (last.X-prev.X)*d/l,
		Y: last.Y + (last.Y-prev.Y)*d/l,
	}
}

func polylineLength(poly []Vec) float64 {
	var total float64
	for i := 1; i < len(poly); i++ {
		total += dist(poly[i-1], poly[i])
	}
	return total
}

// --- bezier: adaptive de Casteljau subdivision ---

func flattenBezier(cp []Vec, tolerance float64) []Vec {
	if len(cp) == 0 {
		return nil
	}
	tolSq := tolerance * tolerance
	var out []Vec
	stack := [][]Vec{cp}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if flatEnough(cur, tolSq) {
			out = append(out, cur[0])
			continue
		}
		// Push right before left so points emerge in path order.
		l, r := subdivide(cur)
		stack = append(stack, r, l)
	}
	out = append(out, cp[len(cp)-1])
	return out
}

// flatEnough checks second differences of the control polygon against the
// squared tolerance.
func flatEnough(cp []Vec, tolSq float64) bool {
	for i := 1; i < len(cp)-1; i++ {
		dx := cp[i-1].X - 2*cp[i].X + cp[i+1].X
		dy := cp[i-1].Y - 2*cp[i].Y + cp[i+1].Y
		if dx*dx+dy*dy > tolSq {
			return false
		}
	}
	return true
}

func subdivide(cp []Vec) (left, right []Vec) {
	n := len(cp)
	buf := make([]Vec, n*(n+1)/2)
	copy(buf, cp)

	rowStart := 0
	next := n
	for r := 1; r < n; r++ {
		for i := 0; i < n-r; i++ {
			a, b := buf[rowStart+i], buf[rowStart+i+1]
			buf[next+i] = Vec{(a.X + b.X) * 0.5, (a.Y + b.Y) * 0.5}
		}
		rowStart = next
		next += n - r
	}

	left = make([]Vec, n)
	right = make([]Vec, n)
	rowStart = 0
	rowEnd := n - 1
	for r := 0; r < n; r++ {
		left[r] = buf[rowStart]
		right[n-1-r] = buf[rowStart+rowEnd]
		rowStart += n - r
		rowEnd--
	}
	return left, right
}

// --- perfect circular arc through three points ---

// arcLength returns the exact arc length, or ok=false for degenerate
// triples.
func arcLength(p1, p2, p3 Vec) (float64, bool) {
	if collinear(p1, p2, p3) {
		return 0, false
	}
	cx, cy, ok := circumcenter(p1, p2, p3)
	if !ok {
		return 0, false
	}
	c := Vec{cx, cy}
	r := dist(c, p1)
	dir := 1.0
	if cross(sub(p2, p1), sub(p3, p2)) < 0 {
		dir = -1.0
	}
	a1 := math.Atan2(p1.Y-cy, p1.X-cx)
	a3 := math.Atan2(p3.Y-cy, p3.X-cx)
	return r * math.Abs(sweep(a1, a3, dir)), true
}

func flattenArc(p1, p2, p3 Vec) []Vec {
	if collinear(p1, p2, p3) {
		return []Vec{p1, p3}
	}
	cx, cy, ok := circumcenter(p1, p2, p3)
	if !ok {
		return []Vec{p1, p3}
	}
	r := dist(Vec{cx, cy}, p1)

	dir := 1.0
	if cross(sub(p2, p1), sub(p3, p2)) < 0 {
		dir = -1.0
	}
	a1 := math.Atan2(p1.Y-cy, p1.X-cx)
	a3 := math.Atan2(p3.Y-cy, p3.X-cx)
	delta := sweep(a1, a3, dir)

	// Step angle from the sagitta tolerance.
	step := 2 * math.Acos(clamp(1.0-arcTolerance/r, -1, 1))
	if step <= 0 || math.IsNaN(step) || step > math.Pi {
		step = math.Pi
	}
	steps := int(math.Ceil(math.Abs(delta) / step))
	if steps < 2 {
		steps = 2
	}
	step = math.Copysign(math.Abs(delta)/float64(steps), dir)

	out := make([]Vec, 0, steps+1)
	out = append(out, p1)
	for i := 1; i < steps; i++ {
		a := a1 + float64(i)*step
		out = append(out, Vec{cx + math.Cos(a)*r, cy + math.Sin(a)*r})
	}
	return append(out, p3)
}

// sweep returns the signed angle from aStart to aEnd in direction dir.
func sweep(aStart, aEnd, dir float64) float64 {
	d := aEnd - aStart
	for d <= -math.Pi {
		d += 2 * math.Pi
	}
	for d > math.Pi {
		d -= 2 * math.Pi
	}
	if dir < 0 && d > 0 {
		d -= 2 * math.Pi
	} else if dir > 0 && d < 0 {
		d += 2 * math.Pi
	}
	return d
}

// --- catmull-rom at fixed detail ---

func flattenCatmull(pts []Vec) []Vec {
	n := len(pts)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return []Vec{pts[0]}
	}
	out := make([]Vec, 0, (n-1)*catmullDetail+1)
	out = append(out, pts[0])
	for i := 0; i < n-1; i++ {
		p0 := pts[max(i-1, 0)]
		p1 := pts[i]
		p2 := pts[i+1]
		p3 := pts[min(i+2, n-1)]
		for s := 1; s <= catmullDetail; s++ {
			t := float64(s) / float64(catmullDetail)
			out = append(out, catmullPoint(p0, p1, p2, p3, t))
		}
	}
	return out
}

func catmullPoint(p0, p1, p2, p3 Vec, t float64) Vec {
	t2 := t * t
	t3 := t2 * t
	return Vec{
		X: 0.5 * ((2 * p1.X) + (-p0.X+p2.X)*t + (2*p0.X-5*p1.X+4*p2.X-p3.X)*t2 + (-p0.X+3*p1.X-3*p2.X+p3.X)*t3),
		Y: 0.5 * ((2 * p1.Y) + (-p0.Y+p2.Y)*t + (2*p0.Y-5*p1.Y+4*p2.Y-p3.Y)*t2 + (-p0.Y+3*p1.Y-3*p2.Y+p3.Y)*t3),
	}
}

// --- helpers ---

func toVecs(pts []dotosu.Vec2) []Vec {
	out := make([]Vec, len(pts))
	for i, p := range pts {
		out[i] = Vec{p.X, p.Y}
	}
	return out
}

func collinear(a, b, c Vec) bool {
	return math.Abs(cross(sub(b, a), sub(c, b))) < 1e-6
}

func circumcenter(a, b, c Vec) (x, y float64, ok bool) {
	d := 2 * (a.X*(b.Y-c.Y) + b.X*(c.Y-a.Y) + c.X*(a.Y-b.Y))
	if math.Abs(d) < 1e-8 {
		return 0, 0, false
	}
	a2 := a.X*a.X + a.Y*a.Y
	b2 := b.X*b.X + b.Y*b.Y
	c2 := c.X*c.X + c.Y*c.Y
	x = (a2*(b.Y-c.Y) + b2*(c.Y-a.Y) + c2*(a.Y-b.Y)) / d
	y = (a2*(c.X-b.X) + b2*(a.X-c.X) + c2*(b.X-a.X)) / d
	return x, y, true
}

func sub(a, b Vec) Vec       { return Vec{a.X - b.X, a.Y - b.Y} }
func cross(a, b Vec) float64 { return a.X*b.Y - a.Y*b.X }
func dist(a, b Vec) float64  { return math.Hypot(a.X-b.X, a.Y-b.Y) }

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
