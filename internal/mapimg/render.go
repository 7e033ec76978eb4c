// Package mapimg renders small PNG locator maps for hazard queries: dataset
// polygons in a window around the query point, with the point marked.
package mapimg

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/floodwatch/internal/dataset"
)

// Options configures rendering.
type Options struct {
	// Width and Height are the image dimensions in pixels.
	Width, Height int
	// Span is the window half-width around the query point, in the
	// collection's units (degrees for WGS84, meters for web mercator).
	Span float64
}

var (
	colorBackground = color.NRGBA{R: 0xf2, G: 0xef, B: 0xe9, A: 0xff}
	colorPolygon    = color.NRGBA{R: 0xa8, G: 0xc8, B: 0xe8, A: 0xff}
	colorMatched    = color.NRGBA{R: 0x4a, G: 0x90, B: 0xd9, A: 0xff}
	colorOutline    = color.NRGBA{R: 0x51, G: 0x6b, B: 0x84, A: 0xff}
	colorMarker     = color.NRGBA{R: 0xd9, G: 0x3a, B: 0x2b, A: 0xff}
)

// window maps world coordinates to pixels.
type window struct {
	minX, minY, maxX, maxY float64
	width, height          int
}

func (w window) toPixel(x, y float64) (px, py int) {
	px = int((x - w.minX) / (w.maxX - w.minX) * float64(w.width))
	// Image rows grow downward.
	py = int((w.maxY - y) / (w.maxY - w.minY) * float64(w.height))
	return px, py
}

// Render draws the dataset polygons around the query point (x, y, in the
// collection's reference system) and returns the encoded PNG. matched is the
// index of the feature to highlight, -1 for none.
func Render(coll *dataset.Collection, x, y float64, matched int, opts Options) ([]byte, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, eris.Errorf("mapimg: invalid dimensions %dx%d", opts.Width, opts.Height)
	}
	if opts.Span <= 0 {
		return nil, eris.Errorf("mapimg: invalid span %f", opts.Span)
	}

	// Keep the window aspect ratio square to the image.
	spanY := opts.Span * float64(opts.Height) / float64(opts.Width)
	win := window{
		minX: x - opts.Span, maxX: x + opts.Span,
		minY: y - spanY, maxY: y + spanY,
		width: opts.Width, height: opts.Height,
	}

	img := image.NewNRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	fillBackground(img)

	for i, f := range coll.Features {
		if f.Geom == nil || !boundsIntersect(f.Geom.Bounds(), win) {
			continue
		}
		fill := colorPolygon
		if i == matched {
			fill = colorMatched
		}
		drawGeometry(img, win, f.Geom, fill)
	}

	drawMarker(img, win, x, y)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, eris.Wrap(err, "mapimg: encode png")
	}
	return buf.Bytes(), nil
}

func fillBackground(img *image.NRGBA) {
	b := img.Bounds()
	for py := b.Min.Y; py < b.Max.Y; py++ {
		for px := b.Min.X; px < b.Max.X; px++ {
			img.SetNRGBA(px, py, colorBackground)
		}
	}
}

func boundsIntersect(b *geom.Bounds, win window) bool {
	return b.Min(0) <= win.maxX && b.Max(0) >= win.minX &&
		b.Min(1) <= win.maxY && b.Max(1) >= win.minY
}

func drawGeometry(img *image.NRGBA, win window, g geom.T, fill color.NRGBA) {
	switch t := g.(type) {
	case *geom.Polygon:
		drawPolygon(img, win, t, fill)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			drawPolygon(img, win, t.Polygon(i), fill)
		}
	}
}

// drawPolygon scanline-fills the polygon (even-odd rule, so holes stay
// unfilled) and strokes the ring outlines.
func drawPolygon(img *image.NRGBA, win window, poly *geom.Polygon, fill color.NRGBA) {
	rings := make([][]float64, 0, poly.NumLinearRings())
	for i := 0; i < poly.NumLinearRings(); i++ {
		rings = append(rings, poly.LinearRing(i).FlatCoords())
	}

	for py := 0; py < win.height; py++ {
		// Sample world y at the pixel row center.
		wy := win.maxY - (float64(py)+0.5)/float64(win.height)*(win.maxY-win.minY)

		var xs []float64
		for _, ring := range rings {
			n := len(ring) / 2
			for i := 0; i < n; i++ {
				j := (i + 1) % n
				y1, y2 := ring[i*2+1], ring[j*2+1]
				if (y1 > wy) == (y2 > wy) {
					continue
				}
				x1, x2 := ring[i*2], ring[j*2]
				xs = append(xs, x1+(wy-y1)/(y2-y1)*(x2-x1))
			}
		}
		if len(xs) < 2 {
			continue
		}
		sort.Float64s(xs)

		for i := 0; i+1 < len(xs); i += 2 {
			px1, _ := win.toPixel(xs[i], wy)
			px2, _ := win.toPixel(xs[i+1], wy)
			for px := max(px1, 0); px <= min(px2, win.width-1); px++ {
				img.SetNRGBA(px, py, fill)
			}
		}
	}

	for _, ring := range rings {
		n := len(ring) / 2
		for i := 0; i < n; i++ {
			j := (i + 1) % n
			x1, y1 := win.toPixel(ring[i*2], ring[i*2+1])
			x2, y2 := win.toPixel(ring[j*2], ring[j*2+1])
			drawLine(img, x1, y1, x2, y2, colorOutline)
		}
	}
}

// drawLine draws a clipped line segment with Bresenham's algorithm.
func drawLine(img *image.NRGBA, x1, y1, x2, y2 int, c color.NRGBA) {
	b := img.Bounds()
	dx := int(math.Abs(float64(x2 - x1)))
	dy := -int(math.Abs(float64(y2 - y1)))
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx + dy

	// Cap iterations so degenerate off-screen segments cannot spin.
	for steps := 0; steps <= dx-dy+1; steps++ {
		if image.Pt(x1, y1).In(b) {
			img.SetNRGBA(x1, y1, c)
		}
		if x1 == x2 && y1 == y2 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x1 += sx
		}
		if e2 <= dx {
			err += dx
			y1 += sy
		}
	}
}

// drawMarker draws a filled circle with a small white center at the query
// point.
func drawMarker(img *image.NRGBA, win window, x, y float64) {
	cx, cy := win.toPixel(x, y)
	const radius = 6
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d := dx*dx + dy*dy
			if d > radius*radius {
				continue
			}
			c := colorMarker
			if d <= 2 {
				c = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
			}
			if image.Pt(cx+dx, cy+dy).In(img.Bounds()) {
				img.SetNRGBA(cx+dx, cy+dy, c)
			}
		}
	}
}
