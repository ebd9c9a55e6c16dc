package planner

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"os"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RasterRenderer draws plan snapshots onto a bitmap of the field, one image
// pixel per field pixel, optionally over a field image.
type RasterRenderer struct {
	Width       int
	Height      int
	Background  image.Image // optional; scaled to the field size
	GridSpacing float64     // field pixels; 0 disables the grid
	Colors      PlanColors
}

// NewRasterRenderer creates a raster renderer for the configured field. The
// field image is loaded when configured; a missing image is not an error.
func NewRasterRenderer(config *Config) (*RasterRenderer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	width, height := config.FieldSize()
	r := &RasterRenderer{
		Width:       int(math.Round(width)),
		Height:      int(math.Round(height)),
		GridSpacing: config.Field.GridSpacing * config.Scale(),
		Colors:      DefaultPlanColors(),
	}
	if config.Field.Image != "" {
		bg, err := LoadFieldImage(config.Field.Image)
		if err != nil {
			return r, err
		}
		r.Background = bg
	}
	return r, nil
}

// LoadFieldImage decodes a PNG or JPEG field image
func LoadFieldImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening field image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding field image: %w", err)
	}
	return img, nil
}

// Render draws the snapshot: background, grid, path, markers, robot
func (r *RasterRenderer) Render(snap Snapshot) *image.RGBA {
	width, height := r.Width, r.Height
	if width <= 0 {
		width = 1
	}
	if height <= 0 {
		height = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	if r.Background != nil {
		xdraw.BiLinear.Scale(img, img.Bounds(), r.Background, r.Background.Bounds(), xdraw.Src, nil)
	} else {
		xdraw.Draw(img, img.Bounds(), image.NewUniform(r.Colors.Field), image.Point{}, xdraw.Src)
	}

	toScreen := FieldToScreen(float64(height))
	toImage := func(p Point) Point {
		return TransformPoint(p, toScreen)
	}
	bounds := img.Bounds()

	if r.GridSpacing > 0 {
		for x := r.GridSpacing; x < float64(width); x += r.GridSpacing {
			drawSegment(img, toImage(Point{X: x, Y: 0}), toImage(Point{X: x, Y: float64(height)}), 1, r.Colors.Grid)
		}
		for y := r.GridSpacing; y < float64(height); y += r.GridSpacing {
			drawSegment(img, toImage(Point{X: 0, Y: y}), toImage(Point{X: float64(width), Y: y}), 1, r.Colors.Grid)
		}
	}

	for _, seg := range snap.Segments {
		drawSegment(img, toImage(seg.From), toImage(seg.To), 2, r.Colors.Path)
	}

	// labels extend right of the ring
	labelMargin := MarkerRadius + 64
	for _, m := range snap.Markers {
		c := toImage(m.Position)
		if !nearBounds(c, bounds, labelMargin) {
			continue
		}
		cx, cy := int(math.Round(c.X)), int(math.Round(c.Y))
		drawRing(img, cx, cy, int(MarkerRadius), r.Colors.Marker)
		drawText(img, cx+int(MarkerRadius)+2, cy+4, fmt.Sprintf("M%d", m.ID), r.Colors.Marker)
	}

	if snap.HasPose {
		footprint := TransformPoints(snap.Footprint, toScreen)
		fillPolygon(img, footprint, r.Colors.Footprint)
		outlinePolygon(img, footprint, r.Colors.Outline)
		fillPolygon(img, TransformPoints(snap.HeadingIndicator, toScreen), r.Colors.Heading)
	}

	return img
}

// WritePNG renders the snapshot as PNG to w
func (r *RasterRenderer) WritePNG(w io.Writer, snap Snapshot) error {
	if err := png.Encode(w, r.Render(snap)); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

// SavePNG renders the snapshot and saves it as a PNG file
func (r *RasterRenderer) SavePNG(path string, snap Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	return r.WritePNG(f, snap)
}

func nearBounds(p Point, r image.Rectangle, margin float64) bool {
	return p.X >= float64(r.Min.X)-margin && p.X <= float64(r.Max.X)+margin &&
		p.Y >= float64(r.Min.Y)-margin && p.Y <= float64(r.Max.Y)+margin
}

// clipSegment clips a-b to r grown by margin (Liang-Barsky). It reports
// false when no part of the segment is inside.
func clipSegment(a, b Point, r image.Rectangle, margin float64) (Point, Point, bool) {
	dx, dy := b.X-a.X, b.Y-a.Y
	if !isFinite(a.X, a.Y, dx, dy) {
		return a, b, false
	}
	minX, minY := float64(r.Min.X)-margin, float64(r.Min.Y)-margin
	maxX, maxY := float64(r.Max.X)+margin, float64(r.Max.Y)+margin

	t0, t1 := 0.0, 1.0
	clip := func(p, q float64) bool {
		if p == 0 {
			return q >= 0
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return false
			}
			t0 = max(t0, t)
		} else {
			if t < t0 {
				return false
			}
			t1 = min(t1, t)
		}
		return true
	}
	if !clip(-dx, a.X-minX) || !clip(dx, maxX-a.X) || !clip(-dy, a.Y-minY) || !clip(dy, maxY-a.Y) {
		return a, b, false
	}
	return Point{X: a.X + t0*dx, Y: a.Y + t0*dy}, Point{X: a.X + t1*dx, Y: a.Y + t1*dy}, true
}

// drawSegment draws the visible part of a screen space segment
func drawSegment(img *image.RGBA, a, b Point, thickness int, c color.NRGBA) {
	a, b, ok := clipSegment(a, b, img.Bounds(), float64(thickness))
	if !ok {
		return
	}
	drawLine(img, int(math.Round(a.X)), int(math.Round(a.Y)), int(math.Round(b.X)), int(math.Round(b.Y)), thickness, c)
}

// blendPixel composites c over the existing pixel
func blendPixel(img *image.RGBA, x, y int, c color.NRGBA) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	if c.A == 255 {
		img.SetRGBA(x, y, color.RGBA{c.R, c.G, c.B, 255})
		return
	}
	bg := img.RGBAAt(x, y)
	a := float64(c.A) / 255
	mix := func(fg, bg uint8) uint8 {
		return uint8(float64(fg)*a + float64(bg)*(1-a))
	}
	img.SetRGBA(x, y, color.RGBA{mix(c.R, bg.R), mix(c.G, bg.G), mix(c.B, bg.B), 255})
}

// drawLine draws a line with Bresenham's algorithm using a square pen
func drawLine(img *image.RGBA, x0, y0, x1, y1, thickness int, c color.NRGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	half := thickness / 2

	for {
		for py := -half; py < thickness-half; py++ {
			for px := -half; px < thickness-half; px++ {
				blendPixel(img, x0+px, y0+py, c)
			}
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// drawRing draws a two pixel wide circle outline
func drawRing(img *image.RGBA, cx, cy, radius int, c color.NRGBA) {
	outer := float64(radius) + 1
	inner := float64(radius) - 1
	for dy := -radius - 1; dy <= radius+1; dy++ {
		for dx := -radius - 1; dx <= radius+1; dx++ {
			d := math.Sqrt(float64(dx*dx + dy*dy))
			if d <= outer && d >= inner {
				blendPixel(img, cx+dx, cy+dy, c)
			}
		}
	}
}

// fillPolygon fills a polygon using an even-odd inside test over the part
// of its bounding box that lies on the image
func fillPolygon(img *image.RGBA, poly []Point, c color.NRGBA) {
	if len(poly) < 3 {
		return
	}
	minX, minY := poly[0].X, poly[0].Y
	maxX, maxY := minX, minY
	for _, p := range poly {
		if !isFinite(p.X, p.Y) {
			return
		}
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}
	b := img.Bounds()
	x0 := int(math.Floor(max(minX, float64(b.Min.X))))
	x1 := int(math.Ceil(min(maxX, float64(b.Max.X-1))))
	y0 := int(math.Floor(max(minY, float64(b.Min.Y))))
	y1 := int(math.Ceil(min(maxY, float64(b.Max.Y-1))))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if insidePolygon(poly, float64(x)+0.5, float64(y)+0.5) {
				blendPixel(img, x, y, c)
			}
		}
	}
}

func outlinePolygon(img *image.RGBA, poly []Point, c color.NRGBA) {
	for i := range poly {
		drawSegment(img, poly[i], poly[(i+1)%len(poly)], 2, c)
	}
}

func insidePolygon(poly []Point, x, y float64) bool {
	inside := false
	j := len(poly) - 1
	for i := range poly {
		xi, yi := poly[i].X, poly[i].Y
		xj, yj := poly[j].X, poly[j].Y
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.NRGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
