package planner

import (
	"image/color"
	"image/png"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// MarkerRadius is the drawn marker radius in field pixels
const MarkerRadius = 10.0

// PlanColors defines the colors of the drawn plan elements
type PlanColors struct {
	Field     color.NRGBA
	Grid      color.NRGBA
	Path      color.NRGBA
	Marker    color.NRGBA
	Footprint color.NRGBA
	Outline   color.NRGBA
	Heading   color.NRGBA
}

// DefaultPlanColors returns the planner palette
func DefaultPlanColors() PlanColors {
	return PlanColors{
		Field:     color.NRGBA{245, 245, 245, 255},
		Grid:      color.NRGBA{190, 190, 190, 255},
		Path:      color.NRGBA{0, 0, 255, 255},   // Blue
		Marker:    color.NRGBA{0, 160, 0, 255},   // Green
		Footprint: color.NRGBA{0, 255, 255, 160}, // Cyan
		Outline:   color.NRGBA{0, 0, 0, 255},
		Heading:   color.NRGBA{255, 165, 0, 255}, // Orange
	}
}

// nrgbaToRGBA converts color.NRGBA to color.RGBA by premultiplying alpha
// This is needed for the canvas library which expects premultiplied RGBA
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// PlanRenderer renders plan snapshots as vector graphics. All lengths are
// field pixels, which map one-to-one onto canvas units.
type PlanRenderer struct {
	FieldWidth  float64
	FieldHeight float64
	GridSpacing float64 // 0 disables the grid
	Padding     float64
	Resolution  canvas.Resolution // Resolution for PNG output
	Colors      PlanColors
}

// NewPlanRenderer creates a vector renderer for the configured field
func NewPlanRenderer(config *Config) *PlanRenderer {
	if config == nil {
		config = DefaultConfig()
	}
	width, height := config.FieldSize()
	return &PlanRenderer{
		FieldWidth:  width,
		FieldHeight: height,
		GridSpacing: config.Field.GridSpacing * config.Scale(),
		Padding:     20,
		Resolution:  canvas.DPI(25.4), // one pixel per field pixel
		Colors:      DefaultPlanColors(),
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the plan as an SVG to the provided writer
func (r *PlanRenderer) RenderToSVG(w io.Writer, snap Snapshot) error {
	bound := planBound(snap, r.FieldWidth, r.FieldHeight)
	width := bound.Max[0] - bound.Min[0] + 2*r.Padding
	height := bound.Max[1] - bound.Min[1] + 2*r.Padding

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, snap, bound.Min[0], bound.Min[1], width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the plan as a PNG to the provided writer
func (r *PlanRenderer) RenderToPNG(w io.Writer, snap Snapshot) error {
	bound := planBound(snap, r.FieldWidth, r.FieldHeight)
	width := bound.Max[0] - bound.Min[0] + 2*r.Padding
	height := bound.Max[1] - bound.Min[1] + 2*r.Padding

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, snap, bound.Min[0], bound.Min[1], width, height)
	return png.Encode(w, rast)
}

// renderToCanvas draws the field, grid, path, markers and robot in that order
func (r *PlanRenderer) renderToCanvas(renderer canvasRenderer, snap Snapshot, minX, minY, width, height float64) {
	toCanvas := func(p Point) (float64, float64) {
		return p.X - minX + r.Padding, p.Y - minY + r.Padding
	}
	polyline := func(points []Point, closed bool) *canvas.Path {
		cp := &canvas.Path{}
		for i, p := range points {
			cx, cy := toCanvas(p)
			if i == 0 {
				cp.MoveTo(cx, cy)
			} else {
				cp.LineTo(cx, cy)
			}
		}
		if closed {
			cp.Close()
		}
		return cp
	}

	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	fieldStyle := canvas.DefaultStyle
	fieldStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Colors.Field)}
	fieldStyle.Stroke = canvas.Paint{Color: canvas.Black}
	fieldStyle.StrokeWidth = 2.0
	renderer.RenderPath(polyline([]Point{
		{X: 0, Y: 0}, {X: r.FieldWidth, Y: 0}, {X: r.FieldWidth, Y: r.FieldHeight}, {X: 0, Y: r.FieldHeight},
	}, true), fieldStyle, canvas.Identity)

	if r.GridSpacing > 0 {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(r.Colors.Grid)}
		gridStyle.StrokeWidth = 1.0
		gridStyle.Dashes = []float64{4.0, 4.0}

		for x := r.GridSpacing; x < r.FieldWidth; x += r.GridSpacing {
			renderer.RenderPath(polyline([]Point{{X: x, Y: 0}, {X: x, Y: r.FieldHeight}}, false), gridStyle, canvas.Identity)
		}
		for y := r.GridSpacing; y < r.FieldHeight; y += r.GridSpacing {
			renderer.RenderPath(polyline([]Point{{X: 0, Y: y}, {X: r.FieldWidth, Y: y}}, false), gridStyle, canvas.Identity)
		}
	}

	pathStyle := canvas.DefaultStyle
	pathStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	pathStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(r.Colors.Path)}
	pathStyle.StrokeWidth = 2.0
	for _, seg := range snap.Segments {
		renderer.RenderPath(polyline([]Point{seg.From, seg.To}, false), pathStyle, canvas.Identity)
	}

	markerStyle := canvas.DefaultStyle
	markerStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	markerStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(r.Colors.Marker)}
	markerStyle.StrokeWidth = 2.0
	for _, m := range snap.Markers {
		cx, cy := toCanvas(m.Position)
		renderer.RenderPath(canvas.Circle(MarkerRadius).Translate(cx, cy), markerStyle, canvas.Identity)
	}

	if !snap.HasPose {
		return
	}

	robotStyle := canvas.DefaultStyle
	robotStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Colors.Footprint)}
	robotStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(r.Colors.Outline)}
	robotStyle.StrokeWidth = 2.0
	renderer.RenderPath(polyline(snap.Footprint, true), robotStyle, canvas.Identity)

	headingStyle := canvas.DefaultStyle
	headingStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Colors.Heading)}
	headingStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	renderer.RenderPath(polyline(snap.HeadingIndicator, true), headingStyle, canvas.Identity)
}
