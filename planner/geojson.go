package planner

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Layer types used in exported GeoJSON properties
const (
	LayerSegment   = "segment"
	LayerMarker    = "marker"
	LayerFootprint = "footprint"
	LayerHeading   = "heading"
)

// PlanFeatureCollection exports a snapshot as GeoJSON in user length units.
// Drive segments become LineStrings, markers Points, and the robot
// footprint and heading indicator closed Polygons.
func PlanFeatureCollection(snap Snapshot, scale float64) *geojson.FeatureCollection {
	if scale <= 0 {
		scale = DefaultPixelsPerUnit
	}
	toUnits := func(p Point) orb.Point {
		return orb.Point{p.X / scale, p.Y / scale}
	}

	fc := geojson.NewFeatureCollection()

	for i, seg := range snap.Segments {
		f := geojson.NewFeature(orb.LineString{toUnits(seg.From), toUnits(seg.To)})
		f.Properties["layerType"] = LayerSegment
		f.Properties["index"] = i
		fc.Append(f)
	}

	for _, m := range snap.Markers {
		f := geojson.NewFeature(toUnits(m.Position))
		f.Properties["layerType"] = LayerMarker
		f.Properties["markerId"] = m.ID
		fc.Append(f)
	}

	if snap.HasPose {
		fc.Append(polygonFeature(snap.Footprint, toUnits, LayerFootprint))
		f := polygonFeature(snap.HeadingIndicator, toUnits, LayerHeading)
		f.Properties["heading"] = snap.Pose.Heading
		fc.Append(f)
	}

	return fc
}

func polygonFeature(points []Point, convert func(Point) orb.Point, layer string) *geojson.Feature {
	ring := make(orb.Ring, 0, len(points)+1)
	for _, p := range points {
		ring = append(ring, convert(p))
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}
	f := geojson.NewFeature(orb.Polygon{ring})
	f.Properties["layerType"] = layer
	return f
}

// planBound returns the extent of the field rectangle and everything drawn on it
func planBound(snap Snapshot, fieldWidth, fieldHeight float64) orb.Bound {
	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{fieldWidth, fieldHeight}}
	for _, seg := range snap.Segments {
		b = b.Extend(toOrb(seg.From)).Extend(toOrb(seg.To))
	}
	for _, m := range snap.Markers {
		b = b.Extend(toOrb(m.Position))
	}
	for _, p := range snap.Footprint {
		b = b.Extend(toOrb(p))
	}
	for _, p := range snap.HeadingIndicator {
		b = b.Extend(toOrb(p))
	}
	return b
}
