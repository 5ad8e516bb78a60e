package hub

import (
	"regexp"

	"github.com/tessellate/canvasd/errors"
	"github.com/tessellate/canvasd/store"
)

const (
	maxCoordinate = 1e6
	maxTextLength = 10000
	maxNameLength = 200
)

var colorPattern = regexp.MustCompile(`^#([0-9A-Fa-f]{3}|[0-9A-Fa-f]{6}|[0-9A-Fa-f]{8})$`)

func validColor(c string) bool {
	return colorPattern.MatchString(c)
}

func validCoordinate(v float64) bool {
	return v >= -maxCoordinate && v <= maxCoordinate
}

// validateShapeCreate checks a SHAPE_CREATE payload. Geometry is validated
// against the same bounds as updates so a shape can never be created in a
// state it could not be updated into.
func validateShapeCreate(p *ShapeCreatePayload) error {
	if !store.ValidShapeType(store.ShapeType(p.Type)) {
		return errors.Newf("unknown shape type %q", p.Type)
	}
	if !validCoordinate(p.X) || !validCoordinate(p.Y) {
		return errors.New("position out of bounds")
	}
	if p.Width != nil && (*p.Width <= 0 || *p.Width > maxCoordinate) {
		return errors.New("width must be positive and within bounds")
	}
	if p.Height != nil && (*p.Height <= 0 || *p.Height > maxCoordinate) {
		return errors.New("height must be positive and within bounds")
	}
	if p.Radius != nil && (*p.Radius <= 0 || *p.Radius > maxCoordinate) {
		return errors.New("radius must be positive and within bounds")
	}
	if p.BorderRadius != nil && *p.BorderRadius < 0 {
		return errors.New("borderRadius must not be negative")
	}
	if p.Opacity != nil && (*p.Opacity < 0 || *p.Opacity > 1) {
		return errors.New("opacity must be between 0 and 1")
	}
	if p.TextContent != nil && len(*p.TextContent) > maxTextLength {
		return errors.Newf("text content exceeds %d characters", maxTextLength)
	}
	if p.Fill != "" && !validColor(p.Fill) {
		return errors.New("fill must be a hex color")
	}
	if p.Stroke != "" && !validColor(p.Stroke) {
		return errors.New("stroke must be a hex color")
	}
	return nil
}

// validateShapeUpdates checks the set fields of a partial update.
func validateShapeUpdates(u *store.ShapeUpdates) error {
	if u.X != nil && !validCoordinate(*u.X) {
		return errors.New("x out of bounds")
	}
	if u.Y != nil && !validCoordinate(*u.Y) {
		return errors.New("y out of bounds")
	}
	if u.Width != nil && (*u.Width <= 0 || *u.Width > maxCoordinate) {
		return errors.New("width must be positive and within bounds")
	}
	if u.Height != nil && (*u.Height <= 0 || *u.Height > maxCoordinate) {
		return errors.New("height must be positive and within bounds")
	}
	if u.Radius != nil && (*u.Radius <= 0 || *u.Radius > maxCoordinate) {
		return errors.New("radius must be positive and within bounds")
	}
	if u.BorderRadius != nil && *u.BorderRadius < 0 {
		return errors.New("borderRadius must not be negative")
	}
	if u.Opacity != nil && (*u.Opacity < 0 || *u.Opacity > 1) {
		return errors.New("opacity must be between 0 and 1")
	}
	if u.TextContent != nil && len(*u.TextContent) > maxTextLength {
		return errors.Newf("text content exceeds %d characters", maxTextLength)
	}
	if u.Fill != nil && *u.Fill != "" && !validColor(*u.Fill) {
		return errors.New("fill must be a hex color")
	}
	if u.Stroke != nil && *u.Stroke != "" && !validColor(*u.Stroke) {
		return errors.New("stroke must be a hex color")
	}
	return nil
}

// validateCanvasUpdates checks a canvas metadata update.
func validateCanvasUpdates(u *store.CanvasUpdates) error {
	if u.Name != nil && (len(*u.Name) == 0 || len(*u.Name) > maxNameLength) {
		return errors.Newf("canvas name must be 1 to %d characters", maxNameLength)
	}
	if u.BackgroundColor != nil && !validColor(*u.BackgroundColor) {
		return errors.New("backgroundColor must be a hex color")
	}
	return nil
}
