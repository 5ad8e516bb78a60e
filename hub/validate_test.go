package hub

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tessellate/canvasd/store"
)

func fptr(v float64) *float64 { return &v }
func sptr(v string) *string   { return &v }

func TestValidCanvasID(t *testing.T) {
	assert.True(t, validCanvasID("canvas-a_1"))
	assert.True(t, validCanvasID("df1f4b86-8d0c-4d1a-9c58-2c4c81a2f9c0"))
	assert.False(t, validCanvasID("ab"))
	assert.False(t, validCanvasID(""))
	assert.False(t, validCanvasID("has spaces"))
	assert.False(t, validCanvasID(strings.Repeat("x", 101)))
}

func TestValidColor(t *testing.T) {
	assert.True(t, validColor("#fff"))
	assert.True(t, validColor("#1a2b3c"))
	assert.True(t, validColor("#1a2b3c80"))
	assert.False(t, validColor("fff"))
	assert.False(t, validColor("#1a2b"))
	assert.False(t, validColor("#gggggg"))
}

func TestValidateShapeCreate(t *testing.T) {
	base := func() *ShapeCreatePayload {
		return &ShapeCreatePayload{
			Type:  "rectangle",
			X:     10,
			Y:     20,
			Width: fptr(100),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*ShapeCreatePayload)
		wantErr bool
	}{
		{name: "valid rectangle", mutate: func(p *ShapeCreatePayload) {}},
		{name: "unknown type", mutate: func(p *ShapeCreatePayload) { p.Type = "hexagon" }, wantErr: true},
		{name: "x out of bounds", mutate: func(p *ShapeCreatePayload) { p.X = 2e6 }, wantErr: true},
		{name: "negative x within bounds", mutate: func(p *ShapeCreatePayload) { p.X = -999999 }},
		{name: "zero width", mutate: func(p *ShapeCreatePayload) { p.Width = fptr(0) }, wantErr: true},
		{name: "negative radius", mutate: func(p *ShapeCreatePayload) { p.Radius = fptr(-1) }, wantErr: true},
		{name: "negative borderRadius", mutate: func(p *ShapeCreatePayload) { p.BorderRadius = fptr(-1) }, wantErr: true},
		{name: "opacity above one", mutate: func(p *ShapeCreatePayload) { p.Opacity = fptr(1.5) }, wantErr: true},
		{name: "opacity at bounds", mutate: func(p *ShapeCreatePayload) { p.Opacity = fptr(1) }},
		{name: "oversized text", mutate: func(p *ShapeCreatePayload) {
			long := strings.Repeat("x", maxTextLength+1)
			p.TextContent = &long
		}, wantErr: true},
		{name: "bad fill", mutate: func(p *ShapeCreatePayload) { p.Fill = "red" }, wantErr: true},
		{name: "good fill", mutate: func(p *ShapeCreatePayload) { p.Fill = "#ff0000" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base()
			tt.mutate(p)
			err := validateShapeCreate(p)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateShapeUpdates(t *testing.T) {
	tests := []struct {
		name    string
		updates store.ShapeUpdates
		wantErr bool
	}{
		{name: "empty update", updates: store.ShapeUpdates{}},
		{name: "valid move", updates: store.ShapeUpdates{X: fptr(5), Y: fptr(-5)}},
		{name: "y out of bounds", updates: store.ShapeUpdates{Y: fptr(-2e6)}, wantErr: true},
		{name: "zero height", updates: store.ShapeUpdates{Height: fptr(0)}, wantErr: true},
		{name: "negative opacity", updates: store.ShapeUpdates{Opacity: fptr(-0.1)}, wantErr: true},
		{name: "bad stroke", updates: store.ShapeUpdates{Stroke: sptr("blue")}, wantErr: true},
		{name: "empty stroke allowed", updates: store.ShapeUpdates{Stroke: sptr("")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateShapeUpdates(&tt.updates)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCanvasUpdates(t *testing.T) {
	name := "board"
	empty := ""
	long := strings.Repeat("x", maxNameLength+1)
	goodColor := "#ffffff"
	badColor := "white"

	assert.NoError(t, validateCanvasUpdates(&store.CanvasUpdates{Name: &name, BackgroundColor: &goodColor}))
	assert.Error(t, validateCanvasUpdates(&store.CanvasUpdates{Name: &empty}))
	assert.Error(t, validateCanvasUpdates(&store.CanvasUpdates{Name: &long}))
	assert.Error(t, validateCanvasUpdates(&store.CanvasUpdates{BackgroundColor: &badColor}))
}
