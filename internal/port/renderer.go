package port

import "context"

// Margin is a page margin in CSS pixels
type Margin struct {
	Top    float64
	Bottom float64
	Left   float64
	Right  float64
}

// RenderOptions controls paginated rendering
type RenderOptions struct {
	PrintBackground bool
	Margin          Margin
}

// Renderer converts an HTML document into a paginated binary document at outputPath
type Renderer interface {
	Render(ctx context.Context, html, outputPath string, opts RenderOptions) error
}
