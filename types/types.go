package types

import "image"

// Region is an axis-aligned bounding box around a differing area
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RegionFromRect converts an image.Rectangle to a Region
func RegionFromRect(r image.Rectangle) Region {
	return Region{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Rect returns the region as an image.Rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Contains reports whether the point (x, y) lies inside the region
func (r Region) Contains(x, y int) bool {
	return image.Pt(x, y).In(r.Rect())
}

// OutputPaths locates the four images written for one comparison
type OutputPaths struct {
	Original string `json:"original"`
	Uploaded string `json:"uploaded"`
	Diff     string `json:"diff"`
	Thresh   string `json:"thresh"`
}

// All returns the paths in write order
func (p OutputPaths) All() []string {
	return []string{p.Original, p.Uploaded, p.Diff, p.Thresh}
}

// ComparisonRecord is a stored comparison result
type ComparisonRecord struct {
	ID             string      `json:"id"`
	CreatedAt      string      `json:"created_at"`
	OriginalSource string      `json:"original_source"`
	UploadedSource string      `json:"uploaded_source"`
	OutputDir      string      `json:"output_dir"`
	Score          float64     `json:"score"`
	Percentage     float64     `json:"percentage"`
	RegionCount    int         `json:"region_count"`
	Regions        []Region    `json:"regions"`
	Paths          OutputPaths `json:"paths"`
}
