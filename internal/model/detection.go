package model

// BoundingBox holds the normalized corner coordinates of a detected spine.
// All values are in [0, 1] relative to the image dimensions.
type BoundingBox struct {
	X1 float64 `json:"x1" bson:"x1"`
	Y1 float64 `json:"y1" bson:"y1"`
	X2 float64 `json:"x2" bson:"x2"`
	Y2 float64 `json:"y2" bson:"y2"`
}

// EnrichmentStatus describes the outcome of the bibliographic lookup for
// one detection.
type EnrichmentStatus string

const (
	EnrichmentSkipped  EnrichmentStatus = "skipped"
	EnrichmentSuccess  EnrichmentStatus = "success"
	EnrichmentNotFound EnrichmentStatus = "not_found"
	EnrichmentError    EnrichmentStatus = "error"
)

// Enrichment is the bibliographic metadata attached to a detection after
// the enrichment stage.
type Enrichment struct {
	Status    EnrichmentStatus `json:"status" bson:"status"`
	ISBN      string           `json:"isbn,omitempty" bson:"isbn,omitempty"`
	CoverURL  string           `json:"cover_url,omitempty" bson:"cover_url,omitempty"`
	Publisher string           `json:"publisher,omitempty" bson:"publisher,omitempty"`
	PageCount int              `json:"page_count,omitempty" bson:"page_count,omitempty"`
	Subjects  []string         `json:"subjects,omitempty" bson:"subjects,omitempty"`
	Provider  string           `json:"provider,omitempty" bson:"provider,omitempty"`
	Error     string           `json:"error,omitempty" bson:"error,omitempty"`
}

// Detection is one candidate book spine located in an image. A spine that
// was located but whose text could not be read is still reported, with nil
// title/author and confidence 0.0 — dropping it would lose information.
type Detection struct {
	Title       *string     `json:"title" bson:"title"`
	Author      *string     `json:"author" bson:"author"`
	Confidence  float64     `json:"confidence" bson:"confidence"`
	BoundingBox BoundingBox `json:"bounding_box" bson:"bounding_box"`
	Enrichment  *Enrichment `json:"enrichment,omitempty" bson:"enrichment,omitempty"`
}

// Readable reports whether the spine text was recognized well enough to
// attempt a bibliographic lookup.
func (d *Detection) Readable() bool {
	return d.Title != nil && *d.Title != ""
}

// Suggestion flags an image-quality problem the client can act on before
// rescanning. A clean scan produces no suggestions.
type Suggestion struct {
	Code    string `json:"code" bson:"code"`
	Message string `json:"message" bson:"message"`
}
