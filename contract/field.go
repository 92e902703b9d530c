package contract

// Status describes how a field value was obtained by extraction
type Status string

const (
	StatusFound     Status = "found"
	StatusAmbiguous Status = "ambiguous"
	StatusMissing   Status = "missing"
)

// DefaultReviewThreshold is the confidence below which a field needs manual review
const DefaultReviewThreshold = 0.90

// SourceRef points back to the text span a value was read from
type SourceRef struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Line    int    `json:"line"`
	Snippet string `json:"snippet"`
	Region  string `json:"region,omitempty"`
}

// Candidate is one value proposed by a single extraction strategy
type Candidate[T any] struct {
	Value      T          `json:"value"`
	Confidence float64    `json:"confidence"`
	Strategy   string     `json:"strategy"`
	Source     *SourceRef `json:"source,omitempty"`
}

// Field wraps an extracted value with its confidence metadata
type Field[T any] struct {
	Value        T              `json:"value"`
	Status       Status         `json:"status"`
	Confidence   float64        `json:"confidence"`
	Source       *SourceRef     `json:"source,omitempty"`
	Alternatives []Candidate[T] `json:"alternatives,omitempty"`
	NeedsReview  bool           `json:"needs_review"`
}

// Missing returns a field that no strategy could determine
func Missing[T any]() Field[T] {
	return Field[T]{Status: StatusMissing, NeedsReview: true}
}

// Found returns a field with a single agreed value
func Found[T any](value T, confidence float64, src *SourceRef) Field[T] {
	return Field[T]{Value: value, Status: StatusFound, Confidence: confidence, Source: src}
}

// Known reports whether the field carries a usable value (found or ambiguous)
func (f Field[T]) Known() bool {
	return f.Status == StatusFound || f.Status == StatusAmbiguous
}

// Certain reports whether the field can be stated without qualification
func (f Field[T]) Certain() bool {
	return f.Status == StatusFound && !f.NeedsReview
}

// Flag sets NeedsReview according to the given threshold.
// Ambiguous and missing fields always need review.
func (f Field[T]) Flag(threshold float64) Field[T] {
	f.NeedsReview = f.Status != StatusFound || f.Confidence < threshold
	return f
}
