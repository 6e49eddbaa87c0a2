package model

// Metadata describes the classifier: its label vocabulary and how images
// are prepared for it. It is read from the artifact or a sidecar json file.
type Metadata struct {
	InputShape  []int64   `json:"input_shape,omitempty"`
	OutputShape []int64   `json:"output_shape,omitempty"`
	Classes     []string  `json:"classes"`
	ImageSize   int       `json:"image_size,omitempty"`
	Mean        []float32 `json:"mean,omitempty"`
	Std         []float32 `json:"std,omitempty"`
}

// ImageNet statistics, the normalization most exported vision models expect.
var (
	defaultMean = []float32{0.485, 0.456, 0.406}
	defaultStd  = []float32{0.229, 0.224, 0.225}
)

// Probability pairs a label with its predicted probability.
type Probability struct {
	Label string  `json:"label"`
	Value float64 `json:"probability"`
}

// PredictionResult is the outcome of one classification.
type PredictionResult struct {
	Label         string             `json:"class"`
	Index         int                `json:"index"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"predictions"`
	// Ranked holds every label sorted by descending probability, ties in label order.
	Ranked []Probability `json:"ranked"`
}
