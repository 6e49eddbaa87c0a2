package model

import (
	"errors"
	"fmt"
	"image"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/Brownie44l1/snaplabel/internal/metrics"
)

// Backend is a loaded classifier able to run one forward pass.
type Backend interface {
	Metadata() Metadata
	Run(input []float32) ([]float32, error)
	Close()
}

// Classifier turns canonical images into predictions.
type Classifier struct {
	backend Backend
	labels  []string
}

func NewClassifier(backend Backend) *Classifier {
	return &Classifier{
		backend: backend,
		labels:  slices.Clone(backend.Metadata().Classes),
	}
}

// Labels returns the classifier's label set in model order.
func (c *Classifier) Labels() []string {
	return slices.Clone(c.labels)
}

// Classify runs a single forward pass over img.
func (c *Classifier) Classify(img image.Image) (*PredictionResult, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrInference)
	}
	metadata := c.backend.Metadata()

	start := time.Now()
	inputData := Preprocess(img, metadata.ImageSize, metadata.Mean, metadata.Std)
	outputData, err := c.backend.Run(inputData)
	metrics.InferenceLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, ErrInference) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	if len(outputData) != len(c.labels) {
		return nil, fmt.Errorf("%w: model returned %d scores for %d labels", ErrInference, len(outputData), len(c.labels))
	}
	probs, err := toProbabilities(outputData)
	if err != nil {
		return nil, err
	}

	maxIdx := 0
	predictions := make(map[string]float64, len(probs))
	for i, p := range probs {
		predictions[c.labels[i]] = p
		if p > probs[maxIdx] {
			maxIdx = i
		}
	}

	label := c.labels[maxIdx]
	metrics.Predictions.WithLabelValues(label).Inc()

	return &PredictionResult{
		Label:         label,
		Index:         maxIdx,
		Confidence:    probs[maxIdx],
		Probabilities: predictions,
		Ranked:        Rank(c.labels, probs),
	}, nil
}

// distributionTolerance is how far from 1 a non-negative output may sum and
// still be treated as probabilities. Quantized models drift by a few 1e-3.
const distributionTolerance = 1e-2

// toProbabilities returns scores unchanged (renormalized) when they already
// form a distribution, and their softmax otherwise.
func toProbabilities(scores []float32) ([]float64, error) {
	probs := make([]float64, len(scores))
	sum := 0.0
	isDistribution := true
	for i, s := range scores {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite score at index %d", ErrInference, i)
		}
		if v < 0 {
			isDistribution = false
		}
		probs[i] = v
		sum += v
	}

	if isDistribution && math.Abs(sum-1) <= distributionTolerance {
		for i := range probs {
			probs[i] /= sum
		}
		return probs, nil
	}

	maxScore := slices.Max(probs)
	sum = 0
	for i, v := range probs {
		probs[i] = math.Exp(v - maxScore)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}

// Rank pairs labels with probabilities and sorts them by descending
// probability. Equal probabilities keep label order.
func Rank(labels []string, probs []float64) []Probability {
	n := min(len(labels), len(probs))
	ranked := make([]Probability, n)
	for i := 0; i < n; i++ {
		ranked[i] = Probability{Label: labels[i], Value: probs[i]}
	}
	return SortProbabilities(ranked)
}

// SortProbabilities returns a copy of ps sorted by descending probability.
func SortProbabilities(ps []Probability) []Probability {
	sorted := slices.Clone(ps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})
	return sorted
}
