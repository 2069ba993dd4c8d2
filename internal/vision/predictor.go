package vision

import (
	"errors"
	"fmt"

	"facemask-api/internal/model"
)

// Predictor binds a loaded model to the input size and threshold of its
// artifact. It holds no per-request state.
type Predictor struct {
	classifier Model
	inputSize  int
	threshold  float64
}

func NewPredictor(classifier Model, inputSize int, threshold float64) *Predictor {
	return &Predictor{
		classifier: classifier,
		inputSize:  inputSize,
		threshold:  threshold,
	}
}

func (p *Predictor) InputSize() int {
	return p.inputSize
}

func (p *Predictor) Threshold() float64 {
	return p.threshold
}

// PredictFile preprocesses the image at path and classifies it.
func (p *Predictor) PredictFile(path string) (model.Prediction, error) {
	tensor, err := Preprocess(path, p.inputSize)
	if err != nil {
		return model.Prediction{}, err
	}
	return p.PredictTensor(tensor)
}

// PredictTensor runs the model and thresholds the first output value.
func (p *Predictor) PredictTensor(tensor Tensor) (model.Prediction, error) {
	out, err := p.classifier.Run(tensor)
	if err != nil {
		if errors.Is(err, ErrInference) {
			return model.Prediction{}, err
		}
		return model.Prediction{}, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if len(out) == 0 {
		return model.Prediction{}, fmt.Errorf("%w: model returned an empty output", ErrInference)
	}

	probability := float64(out[0])
	return model.Prediction{
		Class:      Decide(probability, p.threshold),
		Confidence: probability,
	}, nil
}
