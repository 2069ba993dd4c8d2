package vision

import "facemask-api/internal/model"

// DefaultThreshold is the cutoff the face mask artifact was trained against.
const DefaultThreshold = 0.5

// Decide maps a mask probability to a label. Only p strictly above threshold
// counts as a mask.
func Decide(p, threshold float64) string {
	if p > threshold {
		return model.LabelMask
	}
	return model.LabelNoMask
}
