package logging

import "fmt"

// Stages of the predict pipeline, in the order a request passes them.
const (
	StageSave       = "save"
	StagePreprocess = "preprocess"
	StageInference  = "inference"
	StagePredict    = "predict"
)

// OperationError tags a failed upload with the stage it died in. Logs carry
// the full text; clients only ever see Cause.
type OperationError struct {
	Operation string
	RequestID string
	Err       error
}

func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.RequestID == "" {
		return e.Operation + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s [%s]: %v", e.Operation, e.RequestID, e.Err)
}

// Cause is the message returned in a 500 body, e.g.
// "decode image: image: unknown format".
func (e *OperationError) Cause() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError returns nil for a nil err so callers can wrap
// unconditionally.
func NewOperationError(stage, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: stage, RequestID: requestID, Err: err}
}
