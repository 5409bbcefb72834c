package contract

// PredictResponse is the body returned by POST /predict on success.
// Prices come back in the same order as the input records.
type PredictResponse struct {
	PredictedPrice []float64 `json:"predicted_price"`
}

// ErrorResponse is the body returned by the demo endpoints on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body returned by GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelStatus string `json:"model_status"`
	Message     string `json:"message"`
}

const (
	ModelStatusLoaded    = "loaded"
	ModelStatusNotLoaded = "not loaded"
)
