package models

// HealthResponse is the body of GET /health. Status is "healthy" or "degraded".
type HealthResponse struct {
	Status    string         `json:"status"`
	Ollama    UpstreamHealth `json:"ollama"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// UpstreamHealth describes the model runtime the backend depends on.
type UpstreamHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Healthy reports whether the backend declared itself healthy.
func (h *HealthResponse) Healthy() bool {
	return h.Status == "healthy"
}

// ModelsResponse is the body of GET /models.
type ModelsResponse struct {
	Models  []string `json:"models"`
	Default string   `json:"default"`
}
