package imagepulse

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// EventResponse is the body returned when a pull event is accepted.
type EventResponse struct {
	Image   string `json:"image"`
	Outcome string `json:"outcome"`
	Status  string `json:"status"`
}

// JobResponse is the body describing one pull job.
type JobResponse struct {
	ID     string `json:"id"`
	Image  string `json:"image,omitempty"`
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// JobMetricResponse is one job metric row as returned by the API.
type JobMetricResponse struct {
	JobID     string         `json:"job_id"`
	Key       string         `json:"key"`
	Value     float64        `json:"value"`
	Unit      string         `json:"unit,omitempty"`
	Labels    map[string]any `json:"labels,omitempty"`
	CreatedAt string         `json:"created_at"`
}
