package models

// ProgressUpdate is broadcast to connected clients while a refresh runs.
type ProgressUpdate struct {
	JobID     string  `json:"jobId"`
	Phase     string  `json:"phase"` // "fetch" or "merge"
	ListURL   string  `json:"list_url"`
	Message   string  `json:"message"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Progress  float64 `json:"progress"`
	Done      bool    `json:"done"`
}
