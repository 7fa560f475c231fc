package response

import "time"

// StatusResponse is the DTO for the progress of the current crawl run.
type StatusResponse struct {
	Status     string     `json:"status"` // "idle", "running", "completed", "interrupted", "failed"
	StartURL   string     `json:"start_url,omitempty"`
	Mode       string     `json:"mode,omitempty"`
	MaxDepth   int        `json:"max_depth"`
	CurrentURL string     `json:"current_url,omitempty"`
	Visited    int        `json:"visited"`
	Fetched    int        `json:"fetched"`
	Failed     int        `json:"failed"`
	Challenges int        `json:"challenges"`
	Output     string     `json:"output,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
