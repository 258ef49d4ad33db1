package api

// AttemptResponse is the API view of a webhook attempt chain.
type AttemptResponse struct {
	ID           string `json:"id"`
	TeamID       string `json:"team_id"`
	SessionID    string `json:"session_id,omitempty"`
	EventType    string `json:"event_type"`
	URL          string `json:"url"`
	Status       string `json:"status"`
	ResponseCode int    `json:"response_code"`
	ResponseBody string `json:"response_body,omitempty"`
	Error        string `json:"error,omitempty"`
	RetryCount   int    `json:"retry_count"`
	NextRetryAt  string `json:"next_retry_at,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	Payload      string `json:"payload,omitempty"` // only on single-attempt reads
	CreatedAt    string `json:"created_at"`
	ModifiedAt   string `json:"modified_at"`
}

// RetryTeamResponse summarises an operator retry across a team.
type RetryTeamResponse struct {
	TeamID   string            `json:"team_id"`
	Retried  int               `json:"retried"`
	Attempts []AttemptResponse `json:"attempts"`
	Error    string            `json:"error,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
