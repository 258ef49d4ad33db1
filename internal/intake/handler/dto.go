package handler

// TurnRequest is the JSON body of a turn.
type TurnRequest struct {
	TeamID      string            `json:"teamId"`
	SessionID   string            `json:"sessionId,omitempty"`
	Service     string            `json:"service,omitempty"`
	Description string            `json:"description,omitempty"`
	Answers     map[string]string `json:"answers,omitempty"`
	Step        string            `json:"step,omitempty"`
}

// ErrorResponse is the JSON body of a failed turn.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
