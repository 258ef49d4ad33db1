package events

import (
	"time"
)

// EventType identifies the kind of webhook event emitted to a team endpoint.
type EventType string

const (
	MatterCreation EventType = "matter_creation"
	MatterDetails  EventType = "matter_details"
	ContactForm    EventType = "contact_form"
	Appointment    EventType = "appointment"
)

// All lists every event type a team can enable.
var All = []EventType{MatterCreation, MatterDetails, ContactForm, Appointment}

// Valid reports whether et is a known event type.
func (et EventType) Valid() bool {
	for _, known := range All {
		if known == et {
			return true
		}
	}
	return false
}

// Envelope is the JSON body POSTed to a team's webhook URL.
type Envelope struct {
	Event     EventType `json:"event"`
	Timestamp string    `json:"timestamp"`
	TeamID    string    `json:"teamId"`
	SessionID string    `json:"sessionId"`
	Data      any       `json:"data"`
}

// NewEnvelope wraps data with the event metadata, stamped with the current UTC time.
func NewEnvelope(et EventType, teamID, sessionID string, data any) Envelope {
	return Envelope{
		Event:     et,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		TeamID:    teamID,
		SessionID: sessionID,
		Data:      data,
	}
}

// Answer is a single captured slot value with the question that was shown.
type Answer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// MatterData is the payload for matter_creation events.
type MatterData struct {
	Service       string            `json:"service"`
	Name          string            `json:"name"`
	Email         string            `json:"email"`
	Phone         string            `json:"phone"`
	OpposingParty string            `json:"opposingParty"`
	Description   string            `json:"description"`
	MatterSummary string            `json:"matterSummary"`
	Answers       map[string]Answer `json:"answers"`
	QualityScore  *float64          `json:"qualityScore,omitempty"`
}

// MatterDetailsData is the payload for matter_details events, sent once the
// user confirms the summary.
type MatterDetailsData struct {
	MatterData
	SubmittedAt string `json:"submittedAt"`
}
