package models

import "time"

type AlertKind string

const (
	AlertReconciliation AlertKind = "reconciliation"
	AlertFraud          AlertKind = "fraud"
)

// Alert is handed to the external notification collaborator; delivery is not our concern.
type Alert struct {
	ID        string         `json:"id"`
	Kind      AlertKind      `json:"kind"`
	Severity  Severity       `json:"severity"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
