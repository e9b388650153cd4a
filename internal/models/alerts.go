package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertType is the closed set of manipulation patterns the anti-gaming
// detector recognises.
type AlertType string

const (
	AlertWashTrading        AlertType = "WASH_TRADING"
	AlertSybilCluster       AlertType = "SYBIL_CLUSTER"
	AlertStatisticalAnomaly AlertType = "STATISTICAL_ANOMALY"
	AlertCollusion          AlertType = "COLLUSION"
	AlertTimingManipulation AlertType = "TIMING_MANIPULATION"
)

// AlertSeverity grades an alert.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "CRITICAL"
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityInfo     AlertSeverity = "INFO"
)

// AlertStatus is the review lifecycle of an alert.
type AlertStatus string

const (
	AlertPending       AlertStatus = "pending"
	AlertInvestigating AlertStatus = "investigating"
	AlertConfirmed     AlertStatus = "confirmed"
	AlertDismissed     AlertStatus = "dismissed"
)

// GamingAlert is a manipulation finding. Wallets is never empty and
// CreatedAt is immutable after insert.
type GamingAlert struct {
	ID                uuid.UUID              `json:"id"`
	Type              AlertType              `json:"type"`
	Severity          AlertSeverity          `json:"severity"`
	Platform          Platform               `json:"platform"`
	Wallets           []string               `json:"wallets"`
	Evidence          map[string]interface{} `json:"evidence"`
	RecommendedAction string                 `json:"recommended_action"`
	Status            AlertStatus            `json:"status"`
	ReviewedBy        string                 `json:"reviewed_by,omitempty"`
	Notes             string                 `json:"notes,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	ReviewedAt        *time.Time             `json:"reviewed_at,omitempty"`
}

// WalletAnalysis is the public wallet deep-dive: stats, score, and any open
// alerts touching the address.
type WalletAnalysis struct {
	Address    string        `json:"address"`
	TruthScore *TruthScore   `json:"truth_score"`
	Stats      []UserStats   `json:"stats"`
	OpenAlerts []GamingAlert `json:"open_alerts"`
	RiskFlags  []string      `json:"risk_flags"`
	AnalyzedAt time.Time     `json:"analyzed_at"`
}
