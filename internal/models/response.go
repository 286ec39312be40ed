package models

import "time"

type PlanResponse struct {
	UserID      string    `json:"userId"`
	Plan        string    `json:"plan"`
	PointsLeft  int       `json:"pointsLeft"`
	StartDate   time.Time `json:"startDate"`
	IsAnonymous bool      `json:"isAnonymous"`
}

type DeductResponse struct {
	Feature    string `json:"feature"`
	Cost       int    `json:"cost"`
	PointsLeft int    `json:"pointsLeft"`
}

type DeviceResponse struct {
	DeviceID string `json:"deviceId"`
	Eligible bool   `json:"eligible"`
}

type GenerationResponse struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	Type      string    `json:"type"`
	Output    string    `json:"output"`
	CreatedAt time.Time `json:"createdAt"`
}

type GenerationsResponse struct {
	Generations []GenerationResponse `json:"generations"`
}

type ConnectionTest struct {
	OK     bool   `json:"ok"`
	Status int    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

type DependencyStatus struct {
	Configured bool   `json:"configured"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
}

type EnvCheckResponse struct {
	HasToken         bool             `json:"hasToken"`
	TokenFormatValid bool             `json:"tokenFormatValid"`
	TokenPreview     string           `json:"tokenPreview,omitempty"`
	ConnectionTest   ConnectionTest   `json:"connectionTest"`
	Database         DependencyStatus `json:"database"`
	Supabase         DependencyStatus `json:"supabase"`
	Redis            DependencyStatus `json:"redis"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
