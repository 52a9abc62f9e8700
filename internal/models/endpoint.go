package models

import "time"

// IngestEndpoint is a named ingest tier with a per-minute cost and a set of
// capabilities that drive the variant/egress configuration engine.
type IngestEndpoint struct {
	ID             string       `json:"id" gorm:"primarykey"`
	Name           string       `json:"name" gorm:"uniqueIndex;not null"`
	CostMsatPerMin uint64       `json:"cost_msat_per_min"`
	Capabilities   PqStringList `json:"capabilities" gorm:"type:text;serializer:json"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// TableName returns the GORM table name.
func (IngestEndpoint) TableName() string {
	return "ingest_endpoints"
}

// ParsedCapabilities parses the endpoint's raw capability strings, logging
// callers should report the skipped entries.
func (e IngestEndpoint) ParsedCapabilities() (caps []Capability, skipped []string) {
	return ParseCapabilities(e.Capabilities)
}

// PqStringList is a string slice persisted as a JSON column, grounded on
// the teacher's PqStringArray convention for GORM string-array fields.
type PqStringList []string
