package models

import (
	"time"

	"gorm.io/datatypes"
)

// IdempotencyRecord pins the outcome of one user+key operation. A row with a
// NULL ResponseStatusCode is a claim that never completed (crash mid-flight).
// Rows are never deleted; see the retention note in DESIGN.md.
type IdempotencyRecord struct {
	UserId             string         `json:"user_id" gorm:"primaryKey;size:36"`
	IdempotencyKey     string         `json:"idempotency_key" gorm:"primaryKey;size:49"`
	ResponseStatusCode *int           `json:"response_status_code"`
	ResponseHeaders    datatypes.JSON `json:"-"`
	ResponseBody       []byte         `json:"-"`
	CreatedAt          time.Time      `json:"created_at"`
}

func (IdempotencyRecord) TableName() string { return "idempotency" }
