package idempotency

import (
	"encoding/json"
	"errors"
	"fmt"

	"newsletter-backend/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrClaimPending means the key was claimed earlier but no response was ever
// saved: an earlier attempt crashed between claim and complete. Callers must
// surface this as a server error, never as success.
var ErrClaimPending = errors.New("idempotency key claimed but operation never completed")

// HeaderPair is one response header as it will be replayed. Order matters and
// names may repeat, so headers are kept as a list rather than a map.
type HeaderPair struct {
	Name  string `json:"name"`
	Value []byte `json:"value"`
}

// SavedResponse is the full HTTP response bound to an idempotency key. What
// gets persisted is exactly what gets sent, which is what makes replays
// byte-identical.
type SavedResponse struct {
	StatusCode int
	Headers    []HeaderPair
	Body       []byte
}

// Claim holds the transaction opened by a successful claim. Every write
// belonging to the claimed operation (the issue row, the delivery tasks) must
// go through Tx so it commits atomically with the response in Complete.
type Claim struct {
	Tx     *gorm.DB
	userId string
	key    Key
}

// Rollback discards the claim and everything written through its transaction.
func (c *Claim) Rollback() {
	_ = c.Tx.Rollback()
}

// Store persists at most one operation outcome per (user, key) pair.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ClaimOrReplay decides whether the caller is the first attempt for this
// (user, key) pair.
//
// First attempt: a bare claim row is inserted with ON CONFLICT DO NOTHING and
// the still-open transaction is returned; the caller performs its writes on it
// and finishes with Complete.
//
// Retry: the attempting transaction is rolled back and the stored response is
// returned instead. A claim without a stored response yields ErrClaimPending.
func (s *Store) ClaimOrReplay(userId string, key Key) (*Claim, *SavedResponse, error) {
	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, nil, fmt.Errorf("beginning claim transaction: %w", tx.Error)
	}

	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(&models.IdempotencyRecord{
		UserId:         userId,
		IdempotencyKey: key.String(),
	})
	if res.Error != nil {
		tx.Rollback()
		return nil, nil, fmt.Errorf("claiming idempotency key: %w", res.Error)
	}

	if res.RowsAffected == 1 {
		return &Claim{Tx: tx, userId: userId, key: key}, nil, nil
	}

	// Key already claimed by an earlier request; this attempt is a replay.
	tx.Rollback()

	saved, err := s.savedResponse(userId, key)
	if err != nil {
		return nil, nil, err
	}
	return nil, saved, nil
}

// Complete serializes the response into the claimed row and commits the
// claim's transaction, making the business writes and the stored response
// visible atomically. The same response is returned unchanged so the caller
// sends exactly the bytes that were persisted.
func (s *Store) Complete(claim *Claim, resp *SavedResponse) (*SavedResponse, error) {
	headers, err := json.Marshal(resp.Headers)
	if err != nil {
		claim.Rollback()
		return nil, fmt.Errorf("encoding response headers: %w", err)
	}

	status := resp.StatusCode
	res := claim.Tx.Model(&models.IdempotencyRecord{}).
		Where("user_id = ? AND idempotency_key = ?", claim.userId, claim.key.String()).
		Updates(map[string]any{
			"response_status_code": &status,
			"response_headers":     datatypes.JSON(headers),
			"response_body":        resp.Body,
		})
	if res.Error != nil {
		claim.Rollback()
		return nil, fmt.Errorf("saving response: %w", res.Error)
	}

	if err := claim.Tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	return resp, nil
}

func (s *Store) savedResponse(userId string, key Key) (*SavedResponse, error) {
	var rec models.IdempotencyRecord
	err := s.db.
		Where("user_id = ? AND idempotency_key = ?", userId, key.String()).
		First(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("loading saved response: %w", err)
	}

	if rec.ResponseStatusCode == nil {
		return nil, ErrClaimPending
	}

	var headers []HeaderPair
	if len(rec.ResponseHeaders) > 0 {
		if err := json.Unmarshal(rec.ResponseHeaders, &headers); err != nil {
			return nil, fmt.Errorf("decoding response headers: %w", err)
		}
	}

	return &SavedResponse{
		StatusCode: *rec.ResponseStatusCode,
		Headers:    headers,
		Body:       rec.ResponseBody,
	}, nil
}
