package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SubscriptionPending   = "pending_confirmation"
	SubscriptionConfirmed = "confirmed"
)

type Subscription struct {
	Id                string    `json:"id" gorm:"primaryKey"`
	Email             string    `json:"email" gorm:"size:320;unique;not null"`
	Name              string    `json:"name" gorm:"not null"`
	Status            string    `json:"status" gorm:"size:32;not null;index"`
	ConfirmationToken string    `json:"-" gorm:"size:36;uniqueIndex"`
	SubscribedAt      time.Time `json:"subscribed_at"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) (err error) {
	s.Id = uuid.NewString()
	if s.ConfirmationToken == "" {
		s.ConfirmationToken = uuid.NewString()
	}
	if s.SubscribedAt.IsZero() {
		s.SubscribedAt = time.Now().UTC()
	}
	return
}
