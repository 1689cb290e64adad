package controllers

import (
	"encoding/json"
	"errors"
	"time"

	"newsletter-backend/delivery"
	"newsletter-backend/idempotency"
	"newsletter-backend/middlewares"

	"github.com/gofiber/fiber/v2"
)

type publishNewsletterDTO struct {
	Title          string `json:"title" validate:"required"`
	HTML           string `json:"html" validate:"required"`
	Text           string `json:"text" validate:"required"`
	IdempotencyKey string `json:"idempotency_key" validate:"required"`
}

// PublishNewsletter handles POST /api/newsletters. The whole publish - claim,
// issue row, delivery fan-out, stored response - is one transaction, so a
// retried request either replays the saved bytes or fails as the server
// error it is.
func PublishNewsletter(store *idempotency.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var dto publishNewsletterDTO
		if err := middlewares.BindAndValidate(c, &dto); err != nil {
			return err
		}

		key, err := idempotency.ParseKey(dto.IdempotencyKey)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		userID, _ := c.Locals("userID").(string)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "auth context missing")
		}

		claim, replay, err := store.ClaimOrReplay(userID, key)
		if err != nil {
			if errors.Is(err, idempotency.ErrClaimPending) {
				return fiber.NewError(fiber.StatusInternalServerError,
					"a previous attempt with this idempotency key never completed")
			}
			return err
		}
		if replay != nil {
			return sendSavedResponse(c, replay)
		}

		issueID, err := delivery.InsertIssue(claim.Tx, dto.Title, dto.HTML, dto.Text)
		if err != nil {
			claim.Rollback()
			return err
		}
		if err := delivery.EnqueueForConfirmedSubscribers(claim.Tx, issueID, time.Now().UTC()); err != nil {
			claim.Rollback()
			return err
		}

		body, err := json.Marshal(fiber.Map{
			"message":  "The newsletter issue has been accepted - emails will go out shortly.",
			"issue_id": issueID,
		})
		if err != nil {
			claim.Rollback()
			return err
		}

		resp := &idempotency.SavedResponse{
			StatusCode: fiber.StatusCreated,
			Headers: []idempotency.HeaderPair{
				{Name: fiber.HeaderContentType, Value: []byte(fiber.MIMEApplicationJSON)},
			},
			Body: body,
		}
		resp, err = store.Complete(claim, resp)
		if err != nil {
			return err
		}
		return sendSavedResponse(c, resp)
	}
}

// sendSavedResponse writes exactly the persisted status, headers and body, so
// first responses and replays are byte-identical.
func sendSavedResponse(c *fiber.Ctx, resp *idempotency.SavedResponse) error {
	c.Status(resp.StatusCode)
	for _, h := range resp.Headers {
		c.Response().Header.AddBytesV(h.Name, h.Value)
	}
	return c.Send(resp.Body)
}
