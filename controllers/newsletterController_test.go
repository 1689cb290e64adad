package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"newsletter-backend/idempotency"
	"newsletter-backend/middlewares"
	"newsletter-backend/models"
	"newsletter-backend/routes"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordingSender struct {
	mu    sync.Mutex
	sends []string
	err   error
}

func (r *recordingSender) Send(ctx context.Context, recipient, subject, htmlBody, textBody string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sends = append(r.sends, recipient)
	return nil
}

func newAppForTest(t *testing.T) (*fiber.App, *gorm.DB, *recordingSender) {
	t.Helper()
	t.Setenv("JWT_SECRET_KEY", "test-secret")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Subscription{},
		&models.NewsletterIssue{},
		&models.DeliveryTask{},
		&models.IdempotencyRecord{},
	))

	sender := &recordingSender{}
	app := fiber.New(fiber.Config{ErrorHandler: middlewares.ErrorHandler})
	routes.Register(app, db, idempotency.NewStore(db), sender, "http://localhost:8080")
	return app, db, sender
}

func bearerTokenForTest(t *testing.T, userID string) string {
	t.Helper()
	token, err := middlewares.GenerateJWT(userID)
	require.NoError(t, err)
	return "Bearer " + token
}

func publishRequest(t *testing.T, body map[string]string, auth string) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/newsletters", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return req
}

func confirmSubscriber(t *testing.T, db *gorm.DB, email string) {
	t.Helper()
	sub := models.Subscription{Email: email, Name: email, Status: models.SubscriptionConfirmed}
	require.NoError(t, db.Create(&sub).Error)
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return body
}

func TestPublishCreatesIssueAndDeliveryTasks(t *testing.T) {
	app, db, _ := newAppForTest(t)
	confirmSubscriber(t, db, "a@example.com")
	confirmSubscriber(t, db, "b@example.com")
	auth := bearerTokenForTest(t, "user-1")

	resp, err := app.Test(publishRequest(t, map[string]string{
		"title": "T", "html": "<p>T</p>", "text": "T", "idempotency_key": "K1",
	}, auth))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var out struct {
		IssueId string `json:"issue_id"`
	}
	require.NoError(t, json.Unmarshal(readBody(t, resp), &out))
	assert.NotEmpty(t, out.IssueId)

	var issues, tasks int64
	require.NoError(t, db.Model(&models.NewsletterIssue{}).Count(&issues).Error)
	require.NoError(t, db.Model(&models.DeliveryTask{}).Count(&tasks).Error)
	assert.Equal(t, int64(1), issues)
	assert.Equal(t, int64(2), tasks, "one delivery task per confirmed subscriber")
}

func TestPublishRetryReplaysFirstResponseAndIgnoresNewBody(t *testing.T) {
	app, db, _ := newAppForTest(t)
	confirmSubscriber(t, db, "a@example.com")
	auth := bearerTokenForTest(t, "user-1")

	first, err := app.Test(publishRequest(t, map[string]string{
		"title": "Original", "html": "<p>1</p>", "text": "1", "idempotency_key": "K1",
	}, auth))
	require.NoError(t, err)
	firstBody := readBody(t, first)

	// Same key, different content: the stored response wins.
	second, err := app.Test(publishRequest(t, map[string]string{
		"title": "Changed", "html": "<p>2</p>", "text": "2", "idempotency_key": "K1",
	}, auth))
	require.NoError(t, err)
	secondBody := readBody(t, second)

	assert.Equal(t, first.StatusCode, second.StatusCode)
	assert.Equal(t, firstBody, secondBody, "replay must be byte-identical")
	assert.Equal(t, first.Header.Get("Content-Type"), second.Header.Get("Content-Type"))

	// No second business side effect.
	var issues, tasks int64
	require.NoError(t, db.Model(&models.NewsletterIssue{}).Count(&issues).Error)
	require.NoError(t, db.Model(&models.DeliveryTask{}).Count(&tasks).Error)
	assert.Equal(t, int64(1), issues)
	assert.Equal(t, int64(1), tasks)

	var stored []models.NewsletterIssue
	require.NoError(t, db.Find(&stored).Error)
	require.Len(t, stored, 1)
	assert.Equal(t, "Original", stored[0].Title)
}

func TestPublishWithSameKeyByDifferentUserIsIndependent(t *testing.T) {
	app, db, _ := newAppForTest(t)
	confirmSubscriber(t, db, "a@example.com")

	for _, user := range []string{"user-1", "user-2"} {
		resp, err := app.Test(publishRequest(t, map[string]string{
			"title": "T", "html": "<p>T</p>", "text": "T", "idempotency_key": "K1",
		}, bearerTokenForTest(t, user)))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}

	var issues int64
	require.NoError(t, db.Model(&models.NewsletterIssue{}).Count(&issues).Error)
	assert.Equal(t, int64(2), issues)
}

func TestPublishRejectsBadIdempotencyKey(t *testing.T) {
	app, db, _ := newAppForTest(t)
	auth := bearerTokenForTest(t, "user-1")

	for _, key := range []string{"", strings.Repeat("x", 50)} {
		body := map[string]string{"title": "T", "html": "h", "text": "t", "idempotency_key": key}
		resp, err := app.Test(publishRequest(t, body, auth))
		require.NoError(t, err)
		assert.True(t, resp.StatusCode == fiber.StatusBadRequest || resp.StatusCode == fiber.StatusUnprocessableEntity,
			"got status %d for key %q", resp.StatusCode, key)
	}

	// Fast-fail validation must leave no side effects behind.
	var records int64
	require.NoError(t, db.Model(&models.IdempotencyRecord{}).Count(&records).Error)
	assert.Equal(t, int64(0), records)
}

func TestPublishRequiresAuthentication(t *testing.T) {
	app, _, _ := newAppForTest(t)

	resp, err := app.Test(publishRequest(t, map[string]string{
		"title": "T", "html": "h", "text": "t", "idempotency_key": "K1",
	}, ""))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestPublishAfterCrashedClaimIsAServerError(t *testing.T) {
	app, db, _ := newAppForTest(t)
	auth := bearerTokenForTest(t, "user-1")

	// A claim row without a response simulates a crash between claim and
	// complete; the retry must surface an error, not silently succeed.
	require.NoError(t, db.Create(&models.IdempotencyRecord{
		UserId:         "user-1",
		IdempotencyKey: "K1",
	}).Error)

	resp, err := app.Test(publishRequest(t, map[string]string{
		"title": "T", "html": "h", "text": "t", "idempotency_key": "K1",
	}, auth))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
