package usecase

import (
	"context"
	"encoding/json"

	"agromart/internal/domain/repository"
	"agromart/internal/infrastructure/mail"
	"agromart/internal/infrastructure/queue"
	"agromart/pkg/errors"
	"agromart/pkg/logger"
)

// TaskTypeUnreadAlert names the background task that emails a recipient
// about unread messages piling up.
const TaskTypeUnreadAlert = "notification:unread_alert"

// UnreadAlertPayload travels from the delivery engine to the worker,
// either through Redis or in process.
type UnreadAlertPayload struct {
	RecipientID string `json:"recipient_id"`
	ChatID      string `json:"chat_id"`
	ListingID   string `json:"listing_id"`
	Unread      int    `json:"unread"`
}

// NotificationDispatcher hands an unread alert off for delivery. Callers
// treat it as best-effort; a dispatch failure never fails the message
// send that triggered it.
type NotificationDispatcher interface {
	DispatchUnreadAlert(ctx context.Context, p UnreadAlertPayload) error
}

// QueueDispatcher enqueues alerts on Redis for the notification worker.
type QueueDispatcher struct {
	client *queue.Client
}

func NewQueueDispatcher(client *queue.Client) *QueueDispatcher {
	return &QueueDispatcher{
		client: client,
	}
}

func (d *QueueDispatcher) DispatchUnreadAlert(ctx context.Context, p UnreadAlertPayload) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return errors.Internal("Failed to marshal unread alert payload", err)
	}
	return d.client.Enqueue(ctx, TaskTypeUnreadAlert, payload)
}

// DirectDispatcher runs the worker in process, for deployments without
// Redis. The email send is detached so the caller never waits on SMTP.
type DirectDispatcher struct {
	worker *NotificationWorker
}

func NewDirectDispatcher(worker *NotificationWorker) *DirectDispatcher {
	return &DirectDispatcher{
		worker: worker,
	}
}

func (d *DirectDispatcher) DispatchUnreadAlert(ctx context.Context, p UnreadAlertPayload) error {
	go func() {
		if err := d.worker.Process(context.Background(), p); err != nil {
			logger.Error("Unread alert for user %s chat %s failed: %v", p.RecipientID, p.ChatID, err)
		}
	}()
	return nil
}

// NotificationWorker resolves an alert payload into a concrete email.
type NotificationWorker struct {
	userRepo    repository.UserRepository
	listingRepo repository.ListingRepository
	mailer      *mail.Sender
}

func NewNotificationWorker(
	userRepo repository.UserRepository,
	listingRepo repository.ListingRepository,
	mailer *mail.Sender,
) *NotificationWorker {
	return &NotificationWorker{
		userRepo:    userRepo,
		listingRepo: listingRepo,
		mailer:      mailer,
	}
}

// HandleUnreadAlert is the queue entry point.
func (w *NotificationWorker) HandleUnreadAlert(ctx context.Context, payload []byte) error {
	var p UnreadAlertPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		// Malformed payloads will never succeed; do not retry them.
		logger.Error("Dropping malformed unread alert payload: %v", err)
		return nil
	}
	return w.Process(ctx, p)
}

// Process looks up the recipient and listing and sends the alert email.
// A missing listing degrades to a generic subject line instead of
// failing the task.
func (w *NotificationWorker) Process(ctx context.Context, p UnreadAlertPayload) error {
	user, err := w.userRepo.GetByID(ctx, p.RecipientID)
	if err != nil {
		return err
	}
	if user.Email == "" {
		logger.Warn("User %s has no email address, skipping unread alert", p.RecipientID)
		return nil
	}

	listingTitle := "one of your listings"
	if listing, err := w.listingRepo.GetByID(ctx, p.ListingID); err == nil {
		listingTitle = listing.Title
	} else {
		logger.Warn("Listing %s not resolved for unread alert: %v", p.ListingID, err)
	}

	if err := w.mailer.SendUnreadAlert(user.Email, user.DisplayName(), listingTitle, p.Unread); err != nil {
		return err
	}

	logger.Info("Unread alert sent to user %s for chat %s (%d unread)", p.RecipientID, p.ChatID, p.Unread)
	return nil
}
