package services

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"

	"guildhall/internal/datastore/redis_store"
	"guildhall/internal/interfaces"
	"guildhall/internal/models"
)

// ServiceNotification keeps a short inbox per user in redis and forwards
// alerts to Telegram when a chat is linked. Delivery is best effort: a failure
// here never fails the operation that triggered it.
type ServiceNotification struct {
	container *do.Injector
	redisDB   redis.UniversalClient
	messenger interfaces.Messenger
	gmChatID  int64
}

func NewServiceNotification(container *do.Injector) (*ServiceNotification, error) {
	db, err := do.InvokeNamed[redis.UniversalClient](container, "redis-db")
	if err != nil {
		return nil, err
	}

	// alerts are optional
	var messenger interfaces.Messenger
	if bot, err := do.Invoke[*Bot](container); err == nil {
		messenger = bot
	}

	var gmChatID int64
	if vs, err := do.InvokeNamed[map[string]string](container, "envs"); err == nil && vs["GM_CHAT_ID"] != "" {
		gmChatID, err = strconv.ParseInt(vs["GM_CHAT_ID"], 10, 64)
		if err != nil {
			return nil, err
		}
	}

	return &ServiceNotification{container, db, messenger, gmChatID}, nil
}

func (service *ServiceNotification) Notify(ctx context.Context, userID uuid.UUID, kind, title, body, link string) {
	n := &models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID.String(),
		Kind:      kind,
		Title:     title,
		Body:      body,
		Link:      link,
		CreatedAt: time.Now().UTC(),
	}

	if err := redis_store.PushNotification(ctx, service.redisDB, n); err != nil {
		log.Printf("notification: push %s for %s: %v\n", kind, userID, err)
	}

	if service.messenger == nil {
		return
	}

	chatID, err := redis_store.GetNotifyChat(ctx, service.redisDB, n.UserID)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("notification: chat lookup for %s: %v\n", userID, err)
		}
		return
	}

	if err := service.messenger.Send(chatID, alertText(title, body, link)); err != nil {
		log.Printf("notification: telegram %s for %s: %v\n", kind, userID, err)
	}
}

// AlertGameMasters pings the GM chat, if one is configured.
func (service *ServiceNotification) AlertGameMasters(title, body, link string) {
	if service.messenger == nil || service.gmChatID == 0 {
		return
	}

	if err := service.messenger.Send(service.gmChatID, alertText(title, body, link)); err != nil {
		log.Printf("notification: gm alert %q: %v\n", title, err)
	}
}

func (service *ServiceNotification) List(ctx context.Context, principal *models.Principal) ([]*models.Notification, error) {
	return redis_store.GetNotifications(ctx, service.redisDB, principal.ID.String(), NOTIFICATION_DEFAULT_LIMIT)
}

func (service *ServiceNotification) Clear(ctx context.Context, principal *models.Principal) error {
	return redis_store.ClearNotifications(ctx, service.redisDB, principal.ID.String())
}

// LinkChat routes the user's future notifications to a Telegram chat. A zero
// id unlinks it.
func (service *ServiceNotification) LinkChat(ctx context.Context, principal *models.Principal, chatID int64) error {
	if chatID == 0 {
		return redis_store.DeleteNotifyChat(ctx, service.redisDB, principal.ID.String())
	}
	return redis_store.SetNotifyChat(ctx, service.redisDB, principal.ID.String(), chatID)
}
