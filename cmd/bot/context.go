package main

import (
	"fmt"

	tele "gopkg.in/telebot.v3"

	"guildhall/internal/services"
)

func fromContext[T any](context tele.Context, key string) (T, error) {
	var zero T
	contextValue := context.Get(key)
	if contextValue == nil {
		return zero, fmt.Errorf("%s not found", key)
	}

	result, ok := contextValue.(T)
	if !ok {
		return zero, fmt.Errorf("%s not valid", key)
	}

	return result, nil
}

func getContextAuthentication(context tele.Context) (*services.Authentication, error) {
	return fromContext[*services.Authentication](context, contextAuthentication)
}

func getContextServiceNotification(context tele.Context) (*services.ServiceNotification, error) {
	return fromContext[*services.ServiceNotification](context, contextServiceNotification)
}

func getContextServiceProgression(context tele.Context) (*services.ServiceProgression, error) {
	return fromContext[*services.ServiceProgression](context, contextServiceProgression)
}

func getContextServiceLeaderboard(context tele.Context) (*services.ServiceLeaderboard, error) {
	return fromContext[*services.ServiceLeaderboard](context, contextServiceLeaderboard)
}
