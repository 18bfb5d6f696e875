// Package handlers adapts the HTTP API onto the services. Every failure goes
// through utils.Fail so the status code follows the error kind.
package handlers

import (
	"go.uber.org/zap"
	"vibeconnect/chat"
	"vibeconnect/feed"
	"vibeconnect/graph"
	"vibeconnect/storage"
	"vibeconnect/users"
)

type Handler struct {
	users  *users.Service
	graph  *graph.Service
	chat   *chat.Service
	feed   *feed.Service
	files  *storage.Local
	logger *zap.Logger
}

type Deps struct {
	Users  *users.Service
	Graph  *graph.Service
	Chat   *chat.Service
	Feed   *feed.Service
	Files  *storage.Local
	Logger *zap.Logger
}

func New(d Deps) *Handler {
	return &Handler{
		users:  d.Users,
		graph:  d.Graph,
		chat:   d.Chat,
		feed:   d.Feed,
		files:  d.Files,
		logger: d.Logger.Named("handlers"),
	}
}
