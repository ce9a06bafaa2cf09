// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes registers the gateway's HTTP surface.
package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anchorage-ai/anchorage/services/gateway/auth"
	"github.com/anchorage-ai/anchorage/services/gateway/handlers"
	"github.com/anchorage-ai/anchorage/services/gateway/middleware"
)

// Deps bundles everything the route table needs.
type Deps struct {
	Resolver auth.Resolver
	Gate     *middleware.MaintenanceGate
	Logger   *slog.Logger

	Auth               *handlers.AuthHandler
	Users              *handlers.UsersHandler
	UserGroups         *handlers.UserGroupsHandler
	Conversations      *handlers.ConversationsHandler
	ConversationGroups *handlers.ConversationGroupsHandler
	Files              *handlers.FilesHandler
	Settings           *handlers.SettingsHandler
	Chat               *handlers.ChatHandler
	Admin              *handlers.AdminHandler
	Models             *handlers.ModelsHandler
}

// SetupRoutes wires every endpoint. Health and metrics stay outside
// the auth chain; register and login are unauthenticated by nature;
// everything else runs behind the principal middleware and the
// maintenance gate, in that order, so root can still reach the
// maintenance toggle while the gate is up.
func SetupRoutes(router *gin.Engine, d Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")

	v1.POST("/auth/register", d.Auth.Register)
	v1.POST("/auth/login", d.Auth.Login)

	authed := v1.Group("", middleware.Authenticate(d.Resolver, d.Logger), d.Gate.Middleware())
	{
		users := authed.Group("/users")
		{
			users.POST("", d.Users.Create)
			users.GET("", d.Users.List)
			users.GET("/:id", d.Users.Get)
			users.PUT("/:id", d.Users.Update)
			users.DELETE("/:id", d.Users.Delete)
		}

		groups := authed.Group("/user-groups")
		{
			groups.POST("", d.UserGroups.Create)
			groups.GET("", d.UserGroups.List)
			groups.GET("/:id", d.UserGroups.Get)
			groups.DELETE("/:id", d.UserGroups.Delete)
			groups.PUT("/:id/status", d.UserGroups.SetStatus)
			groups.POST("/:id/members", d.UserGroups.AddMember)
			groups.DELETE("/:id/members/:userId", d.UserGroups.RemoveMember)
			groups.POST("/:id/managers", d.UserGroups.AssignManager)
			groups.DELETE("/:id/managers/:userId", d.UserGroups.RemoveManager)
		}

		convs := authed.Group("/conversations")
		{
			convs.POST("", d.Conversations.Create)
			convs.GET("", d.Conversations.List)
			convs.GET("/shared", d.Conversations.ListShared)
			convs.GET("/:id", d.Conversations.Get)
			convs.PUT("/:id", d.Conversations.Update)
			convs.DELETE("/:id", d.Conversations.Delete)
			convs.PUT("/:id/share", d.Conversations.Share)
			convs.GET("/:id/messages", d.Conversations.Messages)
		}

		folders := authed.Group("/conversation-groups")
		{
			folders.POST("", d.ConversationGroups.Create)
			folders.GET("", d.ConversationGroups.List)
			folders.PUT("/:id", d.ConversationGroups.Rename)
			folders.DELETE("/:id", d.ConversationGroups.Delete)
			folders.POST("/:id/conversations", d.ConversationGroups.Assign)
			folders.DELETE("/:id/conversations/:conversationId", d.ConversationGroups.Unassign)
		}

		files := authed.Group("/files")
		{
			files.POST("", d.Files.Upload)
			files.GET("", d.Files.List)
			files.GET("/:id", d.Files.Get)
			files.GET("/:id/download", d.Files.Download)
			files.GET("/:id/url", d.Files.PresignURL)
			files.DELETE("/:id", d.Files.Delete)
			files.POST("/:id/promote", d.Files.Promote)
		}

		authed.GET("/settings", d.Settings.Get)
		authed.PUT("/settings", d.Settings.Update)

		authed.POST("/chat/stream", d.Chat.Stream)

		authed.GET("/models", d.Models.List)
		authed.POST("/models/pull", d.Models.Pull)

		admin := authed.Group("/admin")
		{
			admin.GET("/maintenance", d.Admin.MaintenanceStatus)
			admin.PUT("/maintenance", d.Admin.SetMaintenance)
		}
	}
}
