// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/pkg/config"
	"github.com/anchorage-ai/anchorage/services/docstore"
	"github.com/anchorage-ai/anchorage/services/gateway/chat"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
	"github.com/anchorage-ai/anchorage/services/gateway/files"
	"github.com/anchorage-ai/anchorage/services/gateway/handlers"
	"github.com/anchorage-ai/anchorage/services/gateway/middleware"
	"github.com/anchorage-ai/anchorage/services/gateway/routes"
	"github.com/anchorage-ai/anchorage/services/gateway/settings"
	"github.com/anchorage-ai/anchorage/services/gateway/store"
	"github.com/anchorage-ai/anchorage/services/llm"
	"github.com/anchorage-ai/anchorage/services/objectstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// headerResolver authenticates by a test-only header so each request
// can pick its principal.
type headerResolver struct {
	principals map[string]datatypes.Principal
}

func (h headerResolver) Resolve(_ context.Context, r *http.Request) (datatypes.Principal, error) {
	id := r.Header.Get("X-Test-Principal")
	p, ok := h.principals[id]
	if !ok {
		return datatypes.Principal{}, apperrors.New(apperrors.KindUnauthorized, "missing bearer token")
	}
	return p, nil
}

// scriptedProvider plays back a fixed set of chunks.
type scriptedProvider struct {
	chunks       []string
	midStreamErr error
	preflightErr error
	stats        *llm.Stats
}

func (s *scriptedProvider) Connect(context.Context) error { return nil }
func (s *scriptedProvider) Disconnect() error             { return nil }
func (s *scriptedProvider) ModelName() string             { return "scripted" }
func (s *scriptedProvider) ProviderName() string          { return "scripted" }
func (s *scriptedProvider) ValidateConfig() error         { return nil }
func (s *scriptedProvider) Stats() *llm.Stats             { return s.stats }

func (s *scriptedProvider) StreamChat(ctx context.Context, _ []llm.Message, _ llm.StreamOptions) (<-chan llm.Chunk, error) {
	if s.preflightErr != nil {
		return nil, s.preflightErr
	}
	out := make(chan llm.Chunk, 1)
	go func() {
		defer close(out)
		for _, c := range s.chunks {
			select {
			case out <- llm.Chunk{Content: c}:
			case <-ctx.Done():
				return
			}
		}
		if s.midStreamErr != nil {
			out <- llm.Chunk{Err: s.midStreamErr}
			return
		}
		s.stats = &llm.Stats{Model: "scripted", PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8}
	}()
	return out, nil
}

type fixture struct {
	router   *gin.Engine
	stores   *store.Stores
	provider *scriptedProvider
	gate     *middleware.MaintenanceGate
}

var (
	rootP    = datatypes.Principal{ID: "root-1", Role: datatypes.RoleRoot}
	managerP = datatypes.Principal{ID: "mgr-1", Role: datatypes.RoleManager}
	userP    = datatypes.Principal{ID: "usr-1", Role: datatypes.RoleUser, GroupIDs: []string{"g-alpha"}}
	otherP   = datatypes.Principal{ID: "usr-2", Role: datatypes.RoleUser, GroupIDs: []string{"g-alpha"}}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ds, err := docstore.OpenBadger(docstore.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	stores, err := store.New(context.Background(), ds)
	require.NoError(t, err)

	objects := objectstore.NewMemory()
	require.NoError(t, objects.EnsureBucket(context.Background(), "test-bucket"))

	provider := &scriptedProvider{chunks: []string{"Hello", ", world"}}
	settingsSvc := settings.NewService(ds)
	catalog := files.NewCatalog(stores.Files, objects, "test-bucket", config.UploadConfig{}, nil)
	engine := chat.NewEngine(stores.Conversations, stores.Messages, settingsSvc, provider, nil)
	gate := middleware.NewMaintenanceGate(false, "down for upgrades")

	resolver := headerResolver{principals: map[string]datatypes.Principal{
		rootP.ID:    rootP,
		managerP.ID: managerP,
		userP.ID:    userP,
		otherP.ID:   otherP,
	}}

	router := gin.New()
	routes.SetupRoutes(router, routes.Deps{
		Resolver: resolver,
		Gate:     gate,

		Auth:               handlers.NewAuthHandler(nil, config.AuthModeSSO),
		Users:              handlers.NewUsersHandler(stores.Users),
		UserGroups:         handlers.NewUserGroupsHandler(stores.UserGroups, stores.Users, stores.Memberships),
		Conversations:      handlers.NewConversationsHandler(stores.Conversations, stores.Messages),
		ConversationGroups: handlers.NewConversationGroupsHandler(stores.ConversationGroups, stores.Conversations),
		Files:              handlers.NewFilesHandler(catalog),
		Settings:           handlers.NewSettingsHandler(settingsSvc),
		Chat:               handlers.NewChatHandler(engine, nil),
		Admin:              handlers.NewAdminHandler(gate, nil),
		Models:             handlers.NewModelsHandler(nil),
	})
	return &fixture{router: router, stores: stores, provider: provider, gate: gate}
}

func (f *fixture) do(t *testing.T, p datatypes.Principal, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if p.ID != "" {
		req.Header.Set("X-Test-Principal", p.ID)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) seedConversation(t *testing.T, owner datatypes.Principal, title string) *datatypes.Conversation {
	t.Helper()
	conv, err := f.stores.Conversations.Create(context.Background(), &datatypes.Conversation{
		Title:     title,
		OwnerID:   owner.ID,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return conv
}

// waitForMessages polls until the background persistence of a turn
// lands, or the deadline passes.
func (f *fixture) waitForMessages(t *testing.T, conversationID string, want int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		n, err := f.stores.Messages.CountByConversation(context.Background(), conversationID)
		require.NoError(t, err)
		if n >= want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d messages, have %d", want, n)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// --- Chat streaming ---

func TestChatStreamWireFormat(t *testing.T) {
	f := newFixture(t)
	conv := f.seedConversation(t, userP, "greetings")

	w := f.do(t, userP, http.MethodPost, "/v1/chat/stream", gin.H{
		"conversation_id": conv.ID,
		"message":         "say hello",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", w.Header().Get("Connection"))
	assert.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))

	body := w.Body.String()
	assert.Equal(t, "data: Hello\n\ndata: , world\n\ndata: [DONE]\n\n", body)

	f.waitForMessages(t, conv.ID, 2)
}

func TestChatStreamMidStreamError(t *testing.T) {
	f := newFixture(t)
	f.provider.chunks = []string{"partial"}
	f.provider.midStreamErr = &llm.Error{Kind: llm.KindRateLimit, Provider: "scripted", Msg: "slow down"}
	conv := f.seedConversation(t, userP, "doomed")

	w := f.do(t, userP, http.MethodPost, "/v1/chat/stream", gin.H{
		"conversation_id": conv.ID,
		"message":         "go",
	})

	require.Equal(t, http.StatusOK, w.Code, "headers are out before the failure")
	body := w.Body.String()
	assert.Contains(t, body, "data: partial\n\n")
	assert.Contains(t, body, "data: [ERROR: ")
	assert.NotContains(t, body, "[DONE]", "a failed stream never reports completion")

	// The user turn stays, the assistant side is never written.
	f.waitForMessages(t, conv.ID, 1)
	time.Sleep(50 * time.Millisecond)
	n, err := f.stores.Messages.CountByConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestChatStreamPreflightErrors(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, userP, http.MethodPost, "/v1/chat/stream", gin.H{
		"conversation_id": "nope",
		"message":         "hi",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json",
		"pre-flight failures are plain HTTP, not SSE")

	conv := f.seedConversation(t, userP, "private")
	w = f.do(t, otherP, http.MethodPost, "/v1/chat/stream", gin.H{
		"conversation_id": conv.ID,
		"message":         "hi",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, datatypes.Principal{}, http.MethodPost, "/v1/chat/stream", gin.H{
		"conversation_id": conv.ID,
		"message":         "hi",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChatStreamProviderRefusalIsPlainStatus(t *testing.T) {
	f := newFixture(t)
	f.provider.preflightErr = &llm.Error{Kind: llm.KindAuthentication, Provider: "scripted", Msg: "bad key"}
	conv := f.seedConversation(t, userP, "refused")

	w := f.do(t, userP, http.MethodPost, "/v1/chat/stream", gin.H{
		"conversation_id": conv.ID,
		"message":         "hi",
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code,
		"provider credential failure is the operator's problem, not the caller's")
}

// --- Sharing ---

func TestConversationSharingFlow(t *testing.T) {
	f := newFixture(t)
	conv := f.seedConversation(t, userP, "shared notes")

	// Before sharing, the other group member sees nothing.
	w := f.do(t, otherP, http.MethodGet, "/v1/conversations/"+conv.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, userP, http.MethodPut, "/v1/conversations/"+conv.ID+"/share", gin.H{
		"group_ids": []string{"g-alpha"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Shared readers get the transcript and can continue the thread,
	// but record mutations stay owner-only.
	w = f.do(t, otherP, http.MethodGet, "/v1/conversations/"+conv.ID+"/messages", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, otherP, http.MethodPut, "/v1/conversations/"+conv.ID, gin.H{"title": "hijacked"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = f.do(t, otherP, http.MethodPost, "/v1/chat/stream", gin.H{
		"conversation_id": conv.ID, "message": "hi",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "data: [DONE]\n\n")
	f.waitForMessages(t, conv.ID, 2)

	// The shared listing shows it; unsharing with [] hides it again.
	w = f.do(t, otherP, http.MethodGet, "/v1/conversations/shared", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), conv.ID)

	w = f.do(t, userP, http.MethodPut, "/v1/conversations/"+conv.ID+"/share", gin.H{
		"group_ids": []string{},
	})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, otherP, http.MethodGet, "/v1/conversations/"+conv.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// --- Users ---

func TestUserAdministration(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, userP, http.MethodPost, "/v1/users", gin.H{
		"name": "Eve", "email": "eve@example.com",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, rootP, http.MethodPost, "/v1/users", gin.H{
		"name": "Eve", "email": "eve@example.com", "role": "manager",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		User datatypes.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, datatypes.RoleManager, created.User.Role)
	assert.Empty(t, created.User.PasswordHash, "hashes never leave the server")

	// Listing is elevated-only.
	assert.Equal(t, http.StatusOK, f.do(t, managerP, http.MethodGet, "/v1/users", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, userP, http.MethodGet, "/v1/users", nil).Code)

	// A plain user cannot change roles, a manager can.
	target := created.User.ID
	w = f.do(t, userP, http.MethodPut, "/v1/users/"+target, gin.H{"role": "user"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = f.do(t, managerP, http.MethodPut, "/v1/users/"+target, gin.H{"role": "user"})
	assert.Equal(t, http.StatusOK, w.Code)

	// Deletion is root-only and never self.
	assert.Equal(t, http.StatusForbidden, f.do(t, managerP, http.MethodDelete, "/v1/users/"+target, nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, rootP, http.MethodDelete, "/v1/users/"+rootP.ID, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, rootP, http.MethodDelete, "/v1/users/"+target, nil).Code)
}

func TestAuthEndpointsRejectWrongMode(t *testing.T) {
	f := newFixture(t) // wired as sso mode

	w := f.do(t, datatypes.Principal{}, http.MethodPost, "/v1/auth/register", gin.H{
		"name": "x", "email": "x@example.com",
		"password_hash": strings.Repeat("a", 64),
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, datatypes.Principal{}, http.MethodPost, "/v1/auth/login", gin.H{
		"email": "x@example.com", "password_hash": strings.Repeat("a", 64),
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// --- Maintenance ---

func TestMaintenanceGate(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, rootP, http.MethodPut, "/v1/admin/maintenance", gin.H{"enabled": true})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, userP, http.MethodGet, "/v1/conversations", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "down for upgrades")

	// Root still passes, which is how the flag gets turned off again.
	assert.Equal(t, http.StatusOK, f.do(t, rootP, http.MethodGet, "/v1/conversations", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, userP, http.MethodPut, "/v1/admin/maintenance", gin.H{"enabled": false}).Code,
		"the toggle itself stays root-only")

	w = f.do(t, rootP, http.MethodPut, "/v1/admin/maintenance", gin.H{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusOK, f.do(t, userP, http.MethodGet, "/v1/conversations", nil).Code)
}

// --- Settings ---

func TestSettingsEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, userP, http.MethodGet, "/v1/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"theme":"light"`)

	w = f.do(t, userP, http.MethodPut, "/v1/settings", gin.H{"theme": "dark"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"theme":"dark"`)

	w = f.do(t, userP, http.MethodPut, "/v1/settings", gin.H{"language": "klingon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Another user's record is untouched.
	w = f.do(t, otherP, http.MethodGet, "/v1/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"theme":"light"`)
}

// --- Files ---

func multipartUpload(t *testing.T, fields map[string]string, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestFileEndpoints(t *testing.T) {
	f := newFixture(t)

	body, contentType := multipartUpload(t, map[string]string{"scope": "user_global"}, "notes.txt", "remember the milk")
	req := httptest.NewRequest(http.MethodPost, "/v1/files", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Test-Principal", userP.ID)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var uploaded struct {
		File datatypes.File `json:"file"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uploaded))
	id := uploaded.File.ID
	assert.Equal(t, "notes.txt", uploaded.File.Name)

	// The uploader can download it; another user cannot even see it.
	dl := f.do(t, userP, http.MethodGet, "/v1/files/"+id+"/download", nil)
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, "remember the milk", dl.Body.String())
	assert.Equal(t, http.StatusForbidden, f.do(t, otherP, http.MethodGet, "/v1/files/"+id, nil).Code)

	// Search by substring.
	list := f.do(t, userP, http.MethodGet, "/v1/files?q=notes", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), id)

	// System uploads are elevated-only.
	body, contentType = multipartUpload(t, map[string]string{"scope": "system"}, "handbook.txt", "rules")
	req = httptest.NewRequest(http.MethodPost, "/v1/files", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Test-Principal", userP.ID)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Promotion makes a system-scope copy readable by everyone.
	promoted := f.do(t, managerP, http.MethodPost, "/v1/files/"+id+"/promote", nil)
	require.Equal(t, http.StatusCreated, promoted.Code)
	var promo struct {
		File datatypes.File `json:"file"`
	}
	require.NoError(t, json.Unmarshal(promoted.Body.Bytes(), &promo))
	assert.Equal(t, http.StatusOK, f.do(t, otherP, http.MethodGet, "/v1/files/"+promo.File.ID, nil).Code)

	// Delete is uploader-or-elevated.
	assert.Equal(t, http.StatusForbidden, f.do(t, otherP, http.MethodDelete, "/v1/files/"+id, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, userP, http.MethodDelete, "/v1/files/"+id, nil).Code)
}

// --- User groups ---

func TestUserGroupEndpoints(t *testing.T) {
	f := newFixture(t)

	// Backing records for the membership writes.
	for _, p := range []datatypes.Principal{managerP, userP} {
		_, err := f.stores.Users.Create(context.Background(), &datatypes.User{
			ID: p.ID, Name: p.ID, Email: p.ID + "@example.com",
			Role: p.Role, Status: datatypes.StatusActive,
		})
		require.NoError(t, err)
	}

	assert.Equal(t, http.StatusForbidden,
		f.do(t, managerP, http.MethodPost, "/v1/user-groups", gin.H{"name": "ops"}).Code,
		"group creation is root-only")

	w := f.do(t, rootP, http.MethodPost, "/v1/user-groups", gin.H{"name": "ops"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Group datatypes.UserGroup `json:"group"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	gid := created.Group.ID

	// Appoint a manager, then let the manager add a member.
	w = f.do(t, rootP, http.MethodPost, "/v1/user-groups/"+gid+"/managers", gin.H{"user_id": managerP.ID})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, managerP, http.MethodPost, "/v1/user-groups/"+gid+"/members", gin.H{"user_id": userP.ID})
	require.Equal(t, http.StatusOK, w.Code)

	// Both sides of the index moved.
	u, err := f.stores.Users.MustGet(context.Background(), userP.ID)
	require.NoError(t, err)
	assert.Contains(t, u.GroupIDs, gid)

	// A plain member sees the group while active, loses it when disabled.
	assert.Contains(t, f.do(t, userP, http.MethodGet, "/v1/user-groups", nil).Body.String(), gid)
	w = f.do(t, managerP, http.MethodPut, "/v1/user-groups/"+gid+"/status", gin.H{"status": "disabled"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, f.do(t, userP, http.MethodGet, "/v1/user-groups", nil).Body.String(), gid)
	assert.Contains(t, f.do(t, managerP, http.MethodGet, "/v1/user-groups", nil).Body.String(), gid)

	// Appointing a plain user as manager is a request error.
	w = f.do(t, rootP, http.MethodPost, "/v1/user-groups/"+gid+"/managers", gin.H{"user_id": userP.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Deletion strips membership from the user record.
	assert.Equal(t, http.StatusOK, f.do(t, rootP, http.MethodDelete, "/v1/user-groups/"+gid, nil).Code)
	u, err = f.stores.Users.MustGet(context.Background(), userP.ID)
	require.NoError(t, err)
	assert.NotContains(t, u.GroupIDs, gid)
}

// --- Models ---

func TestModelsRequireLocalEngine(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do(t, userP, http.MethodGet, "/v1/models", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, userP, http.MethodPost, "/v1/models/pull", gin.H{"name": "llama3"}).Code,
		"pulls are gated on role before the engine check")
	assert.Equal(t, http.StatusBadRequest, f.do(t, managerP, http.MethodPost, "/v1/models/pull", gin.H{"name": "llama3"}).Code)
}

// --- Conversation folders ---

func TestConversationFolderEndpoints(t *testing.T) {
	f := newFixture(t)
	conv := f.seedConversation(t, userP, "to file away")

	w := f.do(t, userP, http.MethodPost, "/v1/conversation-groups", gin.H{"name": "research"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Group datatypes.ConversationGroup `json:"group"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	fid := created.Group.ID

	w = f.do(t, userP, http.MethodPost, "/v1/conversation-groups/"+fid+"/conversations",
		gin.H{"conversation_id": conv.ID})
	require.Equal(t, http.StatusOK, w.Code)

	got, err := f.stores.Conversations.MustGet(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, fid, got.GroupID)

	// Folders are private: another user's requests read as absent.
	assert.Equal(t, http.StatusNotFound,
		f.do(t, otherP, http.MethodPut, "/v1/conversation-groups/"+fid, gin.H{"name": "stolen"}).Code)

	// Deleting the folder keeps the conversation, clears the link.
	require.Equal(t, http.StatusOK, f.do(t, userP, http.MethodDelete, "/v1/conversation-groups/"+fid, nil).Code)
	got, err = f.stores.Conversations.MustGet(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Empty(t, got.GroupID)
}
