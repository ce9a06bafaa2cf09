// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes holds the entities and request shapes shared across the
// gateway. Entities serialize to the document store with these JSON tags, so
// renaming a tag is a data migration.
package datatypes

import "time"

// Roles, ordered by privilege.
const (
	RoleUser    = "user"
	RoleManager = "manager"
	RoleRoot    = "root"
)

// Account and group statuses.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// File scopes.
const (
	ScopeSystem      = "system"
	ScopeUserGlobal  = "user_global"
	ScopeUserProject = "user_project"
)

// Message roles on the chat transcript.
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// File processing phases.
const (
	ProcessingPending   = "pending"
	ProcessingRunning   = "running"
	ProcessingCompleted = "completed"
	ProcessingFailed    = "failed"
)

// ValidRole reports whether s names a known role.
func ValidRole(s string) bool {
	return s == RoleUser || s == RoleManager || s == RoleRoot
}

// Principal is the authenticated actor of a request. Group membership is
// resolved fresh at authentication time and is authoritative for the
// request.
type Principal struct {
	ID       string   `json:"id"`
	Role     string   `json:"role"`
	GroupIDs []string `json:"group_ids"`
}

// IsRoot reports whether the principal holds the root role.
func (p Principal) IsRoot() bool { return p.Role == RoleRoot }

// IsElevated reports manager-or-root privilege.
func (p Principal) IsElevated() bool { return p.Role == RoleManager || p.Role == RoleRoot }

// InGroup reports membership in the given user group.
func (p Principal) InGroup(groupID string) bool {
	for _, id := range p.GroupIDs {
		if id == groupID {
			return true
		}
	}
	return false
}

// User is an account record. PasswordHash holds the salted adaptive hash of
// the client-side SHA-256 digest and is only meaningful in local auth mode.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash,omitempty"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	GroupIDs     []string  `json:"group_ids"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Sanitized returns a copy safe to serialize to clients.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// Principal derives the request principal from the account record.
func (u User) Principal() Principal {
	return Principal{ID: u.ID, Role: u.Role, GroupIDs: u.GroupIDs}
}

// UserGroup is a sharing group. member_ids and User.group_ids are a
// denormalized pair; the user-group service maintains both sides.
type UserGroup struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	ManagerIDs []string  `json:"manager_ids"`
	MemberIDs  []string  `json:"member_ids"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasManager reports whether userID manages this group.
func (g UserGroup) HasManager(userID string) bool {
	for _, id := range g.ManagerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// HasMember reports whether userID belongs to this group.
func (g UserGroup) HasMember(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Conversation is a chat thread.
type Conversation struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	OwnerID            string    `json:"owner_id"`
	GroupID            string    `json:"group_id,omitempty"` // sidebar folder, not a UserGroup
	SharedWithGroupIDs []string  `json:"shared_with_group_ids"`
	MessageCount       int       `json:"message_count"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// IsShared is derived: a conversation is shared iff at least one group has
// read access.
func (c Conversation) IsShared() bool { return len(c.SharedWithGroupIDs) > 0 }

// ConversationGroup is a sidebar folder owned by one user. Distinct from
// UserGroup.
type ConversationGroup struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	OwnerID         string    `json:"owner_id"`
	ConversationIDs []string  `json:"conversation_ids"`
	CreatedAt       time.Time `json:"created_at"`
}

// PromptTurn is one {role, content} pair of the context window.
type PromptTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMFullPrompt is the full context record stored with each turn so what
// the model saw can always be audited retroactively.
type LLMFullPrompt struct {
	System         string       `json:"system"`
	Context        []PromptTurn `json:"context"`
	CurrentMessage string       `json:"current_message"`
}

// LLMStats is the per-generation statistics record persisted on assistant
// messages.
type LLMStats struct {
	Model            string  `json:"model"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	TotalDurationS   float64 `json:"total_duration_s"`
	TokensPerSecond  float64 `json:"tokens_per_second"`
}

// Message is one turn entry. Messages are immutable after creation;
// chronological order within a conversation is created_at, ties broken by
// id.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	LLMFullPrompt  *LLMFullPrompt `json:"llm_full_prompt,omitempty"`
	LLMRawResponse string         `json:"llm_raw_response,omitempty"`
	LLMStats       *LLMStats      `json:"llm_stats,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// FileChecksums carries the content digests computed at upload time.
// SimHash is a 64-bit locality-sensitive fingerprint encoded as 16 hex
// characters.
type FileChecksums struct {
	MD5     string `json:"md5"`
	SHA256  string `json:"sha256"`
	SimHash string `json:"simhash"`
}

// FileProcessing tracks the analysis pipeline state for a file.
type FileProcessing struct {
	Status            string   `json:"status"`
	ActiveVersion     string   `json:"active_version,omitempty"`
	AvailableVersions []string `json:"available_versions,omitempty"`
}

// File is the catalog record for an uploaded object. ObjectPath is the base
// prefix in the object store; deleting the record deletes every object
// under it.
type File struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Size       int64          `json:"size"`
	Type       string         `json:"type"`
	ObjectPath string         `json:"object_path"`
	Scope      string         `json:"scope"`
	ProjectID  string         `json:"project_id,omitempty"`
	Checksums  FileChecksums  `json:"checksums"`
	Processing FileProcessing `json:"processing_status"`
	UploadedBy string         `json:"uploaded_by,omitempty"` // empty for system scope
	UploadedAt time.Time      `json:"uploaded_at"`

	Promoted     bool       `json:"promoted"`
	PromotedAt   *time.Time `json:"promoted_at,omitempty"`
	PromotedBy   string     `json:"promoted_by,omitempty"`
	PromotedFrom string     `json:"promoted_from,omitempty"`
}

// Settings enumerations and defaults.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"

	DefaultTheme    = ThemeLight
	DefaultLanguage = "en"
)

// Languages supported by the settings record.
var SupportedLanguages = []string{"en", "fr", "es", "de"}

// UserSettings is the per-user preference record, keyed by user id. All
// fields have defaults; updates are partial merges.
type UserSettings struct {
	UserID              string    `json:"user_id"`
	PromptCustomization string    `json:"prompt_customization"`
	Theme               string    `json:"theme"`
	Language            string    `json:"language"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// DefaultSettings returns the defaults for a user with no stored record.
func DefaultSettings(userID string) UserSettings {
	return UserSettings{
		UserID:              userID,
		PromptCustomization: "",
		Theme:               DefaultTheme,
		Language:            DefaultLanguage,
	}
}

// ValidTheme reports whether s is a recognized theme.
func ValidTheme(s string) bool { return s == ThemeLight || s == ThemeDark }

// ValidLanguage reports whether s is a recognized language code.
func ValidLanguage(s string) bool {
	for _, l := range SupportedLanguages {
		if s == l {
			return true
		}
	}
	return false
}
