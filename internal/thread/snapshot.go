package thread

import "encoding/json"

// ReactionSummary is a resolved reaction on a canonical message.
// ResolvedUsers is the subset of UserIDs present in the directory at
// resolution time; unresolved ids stay in UserIDs but are dropped from
// ResolvedUsers.
type ReactionSummary struct {
	Emoji         string         `json:"emoji"`
	Count         int            `json:"count"`
	UserIDs       []string       `json:"user_ids"`
	ResolvedUsers []ResolvedUser `json:"resolved_users"`
}

// ResolvedUser is a directory hit for a reacting user.
type ResolvedUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CanonicalMessage is one message of a snapshot with mentions, reactions,
// and the author resolved.
type CanonicalMessage struct {
	ID          string            `json:"id"`
	Ts          string            `json:"ts"`
	ThreadTs    string            `json:"thread_ts"`
	Author      string            `json:"author"`
	RawAuthorID string            `json:"raw_author_id"`
	Text        string            `json:"text"`
	Reactions   []ReactionSummary `json:"reactions"`
	ReplyCount  int               `json:"reply_count"`
	Attachments json.RawMessage   `json:"attachments,omitempty"`
	Edited      bool              `json:"edited"`
}

// Snapshot is a canonical, human-readable capture of one thread. Created
// once per reconstruction and never mutated; a new capture produces a new
// snapshot that fully replaces the prior one.
type Snapshot struct {
	ChannelID    string             `json:"channel_id"`
	ThreadTs     string             `json:"thread_ts"`
	MessageCount int                `json:"message_count"`
	Messages     []CanonicalMessage `json:"messages"`
}
