package slack

import (
	"encoding/json"
	"fmt"
)

// RawMessage is a message as returned by conversations.replies, before
// any mention or reaction resolution.
type RawMessage struct {
	ClientMsgID     string          `json:"client_msg_id"`
	Ts              string          `json:"ts"`
	ThreadTs        string          `json:"thread_ts"`
	User            string          `json:"user"`
	Text            string          `json:"text"`
	ReplyCount      int             `json:"reply_count"`
	ReplyUsersCount int             `json:"reply_users_count"`
	LatestReply     string          `json:"latest_reply"`
	Blocks          json.RawMessage `json:"blocks,omitempty"`
	Files           json.RawMessage `json:"files,omitempty"`
	Reactions       []RawReaction   `json:"reactions,omitempty"`
	Edited          *EditMarker     `json:"edited,omitempty"`
}

// RawReaction is a reaction entry on a raw message.
type RawReaction struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// EditMarker records that a message was edited after posting.
type EditMarker struct {
	User string `json:"user"`
	Ts   string `json:"ts"`
}

// Member is a workspace user as returned by users.list.
type Member struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	RealName string        `json:"real_name"`
	Profile  MemberProfile `json:"profile"`
}

// MemberProfile carries the profile fields we resolve names from.
type MemberProfile struct {
	Title       string `json:"title"`
	DisplayName string `json:"display_name"`
}

// repliesResponse is the wire shape of conversations.replies.
type repliesResponse struct {
	OK       bool         `json:"ok"`
	Messages []RawMessage `json:"messages"`
	Error    string       `json:"error,omitempty"`
}

// membersResponse is the wire shape of users.list.
type membersResponse struct {
	OK      bool     `json:"ok"`
	Members []Member `json:"members"`
	Error   string   `json:"error,omitempty"`
}

// APIError is an ok:false response from the Slack API. Reason carries
// the upstream error string verbatim.
type APIError struct {
	Endpoint string
	Reason   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack api error (%s): %s", e.Endpoint, e.Reason)
}
