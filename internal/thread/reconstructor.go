// Package thread turns raw intercepted or fetched Slack messages into a
// canonical, mention-resolved, reaction-annotated thread snapshot.
package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/josephj/slack-copilot/internal/credential"
	"github.com/josephj/slack-copilot/internal/directory"
	"github.com/josephj/slack-copilot/internal/slack"
)

// ErrMissingCredential is returned when reconstruction is requested
// before a credential has been captured from page traffic.
var ErrMissingCredential = errors.New("no slack credential captured yet")

// Fetcher is the slice of the Slack client the reconstructor needs.
type Fetcher interface {
	ConversationReplies(ctx context.Context, token, channel, threadTs string) ([]slack.RawMessage, error)
}

// Resolver serves the user directory.
type Resolver interface {
	Resolve(ctx context.Context, token string) (directory.Directory, error)
}

// Reconstructor builds canonical thread snapshots.
type Reconstructor struct {
	creds     *credential.Store
	directory Resolver
	fetcher   Fetcher
	logger    *slog.Logger
}

// NewReconstructor wires a reconstructor to its collaborators.
func NewReconstructor(creds *credential.Store, dir Resolver, fetcher Fetcher, logger *slog.Logger) *Reconstructor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconstructor{
		creds:     creds,
		directory: dir,
		fetcher:   fetcher,
		logger:    logger,
	}
}

// Reconstruct fetches the thread rooted at threadTs in channelID and
// resolves it into a new snapshot. Any failure mid-fetch aborts the whole
// reconstruction; no partial snapshot is produced.
func (r *Reconstructor) Reconstruct(ctx context.Context, channelID, threadTs string) (*Snapshot, error) {
	cred, ok := r.creds.Get()
	if !ok {
		r.logger.Warn("reconstruction requested without a captured credential",
			slog.String("channel", channelID),
			slog.String("thread_ts", threadTs),
		)
		return nil, ErrMissingCredential
	}

	dir, err := r.directory.Resolve(ctx, cred.Token)
	if err != nil {
		return nil, fmt.Errorf("resolve user directory: %w", err)
	}

	raw, err := r.fetcher.ConversationReplies(ctx, cred.Token, channelID, threadTs)
	if err != nil {
		return nil, fmt.Errorf("fetch thread %s/%s: %w", channelID, threadTs, err)
	}

	return BuildSnapshot(channelID, threadTs, raw, dir), nil
}

// BuildSnapshot resolves raw messages against the directory. Exposed
// separately so intercepted conversations.replies payloads can reuse the
// same resolution without a second fetch.
func BuildSnapshot(channelID, threadTs string, raw []slack.RawMessage, dir directory.Directory) *Snapshot {
	messages := make([]CanonicalMessage, 0, len(raw))
	for _, msg := range raw {
		messages = append(messages, canonicalize(msg, dir))
	}
	return &Snapshot{
		ChannelID:    channelID,
		ThreadTs:     threadTs,
		MessageCount: len(messages),
		Messages:     messages,
	}
}

func canonicalize(msg slack.RawMessage, dir directory.Directory) CanonicalMessage {
	author := msg.User
	if profile, ok := dir.Lookup(msg.User); ok {
		author = profile.BestName()
	}

	return CanonicalMessage{
		ID:          msg.ClientMsgID,
		Ts:          msg.Ts,
		ThreadTs:    msg.ThreadTs,
		Author:      author,
		RawAuthorID: msg.User,
		Text:        resolveMentions(msg.Text, dir),
		Reactions:   summarizeReactions(msg.Reactions, dir),
		ReplyCount:  msg.ReplyCount,
		Attachments: msg.Files,
		Edited:      msg.Edited != nil,
	}
}

func summarizeReactions(raw []slack.RawReaction, dir directory.Directory) []ReactionSummary {
	if len(raw) == 0 {
		return nil
	}

	summaries := make([]ReactionSummary, 0, len(raw))
	for _, reaction := range raw {
		summary := ReactionSummary{
			Emoji:   reaction.Name,
			Count:   reaction.Count,
			UserIDs: reaction.Users,
		}
		for _, id := range reaction.Users {
			if profile, ok := dir.Lookup(id); ok {
				summary.ResolvedUsers = append(summary.ResolvedUsers, ResolvedUser{
					ID:   profile.ID,
					Name: profile.BestName(),
				})
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries
}
