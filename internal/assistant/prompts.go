package assistant

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/tiktoken-go/tokenizer"

	"github.com/josephj/slack-copilot/internal/thread"
)

// contextTokenBudget caps how much serialized source content goes into a
// prompt. Oversized threads are truncated, keeping the head.
const contextTokenBudget = 6000

// SystemPrompt builds the system prompt for a source and phase,
// parameterized by the active language.
func SystemPrompt(kind SourceKind, initial bool, lang Language) string {
	if initial {
		if kind == SourceArticle {
			return fmt.Sprintf(
				"You are a reading assistant. Summarize the article the user provides. "+
					"Capture the core argument, key facts, and notable entities (people, organizations, products). "+
					"Answer in %s (%s).", lang.Name, lang.Code)
		}
		return fmt.Sprintf(
			"You are a Slack thread analyst. Summarize the conversation the user provides. "+
				"Weight importance by reactions: messages with more reactions matter more. "+
				"Call out decisions, open questions, and the people involved. "+
				"Answer in %s (%s).", lang.Name, lang.Code)
	}
	return fmt.Sprintf(
		"You are answering follow-up questions about content already discussed. "+
			"Be concise and stay strictly within that context. "+
			"If the user asks for a translation, translate faithfully and add nothing else. "+
			"Answer in %s (%s).", lang.Name, lang.Code)
}

// InitialUserPrompt serializes a source for the first analysis request.
func InitialUserPrompt(src *Source) string {
	switch src.Kind {
	case SourceArticle:
		return fmt.Sprintf("Title: %s\nSite: %s\nByline: %s\n\n%s",
			src.Article.Title, src.Article.SiteName, src.Article.Byline,
			truncateToBudget(src.Article.Content))
	default:
		return truncateToBudget(FormatThreadForLLM(src.Thread))
	}
}

// llmMessage is the reduced message shape the assistant sees.
type llmMessage struct {
	User      string        `json:"user"`
	Content   string        `json:"content"`
	Timestamp string        `json:"timestamp"`
	Reactions []llmReaction `json:"reactions"`
}

type llmReaction struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// FormatThreadForLLM renders a snapshot as indented JSON with timestamps
// in ISO-8601 and reactions reduced to emoji+count.
func FormatThreadForLLM(snap *thread.Snapshot) string {
	messages := make([]llmMessage, 0, len(snap.Messages))
	for _, msg := range snap.Messages {
		m := llmMessage{
			User:      msg.Author,
			Content:   msg.Text,
			Timestamp: tsToISO(msg.Ts),
			Reactions: []llmReaction{},
		}
		for _, reaction := range msg.Reactions {
			m.Reactions = append(m.Reactions, llmReaction{Emoji: reaction.Emoji, Count: reaction.Count})
		}
		messages = append(messages, m)
	}

	payload := struct {
		Channel  string       `json:"channel"`
		Messages []llmMessage `json:"messages"`
	}{Channel: snap.ChannelID, Messages: messages}

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return ""
	}
	return string(out)
}

// tsToISO converts a Slack seconds.micros timestamp to ISO-8601.
func tsToISO(ts string) string {
	seconds, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return ts
	}
	sec := int64(seconds)
	nsec := int64((seconds - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC().Format(time.RFC3339)
}

// truncateToBudget trims text to the context token budget using the
// cl100k encoding. On tokenizer failure the text passes through
// untrimmed rather than blocking the analysis.
func truncateToBudget(text string) string {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return text
	}
	ids, _, err := codec.Encode(text)
	if err != nil || len(ids) <= contextTokenBudget {
		return text
	}
	truncated, err := codec.Decode(ids[:contextTokenBudget])
	if err != nil {
		return text
	}
	return truncated
}

// LocalizedStreamError renders the visible error turn appended when a
// stream fails.
func LocalizedStreamError(lang Language, err error) string {
	return fmt.Sprintf("[%s] The assistant request failed: %v", lang.Code, err)
}
