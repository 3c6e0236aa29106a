package relay

import (
	"time"

	"github.com/josephj/slack-copilot/internal/article"
	"github.com/josephj/slack-copilot/internal/slack"
	"github.com/josephj/slack-copilot/internal/thread"
)

// Type is the discriminant carried by every relay message. Receivers
// distinguish relevant messages purely by type and ignore the rest.
type Type string

const (
	TypeOrigin             Type = "ORIGIN"
	TypeFetchThreadData    Type = "FETCH_THREAD_DATA"
	TypeThreadDataResult   Type = "THREAD_DATA_RESULT"
	TypeSlackThreadData    Type = "SLACK_THREAD_DATA"
	TypeCaptureArticle     Type = "CAPTURE_ARTICLE"
	TypeArticleDataResult  Type = "ARTICLE_DATA_RESULT"
	TypeOpenSidePanel      Type = "OPEN_SIDE_PANEL"
	TypeOpenInWebChanged   Type = "OPEN_IN_WEB_CHANGED"
	TypeGetCurrentPageType Type = "GET_CURRENT_PAGE_TYPE"
	TypeCurrentPageType    Type = "CURRENT_PAGE_TYPE"
)

// Context names one of the four isolated execution contexts.
type Context string

const (
	ContextPage       Context = "page"
	ContextContent    Context = "content"
	ContextBackground Context = "background"
	ContextPanel      Context = "panel"
)

// Message is a typed relay envelope. CorrelationID is empty for
// fire-and-forget publishes; requests carry a unique id that the reply
// echoes back.
type Message struct {
	Type          Type
	From          Context
	CorrelationID string
	Payload       any
}

// Payload types, one per catalogue entry.

// Origin announces the page origin after injection.
type Origin struct {
	Origin string
}

// FetchThreadData asks the page context to reconstruct a thread.
type FetchThreadData struct {
	Channel  string
	ThreadTs string
}

// ThreadDataResult delivers a finished snapshot to the panel.
type ThreadDataResult struct {
	Snapshot *thread.Snapshot
	URL      string
}

// SlackThreadData republishes an intercepted conversations.replies
// payload together with the credential in effect when it was captured.
type SlackThreadData struct {
	URL       string
	Messages  []slack.RawMessage
	Token     string
	Timestamp time.Time
}

// CaptureArticle asks the content context to extract the current page.
type CaptureArticle struct{}

// ArticleDataResult delivers extracted article content to the panel.
type ArticleDataResult struct {
	Article article.Data
}

// OpenSidePanel asks the background context to open the panel.
type OpenSidePanel struct {
	LinkURL string
}

// OpenInWebChanged fans a preference flip out to interested contexts.
type OpenInWebChanged struct {
	Value bool
}

// GetCurrentPageType asks the background context what kind of page is
// active. Answered with CurrentPageType via the correlation id.
type GetCurrentPageType struct{}

// CurrentPageType is the reply to GetCurrentPageType.
type CurrentPageType struct {
	IsSlack bool
	URL     string
}
