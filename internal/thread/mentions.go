package thread

import (
	"regexp"

	"github.com/josephj/slack-copilot/internal/directory"
)

// Mention tokens come in two textual forms: <@U123|label> and bare
// <@U123>. Both resolve to @displayName; an unresolved id leaves the
// original token untouched.
var (
	mentionLabeled = regexp.MustCompile(`<@(U[A-Z0-9]+)\|[^>]+>`)
	mentionBare    = regexp.MustCompile(`<@(U[A-Z0-9]+)>`)
)

// resolveMentions replaces mention tokens in text with the best
// available display name from the directory.
func resolveMentions(text string, dir directory.Directory) string {
	replace := func(pattern *regexp.Regexp, s string) string {
		return pattern.ReplaceAllStringFunc(s, func(token string) string {
			id := pattern.FindStringSubmatch(token)[1]
			profile, ok := dir.Lookup(id)
			if !ok {
				return token
			}
			return "@" + profile.BestName()
		})
	}

	text = replace(mentionLabeled, text)
	text = replace(mentionBare, text)
	return text
}
