package navwatch

import (
	"regexp"
	"strings"
)

// Thread timestamps appear in URLs in two shapes: a compact digit form
// (p1733882111623399) and an already-dotted form (1733882111.623399).
var (
	compactTs = regexp.MustCompile(`/p(\d{10})(\d{6})$`)
	dottedTs  = regexp.MustCompile(`/(\d+\.\d+)$`)
)

// ExtractThreadTs pulls a thread timestamp out of a URL. The compact form
// is converted by reinserting the decimal point 6 digits from the end.
func ExtractThreadTs(url string) (string, bool) {
	if m := compactTs.FindStringSubmatch(url); m != nil {
		return m[1] + "." + m[2], true
	}
	if m := dottedTs.FindStringSubmatch(url); m != nil {
		return m[1], true
	}
	return "", false
}

// ExtractChannelID pulls the channel id out of an archives URL.
func ExtractChannelID(url string) (string, bool) {
	_, rest, found := strings.Cut(url, "/archives/")
	if !found {
		return "", false
	}
	channel, _, _ := strings.Cut(rest, "/")
	if channel == "" {
		return "", false
	}
	return channel, true
}
