package slack

import (
	"fmt"
	"math/rand"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Fingerprint is the set of query parameters Slack's private API expects
// on every call: a randomized request id, the client session id, the team
// route, a version timestamp, and fixed build-type fields.
type Fingerprint struct {
	RequestID string
	SessionID string
	Route     string
	VersionTs string
}

// FingerprintSource mints fingerprints. Clock and entropy are injected so
// construction is deterministic under test; the defaults never produce
// two colliding request ids for concurrent calls.
type FingerprintSource struct {
	now func() time.Time

	// mu guards rand; one source is shared by every goroutine that
	// calls through the client.
	mu   sync.Mutex
	rand *rand.Rand

	// SessionID is sourced from the client session cookie or page state.
	SessionID string
	// Route is the team id.
	Route string
	// VersionTs overrides the version timestamp; when empty the current
	// unix second is used.
	VersionTs string
}

// NewFingerprintSource creates a source with the given session id and
// team route.
func NewFingerprintSource(sessionID, route string) *FingerprintSource {
	return &FingerprintSource{
		now:       time.Now,
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
		SessionID: sessionID,
		Route:     route,
	}
}

// WithClock replaces the clock. Test seam.
func (s *FingerprintSource) WithClock(now func() time.Time) *FingerprintSource {
	s.now = now
	return s
}

// WithSeed replaces the entropy source with a deterministic one.
func (s *FingerprintSource) WithSeed(seed int64) *FingerprintSource {
	s.mu.Lock()
	s.rand = rand.New(rand.NewSource(seed))
	s.mu.Unlock()
	return s
}

// Next mints a fresh fingerprint. The request id mirrors the web client's
// format: a hex nonce, the millisecond timestamp, and a 0-999 suffix.
func (s *FingerprintSource) Next() Fingerprint {
	now := s.now()
	versionTs := s.VersionTs
	if versionTs == "" {
		versionTs = strconv.FormatInt(now.Unix(), 10)
	}
	s.mu.Lock()
	nonce, suffix := s.rand.Uint64(), s.rand.Intn(1000)
	s.mu.Unlock()
	return Fingerprint{
		RequestID: fmt.Sprintf("%x-%d.%d", nonce, now.UnixMilli(), suffix),
		SessionID: s.SessionID,
		Route:     s.Route,
		VersionTs: versionTs,
	}
}

// Query renders the fingerprint (plus the fixed build-type fields) as the
// query string the origin service expects.
func (fp Fingerprint) Query() url.Values {
	return url.Values{
		"_x_id":                  {fp.RequestID},
		"_x_csid":                {fp.SessionID},
		"slack_route":            {fp.Route},
		"_x_version_ts":          {fp.VersionTs},
		"_x_frontend_build_type": {"current"},
		"_x_desktop_ia":          {"4"},
		"_x_gantry":              {"true"},
		"fp":                     {"15"},
		"_x_num_retries":         {"0"},
	}
}
