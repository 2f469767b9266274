// Package video turns recipe video links into privacy-enhanced embed URLs.
package video

import (
	"errors"
	"log/slog"
	"regexp"
	"strings"
)

const (
	// EmbedHost serves players that do not set tracking cookies.
	EmbedHost = "www.youtube-nocookie.com"

	relatedParam = "rel=0"
	embedMarker  = "embed/"
)

var (
	// ErrEmptyURL is returned for an empty input.
	ErrEmptyURL = errors.New("video: empty url")
	// ErrNoVideoID is returned when no 11-character video id can be found.
	ErrNoVideoID = errors.New("video: no video id in url")
)

// idPattern covers watch links (also behind the googleusercontent proxy),
// youtu.be short links and the /v/, /e/, /embed/, /shorts/, /live/ and
// /<channel>/<...>/ path forms.
var idPattern = regexp.MustCompile(
	`(?:youtube\.com/(?:[^/\n\s]+/\S+/|(?:v|e(?:mbed)?|shorts|live)/|.*[?&]v=)|youtu\.be/)([a-zA-Z0-9_-]{11})`,
)

// ExtractID returns the video id found in raw.
func ExtractID(raw string) (string, bool) {
	m := idPattern.FindStringSubmatch(raw)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// EmbedURL converts raw into an embeddable URL with related videos disabled.
// Links that are already embeddable only get the rel=0 flag ensured, so the
// conversion is idempotent.
func EmbedURL(raw string) (string, error) {
	if raw == "" {
		return "", ErrEmptyURL
	}
	if strings.Contains(raw, embedMarker) {
		if strings.Contains(raw, "?"+relatedParam) || strings.Contains(raw, "&"+relatedParam) {
			return raw, nil
		}
		sep := "?"
		if strings.Contains(raw, "?") {
			sep = "&"
		}
		return raw + sep + relatedParam, nil
	}
	id, ok := ExtractID(raw)
	if !ok {
		return "", ErrNoVideoID
	}
	return "https://" + EmbedHost + "/embed/" + id + "?" + relatedParam, nil
}

// Normalizer wraps EmbedURL with the "empty string means no video" contract
// used by renderers.
type Normalizer struct {
	log *slog.Logger
}

// NewNormalizer returns a Normalizer that reports unparseable links on logger.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{log: logger.With("component", "video")}
}

// Normalize returns the embed URL for raw, or "" when no player can be shown.
func (n *Normalizer) Normalize(raw string) string {
	embed, err := EmbedURL(raw)
	if err != nil {
		if errors.Is(err, ErrNoVideoID) {
			n.log.Warn("cannot extract video id", "url", raw)
		}
		return ""
	}
	return embed
}
