package agents

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"notifier/pkg/proto"
)

// Character limits for channels with short bodies.
const (
	SMSMaxChars  = 160
	PushMaxChars = 178
)

const ellipsis = "…"

//nolint:gochecknoglobals
var contentLimits = map[string]int{
	proto.ChannelSMS:  SMSMaxChars,
	proto.ChannelPush: PushMaxChars,
}

// FormatContent prepares a body for channel. Content is NFC-normalized; on
// length-limited channels whitespace is collapsed and the text is cut to the
// limit with a trailing ellipsis.
func FormatContent(channel, content string) string {
	s := norm.NFC.String(content)
	limit, ok := contentLimits[channel]
	if !ok {
		return s
	}
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:limit-1]), " ") + ellipsis
}
