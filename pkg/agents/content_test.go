package agents

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"notifier/pkg/proto"
)

func TestFormatContentNormalizes(t *testing.T) {
	decomposed := "Cafe\u0301 opens"
	assert.Equal(t, "Caf\u00e9 opens", FormatContent(proto.ChannelEmail, decomposed))
}

func TestFormatContentKeepsEmailLayout(t *testing.T) {
	body := "Hello,\n\nYour weekly digest is ready."
	assert.Equal(t, body, FormatContent(proto.ChannelEmail, body))
}

func TestFormatContentCollapsesShortChannels(t *testing.T) {
	assert.Equal(t, "Sale ends today", FormatContent(proto.ChannelSMS, "  Sale\n ends   today "))
}

func TestFormatContentTruncatesSMS(t *testing.T) {
	got := FormatContent(proto.ChannelSMS, strings.Repeat("a", 200))
	assert.Equal(t, SMSMaxChars, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, ellipsis))

	exact := strings.Repeat("b", SMSMaxChars)
	assert.Equal(t, exact, FormatContent(proto.ChannelSMS, exact))
}

func TestFormatContentTruncatesPushByRunes(t *testing.T) {
	got := FormatContent(proto.ChannelPush, strings.Repeat("é", 300))
	assert.Equal(t, PushMaxChars, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}
