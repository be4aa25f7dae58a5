package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose_WithRecipients(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msg, err := compose(strings.NewReader("disk almost full\n"), composeOptions{
		subject:    "alert",
		recipients: []string{"ops@example.com", "dev@example.com"},
		user:       "root",
		override:   "ignored@example.com",
		now:        now,
	})
	require.NoError(t, err)

	assert.Equal(t, "root", msg.From)
	assert.Equal(t, "ops@example.com, dev@example.com", msg.To)
	assert.Equal(t, "alert", msg.Subject)
	assert.Equal(t, now, msg.Date)
	assert.Regexp(t, `^<[0-9a-f-]{36}@.+>$`, msg.MessageID)
	require.NotNil(t, msg.Body)
	assert.Equal(t, "text/plain", msg.Body.ContentType)
	assert.Equal(t, "disk almost full\n", string(msg.Body.Content))
}

func TestCompose_FullMessage(t *testing.T) {
	t.Parallel()

	raw := "From: app@example.com\r\nTo: bob@example.com\r\nSubject: report\r\n\r\nnumbers\r\n"

	msg, err := compose(strings.NewReader(raw), composeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "app@example.com", msg.From)
	assert.Equal(t, "bob@example.com", msg.To)
	assert.Equal(t, "report", msg.Subject)
}

func TestCompose_RecipientOverride(t *testing.T) {
	t.Parallel()

	raw := "From: app@example.com\r\nTo: bob@example.com\r\nSubject: report\r\n\r\nnumbers\r\n"

	msg, err := compose(strings.NewReader(raw), composeOptions{override: "qa@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "qa@example.com", msg.To)
}

func TestMessageID_Unique(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, messageID(), messageID())
}
