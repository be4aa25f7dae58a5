package message

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlainTextMessage(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		"From: Alice <alice@example.com>",
		"To: bob@example.com, carol@example.com",
		"Cc: dave@example.com",
		"Bcc: erin@example.com",
		"Reply-To: replies@example.com",
		"Subject: Hello there",
		"Message-Id: <abc@example.com>",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Hello, World!",
	}, "\r\n")

	msg, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "Alice <alice@example.com>", msg.From)
	assert.Equal(t, "bob@example.com, carol@example.com", msg.To)
	assert.Equal(t, "dave@example.com", msg.Cc)
	assert.Equal(t, "erin@example.com", msg.Bcc)
	assert.Equal(t, "replies@example.com", msg.ReplyTo)
	assert.Equal(t, "Hello there", msg.Subject)
	assert.Equal(t, "<abc@example.com>", msg.MessageID)

	require.NotNil(t, msg.Body)
	assert.False(t, msg.Body.IsMultipart())
	assert.Equal(t, "text/plain", msg.Body.ContentType)
	assert.Equal(t, "Hello, World!", string(msg.Body.Content))
}

func TestParseNoContentTypeDefaultsToPlain(t *testing.T) {
	t.Parallel()

	msg, err := Parse([]byte("To: bob@example.com\r\n\r\nbare body\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "", msg.From)
	assert.Equal(t, "text/plain", msg.Body.ContentType)
	assert.Equal(t, "bare body\r\n", string(msg.Body.Content))
}

func TestParseEncodedSubject(t *testing.T) {
	t.Parallel()

	raw := "To: bob@example.com\r\nSubject: =?utf-8?q?Caf=C3=A9_menu?=\r\n\r\nbody"
	msg, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "Café menu", msg.Subject)
}

func TestParseMultipartWithAttachment(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: Report",
		"Content-Type: multipart/mixed; boundary=outer",
		"",
		"--outer",
		"Content-Type: multipart/alternative; boundary=inner",
		"",
		"--inner",
		"Content-Type: text/plain",
		"",
		"Plain text part",
		"--inner",
		"Content-Type: text/html",
		"",
		"<p>HTML part</p>",
		"--inner--",
		"--outer",
		"Content-Type: application/pdf",
		"Content-Disposition: attachment; filename=\"report.pdf\"",
		"Content-Transfer-Encoding: base64",
		"",
		"SGVsbG8gV29y",
		"bGQ=",
		"--outer",
		"Content-Type: image/png; name=\"dot.png\"",
		"Content-Transfer-Encoding: base64",
		"",
		"iVBORw==",
		"--outer--",
	}, "\r\n")

	msg, err := Parse([]byte(raw))
	require.NoError(t, err)
	require.True(t, msg.Body.IsMultipart())

	leaves := msg.Body.Leaves()
	require.Len(t, leaves, 4)

	assert.Equal(t, "text/plain", leaves[0].ContentType)
	assert.Equal(t, "Plain text part", string(leaves[0].Content))
	assert.Equal(t, "text/html", leaves[1].ContentType)
	assert.Equal(t, "<p>HTML part</p>", string(leaves[1].Content))

	assert.Equal(t, "application/pdf", leaves[2].ContentType)
	assert.Equal(t, "attachment", leaves[2].Disposition)
	assert.Equal(t, "report.pdf", leaves[2].Filename)
	assert.Equal(t, "Hello World", string(leaves[2].Content))

	assert.Equal(t, "dot.png", leaves[3].Filename)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, leaves[3].Content)
}

func TestParseUnknownCharsetKeepsRawBytes(t *testing.T) {
	t.Parallel()

	raw := "To: bob@example.com\r\nContent-Type: text/plain; charset=x-made-up\r\n\r\nraw text"
	msg, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "raw text", string(msg.Body.Content))
}

func TestParseMalformedHeader(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("this is not\r\na header block"))
	assert.Error(t, err)
}

func TestSerializeRoundTripPlainText(t *testing.T) {
	t.Parallel()

	bodies := []string{
		"Hello, World!",
		"  leading and trailing spaces  \n\ttabbed line\n\n",
		"line one\r\nline two\r\n",
		"ünïcödé ✓",
	}

	for _, body := range bodies {
		in := &Message{
			From:    "Alice <alice@example.com>",
			To:      "bob@example.com",
			Subject: "Round trip",
			Body:    NewText(body),
		}

		wire, err := Serialize(in)
		require.NoError(t, err)

		out, err := Parse([]byte(wire))
		require.NoError(t, err)
		assert.Equal(t, body, string(out.Body.Content), "body %q", body)
		assert.Equal(t, in.From, out.From)
		assert.Equal(t, in.To, out.To)
		assert.Equal(t, in.Subject, out.Subject)
	}
}

func TestSerializeRoundTripMultipart(t *testing.T) {
	t.Parallel()

	pdf := []byte("%PDF-1.4\x00\x01\x02binary")
	in := &Message{
		From:      "sender@example.com",
		To:        "to@example.com",
		Cc:        "cc@example.com",
		Bcc:       "bcc@example.com",
		ReplyTo:   "reply@example.com",
		Subject:   "Ünïcode subject",
		MessageID: "<id-1@example.com>",
		Date:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Body: NewMultipart("mixed",
			NewMultipart("alternative",
				NewText("plain body"),
				&Part{ContentType: "text/html", Content: []byte("<b>html</b>")},
			),
			&Part{ContentType: "application/pdf", Content: pdf},
			&Part{ContentType: "image/png", Filename: "logo.png", Content: []byte{0x89, 'P', 'N', 'G'}},
		),
	}

	wire, err := Serialize(in)
	require.NoError(t, err)
	assert.Contains(t, wire, "MIME-Version: 1.0")

	out, err := Parse([]byte(wire))
	require.NoError(t, err)

	assert.Equal(t, in.Cc, out.Cc)
	assert.Equal(t, in.Bcc, out.Bcc)
	assert.Equal(t, in.ReplyTo, out.ReplyTo)
	assert.Equal(t, in.Subject, out.Subject)
	assert.Equal(t, in.MessageID, out.MessageID)
	assert.True(t, in.Date.Equal(out.Date))

	leaves := out.Body.Leaves()
	require.Len(t, leaves, 4)
	assert.Equal(t, "plain body", string(leaves[0].Content))
	assert.Equal(t, "<b>html</b>", string(leaves[1].Content))
	assert.Equal(t, "application/pdf", leaves[2].ContentType)
	assert.Equal(t, "", leaves[2].Filename)
	assert.Equal(t, pdf, leaves[2].Content)
	assert.Equal(t, "logo.png", leaves[3].Filename)
	assert.Equal(t, "attachment", leaves[3].Disposition)
}

func TestSerializeIsDeterministicForSignedForm(t *testing.T) {
	t.Parallel()

	msg := &Message{From: "a@example.com", To: "b@example.com", Body: NewText("x")}
	first, err := Serialize(msg)
	require.NoError(t, err)
	second, err := Serialize(msg)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSerializeNoBody(t *testing.T) {
	t.Parallel()

	_, err := Serialize(&Message{To: "b@example.com"})
	assert.Error(t, err)
}

func TestLeaves_DepthFirst(t *testing.T) {
	t.Parallel()

	a, b, c := NewText("a"), NewText("b"), NewText("c")
	tree := NewMultipart("mixed", NewMultipart("alternative", a, b), c)

	leaves := tree.Leaves()
	require.Len(t, leaves, 3)
	assert.Same(t, a, leaves[0])
	assert.Same(t, b, leaves[1])
	assert.Same(t, c, leaves[2])

	var nilPart *Part
	assert.Nil(t, nilPart.Leaves())
}
