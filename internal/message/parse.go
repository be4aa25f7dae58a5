package message

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	gomessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Parse parses a serialized RFC 5322 message. Transfer encodings are
// decoded and text parts are converted to UTF-8. Unknown charsets and
// encodings are logged and the raw bytes kept.
func Parse(raw []byte) (*Message, error) {
	ent, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil && !isRecoverable(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if err != nil {
		slog.Warn("message body left undecoded", "error", err)
	}

	h := mail.Header{Header: ent.Header}
	msg := &Message{
		From:      strings.TrimSpace(h.Get("From")),
		To:        strings.TrimSpace(h.Get("To")),
		Cc:        strings.TrimSpace(h.Get("Cc")),
		Bcc:       strings.TrimSpace(h.Get("Bcc")),
		ReplyTo:   strings.TrimSpace(h.Get("Reply-To")),
		MessageID: strings.TrimSpace(h.Get("Message-Id")),
	}

	if subject, err := h.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = h.Get("Subject")
	}
	if date, err := h.Date(); err == nil {
		msg.Date = date
	}

	body, err := readEntity(ent)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message body: %w", err)
	}
	msg.Body = body

	return msg, nil
}

// readEntity converts one go-message entity, recursing into multipart
// bodies.
func readEntity(ent *gomessage.Entity) (*Part, error) {
	part := &Part{ContentType: "text/plain"}

	if ent.Header.Has("Content-Type") {
		mediaType, params, err := ent.Header.ContentType()
		if err != nil {
			slog.Warn("failed to parse content type, treating as plain text",
				"content_type", ent.Header.Get("Content-Type"),
				"error", err,
			)
		} else {
			part.ContentType = strings.ToLower(mediaType)
			part.Params = partParams(params)
			if name := params["name"]; name != "" {
				part.Filename = name
			}
		}
	}

	if disp, params, err := ent.Header.ContentDisposition(); err == nil {
		part.Disposition = strings.ToLower(disp)
		if fn := params["filename"]; fn != "" {
			part.Filename = fn
		}
	}

	if mr := ent.MultipartReader(); mr != nil {
		defer mr.Close()
		for {
			child, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil && !isRecoverable(err) {
				return nil, fmt.Errorf("failed to read next part: %w", err)
			}
			if err != nil {
				slog.Warn("part left undecoded", "error", err)
			}
			p, err := readEntity(child)
			if err != nil {
				return nil, err
			}
			part.Parts = append(part.Parts, p)
		}
		return part, nil
	}

	content, err := io.ReadAll(ent.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read part content: %w", err)
	}
	part.Content = content
	return part, nil
}

func partParams(params map[string]string) map[string]string {
	var out map[string]string
	for k, v := range params {
		switch k {
		case "boundary", "charset", "name":
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[k] = v
	}
	return out
}

func isRecoverable(err error) bool {
	return gomessage.IsUnknownCharset(err) || gomessage.IsUnknownEncoding(err)
}
