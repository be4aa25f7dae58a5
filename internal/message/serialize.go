package message

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// Serialize renders msg in the canonical wire form that is signed and sent
// to the relay. Text parts are written verbatim so their content survives a
// Parse round trip byte for byte.
func Serialize(msg *Message) (string, error) {
	var buf bytes.Buffer
	if err := Write(&buf, msg); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Write renders msg to w.
func Write(w io.Writer, msg *Message) error {
	if msg.Body == nil {
		return fmt.Errorf("message has no body")
	}

	var h mail.Header
	h.Set("MIME-Version", "1.0")
	if !msg.Date.IsZero() {
		h.SetDate(msg.Date)
	}
	if msg.MessageID != "" {
		h.Set("Message-Id", msg.MessageID)
	}
	setIfPresent(&h, "From", msg.From)
	setIfPresent(&h, "To", msg.To)
	setIfPresent(&h, "Cc", msg.Cc)
	setIfPresent(&h, "Bcc", msg.Bcc)
	setIfPresent(&h, "Reply-To", msg.ReplyTo)
	if msg.Subject != "" {
		h.SetSubject(msg.Subject)
	}

	setPartHeader(&h.Header, msg.Body)
	mw, err := gomessage.CreateWriter(w, h.Header)
	if err != nil {
		return fmt.Errorf("failed to write message header: %w", err)
	}
	if err := writeBody(mw, msg.Body); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return nil
}

func writeBody(mw *gomessage.Writer, p *Part) error {
	if !p.IsMultipart() {
		if _, err := mw.Write(p.Content); err != nil {
			return fmt.Errorf("failed to write %s content: %w", p.ContentType, err)
		}
		return nil
	}

	for _, child := range p.Parts {
		var ch gomessage.Header
		setPartHeader(&ch, child)
		cw, err := mw.CreatePart(ch)
		if err != nil {
			return fmt.Errorf("failed to create %s part: %w", child.ContentType, err)
		}
		if err := writeBody(cw, child); err != nil {
			return err
		}
		if err := cw.Close(); err != nil {
			return fmt.Errorf("failed to close %s part: %w", child.ContentType, err)
		}
	}
	return nil
}

func setPartHeader(h *gomessage.Header, p *Part) {
	params := make(map[string]string, len(p.Params)+1)
	for k, v := range p.Params {
		params[k] = v
	}

	textual := isText(p)
	if textual {
		params["charset"] = "utf-8"
	}
	if p.Filename != "" && p.Disposition == "" {
		params["name"] = p.Filename
	}
	h.SetContentType(p.ContentType, params)

	if p.Disposition != "" || p.Filename != "" {
		disp := p.Disposition
		if disp == "" {
			disp = "attachment"
		}
		var dparams map[string]string
		if p.Filename != "" {
			dparams = map[string]string{"filename": p.Filename}
		}
		h.SetContentDisposition(disp, dparams)
	}

	if !p.IsMultipart() && !textual {
		h.Set("Content-Transfer-Encoding", "base64")
	}
}

// isText reports whether the part can be written without a transfer
// encoding.
func isText(p *Part) bool {
	if p.IsMultipart() {
		return false
	}
	if len(p.ContentType) < 5 || p.ContentType[:5] != "text/" {
		return false
	}
	return utf8.Valid(p.Content)
}

func setIfPresent(h *mail.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}
