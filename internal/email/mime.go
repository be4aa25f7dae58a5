package email

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
)

// WriteMIME renders e as an RFC 5322 message for providers that accept raw
// MIME. Bcc recipients are left out of the headers; they only belong in the
// envelope.
func (e *Email) WriteMIME(w io.Writer) error {
	var h mail.Header
	h.SetDate(time.Now())
	if e.MessageID != "" {
		h.Set("Message-Id", e.MessageID)
	}
	if from, err := mail.ParseAddress(e.Sender); err == nil {
		h.SetAddressList("From", []*mail.Address{from})
	} else {
		h.Set("From", e.Sender)
	}
	h.SetAddressList("To", addressList(e.To))
	if len(e.Cc) > 0 {
		h.SetAddressList("Cc", addressList(e.Cc))
	}
	if len(e.ReplyTo) > 0 {
		h.SetAddressList("Reply-To", addressList(e.ReplyTo))
	}
	h.SetSubject(e.Subject)

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("failed to create message writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("failed to create body part: %w", err)
	}
	if err := writeInline(iw, "text/plain", e.TextBody); err != nil {
		return err
	}
	if e.HtmlBody != "" {
		if err := writeInline(iw, "text/html", e.HtmlBody); err != nil {
			return err
		}
	}
	if err := iw.Close(); err != nil {
		return fmt.Errorf("failed to close body part: %w", err)
	}

	for _, att := range e.Attachments {
		var ah mail.AttachmentHeader
		ah.SetContentType(att.ContentType, nil)
		ah.SetFilename(att.Filename)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return fmt.Errorf("failed to create attachment part: %w", err)
		}
		if _, err := aw.Write(att.Content); err != nil {
			return fmt.Errorf("failed to write attachment %s: %w", att.Filename, err)
		}
		if err := aw.Close(); err != nil {
			return fmt.Errorf("failed to close attachment %s: %w", att.Filename, err)
		}
	}

	return mw.Close()
}

func writeInline(iw *mail.InlineWriter, contentType, body string) error {
	var ih mail.InlineHeader
	ih.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	pw, err := iw.CreatePart(ih)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return pw.Close()
}

func addressList(addrs []string) []*mail.Address {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, &mail.Address{Address: a})
	}
	return out
}
