// Package message defines the structured MIME message that travels over the
// relay wire, and its canonical serialization.
package message

import (
	"strings"
	"time"
)

// Message is a MIME message with its addressing headers lifted into explicit
// fields. Empty strings mean the header is absent. Address headers keep
// their raw header value; interpreting them is the translator's job.
type Message struct {
	From      string
	To        string
	Cc        string
	Bcc       string
	ReplyTo   string
	Subject   string
	MessageID string
	Date      time.Time

	// Body is either a single leaf (plain payload) or a multipart tree.
	Body *Part
}

// Part is one MIME entity. Leaves carry decoded content; multipart
// containers carry child parts instead.
type Part struct {
	// ContentType is the lower-cased media type, e.g. "text/plain".
	ContentType string
	// Params holds Content-Type parameters other than boundary and charset.
	Params map[string]string
	// Disposition is the Content-Disposition value ("inline", "attachment")
	// or empty.
	Disposition string
	Filename    string
	Content     []byte
	Parts       []*Part
}

// NewText returns a plain-text leaf part.
func NewText(text string) *Part {
	return &Part{ContentType: "text/plain", Content: []byte(text)}
}

// NewMultipart returns a multipart container of the given subtype
// ("mixed", "alternative", ...).
func NewMultipart(subtype string, parts ...*Part) *Part {
	return &Part{ContentType: "multipart/" + subtype, Parts: parts}
}

// IsMultipart reports whether p is a container.
func (p *Part) IsMultipart() bool {
	return strings.HasPrefix(p.ContentType, "multipart/")
}

// Leaves returns the non-multipart parts of the tree rooted at p in
// depth-first order.
func (p *Part) Leaves() []*Part {
	if p == nil {
		return nil
	}
	if !p.IsMultipart() {
		return []*Part{p}
	}
	var out []*Part
	for _, child := range p.Parts {
		out = append(out, child.Leaves()...)
	}
	return out
}
