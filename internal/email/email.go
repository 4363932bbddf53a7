// Package email holds the inbound message model and the loaders that turn
// files on disk into it.
package email

import (
	"html"
	"regexp"
	"strings"
)

// Content is a single inbound message as handed over by the mail-fetch side.
// The pipeline never mutates it.
type Content struct {
	MessageID   string       `json:"message_id,omitempty"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	HTML        string       `json:"html,omitempty"`
	SenderEmail string       `json:"sender_email"`
	SenderName  string       `json:"sender_name,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is attachment metadata. Text carries content extracted by an
// external document reader when one is available.
type Attachment struct {
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename,omitempty"`
	ContentType      string `json:"content_type,omitempty"`
	Size             int64  `json:"size"`
	Text             string `json:"text,omitempty"`
}

// PlainText returns the text body, falling back to the tag-stripped HTML body.
func (c *Content) PlainText() string {
	if c == nil {
		return ""
	}
	if strings.TrimSpace(c.Body) != "" {
		return c.Body
	}
	if strings.TrimSpace(c.HTML) != "" {
		return StripHTML(c.HTML)
	}
	return ""
}

// Filenames lists attachment filenames, preferring the decoded name.
func (c *Content) Filenames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Attachments))
	for _, a := range c.Attachments {
		if name := a.Name(); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Name returns the decoded filename, or the original one when decoding left it empty.
func (a Attachment) Name() string {
	if name := strings.TrimSpace(a.Filename); name != "" {
		return name
	}
	return strings.TrimSpace(a.OriginalFilename)
}

var (
	hiddenBlockRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	lineBreakRe   = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|li|tr|h[1-6])>`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
)

// StripHTML reduces an HTML body to readable text.
func StripHTML(s string) string {
	s = hiddenBlockRe.ReplaceAllString(s, "")
	s = lineBreakRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
