package email

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// ParseMIME reads an RFC 5322 message. Japanese legacy charsets such as
// ISO-2022-JP and Shift_JIS are decoded through go-message/charset.
func ParseMIME(r io.Reader) (*Content, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("read message header: %w", err)
	}
	defer mr.Close()

	c := &Content{}

	if subject, err := mr.Header.Subject(); err == nil {
		c.Subject = subject
	} else {
		c.Subject = mr.Header.Get("Subject")
	}

	if id, err := mr.Header.MessageID(); err == nil {
		c.MessageID = id
	}

	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		c.SenderEmail = from[0].Address
		c.SenderName = from[0].Name
	}

	var plain, htmlBody strings.Builder
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return nil, fmt.Errorf("read message part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("read inline part: %w", err)
			}
			switch contentType {
			case "text/html":
				htmlBody.Write(data)
			case "text/plain", "":
				if plain.Len() > 0 {
					plain.WriteString("\n")
				}
				plain.Write(data)
			}
		case *mail.AttachmentHeader:
			attachment, err := readAttachment(h, part.Body)
			if err != nil {
				return nil, err
			}
			c.Attachments = append(c.Attachments, attachment)
		}
	}

	c.Body = plain.String()
	c.HTML = htmlBody.String()

	return c, nil
}

func readAttachment(h *mail.AttachmentHeader, body io.Reader) (Attachment, error) {
	a := Attachment{}

	a.Filename, _ = h.Filename()
	a.ContentType, _, _ = h.ContentType()

	if _, params, err := mime.ParseMediaType(h.Get("Content-Disposition")); err == nil {
		a.OriginalFilename = params["filename"]
	}
	if a.OriginalFilename == "" {
		a.OriginalFilename = a.Filename
	}

	if strings.HasPrefix(a.ContentType, "text/plain") {
		data, err := io.ReadAll(body)
		if err != nil {
			return a, fmt.Errorf("read attachment %q: %w", a.Filename, err)
		}
		a.Size = int64(len(data))
		a.Text = string(data)
		return a, nil
	}

	n, err := io.Copy(io.Discard, body)
	if err != nil {
		return a, fmt.Errorf("read attachment %q: %w", a.Filename, err)
	}
	a.Size = n

	return a, nil
}
