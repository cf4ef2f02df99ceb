package mail

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
)

// Message is a raw inbound email identified by its IMAP UID.
type Message struct {
	UID uint32
	Raw []byte
}

// Parsed holds the parts of an email the worker looks at.
type Parsed struct {
	MessageID string
	From      string // decoded From header as shown to humans
	Sender    string // bare lowercased address
	Subject   string
	Body      string
}

var angleAddr = regexp.MustCompile(`<(.+?)>`)

// Parse decodes headers and picks the body: the first text/plain part, else
// the first text/html part converted to text. Unknown charsets are read as
// is rather than rejected.
func Parse(raw []byte) (*Parsed, error) {
	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	defer mr.Close()

	p := &Parsed{}
	p.MessageID, _ = mr.Header.MessageID()
	p.Subject, _ = mr.Header.Subject()
	p.Subject = strings.TrimSpace(p.Subject)
	p.From, _ = mr.Header.Text("From")
	p.Sender = SenderAddress(mr.Header)

	var htmlBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("read part: %w", err)
		}
		if part == nil {
			break
		}
		h, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		switch ct {
		case "text/plain", "":
			b, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("read text part: %w", err)
			}
			p.Body = strings.ToValidUTF8(string(b), "")
			return p, nil
		case "text/html":
			if htmlBody == "" {
				b, err := io.ReadAll(part.Body)
				if err != nil {
					return nil, fmt.Errorf("read html part: %w", err)
				}
				htmlBody = strings.ToValidUTF8(string(b), "")
			}
		}
	}
	p.Body = HTMLToText(htmlBody)
	return p, nil
}

// SenderAddress returns the lowercased address of the From header.
func SenderAddress(h gomail.Header) string {
	if list, err := h.AddressList("From"); err == nil && len(list) > 0 {
		return strings.ToLower(strings.TrimSpace(list[0].Address))
	}
	from, _ := h.Text("From")
	if m := angleAddr.FindStringSubmatch(from); m != nil {
		from = m[1]
	}
	return strings.ToLower(strings.TrimSpace(from))
}
