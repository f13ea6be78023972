package relay

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Compose transforms a validated descriptor into a complete RFC 5322
// message with MIME multipart structure: plain/HTML alternative parts,
// base64-encoded attachment parts with disposition and Content-Id, and
// custom header injection.
func Compose(msg *Message) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*mail.Address{{Name: msg.From.Name, Address: msg.From.Email}})
	h.SetAddressList("To", toAddressList(msg.To))
	if len(msg.Cc) > 0 {
		h.SetAddressList("Cc", toAddressList(msg.Cc))
	}
	if len(msg.Bcc) > 0 {
		h.SetAddressList("Bcc", toAddressList(msg.Bcc))
	}
	if msg.ReplyTo != nil {
		h.SetAddressList("Reply-To", []*mail.Address{{Name: msg.ReplyTo.Name, Address: msg.ReplyTo.Email}})
	}

	h.Set("Message-Id", angleBracket(messageID(msg)))
	if msg.InReplyTo != "" {
		h.Set("In-Reply-To", angleBracket(msg.InReplyTo))
	}
	if len(msg.References) > 0 {
		refs := make([]string, len(msg.References))
		for i, r := range msg.References {
			refs[i] = angleBracket(r)
		}
		h.Set("References", strings.Join(refs, " "))
	}

	switch msg.Priority {
	case "high":
		h.Set("X-Priority", "1")
		h.Set("Importance", "high")
	case "low":
		h.Set("X-Priority", "5")
		h.Set("Importance", "low")
	}

	for k, v := range msg.Headers {
		h.Set(k, v)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}

	if msg.Text != "" || msg.HTML != "" {
		iw, err := mw.CreateInline()
		if err != nil {
			return nil, fmt.Errorf("failed to create body part: %w", err)
		}
		if msg.Text != "" {
			if err := writeInlinePart(iw, "text/plain", msg.Text); err != nil {
				return nil, err
			}
		}
		if msg.HTML != "" {
			if err := writeInlinePart(iw, "text/html", msg.HTML); err != nil {
				return nil, err
			}
		}
		if err := iw.Close(); err != nil {
			return nil, fmt.Errorf("failed to finalize body: %w", err)
		}
	}

	for i := range msg.Attachments {
		if err := writeAttachment(mw, &msg.Attachments[i]); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize message: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeRaw transport-encodes a composed document the way the Gmail
// API expects raw messages: URL-safe base64 with padding stripped.
func EncodeRaw(doc []byte) string {
	return base64.RawURLEncoding.EncodeToString(doc)
}

func writeInlinePart(iw *mail.InlineWriter, contentType, body string) error {
	var th mail.InlineHeader
	th.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	th.Set("Content-Transfer-Encoding", "quoted-printable")
	pw, err := iw.CreatePart(th)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		pw.Close()
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return pw.Close()
}

func writeAttachment(mw *mail.Writer, att *Attachment) error {
	content, err := att.Bytes()
	if err != nil {
		return err
	}

	var ah mail.AttachmentHeader
	ah.SetFilename(att.Filename)
	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	ah.SetContentType(contentType, nil)
	ah.Set("Content-Transfer-Encoding", "base64")
	if att.ContentID != "" {
		ah.Set("Content-Id", angleBracket(att.ContentID))
	}
	if att.Disposition == "inline" {
		ah.SetContentDisposition("inline", map[string]string{"filename": att.Filename})
	}

	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return fmt.Errorf("attachment %q: %w", att.Filename, err)
	}
	if _, err := aw.Write(content); err != nil {
		aw.Close()
		return fmt.Errorf("attachment %q: %w", att.Filename, err)
	}
	return aw.Close()
}

func toAddressList(addrs []string) []*mail.Address {
	out := make([]*mail.Address, len(addrs))
	for i, a := range addrs {
		out[i] = &mail.Address{Address: a}
	}
	return out
}

// messageID returns the descriptor's message id or generates one under
// the sender's domain.
func messageID(msg *Message) string {
	if msg.MessageID != "" {
		return msg.MessageID
	}
	domain := "localhost"
	if at := strings.LastIndex(msg.From.Email, "@"); at >= 0 && at < len(msg.From.Email)-1 {
		domain = msg.From.Email[at+1:]
	}
	return uuid.NewString() + "@" + domain
}

func angleBracket(id string) string {
	return "<" + strings.Trim(id, "<>") + ">"
}
