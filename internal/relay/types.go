// Package relay implements the request-to-wire-message core: request
// normalization, MIME composition, transport encoding and the send
// dispatcher.
package relay

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// StringList accepts either a JSON string or an array of strings.
type StringList []string

// UnmarshalJSON implements flexible decoding for recipient-style fields.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected a string or an array of strings")
	}
	*l = many
	return nil
}

// clean trims entries and drops empty ones.
func (l StringList) clean() []string {
	out := make([]string, 0, len(l))
	for _, s := range l {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SendRequest is the inbound JSON body of POST /send. Headers and
// attachments stay raw so normalization can report shape errors
// precisely instead of failing the whole decode.
type SendRequest struct {
	To          StringList      `json:"to"`
	Cc          StringList      `json:"cc"`
	Bcc         StringList      `json:"bcc"`
	Subject     string          `json:"subject"`
	Text        string          `json:"text"`
	HTML        string          `json:"html"`
	From        string          `json:"from"`
	FromName    string          `json:"fromName"`
	ReplyTo     string          `json:"replyTo"`
	ReplyToName string          `json:"replyToName"`
	Headers     json.RawMessage `json:"headers"`
	InReplyTo   string          `json:"inReplyTo"`
	References  StringList      `json:"references"`
	MessageID   string          `json:"messageId"`
	Priority    string          `json:"priority"`
	Attachments json.RawMessage `json:"attachments"`
}

// Address is a display name and email address pair.
type Address struct {
	Name  string
	Email string
}

// Attachment is the normalized attachment descriptor. Content holds
// either raw text or base64 text depending on Encoding.
type Attachment struct {
	Filename    string
	Content     string
	Encoding    string // "base64" or "" (raw)
	ContentType string
	ContentID   string
	Disposition string // "attachment" or "inline"
}

// Bytes resolves the attachment content to raw bytes.
func (a *Attachment) Bytes() ([]byte, error) {
	if a.Encoding == "base64" {
		data, err := base64.StdEncoding.DecodeString(a.Content)
		if err != nil {
			return nil, fmt.Errorf("attachment %q: invalid base64 content: %w", a.Filename, err)
		}
		return data, nil
	}
	return []byte(a.Content), nil
}

// Message is the normalized, provider-agnostic descriptor a valid send
// request reduces to. It is transient: constructed and discarded
// within one request.
type Message struct {
	From        Address
	ReplyTo     *Address
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Text        string
	HTML        string
	Headers     map[string]string
	InReplyTo   string
	References  []string
	MessageID   string
	Priority    string
	Attachments []Attachment
}

// Result is the caller-facing outcome of a successful send.
type Result struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}
