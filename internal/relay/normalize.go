package relay

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// attachmentInput is the loose inbound shape of one attachment entry.
type attachmentInput struct {
	Filename      string `json:"filename"`
	Content       string `json:"content"`
	ContentBase64 string `json:"contentBase64"`
	ContentType   string `json:"contentType"`
	Encoding      string `json:"encoding"`
	CID           string `json:"cid"`
	Disposition   string `json:"disposition"`
}

// Normalize validates and canonicalizes an inbound send request into a
// provider-agnostic message descriptor. It is pure: no I/O, no
// provider calls, so malformed requests never consume a provider call.
// Sender selection is dispatcher policy and left to the caller.
func Normalize(req *SendRequest) (*Message, *Error) {
	headers, err := NormalizeHeaders(req.Headers)
	if err != nil {
		return nil, err
	}
	attachments, err := NormalizeAttachments(req.Attachments)
	if err != nil {
		return nil, err
	}

	to := req.To.clean()
	if len(to) == 0 || strings.TrimSpace(req.Subject) == "" ||
		(req.Text == "" && req.HTML == "" && len(attachments) == 0) {
		return nil, ValidationError("Require: to, subject, and text/html or attachments")
	}

	msg := &Message{
		To:          to,
		Cc:          req.Cc.clean(),
		Bcc:         req.Bcc.clean(),
		Subject:     req.Subject,
		Text:        req.Text,
		HTML:        req.HTML,
		Headers:     headers,
		InReplyTo:   strings.TrimSpace(req.InReplyTo),
		References:  req.References.clean(),
		MessageID:   strings.TrimSpace(req.MessageID),
		Priority:    strings.ToLower(strings.TrimSpace(req.Priority)),
		Attachments: attachments,
	}
	if rt := strings.TrimSpace(req.ReplyTo); rt != "" {
		msg.ReplyTo = &Address{Name: req.ReplyToName, Email: rt}
	}
	return msg, nil
}

// NormalizeHeaders validates the custom header map: it must be a flat
// string-keyed object; null values are dropped and all other scalar
// values are stringified.
func NormalizeHeaders(raw json.RawMessage) (map[string]string, *Error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var in map[string]any
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, ValidationError("Invalid headers: expected an object of string values")
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
			// dropped
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			// nested objects/arrays make the map non-flat
			return nil, ValidationError("Invalid headers: expected an object of string values")
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// NormalizeAttachments validates the attachment list and resolves each
// entry's content source. Precedence is fixed: a data URI in content,
// then raw content, then the dedicated base64 field.
func NormalizeAttachments(raw json.RawMessage) ([]Attachment, *Error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var in []attachmentInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, ValidationError("Invalid attachments: expected an array")
	}

	out := make([]Attachment, 0, len(in))
	for i, entry := range in {
		if strings.TrimSpace(entry.Filename) == "" {
			return nil, ValidationError(fmt.Sprintf("Attachment %d requires a filename", i))
		}
		att := Attachment{
			Filename:    entry.Filename,
			ContentType: entry.ContentType,
			Encoding:    entry.Encoding,
			ContentID:   entry.CID,
			Disposition: entry.Disposition,
		}
		switch {
		case isDataURI(entry.Content):
			mimeType, payload := splitDataURI(entry.Content)
			att.Content = payload
			att.Encoding = "base64"
			// an explicitly supplied contentType wins over the URI's
			if att.ContentType == "" {
				att.ContentType = mimeType
			}
		case entry.Content != "":
			att.Content = entry.Content
		case entry.ContentBase64 != "":
			att.Content = entry.ContentBase64
			att.Encoding = "base64"
		default:
			return nil, ValidationError(fmt.Sprintf("Attachment %q has no content", entry.Filename))
		}
		out = append(out, att)
	}
	return out, nil
}

const dataURIMarker = ";base64,"

func isDataURI(s string) bool {
	return strings.HasPrefix(s, "data:") && strings.Contains(s, dataURIMarker)
}

// splitDataURI extracts the declared mime type and the base64 payload
// from a data:<mime>;base64,<payload> URI.
func splitDataURI(s string) (mimeType, payload string) {
	rest := strings.TrimPrefix(s, "data:")
	idx := strings.Index(rest, dataURIMarker)
	return rest[:idx], rest[idx+len(dataURIMarker):]
}
