package logging

import (
	"errors"
	"testing"
)

func TestOperationAttr(t *testing.T) {
	attr := Operation("send")
	if attr.Key != KeyOperation {
		t.Errorf("Operation key = %q, want %q", attr.Key, KeyOperation)
	}
	if attr.Value.String() != "send" {
		t.Errorf("Operation value = %q, want %q", attr.Value.String(), "send")
	}
}

func TestStatusAttr(t *testing.T) {
	attr := Status(StatusSuccess)
	if attr.Key != KeyStatus {
		t.Errorf("Status key = %q, want %q", attr.Key, KeyStatus)
	}
	if attr.Value.String() != StatusSuccess {
		t.Errorf("Status value = %q, want %q", attr.Value.String(), StatusSuccess)
	}
}

func TestErr(t *testing.T) {
	err := errors.New("test error")
	attr := Err(err)
	if attr.Key != KeyError {
		t.Errorf("Err key = %q, want %q", attr.Key, KeyError)
	}
	if attr.Value.String() != "test error" {
		t.Errorf("Err value = %q, want %q", attr.Value.String(), "test error")
	}

	// nil should return an empty group that slog will omit
	attr = Err(nil)
	if attr.Key != "" {
		t.Errorf("Err(nil) key = %q, want empty string (empty group)", attr.Key)
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"", "<empty>"},
		{"abc123", "[token:6 chars]"},
		{"a_very_long_token_string", "[token:24 chars]"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := SanitizeToken(tt.token)
			if result != tt.expected {
				t.Errorf("SanitizeToken(%q) = %q, want %q", tt.token, result, tt.expected)
			}
		})
	}
}

func TestNewLoggerLevels(t *testing.T) {
	if New(false) == nil {
		t.Error("New(false) returned nil")
	}
	if New(true) == nil {
		t.Error("New(true) returned nil")
	}
}
