// Package credstore persists the single OAuth credential record as a
// JSON document at a fixed path.
//
// Writes are whole-file overwrites so a concurrent reader always sees
// either the old or the new complete record, never a torn one.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// ErrNotFound is returned by Load when no record has been persisted yet.
var ErrNotFound = errors.New("no stored credentials")

// Record holds the persisted OAuth token material.
type Record struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scope        string    `json:"scope,omitempty"`
}

// FromToken converts an oauth2 token into a Record.
func FromToken(t *oauth2.Token) *Record {
	rec := &Record{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
	if scope, ok := t.Extra("scope").(string); ok {
		rec.Scope = scope
	}
	return rec
}

// Token converts the record back into an oauth2 token.
func (r *Record) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		Expiry:       r.Expiry,
	}
}

// Merge layers newly issued token material over the record: non-empty
// fields of update overwrite, everything else is preserved. In
// particular a refresh_token already on file is never dropped by an
// access-token-only update. The receiver is not modified; a merged
// copy is returned. A nil receiver is valid and yields a copy of
// update.
func (r *Record) Merge(update *Record) *Record {
	if r == nil {
		cp := *update
		return &cp
	}
	merged := *r
	if update.AccessToken != "" {
		merged.AccessToken = update.AccessToken
	}
	if update.RefreshToken != "" {
		merged.RefreshToken = update.RefreshToken
	}
	if update.TokenType != "" {
		merged.TokenType = update.TokenType
	}
	if !update.Expiry.IsZero() {
		merged.Expiry = update.Expiry
	}
	if update.Scope != "" {
		merged.Scope = update.Scope
	}
	return &merged
}

// Store reads and writes the credential record at a fixed path.
type Store struct {
	path string
}

// New creates a store for the given file path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the file path the store persists to.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted record. Returns ErrNotFound when the file
// does not exist.
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return &rec, nil
}

// Save persists the record, creating the containing directory as
// needed. The full serialized record is written in one operation.
func (s *Store) Save(rec *Record) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create credentials directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return nil
}
