package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReceiptStore keeps processed receipt images on disk.
// Receipts are stored at: {baseDir}/{userID}/{receiptID}.jpg
type ReceiptStore struct {
	baseDir string
}

// NewReceiptStore creates a ReceiptStore, ensuring the base directory exists.
func NewReceiptStore(baseDir string) (*ReceiptStore, error) {
	// 0755: owner rwx, group rx, others rx.
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("creating receipt directory: %w", err)
	}
	return &ReceiptStore{baseDir: baseDir}, nil
}

// pathSegment rejects ids that could escape the user's directory.
func pathSegment(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("invalid path segment %q", s)
	}
	return nil
}

// Path returns the filesystem path for a receipt.
func (s *ReceiptStore) Path(userID, receiptID string) (string, error) {
	if err := pathSegment(userID); err != nil {
		return "", err
	}
	if err := pathSegment(receiptID); err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, userID, receiptID+".jpg"), nil
}

// Write saves a receipt JPEG, creating the user's directory if needed.
func (s *ReceiptStore) Write(userID, receiptID string, data []byte) error {
	path, err := s.Path(userID, receiptID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating user receipt directory: %w", err)
	}
	// 0644: owner rw, group r, others r.
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing receipt file: %w", err)
	}
	return nil
}

// Read returns the stored receipt bytes, or ErrNotFound.
func (s *ReceiptStore) Read(userID, receiptID string) ([]byte, error) {
	path, err := s.Path(userID, receiptID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading receipt file: %w", err)
	}
	return data, nil
}

// Exists checks if a receipt file exists on disk.
func (s *ReceiptStore) Exists(userID, receiptID string) bool {
	path, err := s.Path(userID, receiptID)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes a receipt. Deleting a missing receipt is not an error.
func (s *ReceiptStore) Delete(userID, receiptID string) error {
	path, err := s.Path(userID, receiptID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting receipt file: %w", err)
	}
	return nil
}
