// Package report provides at-rest storage for liveness verdict
// reports. Reports are encrypted using NaCl secretbox with a key
// derived from machine identity.
package report

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/veridianhq/facelive/pkg/logging"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// NonceSize is the size of the nonce used for encryption
	NonceSize = 24
	// KeySize is the size of the encryption key
	KeySize = 32
)

// Report is the audit record written after a session reaches its
// verdict. In-session state itself is never persisted.
type Report struct {
	SessionID        string            `json:"session_id"`
	Success          bool              `json:"success"`
	CorrelationScore float64           `json:"correlation_score"`
	Challenges       []string          `json:"challenges"`
	CompletedAt      time.Time         `json:"completed_at"`
	Duration         time.Duration     `json:"duration"`
	DroppedFrames    int64             `json:"dropped_frames"`
	Metadata         map[string]string `json:"metadata"`
}

// ErrReportNotFound is returned when no report exists for a session.
var ErrReportNotFound = errors.New("report not found")

// ErrEncryption is returned when encryption/decryption fails.
var ErrEncryption = errors.New("encryption error")

// FileStore implements report storage using encrypted files.
type FileStore struct {
	dataDir           string
	encryptionEnabled bool
	encryptionKey     [KeySize]byte
}

// NewFileStore creates a new FileStore instance.
func NewFileStore(dataDir string, encryptionEnabled bool) (*FileStore, error) {
	fs := &FileStore{
		dataDir:           dataDir,
		encryptionEnabled: encryptionEnabled,
	}

	if encryptionEnabled {
		key, err := deriveKey()
		if err != nil {
			return nil, fmt.Errorf("failed to derive encryption key: %w", err)
		}
		fs.encryptionKey = key
	}

	reportsDir := filepath.Join(dataDir, "reports")
	if err := os.MkdirAll(reportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}

	return fs, nil
}

// deriveKey derives an encryption key from machine-specific information.
// This ties the encrypted data to this specific machine.
func deriveKey() ([KeySize]byte, error) {
	var key [KeySize]byte

	var identity strings.Builder

	// Machine ID (Linux specific)
	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		identity.Write(machineID)
	}

	if hostname, err := os.Hostname(); err == nil {
		identity.WriteString(hostname)
	}

	identity.WriteString(fmt.Sprintf("%d", os.Getuid()))
	identity.WriteString("facelive-v1-salt")

	hash := sha256.Sum256([]byte(identity.String()))
	copy(key[:], hash[:])

	return key, nil
}

// reportPath returns the file path for a session's report.
func (fs *FileStore) reportPath(sessionID string) string {
	filename := sessionID + ".json"
	if fs.encryptionEnabled {
		filename = sessionID + ".enc"
	}
	return filepath.Join(fs.dataDir, "reports", filename)
}

// encrypt encrypts data with a random nonce prepended.
func (fs *FileStore) encrypt(data []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("%w: failed to generate nonce", ErrEncryption)
	}

	encrypted := secretbox.Seal(nonce[:], data, &nonce, &fs.encryptionKey)
	return encrypted, nil
}

// decrypt decrypts data that has the nonce prepended.
func (fs *FileStore) decrypt(data []byte) ([]byte, error) {
	if len(data) < NonceSize {
		return nil, fmt.Errorf("%w: data too short", ErrEncryption)
	}

	var nonce [NonceSize]byte
	copy(nonce[:], data[:NonceSize])

	decrypted, ok := secretbox.Open(nil, data[NonceSize:], &nonce, &fs.encryptionKey)
	if !ok {
		return nil, fmt.Errorf("%w: failed to decrypt", ErrEncryption)
	}

	return decrypted, nil
}

// Save writes a verdict report to storage.
func (fs *FileStore) Save(report Report) error {
	path := fs.reportPath(report.SessionID)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if fs.encryptionEnabled {
		data, err = fs.encrypt(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt report: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	logging.Debugf("Saved report for session: %s", report.SessionID)
	return nil
}

// Load reads a verdict report from storage.
func (fs *FileStore) Load(sessionID string) (*Report, error) {
	path := fs.reportPath(sessionID)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	if fs.encryptionEnabled {
		data, err = fs.decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt report: %w", err)
		}
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return &report, nil
}

// Delete removes a session's report from storage.
func (fs *FileStore) Delete(sessionID string) error {
	path := fs.reportPath(sessionID)

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrReportNotFound
		}
		return fmt.Errorf("failed to delete report: %w", err)
	}

	logging.Infof("Deleted report for session: %s", sessionID)
	return nil
}

// List returns all stored session ids, sorted.
func (fs *FileStore) List() ([]string, error) {
	reportsDir := filepath.Join(fs.dataDir, "reports")

	entries, err := os.ReadDir(reportsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read reports directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		name = strings.TrimSuffix(name, ".json")
		name = strings.TrimSuffix(name, ".enc")
		if name != entry.Name() {
			ids = append(ids, name)
		}
	}

	sort.Strings(ids)
	return ids, nil
}
