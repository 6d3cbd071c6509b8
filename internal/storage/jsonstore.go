package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"snb_ledger/internal/domain"
	"snb_ledger/internal/repository"
)

// ErrRecordsNotFound is returned by a load when the backing file does not exist.
var ErrRecordsNotFound = repository.ErrRecordsNotFound

// JSONStore keeps accounts and customer records in two JSON files. Every save rewrites the
// whole file through a temporary file and a rename, so a reader never sees a partial write.
type JSONStore struct {
	accountsPath  string
	customersPath string
	logger        *slog.Logger
}

var _ repository.Store = (*JSONStore)(nil)

func NewJSONStore(accountsPath, customersPath string, logger *slog.Logger) *JSONStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &JSONStore{
		accountsPath:  accountsPath,
		customersPath: customersPath,
		logger:        logger,
	}
}

func (s *JSONStore) LoadAccounts(ctx context.Context) ([]*domain.Account, error) {
	var records []accountRecord
	if err := readJSON(s.accountsPath, &records); err != nil {
		return nil, err
	}
	return fromRecords(s.logger, records)
}

func (s *JSONStore) SaveAccounts(ctx context.Context, accounts []*domain.Account) error {
	return writeJSON(s.accountsPath, toRecords(accounts))
}

func (s *JSONStore) LoadCustomers(ctx context.Context) (map[string]string, error) {
	records := make(map[string]string)
	if err := readJSON(s.customersPath, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = make(map[string]string)
	}
	return records, nil
}

func (s *JSONStore) SaveCustomers(ctx context.Context, records map[string]string) error {
	if records == nil {
		records = make(map[string]string)
	}
	return writeJSON(s.customersPath, records)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrRecordsNotFound, path)
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	data := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
