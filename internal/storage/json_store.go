package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"leadboard/internal/models"
)

const (
	leadsFile       = "leads.json"
	expensesFile    = "expenses.json"
	comparisonsFile = "comparisons.json"

	DefaultBackupKeep = 5
)

var (
	ErrCorrupt  = errors.New("stored data is corrupt")
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid expense")
)

// JSONStore keeps each collection as one JSON array in dir. Every write replaces the
// whole file.
type JSONStore struct {
	mu         sync.RWMutex
	dir        string
	backupKeep int
	logger     *logrus.Logger
	lastImport time.Time
}

func NewJSONStore(dir string, backupKeep int, logger *logrus.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", dir, err)
	}
	if backupKeep <= 0 {
		backupKeep = DefaultBackupKeep
	}

	s := &JSONStore{
		dir:        dir,
		backupKeep: backupKeep,
		logger:     logger,
	}
	if info, err := os.Stat(s.path(leadsFile)); err == nil {
		s.lastImport = info.ModTime()
	}
	return s, nil
}

func (s *JSONStore) Dir() string {
	return s.dir
}

func (s *JSONStore) Leads() ([]models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readCollection[models.Lead](s.path(leadsFile))
}

// ReplaceLeads swaps the whole lead collection. The previous file is backed up first
// and put back if the new one cannot be written.
func (s *JSONStore) ReplaceLeads(leads []models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path(leadsFile)
	backupPath, err := s.backup(target)
	if err != nil {
		return err
	}

	if err := writeCollection(target, leads); err != nil {
		if backupPath != "" {
			if restoreErr := copyFile(backupPath, target); restoreErr != nil {
				s.logger.WithError(restoreErr).WithField("backup", backupPath).Error("Failed to restore leads from backup")
			} else {
				s.logger.WithField("backup", backupPath).Warn("Leads restored from backup")
			}
		}
		return err
	}

	s.lastImport = time.Now()
	s.pruneBackups(leadsFile)
	return nil
}

func (s *JSONStore) ListExpenses() ([]models.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readCollection[models.Expense](s.path(expensesFile))
}

// CreateExpense validates e, assigns a new id and appends it.
func (s *JSONStore) CreateExpense(e models.Expense) (models.Expense, error) {
	if err := e.Validate(); err != nil {
		return models.Expense{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expenses, err := readCollection[models.Expense](s.path(expensesFile))
	if err != nil {
		return models.Expense{}, err
	}
	e.ID = ulid.Make().String()
	expenses = append(expenses, e)
	if err := writeCollection(s.path(expensesFile), expenses); err != nil {
		return models.Expense{}, err
	}
	return e, nil
}

func (s *JSONStore) UpdateExpense(id string, e models.Expense) (models.Expense, error) {
	if err := e.Validate(); err != nil {
		return models.Expense{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expenses, err := readCollection[models.Expense](s.path(expensesFile))
	if err != nil {
		return models.Expense{}, err
	}
	for i := range expenses {
		if expenses[i].ID == id {
			e.ID = id
			expenses[i] = e
			if err := writeCollection(s.path(expensesFile), expenses); err != nil {
				return models.Expense{}, err
			}
			return e, nil
		}
	}
	return models.Expense{}, fmt.Errorf("expense %s: %w", id, ErrNotFound)
}

func (s *JSONStore) DeleteExpense(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expenses, err := readCollection[models.Expense](s.path(expensesFile))
	if err != nil {
		return err
	}
	for i := range expenses {
		if expenses[i].ID == id {
			expenses = append(expenses[:i], expenses[i+1:]...)
			return writeCollection(s.path(expensesFile), expenses)
		}
	}
	return fmt.Errorf("expense %s: %w", id, ErrNotFound)
}

// ReplaceExpenses overwrites the ledger. Entries without an id get one.
func (s *JSONStore) ReplaceExpenses(expenses []models.Expense) error {
	var result *multierror.Error
	for i, e := range expenses {
		if err := e.Validate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("expense %d: %w", i, err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	stored := make([]models.Expense, len(expenses))
	copy(stored, expenses)
	for i := range stored {
		if stored[i].ID == "" {
			stored[i].ID = ulid.Make().String()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeCollection(s.path(expensesFile), stored)
}

func (s *JSONStore) ListComparisons() ([]models.Comparison, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readCollection[models.Comparison](s.path(comparisonsFile))
}

func (s *JSONStore) SaveComparisons(list []models.Comparison) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeCollection(s.path(comparisonsFile), list)
}

// LastImport is the time of the last lead import, or the lead file's modification time
// after a restart.
func (s *JSONStore) LastImport() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastImport
}

func (s *JSONStore) HasData() bool {
	leads, err := s.Leads()
	return err == nil && len(leads) > 0
}

func (s *JSONStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// backup copies target next to itself as <name>_backup_<unixms>.json.
// It returns "" when there is nothing to back up.
func (s *JSONStore) backup(target string) (string, error) {
	if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}

	base := strings.TrimSuffix(filepath.Base(target), ".json")
	stamp := time.Now().UnixMilli()
	backupPath := filepath.Join(s.dir, fmt.Sprintf("%s_backup_%d.json", base, stamp))
	for {
		if _, err := os.Stat(backupPath); errors.Is(err, os.ErrNotExist) {
			break
		}
		stamp++
		backupPath = filepath.Join(s.dir, fmt.Sprintf("%s_backup_%d.json", base, stamp))
	}

	if err := copyFile(target, backupPath); err != nil {
		return "", fmt.Errorf("failed to back up %s: %w", filepath.Base(target), err)
	}
	s.logger.WithField("backup", backupPath).Debug("Backup created")
	return backupPath, nil
}

// Backups lists the backups of a collection file, newest first.
func (s *JSONStore) Backups(name string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	prefix := strings.TrimSuffix(name, ".json") + "_backup_"
	type stamped struct {
		name  string
		stamp int64
	}
	var found []stamped
	for _, entry := range entries {
		n := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(n, prefix) || !strings.HasSuffix(n, ".json") {
			continue
		}
		stamp, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(n, prefix), ".json"), 10, 64)
		if err != nil {
			continue
		}
		found = append(found, stamped{name: n, stamp: stamp})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].stamp > found[j].stamp })

	names := make([]string, len(found))
	for i, f := range found {
		names[i] = f.name
	}
	return names, nil
}

func (s *JSONStore) pruneBackups(name string) {
	backups, err := s.Backups(name)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to clean up old backups")
		return
	}
	if len(backups) <= s.backupKeep {
		return
	}
	for _, old := range backups[s.backupKeep:] {
		if err := os.Remove(s.path(old)); err != nil {
			s.logger.WithError(err).WithField("backup", old).Warn("Failed to remove old backup")
		}
	}
}

func readCollection[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	items := []T{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// writeCollection writes to a temp file, reads it back to check the item count and
// renames it over path.
func writeCollection[T any](path string, items []T) (err error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	written, err := readCollection[T](tmpPath)
	if err != nil {
		return fmt.Errorf("data validation failed after write: %w", err)
	}
	if len(written) != len(items) {
		err = fmt.Errorf("data validation failed after write: expected %d items, got %d", len(items), len(written))
		return err
	}

	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
