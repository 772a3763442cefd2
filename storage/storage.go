// Package storage keeps a journal of poll iterations.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"

	"homework-notifier/pkg/homework"
)

const keyPrefix = "iter-"

// Store handles iteration record persistence, either in a local directory
// or in a Cloud Storage bucket.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
}

// New creates a new storage handler. localPath wins over bucket when both are set.
func New(client *storage.Client, bucket string, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
	}
}

// IterationKey generates a filename that sorts by start time.
func IterationKey(rec *homework.Iteration) string {
	return fmt.Sprintf("%s%020d-%s.json", keyPrefix, rec.StartedAt.UnixNano(), rec.ID)
}

// Save stores an iteration record.
func (s *Store) Save(ctx context.Context, rec *homework.Iteration) error {
	if rec.ID == "" {
		return errors.New("iteration has no id")
	}
	key := IterationKey(rec)
	s.logger.Debug("Saving iteration", "key", key)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal iteration: %w", err)
	}

	// Local filesystem storage
	if s.localPath != "" {
		filePath := filepath.Join(s.localPath, key)
		if err := os.WriteFile(filePath, data, 0o600); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		s.logger.Debug("Iteration saved to local storage", "path", filePath)
		return nil
	}

	// Cloud Storage with retry logic for reliability
	err = retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying save operation after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}

	s.logger.Debug("Iteration saved", "bucket", s.bucket, "key", key)
	return nil
}

// Load loads an iteration record by key.
func (s *Store) Load(ctx context.Context, key string) (*homework.Iteration, error) {
	if !validKey(key) {
		return nil, errors.New("invalid key format")
	}

	var data []byte

	// Local filesystem storage
	if s.localPath != "" {
		var err error
		data, err = os.ReadFile(filepath.Join(s.localPath, key))
		if err != nil {
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
	} else {
		err := retry.Do(
			func() error {
				r, openErr := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
				if openErr != nil {
					// Don't retry on "not found" errors
					if errors.Is(openErr, storage.ErrObjectNotExist) {
						return retry.Unrecoverable(fmt.Errorf("open storage reader: %w", openErr))
					}
					return fmt.Errorf("open storage reader: %w", openErr)
				}
				defer func() {
					if closeErr := r.Close(); closeErr != nil {
						s.logger.Warn("Failed to close storage reader", "error", closeErr)
					}
				}()

				var readErr error
				data, readErr = io.ReadAll(r)
				if readErr != nil {
					return fmt.Errorf("read from storage: %w", readErr)
				}
				return nil
			},
			retry.Attempts(3),
			retry.Delay(time.Second),
			retry.MaxDelay(30*time.Second),
			retry.MaxJitter(5*time.Second),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, retryErr error) {
				s.logger.Info("Retrying load operation after error", "attempt", n, "key", key, "error", retryErr)
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("load after retries: %w", err)
		}
	}

	var rec homework.Iteration
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal iteration: %w", err)
	}
	return &rec, nil
}

// List returns up to limit of the most recent iteration records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*homework.Iteration, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return nil, err
	}

	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	recs := make([]*homework.Iteration, 0, len(keys))
	for _, key := range keys {
		rec, err := s.Load(ctx, key)
		if err != nil {
			s.logger.Warn("Failed to load iteration", "key", key, "error", err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *Store) keys(ctx context.Context) ([]string, error) {
	var keys []string

	// Local filesystem storage
	if s.localPath != "" {
		entries, err := os.ReadDir(s.localPath)
		if err != nil {
			return nil, fmt.Errorf("read local storage directory: %w", err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && validKey(entry.Name()) {
				keys = append(keys, entry.Name())
			}
		}
		return keys, nil
	}

	// Cloud Storage
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: keyPrefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate storage: %w", err)
		}
		if validKey(attrs.Name) {
			keys = append(keys, attrs.Name)
		}
	}
	return keys, nil
}

// validKey rejects anything that could escape the journal directory.
func validKey(key string) bool {
	return strings.HasPrefix(key, keyPrefix) &&
		strings.HasSuffix(key, ".json") &&
		!strings.ContainsAny(key, `/\`) &&
		!strings.Contains(key, "..")
}
