package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lehigh-university-libraries/shelfwise/internal/models"
	"github.com/lehigh-university-libraries/shelfwise/internal/storage"
	"golang.org/x/text/language"
)

// DefaultKey is the storage key the browser client used for its snapshot
const DefaultKey = "shelfwise-books"

// Store is an ordered, persisted list of books.
// Every mutation rewrites the whole snapshot under one key.
type Store struct {
	kv     storage.KV
	key    string
	locale language.Tag

	mu    sync.RWMutex
	books []models.Book
}

// Option configures a Store
type Option func(*Store)

// WithLocale sets the collation locale used by View
func WithLocale(tag language.Tag) Option {
	return func(s *Store) {
		s.locale = tag
	}
}

// Open hydrates a Store from kv. A missing or malformed snapshot starts an
// empty collection and is only logged. A storage read error is returned so
// the real snapshot is never overwritten by an empty one.
func Open(ctx context.Context, kv storage.KV, key string, opts ...Option) (*Store, error) {
	if kv == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if key == "" {
		key = DefaultKey
	}

	s := &Store{
		kv:     kv,
		key:    key,
		locale: language.English,
		books:  []models.Book{},
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read books: %w", err)
	}
	switch {
	case !ok:
		slog.Debug("No stored books, starting empty", "key", key)
	default:
		books, err := decodeSnapshot(raw)
		if err != nil {
			slog.Error("Failed to parse books from storage", "key", key, "err", err)
			break
		}
		s.books = books
		slog.Info("Books loaded", "key", key, "count", len(books))
	}

	return s, nil
}

// Add appends book and persists the collection. If persisting fails the
// append is undone.
func (s *Store) Add(ctx context.Context, book models.Book) error {
	if err := checkBook(book); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.books {
		if existing.ID == book.ID {
			return fmt.Errorf("duplicate book id %q", book.ID)
		}
	}

	next := make([]models.Book, len(s.books), len(s.books)+1)
	copy(next, s.books)
	next = append(next, book)

	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.books = next
	return nil
}

// Remove deletes the book with id and persists the collection. An unknown
// id is not an error; it reports false and writes nothing.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]models.Book, 0, len(s.books))
	for _, book := range s.books {
		if book.ID != id {
			next = append(next, book)
		}
	}
	if len(next) == len(s.books) {
		return false, nil
	}

	if err := s.persist(ctx, next); err != nil {
		return false, err
	}
	s.books = next
	return true, nil
}

// List returns the books in insertion order
func (s *Store) List() []models.Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Book, len(s.books))
	copy(out, s.books)
	return out
}

// Get looks up a single book
func (s *Store) Get(id string) (models.Book, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, book := range s.books {
		if book.ID == id {
			return book, true
		}
	}
	return models.Book{}, false
}

// Len returns the number of books
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.books)
}

func (s *Store) persist(ctx context.Context, books []models.Book) error {
	data, err := json.Marshal(books)
	if err != nil {
		return fmt.Errorf("failed to encode books: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("failed to persist books: %w", err)
	}
	slog.Debug("Books persisted", "key", s.key, "count", len(books))
	return nil
}

// decodeSnapshot parses a stored snapshot and rejects it as a whole if any
// record breaks the collection invariants.
func decodeSnapshot(raw string) ([]models.Book, error) {
	var books []models.Book
	if err := json.Unmarshal([]byte(raw), &books); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if books == nil {
		return []models.Book{}, nil
	}

	seen := make(map[string]struct{}, len(books))
	for i, book := range books {
		if err := checkBook(book); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if _, dup := seen[book.ID]; dup {
			return nil, fmt.Errorf("record %d: duplicate book id %q", i, book.ID)
		}
		seen[book.ID] = struct{}{}
	}
	return books, nil
}

func checkBook(book models.Book) error {
	switch {
	case book.ID == "":
		return fmt.Errorf("book id is required")
	case book.Title == "" || book.Author == "" || book.Category == "":
		return fmt.Errorf("book %q is missing title, author or category", book.ID)
	case book.CoverImageURL == "":
		return fmt.Errorf("book %q has no cover", book.ID)
	case !book.Status.Valid():
		return fmt.Errorf("book %q has invalid status %q", book.ID, book.Status)
	}
	return nil
}
