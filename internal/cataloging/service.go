package cataloging

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/shelfwise/internal/covers"
	"github.com/lehigh-university-libraries/shelfwise/internal/models"
	"github.com/lehigh-university-libraries/shelfwise/internal/validation"
)

// ErrSubmissionInFlight is returned when a session already has a submission running
var ErrSubmissionInFlight = errors.New("a submission is already in progress")

const (
	generationFailedMessage = "Failed to add book. The cover generation might have failed."
	inFlightMessage         = "A submission is already in progress."
)

// State is a step of the add-book workflow
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateInvalid    State = "invalid"
	StateGenerating State = "generating"
	StateReady      State = "ready"
	StateFailed     State = "failed"
	// StateRejected means another submission for the session was still running
	StateRejected State = "rejected"
)

// CoverGenerator produces a cover image reference for a book
type CoverGenerator interface {
	Generate(ctx context.Context, input covers.Input) (string, error)
}

// Result is the outcome of one submission attempt
type Result struct {
	Success bool                   `json:"success"`
	Book    *models.Book           `json:"book,omitempty"`
	Errors  validation.FieldErrors `json:"errors,omitempty"`
	State   State                  `json:"-"`
	Err     error                  `json:"-"`
}

// Service runs add-book submissions
type Service struct {
	covers CoverGenerator
	newID  func() string

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewService creates a submission service backed by the given cover generator
func NewService(generator CoverGenerator) *Service {
	return &Service{
		covers:   generator,
		newID:    uuid.NewString,
		inFlight: make(map[string]struct{}),
	}
}

// AddBook validates the raw form fields, generates a cover, and assembles a
// new book. It never touches a collection; callers append on success.
func (s *Service) AddBook(ctx context.Context, sessionID string, raw map[string]string) Result {
	if !s.acquire(sessionID) {
		slog.Warn("Rejected concurrent submission", "session_id", sessionID)
		return Result{
			Errors: validation.General(inFlightMessage),
			State:  StateRejected,
			Err:    ErrSubmissionInFlight,
		}
	}
	defer s.release(sessionID)

	s.transition(sessionID, StateValidating)
	input, fieldErrs := validation.Validate(raw)
	if fieldErrs != nil {
		s.transition(sessionID, StateInvalid)
		return Result{Errors: fieldErrs, State: StateInvalid}
	}

	s.transition(sessionID, StateGenerating)
	coverURL, err := s.covers.Generate(ctx, covers.Input{
		Title:  input.Title,
		Author: input.Author,
		ISBN:   input.ISBN,
	})
	if err == nil && coverURL == "" {
		err = covers.ErrEmptyCover
	}
	if err != nil {
		slog.Error("Error in add book submission", "session_id", sessionID, "isbn", input.ISBN, "err", err)
		s.transition(sessionID, StateFailed)
		return Result{
			Errors: validation.General(generationFailedMessage),
			State:  StateFailed,
			Err:    err,
		}
	}

	book := models.NewBook(s.newID(), input, coverURL)
	s.transition(sessionID, StateReady)
	slog.Info("Book assembled", "session_id", sessionID, "id", book.ID, "status", book.Status)

	return Result{Success: true, Book: &book, State: StateReady}
}

// InFlight reports whether sessionID has a submission running
func (s *Service) InFlight(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[sessionID]
	return ok
}

func (s *Service) acquire(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[sessionID]; busy {
		return false
	}
	s.inFlight[sessionID] = struct{}{}
	return true
}

func (s *Service) release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, sessionID)
}

func (s *Service) transition(sessionID string, state State) {
	slog.Debug("Submission state", "session_id", sessionID, "state", state)
}
