package validation

import (
	"strings"
	"unicode/utf8"

	"github.com/lehigh-university-libraries/shelfwise/internal/models"
)

// GeneralKey holds errors that do not belong to a single field
const GeneralKey = "_general"

const (
	minISBNLength = 10
	maxISBNLength = 13
)

// FieldErrors maps a form field name to its human readable messages
type FieldErrors map[string][]string

// Add appends a message for field
func (e FieldErrors) Add(field, message string) {
	e[field] = append(e[field], message)
}

// General returns FieldErrors carrying a single non-field message
func General(message string) FieldErrors {
	return FieldErrors{GeneralKey: {message}}
}

// Validate checks raw add-book form fields. Absent and empty values are
// treated the same. On failure the returned input is the zero value.
func Validate(raw map[string]string) (models.BookInput, FieldErrors) {
	field := func(name string) string {
		return strings.TrimSpace(raw[name])
	}

	input := models.BookInput{
		Title:       field("title"),
		Author:      field("author"),
		ISBN:        field("isbn"),
		Category:    field("category"),
		Description: field("description"),
		Status:      models.Status(field("status")),
	}

	errs := FieldErrors{}
	if input.Title == "" {
		errs.Add("title", "Title is required.")
	}
	if input.Author == "" {
		errs.Add("author", "Author is required.")
	}
	if n := utf8.RuneCountInString(input.ISBN); n < minISBNLength || n > maxISBNLength {
		errs.Add("isbn", "A valid ISBN is required.")
	}
	if input.Category == "" {
		errs.Add("category", "Category is required.")
	}
	switch {
	case input.Status == "":
		errs.Add("status", "You must select a status.")
	case !input.Status.Valid():
		errs.Add("status", "Status must be either owned or wishlist.")
	}

	if len(errs) > 0 {
		return models.BookInput{}, errs
	}
	return input, nil
}
