package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/shelfwise/internal/cataloging"
	"github.com/lehigh-university-libraries/shelfwise/internal/collection"
	"github.com/lehigh-university-libraries/shelfwise/internal/models"
)

const (
	sessionHeader    = "X-Session-ID"
	defaultSessionID = "default"
	maxFormBytes     = 1 << 20
)

type Handler struct {
	collection *collection.Store
	service    *cataloging.Service
}

func New(books *collection.Store, service *cataloging.Service) *Handler {
	return &Handler{
		collection: books,
		service:    service,
	}
}

// Routes registers the API on a new mux
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/books", h.HandleBooks)
	mux.HandleFunc("/api/books/", h.HandleBookDetail)
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	return mux
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

// Book helpers
func (h *Handler) getBookOrError(w http.ResponseWriter, id string) (models.Book, bool) {
	book, exists := h.collection.Get(id)
	if !exists {
		h.writeError(w, "Book not found", http.StatusNotFound)
		return models.Book{}, false
	}
	return book, true
}

// Request helpers
func sessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(sessionHeader)); id != "" {
		return id
	}
	return defaultSessionID
}

// readRawForm collects submitted fields from a JSON object, a urlencoded
// body or a multipart form. JSON values must be strings or null. Only the
// first value of a repeated field counts.
func readRawForm(r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxFormBytes)
	contentType := r.Header.Get("Content-Type")

	raw := make(map[string]string)
	if strings.Contains(contentType, "application/json") {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		for key, value := range body {
			switch v := value.(type) {
			case nil:
			case string:
				raw[key] = v
			default:
				return nil, fmt.Errorf("field %s must be a string", key)
			}
		}
		return raw, nil
	}

	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxFormBytes); err != nil {
			return nil, fmt.Errorf("invalid form: %w", err)
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form: %w", err)
	}
	for key, values := range r.PostForm {
		if len(values) > 0 {
			raw[key] = values[0]
		}
	}
	return raw, nil
}
