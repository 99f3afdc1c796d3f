package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/shelfwise/internal/cataloging"
	"github.com/lehigh-university-libraries/shelfwise/internal/collection"
	"github.com/lehigh-university-libraries/shelfwise/internal/models"
	"github.com/lehigh-university-libraries/shelfwise/internal/validation"
)

type addBookResponse struct {
	cataloging.Result
	ActiveView models.Status `json:"activeView,omitempty"`
}

type validateResponse struct {
	Success bool                   `json:"success"`
	Errors  validation.FieldErrors `json:"errors,omitempty"`
}

func (h *Handler) HandleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		h.listBooks(w, r)
	case "POST":
		h.addBook(w, r)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) HandleBookDetail(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/books/")

	if path == "validate" {
		if r.Method != "POST" {
			h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.validateBook(w, r)
		return
	}

	id, rest, _ := strings.Cut(path, "/")
	if id == "" {
		h.writeError(w, "Book not found", http.StatusNotFound)
		return
	}

	switch rest {
	case "":
	case "cover":
		if r.Method != "GET" {
			h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		book, ok := h.getBookOrError(w, id)
		if !ok {
			return
		}
		h.serveCover(w, r, book)
		return
	default:
		h.writeError(w, "Not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case "GET":
		book, ok := h.getBookOrError(w, id)
		if !ok {
			return
		}
		h.writeJSON(w, http.StatusOK, book)
	case "DELETE":
		removed, err := h.collection.Remove(r.Context(), id)
		if err != nil {
			h.writeError(w, "Failed to remove book: "+err.Error(), http.StatusInternalServerError)
			return
		}
		slog.Info("Book removed", "id", id, "removed", removed)
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listBooks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	sortOpt, err := collection.ParseSort(query.Get("sort"))
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	status := models.Status(query.Get("status"))
	if status != "" && !status.Valid() {
		h.writeError(w, "Invalid status. Must be 'owned' or 'wishlist'", http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, h.collection.View(sortOpt, status))
}

func (h *Handler) addBook(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawForm(r)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	session := sessionID(r)
	result := h.service.AddBook(r.Context(), session, raw)

	switch result.State {
	case cataloging.StateReady:
	case cataloging.StateInvalid:
		h.writeJSON(w, http.StatusUnprocessableEntity, addBookResponse{Result: result})
		return
	case cataloging.StateRejected:
		h.writeJSON(w, http.StatusConflict, addBookResponse{Result: result})
		return
	default:
		h.writeJSON(w, http.StatusBadGateway, addBookResponse{Result: result})
		return
	}

	if err := h.collection.Add(r.Context(), *result.Book); err != nil {
		slog.Error("Failed to store book", "session_id", session, "id", result.Book.ID, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, addBookResponse{Result: cataloging.Result{
			Errors: validation.General("Failed to save book."),
		}})
		return
	}

	slog.Info("Book added", "session_id", session, "id", result.Book.ID, "title", result.Book.Title)
	h.writeJSON(w, http.StatusCreated, addBookResponse{
		Result:     result,
		ActiveView: result.Book.Status,
	})
}

func (h *Handler) validateBook(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawForm(r)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	_, errs := validation.Validate(raw)
	if errs != nil {
		h.writeJSON(w, http.StatusUnprocessableEntity, validateResponse{Errors: errs})
		return
	}
	h.writeJSON(w, http.StatusOK, validateResponse{Success: true})
}
