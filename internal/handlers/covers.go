package handlers

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/shelfwise/internal/models"
	"github.com/lehigh-university-libraries/shelfwise/internal/utils"
)

// serveCover writes inline covers as image bytes and redirects to hosted ones
func (h *Handler) serveCover(w http.ResponseWriter, r *http.Request, book models.Book) {
	ref := book.CoverImageURL
	if !strings.HasPrefix(ref, "data:") {
		if !isHostedURL(ref) {
			h.writeError(w, "Cover not available", http.StatusNotFound)
			return
		}
		http.Redirect(w, r, ref, http.StatusFound)
		return
	}

	mimeType, data, err := decodeDataURI(ref)
	if err != nil {
		h.writeError(w, "Unable to decode cover: "+err.Error(), http.StatusInternalServerError)
		return
	}

	etag := `"` + utils.CalculateDataMD5(data) + `"`
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if width, height, err := getImageDimensions(data); err != nil {
		slog.Debug("Failed to get cover dimensions", "id", book.ID, "error", err)
	} else {
		w.Header().Set("X-Cover-Width", strconv.Itoa(width))
		w.Header().Set("X-Cover-Height", strconv.Itoa(height))
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if _, err := w.Write(data); err != nil {
		slog.Error("Unable to write cover", "id", book.ID, "err", err)
	}
}

// isHostedURL reports whether ref is an absolute http or https URL
func isHostedURL(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// decodeDataURI parses data:<mime>;base64,<payload>
func decodeDataURI(ref string) (string, []byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URI")
	}
	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("only base64 data URIs are supported")
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode base64 payload: %w", err)
	}
	return mimeType, data, nil
}

func getImageDimensions(data []byte) (int, int, error) {
	img, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return img.Width, img.Height, nil
}
