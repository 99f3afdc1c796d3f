package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/shelfwise/internal/cataloging"
	"github.com/lehigh-university-libraries/shelfwise/internal/collection"
	"github.com/lehigh-university-libraries/shelfwise/internal/covers"
	"github.com/lehigh-university-libraries/shelfwise/internal/models"
	"github.com/lehigh-university-libraries/shelfwise/internal/storage"
)

type stubCovers struct {
	ref   string
	err   error
	calls int

	// started is closed when Generate is entered; Generate then waits on release
	started chan struct{}
	release chan struct{}
}

func (s *stubCovers) Generate(_ context.Context, _ covers.Input) (string, error) {
	s.calls++
	if s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		<-s.release
	}
	return s.ref, s.err
}

type readOnlyKV struct {
	storage.KV
}

func (readOnlyKV) Set(context.Context, string, string) error {
	return errors.New("read-only file system")
}

type testEnv struct {
	handler *Handler
	server  *httptest.Server
	books   *collection.Store
	kv      storage.KV
	covers  *stubCovers
}

func newTestEnv(t *testing.T, generator *stubCovers) *testEnv {
	t.Helper()
	return newTestEnvWithKV(t, generator, storage.NewMemoryStore())
}

func newTestEnvWithKV(t *testing.T, generator *stubCovers, kv storage.KV) *testEnv {
	t.Helper()
	books, err := collection.Open(context.Background(), kv, collection.DefaultKey)
	if err != nil {
		t.Fatalf("open collection: %v", err)
	}
	h := New(books, cataloging.NewService(generator))
	server := httptest.NewServer(h.Routes())
	t.Cleanup(server.Close)
	return &testEnv{handler: h, server: server, books: books, kv: kv, covers: generator}
}

func (e *testEnv) do(t *testing.T, method, path, contentType string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

type addResponse struct {
	Success    bool                `json:"success"`
	Book       *models.Book        `json:"book"`
	Errors     map[string][]string `json:"errors"`
	ActiveView string              `json:"activeView"`
}

const duneJSON = `{"title":"Dune","author":"Frank Herbert","isbn":"9780441013593","category":"Sci-Fi","status":"wishlist"}`

func TestAddBookJSON(t *testing.T) {
	env := newTestEnv(t, &stubCovers{ref: "img://dune.png"})

	resp := env.do(t, "POST", "/api/books", "application/json", []byte(duneJSON))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	body := decode[addResponse](t, resp)
	if !body.Success || body.Book == nil {
		t.Fatalf("Expected success with book, got %+v", body)
	}
	if body.Book.CoverImageURL != "img://dune.png" || body.Book.Status != models.StatusWishlist {
		t.Errorf("Unexpected book %+v", body.Book)
	}
	if body.ActiveView != "wishlist" {
		t.Errorf("Expected active view wishlist, got %q", body.ActiveView)
	}
	if env.books.Len() != 1 {
		t.Errorf("Expected book stored, got %d", env.books.Len())
	}

	stored, ok, _ := env.kv.Get(context.Background(), collection.DefaultKey)
	if !ok || !strings.Contains(stored, body.Book.ID) {
		t.Errorf("Expected snapshot to contain new book, got %q", stored)
	}
}

func TestAddBookURLEncodedForm(t *testing.T) {
	env := newTestEnv(t, &stubCovers{ref: "img://dune.png"})

	form := url.Values{
		"title":    {"Dune"},
		"author":   {"Frank Herbert"},
		"isbn":     {"9780441013593"},
		"category": {"Sci-Fi"},
		"status":   {"owned"},
	}
	resp := env.do(t, "POST", "/api/books", "application/x-www-form-urlencoded", []byte(form.Encode()))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
}

func TestAddBookMultipartForm(t *testing.T) {
	env := newTestEnv(t, &stubCovers{ref: "img://dune.png"})

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range map[string]string{
		"title": "Dune", "author": "Frank Herbert", "isbn": "9780441013593",
		"category": "Sci-Fi", "status": "owned", "description": "Desert planet",
	} {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	writer.Close()

	resp := env.do(t, "POST", "/api/books", writer.FormDataContentType(), buf.Bytes())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	body := decode[addResponse](t, resp)
	if body.Book.Description != "Desert planet" {
		t.Errorf("Expected description, got %q", body.Book.Description)
	}
}

func TestAddBookInvalid(t *testing.T) {
	env := newTestEnv(t, &stubCovers{ref: "img://dune.png"})

	resp := env.do(t, "POST", "/api/books", "application/json", []byte(`{"author":"Frank Herbert","isbn":"9780441013593","category":"Sci-Fi","status":"owned"}`))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d", resp.StatusCode)
	}
	body := decode[addResponse](t, resp)
	if body.Success || len(body.Errors["title"]) == 0 {
		t.Errorf("Expected title error, got %+v", body)
	}
	if env.covers.calls != 0 {
		t.Errorf("Expected no cover request, got %d", env.covers.calls)
	}
	if env.books.Len() != 0 {
		t.Error("Expected nothing stored")
	}
}

func TestAddBookGenerationFailure(t *testing.T) {
	tests := map[string]*stubCovers{
		"empty reference": {ref: ""},
		"provider error":  {err: errors.New("quota")},
	}

	for name, generator := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, generator)

			resp := env.do(t, "POST", "/api/books", "application/json", []byte(duneJSON))
			if resp.StatusCode != http.StatusBadGateway {
				t.Fatalf("Expected 502, got %d", resp.StatusCode)
			}
			body := decode[addResponse](t, resp)
			if len(body.Errors["_general"]) != 1 {
				t.Errorf("Expected one general error, got %v", body.Errors)
			}
			if env.books.Len() != 0 {
				t.Error("Expected nothing stored")
			}
		})
	}
}

func TestAddBookBadJSON(t *testing.T) {
	env := newTestEnv(t, &stubCovers{ref: "img://dune.png"})

	resp := env.do(t, "POST", "/api/books", "application/json", []byte(`{"title":`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestAddBookNonStringField(t *testing.T) {
	env := newTestEnv(t, &stubCovers{ref: "img://dune.png"})

	tests := map[string]string{
		"number title": `{"title":12345678901234567890,"author":"Frank Herbert","isbn":"9780441013593","category":"Sci-Fi","status":"owned"}`,
		"number isbn":  `{"title":"Dune","author":"Frank Herbert","isbn":1234567890,"category":"Sci-Fi","status":"owned"}`,
		"bool status":  `{"title":"Dune","author":"Frank Herbert","isbn":"9780441013593","category":"Sci-Fi","status":true}`,
		"array author": `{"title":"Dune","author":["Frank Herbert"],"isbn":"9780441013593","category":"Sci-Fi","status":"owned"}`,
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			resp := env.do(t, "POST", "/api/books", "application/json", []byte(payload))
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", resp.StatusCode)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if !strings.Contains(string(body), "must be a string") {
				t.Errorf("Expected string type error, got %q", body)
			}
		})
	}

	if env.covers.calls != 0 {
		t.Errorf("Expected no cover request, got %d", env.covers.calls)
	}
	if env.books.Len() != 0 {
		t.Errorf("Expected nothing stored, got %d", env.books.Len())
	}
}

func TestAddBookNullFieldIsAbsent(t *testing.T) {
	env := newTestEnv(t, &stubCovers{ref: "img://dune.png"})

	resp := env.do(t, "POST", "/api/books", "application/json", []byte(`{"title":"Dune","author":"Frank Herbert","isbn":"9780441013593","category":"Sci-Fi","status":"owned","description":null}`))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
}

func TestAddBookConcurrentSubmissionConflict(t *testing.T) {
	generator := &stubCovers{
		ref:     "img://dune.png",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	env := newTestEnv(t, generator)

	post := func() (*http.Response, error) {
		req, err := http.NewRequest("POST", env.server.URL+"/api/books", strings.NewReader(duneJSON))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(sessionHeader, "reader-1")
		return http.DefaultClient.Do(req)
	}

	type outcome struct {
		resp *http.Response
		err  error
	}
	first := make(chan outcome, 1)
	go func() {
		resp, err := post()
		first <- outcome{resp, err}
	}()

	<-generator.started
	resp, err := post()
	if err != nil {
		t.Fatalf("second POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for second submission, got %d", resp.StatusCode)
	}
	body := decode[addResponse](t, resp)
	if body.Success || len(body.Errors["_general"]) == 0 {
		t.Errorf("Expected general error, got %+v", body)
	}

	close(generator.release)
	got := <-first
	if got.err != nil {
		t.Fatalf("first POST: %v", got.err)
	}
	defer got.resp.Body.Close()
	if got.resp.StatusCode != http.StatusCreated {
		t.Errorf("Expected 201 for first submission, got %d", got.resp.StatusCode)
	}
	if generator.calls != 1 {
		t.Errorf("Expected one cover request, got %d", generator.calls)
	}
	if env.books.Len() != 1 {
		t.Errorf("Expected one book stored, got %d", env.books.Len())
	}
}

func TestAddBookPersistFailure(t *testing.T) {
	env := newTestEnvWithKV(t, &stubCovers{ref: "img://dune.png"}, readOnlyKV{KV: storage.NewMemoryStore()})

	resp := env.do(t, "POST", "/api/books", "application/json", []byte(duneJSON))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", resp.StatusCode)
	}
	body := decode[addResponse](t, resp)
	if body.Success || body.Book != nil {
		t.Errorf("Expected failure without book, got %+v", body)
	}
	if len(body.Errors["_general"]) != 1 {
		t.Errorf("Expected one general error, got %v", body.Errors)
	}
	if env.books.Len() != 0 {
		t.Errorf("Expected nothing stored, got %d", env.books.Len())
	}
}

func TestValidateEndpoint(t *testing.T) {
	env := newTestEnv(t, &stubCovers{ref: "img://dune.png"})

	resp := env.do(t, "POST", "/api/books/validate", "application/json", []byte(duneJSON))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	resp = env.do(t, "POST", "/api/books/validate", "application/json", []byte(`{"title":"Dune","isbn":"123"}`))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d", resp.StatusCode)
	}
	body := decode[addResponse](t, resp)
	for _, field := range []string{"author", "isbn", "category", "status"} {
		if len(body.Errors[field]) == 0 {
			t.Errorf("Expected %s error", field)
		}
	}
	if env.covers.calls != 0 {
		t.Error("Validation must not generate covers")
	}

	resp = env.do(t, "GET", "/api/books/validate", "", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}
}

func seed(t *testing.T, env *testEnv, books ...models.Book) {
	t.Helper()
	for _, b := range books {
		if err := env.books.Add(context.Background(), b); err != nil {
			t.Fatalf("seed %s: %v", b.ID, err)
		}
	}
}

func TestListBooks(t *testing.T) {
	env := newTestEnv(t, &stubCovers{})
	seed(t, env,
		models.Book{ID: "1", Title: "Dune", Author: "Frank Herbert", ISBN: "9780441013593", Category: "Sci-Fi", CoverImageURL: "img://1", Status: models.StatusOwned},
		models.Book{ID: "2", Title: "Anathem", Author: "Neal Stephenson", ISBN: "9780061474095", Category: "Sci-Fi", CoverImageURL: "img://2", Status: models.StatusOwned},
		models.Book{ID: "3", Title: "Emma", Author: "Jane Austen", ISBN: "9780141439587", Category: "Classic", CoverImageURL: "img://3", Status: models.StatusWishlist},
	)

	tests := []struct {
		query    string
		code     int
		expected []string
	}{
		{"", http.StatusOK, []string{"2", "1", "3"}},
		{"?status=owned", http.StatusOK, []string{"2", "1"}},
		{"?status=owned&sort=title-desc", http.StatusOK, []string{"1", "2"}},
		{"?status=wishlist&sort=author-asc", http.StatusOK, []string{"3"}},
		{"?status=borrowed", http.StatusBadRequest, nil},
		{"?sort=isbn", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp := env.do(t, "GET", "/api/books"+tt.query, "", nil)
			if resp.StatusCode != tt.code {
				t.Fatalf("Expected %d, got %d", tt.code, resp.StatusCode)
			}
			if tt.code != http.StatusOK {
				return
			}
			books := decode[[]models.Book](t, resp)
			if len(books) != len(tt.expected) {
				t.Fatalf("Expected %d books, got %d", len(tt.expected), len(books))
			}
			for i, id := range tt.expected {
				if books[i].ID != id {
					t.Errorf("Position %d: expected %s, got %s", i, id, books[i].ID)
				}
			}
		})
	}
}

func TestGetAndDeleteBook(t *testing.T) {
	env := newTestEnv(t, &stubCovers{})
	seed(t, env, models.Book{ID: "1", Title: "Dune", Author: "Frank Herbert", ISBN: "9780441013593", Category: "Sci-Fi", CoverImageURL: "img://1", Status: models.StatusOwned})

	resp := env.do(t, "GET", "/api/books/1", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if got := decode[models.Book](t, resp); got.Title != "Dune" {
		t.Errorf("Unexpected book %+v", got)
	}

	resp = env.do(t, "DELETE", "/api/books/1", "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", resp.StatusCode)
	}
	if env.books.Len() != 0 {
		t.Error("Expected book removed")
	}

	resp = env.do(t, "DELETE", "/api/books/1", "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected unknown delete to be a no-op, got %d", resp.StatusCode)
	}

	resp = env.do(t, "GET", "/api/books/1", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestServeCover(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 3))
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBuf.Bytes())

	env := newTestEnv(t, &stubCovers{})
	seed(t, env,
		models.Book{ID: "inline", Title: "Dune", Author: "Frank Herbert", ISBN: "9780441013593", Category: "Sci-Fi", CoverImageURL: dataURI, Status: models.StatusOwned},
		models.Book{ID: "hosted", Title: "Emma", Author: "Jane Austen", ISBN: "9780141439587", Category: "Classic", CoverImageURL: "https://covers.example/emma.png", Status: models.StatusOwned},
	)

	resp := env.do(t, "GET", "/api/books/inline/cover", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	if resp.Header.Get("X-Cover-Width") != "2" || resp.Header.Get("X-Cover-Height") != "3" {
		t.Errorf("Unexpected dimensions %s x %s", resp.Header.Get("X-Cover-Width"), resp.Header.Get("X-Cover-Height"))
	}
	var got bytes.Buffer
	if _, err := got.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(got.Bytes(), pngBuf.Bytes()) {
		t.Error("Expected decoded PNG bytes")
	}

	etag := resp.Header.Get("ETag")
	req, _ := http.NewRequest("GET", env.server.URL+"/api/books/inline/cover", nil)
	req.Header.Set("If-None-Match", etag)
	cached, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("conditional get: %v", err)
	}
	cached.Body.Close()
	if cached.StatusCode != http.StatusNotModified {
		t.Errorf("Expected 304, got %d", cached.StatusCode)
	}

	resp = env.do(t, "GET", "/api/books/hosted/cover", "", nil)
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "https://covers.example/emma.png" {
		t.Errorf("Expected redirect to hosted cover, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp = env.do(t, "GET", "/api/books/missing/cover", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestServeCoverRefusesNonHTTPReferences(t *testing.T) {
	env := newTestEnv(t, &stubCovers{})
	refs := map[string]string{
		"custom":          "img://dune.png",
		"script":          "javascript:alert(1)",
		"scheme-relative": "//evil.example/cover.png",
		"relative":        "/admin",
	}
	for id, ref := range refs {
		seed(t, env, models.Book{ID: id, Title: "Dune", Author: "Frank Herbert", ISBN: "9780441013593", Category: "Sci-Fi", CoverImageURL: ref, Status: models.StatusOwned})
	}

	for id := range refs {
		t.Run(id, func(t *testing.T) {
			resp := env.do(t, "GET", "/api/books/"+id+"/cover", "", nil)
			if resp.StatusCode != http.StatusNotFound {
				t.Errorf("Expected 404, got %d", resp.StatusCode)
			}
			if loc := resp.Header.Get("Location"); loc != "" {
				t.Errorf("Expected no redirect, got %s", loc)
			}
		})
	}
}

func TestDecodeDataURI(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		mime    string
		wantErr bool
	}{
		{"png", "data:image/png;base64,YWJj", "image/png", false},
		{"no mime", "data:;base64,YWJj", "application/octet-stream", false},
		{"no comma", "data:image/png;base64", "", true},
		{"not base64", "data:image/png,abc", "", true},
		{"bad payload", "data:image/png;base64,!!!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, data, err := decodeDataURI(tt.ref)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if mime != tt.mime || string(data) != "abc" {
				t.Errorf("Got %s %q", mime, data)
			}
		})
	}
}

func TestHealthcheck(t *testing.T) {
	env := newTestEnv(t, &stubCovers{})
	resp := env.do(t, "GET", "/healthcheck", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestSessionID(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/books", nil)
	if got := sessionID(req); got != defaultSessionID {
		t.Errorf("Expected default session, got %s", got)
	}
	req.Header.Set("X-Session-ID", "reader-42")
	if got := sessionID(req); got != "reader-42" {
		t.Errorf("Expected header session, got %s", got)
	}
}
