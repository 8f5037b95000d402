package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shelfmark/shelfmark-server/internal/api/dto"
	"github.com/shelfmark/shelfmark-server/internal/cleanup"
	"github.com/shelfmark/shelfmark-server/internal/domain"
	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
	"github.com/shelfmark/shelfmark-server/internal/http/response"
	"github.com/shelfmark/shelfmark-server/internal/media/images"
	"github.com/shelfmark/shelfmark-server/internal/service"
)

// maxJSONBody bounds plain JSON update bodies.
const maxJSONBody = 1 << 20

func (s *Server) registerUploadRoutes() {
	// Create and update carry a cover image, so they use chi directly for
	// multipart form handling.
	s.router.With(s.requireAuth).Post("/api/books", s.handleCreateBook)
	s.router.With(s.requireAuth).Put("/api/books/{id}", s.handleUpdateBook)

	s.router.Get("/uploads/*", s.handleServeUpload)
}

// bookPayload is the "book" form field (or the JSON body of an update
// without image).
type bookPayload struct {
	Title  *string    `json:"title"`
	Author *string    `json:"author"`
	Genre  *string    `json:"genre"`
	Year   *yearValue `json:"year"`
}

// yearValue accepts 1999 as well as "1999"; payloads built from HTML forms
// often quote numbers.
type yearValue int

func (y *yearValue) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return errors.New("year must be a whole number")
	}
	*y = yearValue(n)
	return nil
}

// fromFormFields reads title, author, genre and year sent as plain form
// fields instead of a "book" JSON field. Absent fields stay nil.
func (p *bookPayload) fromFormFields(values map[string][]string) error {
	field := func(name string) *string {
		if v := values[name]; len(v) > 0 {
			return &v[0]
		}
		return nil
	}

	p.Title = field("title")
	p.Author = field("author")
	p.Genre = field("genre")

	raw := field("year")
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	var year yearValue
	if err := year.UnmarshalJSON([]byte(strings.TrimSpace(*raw))); err != nil {
		return domainerrors.ValidationWithDetails("year must be a whole number",
			map[string]string{"year": err.Error()})
	}
	p.Year = &year
	return nil
}

func (p bookPayload) toInput() service.BookInput {
	in := service.BookInput{
		Title:  deref(p.Title),
		Author: deref(p.Author),
		Genre:  deref(p.Genre),
	}
	if p.Year != nil {
		year := int(*p.Year)
		in.Year = &year
	}
	return in
}

func (p bookPayload) toPatch() domain.BookPatch {
	patch := domain.BookPatch{
		Title:  p.Title,
		Author: p.Author,
		Genre:  p.Genre,
	}
	if p.Year != nil {
		year := int(*p.Year)
		patch.Year = &year
	}
	return patch
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// uploadedFile is the "image" form file, read into memory.
type uploadedFile struct {
	Name string
	Data []byte
}

// handleCreateBook creates a book from a multipart form.
// POST /api/books
// Content-Type: multipart/form-data with "image" file and "book" JSON field
func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := getUserID(ctx)

	payload, upload, err := s.parseBookForm(w, r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	if upload == nil {
		response.HandleError(w, domainerrors.ValidationWithDetails("image is required",
			map[string]string{"image": "is required"}), s.logger)
		return
	}

	// Check the fields before anything touches the disk.
	input := payload.toInput()
	if err := s.validateBookInput(input); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	image, err := s.storeUpload(upload)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	book, err := s.services.Catalog.Create(ctx, userID, input, *image)
	if err != nil {
		s.discardUpload(image.Ref)
		response.HandleError(w, err, s.logger)
		return
	}

	response.Created(w, dto.BookMessageResponse{
		Message: "Book created",
		Book:    dto.NewBook(book, s.config.PublicURL),
	}, s.logger)
}

// handleUpdateBook updates a book. A multipart body may carry a new "image"
// and a "book" JSON field; any other body is read as the JSON patch itself.
// PUT /api/books/{id}
func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := getUserID(ctx)
	bookID := chi.URLParam(r, "id")

	var (
		payload *bookPayload
		upload  *uploadedFile
		err     error
	)
	if isMultipart(r) {
		payload, upload, err = s.parseBookForm(w, r)
	} else {
		payload, err = parseJSONPayload(w, r)
	}
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	var image *service.ImageChange
	if upload != nil {
		image, err = s.storeUpload(upload)
		if err != nil {
			response.HandleError(w, err, s.logger)
			return
		}
	}

	book, err := s.services.Catalog.Update(ctx, userID, bookID, payload.toPatch(), image)
	if err != nil {
		if image != nil {
			s.discardUpload(image.Ref)
		}
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, dto.BookMessageResponse{
		Message: "Book updated",
		Book:    dto.NewBook(book, s.config.PublicURL),
	}, s.logger)
}

// handleServeUpload serves a stored cover image.
// GET /uploads/{file}
func (s *Server) handleServeUpload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")

	path, err := s.storage.Covers.Path(images.RefPrefix + "/" + name)
	if err != nil {
		response.Error(w, http.StatusNotFound, domainerrors.CodeNotFound, "image not found", s.logger)
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		response.Error(w, http.StatusNotFound, domainerrors.CodeNotFound, "image not found", s.logger)
		return
	}

	// ServeFile answers If-None-Match against this ETag with 304.
	if hash, err := s.storage.Covers.Hash(images.RefPrefix + "/" + name); err == nil {
		w.Header().Set("ETag", `"`+hash+`"`)
	} else {
		s.logger.Debug("cover etag skipped", "name", name, "error", err)
	}

	w.Header().Set("Cache-Control", CacheOneWeek)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, path)
}

// parseBookForm reads the multipart form. The image is optional here;
// callers decide whether it is required.
func (s *Server) parseBookForm(w http.ResponseWriter, r *http.Request) (*bookPayload, *uploadedFile, error) {
	limit := s.config.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, uploadTooLarge(limit)
		}
		return nil, nil, domainerrors.Validation("request must be a multipart form")
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	payload := &bookPayload{}
	if raw := r.FormValue("book"); raw != "" {
		if err := json.Unmarshal([]byte(raw), payload); err != nil {
			return nil, nil, domainerrors.ValidationWithDetails("book must be a JSON object",
				map[string]string{"book": err.Error()})
		}
	} else if err := payload.fromFormFields(r.MultipartForm.Value); err != nil {
		return nil, nil, err
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return payload, nil, nil
	}
	if err != nil {
		return nil, nil, domainerrors.ValidationWithDetails("image could not be read",
			map[string]string{"image": err.Error()})
	}
	defer file.Close()

	if header.Size > limit {
		return nil, nil, uploadTooLarge(limit)
	}

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read uploaded image: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, nil, uploadTooLarge(limit)
	}

	return payload, &uploadedFile{Name: header.Filename, Data: data}, nil
}

func parseJSONPayload(w http.ResponseWriter, r *http.Request) (*bookPayload, error) {
	payload := &bookPayload{}

	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(payload)
	if errors.Is(err, io.EOF) {
		return payload, nil
	}
	if err != nil {
		return nil, domainerrors.ValidationWithDetails("body must be a JSON object",
			map[string]string{"body": err.Error()})
	}
	return payload, nil
}

// validateBookInput runs the create checks that need no image, so a bad
// payload never leaves a file behind.
func (s *Server) validateBookInput(in service.BookInput) error {
	return s.services.Catalog.ValidateInput(in)
}

// storeUpload saves the image and derives its BlurHash.
func (s *Server) storeUpload(upload *uploadedFile) (*service.ImageChange, error) {
	saved, err := s.storage.Covers.Save(upload.Name, upload.Data)
	if err != nil {
		if errors.Is(err, images.ErrUnsupportedType) {
			return nil, domainerrors.ValidationWithDetails("image must be a JPEG, PNG, GIF or WebP file",
				map[string]string{"image": "unsupported image type"})
		}
		return nil, fmt.Errorf("store uploaded image: %w", err)
	}

	hash, err := images.ComputeBlurHash(upload.Data)
	if err != nil {
		s.logger.Debug("blurhash skipped", "ref", saved.Ref, "error", err)
	}

	s.logger.Info("cover uploaded",
		"ref", saved.Ref,
		"size", saved.Size,
		"mime", saved.Mime,
	)

	return &service.ImageChange{Ref: saved.Ref, BlurHash: hash}, nil
}

// discardUpload removes an image whose book write failed.
func (s *Server) discardUpload(ref string) {
	if s.storage.Cleaner != nil {
		if err := s.storage.Cleaner.Enqueue(ref, cleanup.ReasonWriteFailed); err == nil {
			return
		}
	}
	if err := s.storage.Covers.Delete(ref); err != nil {
		s.logger.Warn("failed to discard upload", "ref", ref, "error", err)
	}
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func uploadTooLarge(limit int64) error {
	return domainerrors.ValidationWithDetails("image is too large",
		map[string]string{"image": fmt.Sprintf("must not exceed %d MB", limit>>20)})
}
