package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teranos/shelf/store"
	"github.com/teranos/shelf/version"
)

// bookmarkRequest is the payload of POST /bookmark and of each batch entry
type bookmarkRequest struct {
	URL         string   `json:"url" validate:"required,url"`
	Title       string   `json:"title" validate:"max=1000"`
	Alias       string   `json:"alias" validate:"max=100"`
	Path        []string `json:"path" validate:"max=64,dive,max=500"`
	Tags        []string `json:"tags" validate:"max=64,dive,max=100"`
	Category    string   `json:"category" validate:"max=100"`
	Group       string   `json:"group" validate:"max=100"`
	Description string   `json:"description" validate:"max=10000"`
	Date        string   `json:"date"`
}

func (b bookmarkRequest) bookmark() store.Bookmark {
	return store.Bookmark{
		URL:         b.URL,
		Title:       b.Title,
		Alias:       b.Alias,
		Path:        b.Path,
		Tags:        b.Tags,
		Category:    b.Category,
		Group:       b.Group,
		Description: b.Description,
		Date:        b.Date,
	}
}

type batchRequest struct {
	Bookmarks []bookmarkRequest `json:"bookmarks" validate:"required,min=1,max=5000,dive"`
}

type patchRequest struct {
	Title    *string  `json:"title" validate:"omitempty,max=1000"`
	Alias    *string  `json:"alias" validate:"omitempty,max=100"`
	Category *string  `json:"category" validate:"omitempty,max=100"`
	Group    *string  `json:"group" validate:"omitempty,max=100"`
	Tags     []string `json:"tags" validate:"omitempty,max=64,dive,max=100"`
}

// HandleHealth reports liveness, version and registered units
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"state":   s.State().String(),
		"version": version.Get().Version,
		"units":   s.registry.Names(),
	})
}

// HandleCreateBookmark handles POST /bookmark
func (s *Server) HandleCreateBookmark(w http.ResponseWriter, r *http.Request) {
	var req bookmarkRequest
	if err := readJSON(r, &req); err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	b, err := s.store.Insert(r.Context(), req.bookmark())
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// HandleBatchBookmarks handles POST /bookmarks/batch. Existing URLs are replaced.
func (s *Server) HandleBatchBookmarks(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := readJSON(r, &req); err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	bookmarks := make([]store.Bookmark, len(req.Bookmarks))
	for i, b := range req.Bookmarks {
		bookmarks[i] = b.bookmark()
	}
	n, err := s.store.PutBatch(r.Context(), bookmarks)
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"stored": n})
}

// HandleGetBookmark handles GET /bookmark?url=
func (s *Server) HandleGetBookmark(w http.ResponseWriter, r *http.Request) {
	url, err := requireURL(r)
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	b, err := s.store.Get(r.Context(), url)
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleUpdateBookmark handles PUT /bookmark?url=
func (s *Server) HandleUpdateBookmark(w http.ResponseWriter, r *http.Request) {
	url, err := requireURL(r)
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	var req patchRequest
	if err := readJSON(r, &req); err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	b, err := s.store.Update(r.Context(), url, store.Patch{
		Title:    req.Title,
		Alias:    req.Alias,
		Category: req.Category,
		Group:    req.Group,
		Tags:     req.Tags,
	})
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleDeleteBookmark handles DELETE /bookmark?url=
func (s *Server) HandleDeleteBookmark(w http.ResponseWriter, r *http.Request) {
	url, err := requireURL(r)
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	if err := s.store.Delete(r.Context(), url); err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListBookmarks handles GET /bookmarks?limit=&offset=
func (s *Server) HandleListBookmarks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	list, err := s.store.List(r.Context(), store.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleListByCategory handles GET /bookmarks/category/{category}
func (s *Server) HandleListByCategory(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListByCategory(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleListByTag handles GET /bookmarks/tag/{tag}
func (s *Server) HandleListByTag(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListByTag(r.Context(), chi.URLParam(r, "tag"))
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleStats handles GET /bookmarks/stats
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeErr(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
