package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/nordbak/jotta-rest-proxy/internal/jfs"
)

// listContentType is the restic REST API v2 listing media type.
const (
	listContentType     = "application/vnd.x.restic.rest.v2"
	downloadContentType = "binary/octet-stream"
)

// repoSubdirs are the directories every restic repository needs.
var repoSubdirs = [...]string{"data", "index", "keys", "locks", "snapshots"}

// DirEntry is one row of a directory listing.
type DirEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// handleObject dispatches the blob verbs on a single resource path.
func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodHead:
		s.exists(w, r)
	case http.MethodGet:
		s.download(w, r)
	case http.MethodPost:
		s.upload(w, r)
	case http.MethodDelete:
		s.delete(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// exists answers HEAD: 200 with Content-Length for live files, 200
// without one for folders, 404 otherwise.
func (s *Server) exists(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	ok, err := s.backend.Exists(r.Context(), path)
	if err != nil {
		log.Error().Err(err).Str("action", "exists").Str("path", path).Msg("existence probe failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	obj, err := s.backend.QueryObject(r.Context(), path)
	if err != nil {
		log.Error().Err(err).Str("action", "exists").Str("path", path).Msg("size lookup failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if f, isFile := obj.(*jfs.File); isFile {
		w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
}

// download answers GET on a leaf. Backend error codes pass through
// verbatim with an empty body.
func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	data, err := s.backend.Download(r.Context(), path)
	if err != nil {
		var be *jfs.BackendError
		if errors.As(err, &be) {
			w.WriteHeader(be.Code)
			return
		}
		log.Error().Err(err).Str("action", "download").Str("path", path).Msg("download failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", downloadContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// upload answers POST on a leaf with the request body as new content.
// The client buffers the body; size and digest must be declared before
// transmission to the backend.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if _, err := s.backend.Upload(r.Context(), path, r.Body); err != nil {
		log.Error().Err(err).Str("action", "upload").Str("path", path).Msg("upload failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if _, err := s.backend.Delete(r.Context(), path); err != nil {
		log.Error().Err(err).Str("action", "delete").Str("path", path).Msg("delete failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleList renders a directory as the restic JSON listing. A
// soft-deleted folder lists as empty, and soft-deleted children are
// dropped; listing a file is 405.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")

	obj, err := s.backend.QueryObject(r.Context(), path)
	if err != nil {
		log.Error().Err(err).Str("action", "list").Str("path", path).Msg("listing failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	dir, isFolder := obj.(*jfs.Folder)
	if !isFolder {
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte("Not a directory"))
		return
	}

	entries := make([]DirEntry, 0, len(dir.Files))
	if dir.Deleted == nil {
		for _, f := range dir.Files {
			if f.Deleted != nil {
				continue
			}
			entries = append(entries, DirEntry{Name: f.Name, Size: f.Size})
		}
	}

	w.Header().Set("Content-Type", listContentType)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(entries)
}

// handleCreateRepo bootstraps a repository: the base directory first,
// then the five required subdirectories concurrently. Any failure
// fails the whole operation; subdirectories already created are not
// rolled back.
func (s *Server) handleCreateRepo(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("create") != "true" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	base := strings.TrimSuffix(r.URL.Path, "/")

	if _, err := s.backend.Mkdir(r.Context(), base); err != nil {
		log.Error().Err(err).Str("action", "create_repo").Str("path", base).Msg("base mkdir failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	g, ctx := errgroup.WithContext(r.Context())
	for _, sub := range repoSubdirs {
		p := base + "/" + sub
		g.Go(func() error {
			_, err := s.backend.Mkdir(ctx, p)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Str("action", "create_repo").Str("path", base).Msg("subdir mkdir failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	log.Info().Str("action", "create_repo").Str("path", base).Msg("repository initialized")
	w.WriteHeader(http.StatusOK)
}
