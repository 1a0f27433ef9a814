package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nordbak/jotta-rest-proxy/internal/jfs"
	"github.com/nordbak/jotta-rest-proxy/internal/metrics"
)

// stubBackend lets each test script exactly the backend behavior it
// needs.
type stubBackend struct {
	mu    sync.Mutex
	calls []string

	queryFn    func(path string) (jfs.Object, error)
	existsFn   func(path string) (bool, error)
	downloadFn func(path string) ([]byte, error)
	uploadFn   func(path string, body io.Reader) (jfs.Object, error)
	mkdirFn    func(path string) (jfs.Object, error)
	deleteFn   func(path string) (jfs.Object, error)
}

func (s *stubBackend) record(op, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op+" "+path)
}

func (s *stubBackend) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubBackend) QueryObject(_ context.Context, path string) (jfs.Object, error) {
	s.record("query", path)
	return s.queryFn(path)
}

func (s *stubBackend) Exists(_ context.Context, path string) (bool, error) {
	s.record("exists", path)
	return s.existsFn(path)
}

func (s *stubBackend) Download(_ context.Context, path string) ([]byte, error) {
	s.record("download", path)
	return s.downloadFn(path)
}

func (s *stubBackend) Upload(_ context.Context, path string, body io.Reader) (jfs.Object, error) {
	s.record("upload", path)
	return s.uploadFn(path, body)
}

func (s *stubBackend) Mkdir(_ context.Context, path string) (jfs.Object, error) {
	s.record("mkdir", path)
	return s.mkdirFn(path)
}

func (s *stubBackend) Delete(_ context.Context, path string) (jfs.Object, error) {
	s.record("delete", path)
	return s.deleteFn(path)
}

func serve(t *testing.T, b Backend, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	rr := httptest.NewRecorder()
	NewServer(b).Routes(nil).ServeHTTP(rr, req)
	return rr
}

func deletedAt() *time.Time {
	ts := time.Date(2018, 5, 18, 23, 47, 30, 0, time.UTC)
	return &ts
}

/* --------------------------------- HEAD --------------------------------- */

func TestHead_File(t *testing.T) {
	b := &stubBackend{
		existsFn: func(string) (bool, error) { return true, nil },
		queryFn:  func(string) (jfs.Object, error) { return &jfs.File{Name: "a", Size: 2341058}, nil },
	}
	rr := serve(t, b, http.MethodHead, "/repo/data/a", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "2341058", rr.Header().Get("Content-Length"))
}

func TestHead_Folder_OmitsContentLength(t *testing.T) {
	b := &stubBackend{
		existsFn: func(string) (bool, error) { return true, nil },
		queryFn:  func(string) (jfs.Object, error) { return &jfs.Folder{Name: "data"}, nil },
	}
	rr := serve(t, b, http.MethodHead, "/repo/data/x", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, rr.Header().Get("Content-Length"))
}

func TestHead_Missing(t *testing.T) {
	b := &stubBackend{existsFn: func(string) (bool, error) { return false, nil }}
	rr := serve(t, b, http.MethodHead, "/repo/data/a", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHead_BackendFailure(t *testing.T) {
	b := &stubBackend{
		existsFn: func(string) (bool, error) {
			return false, &jfs.BackendError{Code: 500, Reason: "Internal Server Error"}
		},
	}
	rr := serve(t, b, http.MethodHead, "/repo/data/a", nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

/* ---------------------------------- GET ---------------------------------- */

func TestGet_Download(t *testing.T) {
	b := &stubBackend{downloadFn: func(string) ([]byte, error) { return []byte("blob-bytes"), nil }}
	rr := serve(t, b, http.MethodGet, "/repo/data/a", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "binary/octet-stream", rr.Header().Get("Content-Type"))
	require.Equal(t, "blob-bytes", rr.Body.String())
	require.Equal(t, []string{"download /repo/data/a"}, b.recorded())
}

func TestGet_Download_PassesBackendCodeThrough(t *testing.T) {
	b := &stubBackend{
		downloadFn: func(string) ([]byte, error) {
			return nil, &jfs.BackendError{Code: 404, Reason: "Not Found"}
		},
	}
	rr := serve(t, b, http.MethodGet, "/repo/data/missing", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Empty(t, rr.Body.String())
}

func TestGet_Download_TransportErrorIs500(t *testing.T) {
	b := &stubBackend{downloadFn: func(string) ([]byte, error) { return nil, errors.New("connection reset") }}
	rr := serve(t, b, http.MethodGet, "/repo/data/a", nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

/* -------------------------------- listing -------------------------------- */

func TestGet_Listing(t *testing.T) {
	b := &stubBackend{
		queryFn: func(path string) (jfs.Object, error) {
			require.Equal(t, "/repo/data", path)
			return &jfs.Folder{
				Name: "data",
				Files: []jfs.File{
					{Name: "a", Size: 10},
					{Name: "b", Size: 20},
				},
			}, nil
		},
	}
	rr := serve(t, b, http.MethodGet, "/repo/data/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/vnd.x.restic.rest.v2", rr.Header().Get("Content-Type"))
	require.JSONEq(t, `[{"name":"a","size":10},{"name":"b","size":20}]`, rr.Body.String())
}

func TestGet_Listing_DropsSoftDeletedFiles(t *testing.T) {
	b := &stubBackend{
		queryFn: func(string) (jfs.Object, error) {
			return &jfs.Folder{
				Name: "data",
				Files: []jfs.File{
					{Name: "live", Size: 10},
					{Name: "gone", Size: 20, Deleted: deletedAt()},
				},
			}, nil
		},
	}
	rr := serve(t, b, http.MethodGet, "/repo/data/", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var entries []DirEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "live", entries[0].Name)
}

func TestGet_Listing_DeletedFolderIsEmpty(t *testing.T) {
	b := &stubBackend{
		queryFn: func(string) (jfs.Object, error) {
			// Deleted folders cascade: live-looking children stay hidden.
			return &jfs.Folder{
				Name:    "data",
				Deleted: deletedAt(),
				Files:   []jfs.File{{Name: "live-looking", Size: 10}},
			}, nil
		},
	}
	rr := serve(t, b, http.MethodGet, "/repo/data/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `[]`, rr.Body.String())
}

func TestGet_Listing_FileIs405(t *testing.T) {
	b := &stubBackend{
		queryFn: func(string) (jfs.Object, error) { return &jfs.File{Name: "a"}, nil },
	}
	rr := serve(t, b, http.MethodGet, "/repo/data/", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	require.Equal(t, "Not a directory", rr.Body.String())
}

func TestGet_Listing_BackendFailureIs500(t *testing.T) {
	b := &stubBackend{
		queryFn: func(string) (jfs.Object, error) {
			return nil, &jfs.BackendError{Code: 404, Reason: "Not Found"}
		},
	}
	rr := serve(t, b, http.MethodGet, "/repo/data/", nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

/* ---------------------------------- POST ---------------------------------- */

func TestPost_Upload(t *testing.T) {
	var uploaded []byte
	b := &stubBackend{
		uploadFn: func(path string, body io.Reader) (jfs.Object, error) {
			require.Equal(t, "/repo/data/a", path)
			var err error
			uploaded, err = io.ReadAll(body)
			require.NoError(t, err)
			return &jfs.File{Name: "a"}, nil
		},
	}
	rr := serve(t, b, http.MethodPost, "/repo/data/a", strings.NewReader("payload"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "payload", string(uploaded))
}

func TestPost_Upload_BackendFailureIs500(t *testing.T) {
	b := &stubBackend{
		uploadFn: func(string, io.Reader) (jfs.Object, error) {
			return nil, &jfs.BackendError{Code: 507, Reason: "Insufficient Storage"}
		},
	}
	rr := serve(t, b, http.MethodPost, "/repo/data/a", strings.NewReader("payload"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

/* ------------------------------- create repo ------------------------------ */

func TestCreateRepo(t *testing.T) {
	b := &stubBackend{
		mkdirFn: func(path string) (jfs.Object, error) { return &jfs.Folder{Name: path}, nil },
	}
	rr := serve(t, b, http.MethodPost, "/repo/?create=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	calls := b.recorded()
	require.Len(t, calls, 6)
	require.Equal(t, "mkdir /repo", calls[0])
	for _, sub := range []string{"data", "index", "keys", "locks", "snapshots"} {
		require.Contains(t, calls, "mkdir /repo/"+sub)
	}
}

func TestCreateRepo_MissingFlag(t *testing.T) {
	b := &stubBackend{}
	rr := serve(t, b, http.MethodPost, "/repo/", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Empty(t, b.recorded())
}

func TestCreateRepo_BaseFailure(t *testing.T) {
	b := &stubBackend{
		mkdirFn: func(string) (jfs.Object, error) {
			return nil, &jfs.BackendError{Code: 401, Reason: "Unauthorized"}
		},
	}
	rr := serve(t, b, http.MethodPost, "/repo/?create=true", nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Len(t, b.recorded(), 1, "no subdir creation after base failure")
}

func TestCreateRepo_SubdirFailureFailsWhole(t *testing.T) {
	// One of the five subdirectories fails while the others succeed:
	// the whole operation must report failure, with no rollback.
	b := &stubBackend{
		mkdirFn: func(path string) (jfs.Object, error) {
			if path == "/repo/keys" {
				return nil, &jfs.BackendError{Code: 500, Reason: "Internal Server Error"}
			}
			return &jfs.Folder{Name: path}, nil
		},
	}
	rr := serve(t, b, http.MethodPost, "/repo/?create=true", nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

/* --------------------------------- DELETE -------------------------------- */

func TestDelete(t *testing.T) {
	b := &stubBackend{
		deleteFn: func(string) (jfs.Object, error) { return &jfs.File{Name: "a"}, nil },
	}
	rr := serve(t, b, http.MethodDelete, "/repo/data/a", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestDelete_BackendFailureIs500(t *testing.T) {
	b := &stubBackend{
		deleteFn: func(string) (jfs.Object, error) {
			return nil, &jfs.BackendError{Code: 404, Reason: "Not Found"}
		},
	}
	rr := serve(t, b, http.MethodDelete, "/repo/data/a", nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

/* ------------------------------ routing edges ----------------------------- */

func TestConfigBlobUsesObjectVerbs(t *testing.T) {
	b := &stubBackend{downloadFn: func(path string) ([]byte, error) {
		require.Equal(t, "/repo/config", path)
		return []byte("cfg"), nil
	}}
	rr := serve(t, b, http.MethodGet, "/repo/config", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "cfg", rr.Body.String())
}

func TestUnsupportedMethodOnObject(t *testing.T) {
	b := &stubBackend{}
	rr := serve(t, b, http.MethodPatch, "/repo/data/a", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestUnmatchedPath(t *testing.T) {
	b := &stubBackend{}

	rr := serve(t, b, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(t, b, http.MethodDelete, "/", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHealth(t *testing.T) {
	rr := serve(t, &stubBackend{}, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestMetricsEndpointWired(t *testing.T) {
	m := metrics.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	NewServer(&stubBackend{}).Routes(m).ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}
