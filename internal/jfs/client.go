package jfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nordbak/jotta-rest-proxy/internal/util"
)

const (
	defaultAPIBase    = "https://www.jottacloud.com/jfs"
	defaultUploadBase = "https://up.jottacloud.com/jfs"
	defaultMount      = "Jotta/Sync"

	// Uploads carry whole blobs and get minutes, not seconds.
	defaultUploadTimeout = 10 * time.Minute

	deviceNameHeader = "X-Jfs-DeviceName"
	deviceName       = "Jotta"
)

// Options tunes endpoints and timeouts; zero values mean production
// defaults. Endpoints are overridable so tests can point the client at
// an httptest server.
type Options struct {
	APIBase       string
	UploadBase    string
	Mount         string
	UploadTimeout time.Duration
	// HTTPClient is the pooled transport for read/write calls. The
	// upload client is derived from it with the extended timeout.
	HTTPClient *http.Client
}

// Client issues authenticated calls against the vendor backend. It is
// immutable after construction and safe for concurrent use; the only
// shared state is the pooled transport.
type Client struct {
	base          string
	uploadBase    string
	authorization string
	httpClient    *http.Client
	uploadClient  *http.Client
}

// NewClient builds a client for the given user. authorization is an
// opaque, ready-made basic-auth header value; credential acquisition
// lives outside this package.
func NewClient(username, authorization string, opt Options) *Client {
	apiBase := strings.TrimRight(opt.APIBase, "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	uploadBase := strings.TrimRight(opt.UploadBase, "/")
	if uploadBase == "" {
		uploadBase = defaultUploadBase
	}
	mount := strings.Trim(opt.Mount, "/")
	if mount == "" {
		mount = defaultMount
	}
	timeout := opt.UploadTimeout
	if timeout <= 0 {
		timeout = defaultUploadTimeout
	}
	httpClient := opt.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	uploadClient := &http.Client{
		Transport: httpClient.Transport,
		Timeout:   timeout,
	}

	return &Client{
		base:          apiBase + "/" + username + "/" + mount,
		uploadBase:    uploadBase + "/" + username + "/" + mount,
		authorization: authorization,
		httpClient:    httpClient,
		uploadClient:  uploadClient,
	}
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.authorization)
	return req, nil
}

// decodeResponse enforces the XML content-type gate, buffers the body
// (nested lists need full-document context) and decodes it. An <error>
// document comes back as a *BackendError.
func (c *Client) decodeResponse(resp *http.Response) (Object, error) {
	ct := resp.Header.Get("Content-Type")
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil || (mt != "text/xml" && mt != "application/xml") {
		return nil, &UnexpectedContentTypeError{ContentType: ct}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jfs: read response body: %w", err)
	}
	return DecodeObject(body)
}

// QueryObject reads the object at path. A backend <error> payload is
// returned as a *BackendError so callers can branch on its code.
func (c *Client) QueryObject(ctx context.Context, p string) (Object, error) {
	url := c.base + p
	log.Debug().Str("action", "query_object").Str("url", url).Msg("backend read")

	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	return c.decodeResponse(resp)
}

// List reads the folder at path. A file at that path is
// ErrNotADirectory.
func (c *Client) List(ctx context.Context, p string) (*Folder, error) {
	obj, err := c.QueryObject(ctx, p)
	if err != nil {
		return nil, err
	}
	dir, ok := obj.(*Folder)
	if !ok {
		return nil, ErrNotADirectory
	}
	return dir, nil
}

// Exists reports whether a live object is at path. Soft-deleted
// objects do not exist from the protocol's point of view, and a
// backend 404 is folded into false. Any other error propagates.
func (c *Client) Exists(ctx context.Context, p string) (bool, error) {
	obj, err := c.QueryObject(ctx, p)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return obj.DeletedAt() == nil, nil
}

// Download fetches the binary content at path. On a non-success status
// the body is decoded as an <error> document and returned as a
// *BackendError with its code intact.
func (c *Client) Download(ctx context.Context, p string) ([]byte, error) {
	url := c.base + p + "?mode=bin"
	log.Debug().Str("action", "download").Str("url", url).Msg("backend read")

	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jfs: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if _, derr := DecodeObject(body); derr != nil {
			// Either a *BackendError or a decode failure; both end
			// the download.
			return nil, derr
		}
		return nil, fmt.Errorf("jfs: download %s: unexpected status %d", p, resp.StatusCode)
	}
	return body, nil
}

// Upload stores the stream's content at path. The backend needs the
// total size and MD5 declared ahead of the body, so the input is fully
// materialized first; there is no unknown-length upload.
func (c *Client) Upload(ctx context.Context, p string, r io.Reader) (Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("jfs: buffer upload body: %w", err)
	}
	digest := util.MD5Hex(data)
	now := FormatTime(time.Now())

	var body bytes.Buffer
	mp := multipart.NewWriter(&body)
	for _, field := range [][2]string{
		{"cphash", digest},
		{"md5", digest},
		{"created", now},
		{"modified", now},
	} {
		if err := mp.WriteField(field[0], field[1]); err != nil {
			return nil, err
		}
	}
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, path.Base(p)))
	hdr.Set("Content-Type", "application/octet-stream")
	part, err := mp.CreatePart(hdr)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mp.Close(); err != nil {
		return nil, err
	}

	url := c.uploadBase + p
	log.Debug().
		Str("action", "upload").
		Str("url", url).
		Int("size", len(data)).
		Msg("backend write")

	req, err := c.newRequest(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mp.FormDataContentType())
	req.Header.Set(deviceNameHeader, deviceName)
	req.Header.Set("JSize", strconv.Itoa(len(data)))
	req.Header.Set("JMd5", digest)

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	return c.decodeResponse(resp)
}

// Mkdir creates the folder at path.
func (c *Client) Mkdir(ctx context.Context, p string) (Object, error) {
	url := c.base + p + "?mkDir=true"
	log.Debug().Str("action", "mkdir").Str("url", url).Msg("backend write")

	req, err := c.newRequest(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	return c.decodeResponse(resp)
}

// Delete removes the object at path. The deletion flag differs by
// kind, so the object is queried first; a failing probe (including a
// 404) propagates instead of deleting blindly.
func (c *Client) Delete(ctx context.Context, p string) (Object, error) {
	obj, err := c.QueryObject(ctx, p)
	if err != nil {
		return nil, err
	}

	flag := "?dl=true"
	if _, ok := obj.(*Folder); ok {
		flag = "?dlDir=true"
	}
	url := c.base + p + flag
	log.Debug().Str("action", "delete").Str("url", url).Msg("backend write")

	req, err := c.newRequest(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	return c.decodeResponse(resp)
}
