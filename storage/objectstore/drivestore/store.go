// Package drivestore is a core.ObjectStore over the Google Drive v3 REST API.
package drivestore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/trezcool/classdrive/core"
)

const (
	DefaultBaseURL   = "https://www.googleapis.com/drive/v3"
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3"

	driveScope     = "https://www.googleapis.com/auth/drive"
	folderMimeType = "application/vnd.google-apps.folder"
	rootParent     = "root"
)

type (
	Options struct {
		BaseURL    string
		UploadURL  string
		MaxRetries int
	}

	Store struct {
		client    *client
		baseURL   string
		uploadURL string
	}

	file struct {
		ID       string   `json:"id,omitempty"`
		Name     string   `json:"name,omitempty"`
		MimeType string   `json:"mimeType,omitempty"`
		Parents  []string `json:"parents,omitempty"`
	}

	fileList struct {
		Files []file `json:"files"`
	}
)

var _ core.ObjectStore = (*Store)(nil)

// New returns a Store sending requests with httpClient, which must authorize them.
func New(httpClient *http.Client, logger core.Logger, opts Options) *Store {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UploadURL == "" {
		opts.UploadURL = DefaultUploadURL
	}
	return &Store{
		client: &client{
			httpClient: httpClient,
			logger:     logger,
			maxRetries: opts.MaxRetries,
			sleepFunc:  timeSleep,
		},
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		uploadURL: strings.TrimRight(opts.UploadURL, "/"),
	}
}

// NewFromConfig authenticates with the service account credentials of conf,
// or with the application default credentials when none are configured.
func NewFromConfig(ctx context.Context, conf core.DriveConfig, logger core.Logger) (*Store, error) {
	data := []byte(conf.CredentialsJSON)
	if len(data) == 0 && conf.CredentialsFile != "" {
		var err error
		if data, err = os.ReadFile(conf.CredentialsFile); err != nil {
			return nil, errors.Wrap(err, "reading drive credentials")
		}
	}

	var (
		creds *google.Credentials
		err   error
	)
	if len(data) > 0 {
		creds, err = google.CredentialsFromJSON(ctx, data, driveScope)
	} else {
		creds, err = google.FindDefaultCredentials(ctx, driveScope)
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading drive credentials")
	}
	return New(oauth2.NewClient(ctx, creds.TokenSource), logger, Options{MaxRetries: conf.MaxRetries}), nil
}

func parentOrRoot(parentID string) string {
	if parentID == "" {
		return rootParent
	}
	return parentID
}

// escapeQuery quotes a value for a Drive search query.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func decode(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(v), "decoding drive response")
}

func (s *Store) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	body, err := json.Marshal(file{Name: name, MimeType: folderMimeType, Parents: []string{parentOrRoot(parentID)}})
	if err != nil {
		return "", errors.Wrap(err, "encoding folder metadata")
	}
	resp, err := s.client.do(ctx, request{
		op:          "createFolder",
		method:      http.MethodPost,
		url:         s.baseURL + "/files?fields=id",
		contentType: "application/json",
		body:        body,
	})
	if err != nil {
		return "", err
	}
	var f file
	if err = decode(resp, &f); err != nil {
		return "", err
	}
	return f.ID, nil
}

func (s *Store) UploadBlob(ctx context.Context, r io.Reader, name, parentID string) (core.Object, error) {
	body, contentType, err := multipartBody(file{Name: name, Parents: []string{parentOrRoot(parentID)}}, r)
	if err != nil {
		return core.Object{}, err
	}
	resp, err := s.client.do(ctx, request{
		op:          "upload",
		method:      http.MethodPost,
		url:         s.uploadURL + "/files?uploadType=multipart&fields=id,name",
		contentType: contentType,
		body:        body,
	})
	if err != nil {
		return core.Object{}, err
	}
	var f file
	if err = decode(resp, &f); err != nil {
		return core.Object{}, err
	}
	return core.Object{ID: f.ID, Name: f.Name}, nil
}

// multipartBody builds a multipart/related upload: the JSON metadata, then the media.
func multipartBody(meta file, r io.Reader) ([]byte, string, error) {
	metadata, err := json.Marshal(meta)
	if err != nil {
		return nil, "", errors.Wrap(err, "encoding file metadata")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return nil, "", errors.Wrap(err, "creating metadata part")
	}
	if _, err = part.Write(metadata); err != nil {
		return nil, "", errors.Wrap(err, "writing metadata part")
	}
	if part, err = w.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/octet-stream"}}); err != nil {
		return nil, "", errors.Wrap(err, "creating media part")
	}
	if _, err = io.Copy(part, r); err != nil {
		return nil, "", errors.Wrap(err, "reading blob")
	}
	if err = w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "closing multipart body")
	}
	return buf.Bytes(), "multipart/related; boundary=" + w.Boundary(), nil
}

func (s *Store) UpdateBlob(ctx context.Context, id string, r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "reading blob")
	}
	resp, err := s.client.do(ctx, request{
		op:          "update",
		method:      http.MethodPatch,
		url:         s.uploadURL + "/files/" + url.PathEscape(id) + "?uploadType=media&fields=id",
		contentType: "application/octet-stream",
		body:        body,
	})
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (s *Store) DownloadBlob(ctx context.Context, id string) ([]byte, error) {
	resp, err := s.client.do(ctx, request{
		op:     "download",
		method: http.MethodGet,
		url:    s.baseURL + "/files/" + url.PathEscape(id) + "?alt=media",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewRemoteError("download", err)
	}
	return data, nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	resp, err := s.client.do(ctx, request{
		op:     "delete",
		method: http.MethodDelete,
		url:    s.baseURL + "/files/" + url.PathEscape(id),
	})
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// FindByNameAndParent returns the oldest non-trashed match.
func (s *Store) FindByNameAndParent(ctx context.Context, name, parentID string) (string, error) {
	q := url.Values{}
	q.Set("q", "name = '"+escapeQuery(name)+"' and '"+escapeQuery(parentOrRoot(parentID))+"' in parents and trashed = false")
	q.Set("fields", "files(id)")
	q.Set("orderBy", "createdTime")
	q.Set("pageSize", "1")

	resp, err := s.client.do(ctx, request{
		op:     "find",
		method: http.MethodGet,
		url:    s.baseURL + "/files?" + q.Encode(),
	})
	if err != nil {
		return "", err
	}
	var list fileList
	if err = decode(resp, &list); err != nil {
		return "", err
	}
	if len(list.Files) == 0 {
		return "", errors.Wrapf(core.ErrNotFound, "%q in %q", name, parentID)
	}
	return list.Files[0].ID, nil
}

// SetPublicReadable shares id with anyone holding the link.
func (s *Store) SetPublicReadable(ctx context.Context, id string) error {
	resp, err := s.client.do(ctx, request{
		op:          "share",
		method:      http.MethodPost,
		url:         s.baseURL + "/files/" + url.PathEscape(id) + "/permissions",
		contentType: "application/json",
		body:        []byte(`{"role":"reader","type":"anyone"}`),
	})
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
