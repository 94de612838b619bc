package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"circle-thumb/src/apperr"
)

// SaveResponse is the JSON body of POST /save-image.
type SaveResponse struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RemoteStore hands thumbnails to a running server's /save-image endpoint.
type RemoteStore struct {
	Base string
	HTTP *http.Client
}

func NewRemoteStore(base string) *RemoteStore {
	return &RemoteStore{Base: strings.TrimRight(base, "/"), HTTP: http.DefaultClient}
}

// Save posts the multipart form the browser UI sends: "image" carrying the
// bytes under <name>.png and "size".
func (s *RemoteStore) Save(ctx context.Context, data []byte, targetSize int, name string) (string, error) {
	base, err := NormalizeName(name)
	if err != nil {
		return "", err
	}

	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)
	part, err := mw.CreateFormFile("image", base+".png")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.WriteField("size", strconv.Itoa(targetSize)); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Base+"/save-image", buf)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrPersistenceFailure, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	client := s.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrPersistenceFailure, err)
	}
	defer resp.Body.Close()

	var out SaveResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: save-image %s: %v", apperr.ErrPersistenceFailure, resp.Status, err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = resp.Status
		}
		return "", fmt.Errorf("%w: %s", apperr.ErrPersistenceFailure, msg)
	}
	return out.Filename, nil
}

var _ Persister = (*RemoteStore)(nil)
