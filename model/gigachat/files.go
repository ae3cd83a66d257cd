package gigachat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// File describes an uploaded file.
type File struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Purpose  string `json:"purpose"`
	Bytes    int64  `json:"bytes"`
}

// UploadFile stores r under name and returns the provider file id, which can
// be referenced from model.Request.Attachments.
func (m *Model) UploadFile(ctx context.Context, name string, r io.Reader) (string, error) {
	token, err := m.session.EnsureToken(ctx)
	if err != nil {
		return "", err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.WriteField("purpose", "general")
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	endpoint := strings.TrimRight(m.opts.APIBase, "/") + "/files"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.Close()
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("RqUID", m.opts.Nonce())
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := m.opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gigachat upload: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return "", fmt.Errorf("read gigachat upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", providerErrorFromBody(resp.StatusCode, raw)
	}

	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", fmt.Errorf("decode gigachat upload response: %w", err)
	}
	if f.ID == "" {
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: "upload response carries no id"}
	}
	m.logger.Debug("file uploaded", "file_id", f.ID, "bytes", f.Bytes)
	return f.ID, nil
}
