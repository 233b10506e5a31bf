package wiki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
)

// UploadRequest uploads one file in a single request.
type UploadRequest struct {
	Filename      string
	Comment       string
	Text          string
	IgnoreWarning bool
	Watch         WatchBehavior
	Token         string
	Content       io.Reader
}

// UploadResult reports an upload. Result is "Success" or "Warning"; on a
// warning the file was not stored and Warnings lists why.
type UploadResult struct {
	Result   string            `json:"result" yaml:"result"`
	Filename string            `json:"filename,omitempty" yaml:"filename,omitempty"`
	Warnings map[string]any    `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Info     *UploadedFileInfo `json:"imageinfo,omitempty" yaml:"imageinfo,omitempty"`
}

// UploadedFileInfo describes the stored file.
type UploadedFileInfo struct {
	URL  string `json:"url" yaml:"url"`
	Size int64  `json:"size" yaml:"size"`
	SHA1 string `json:"sha1" yaml:"sha1"`
}

// WarningKeys returns the warning names in sorted order.
func (r UploadResult) WarningKeys() []string {
	keys := make([]string, 0, len(r.Warnings))
	for k := range r.Warnings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Upload posts req as multipart/form-data.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := [][2]string{
		{"action", "upload"},
		{"format", "json"},
		{"formatversion", "2"},
		{"filename", req.Filename},
		{"comment", req.Comment},
		{"watchlist", string(orDefault(req.Watch))},
		{"token", req.Token},
	}
	if req.Text != "" {
		fields = append(fields, [2]string{"text", req.Text})
	}
	if req.IgnoreWarning {
		fields = append(fields, [2]string{"ignorewarnings", "1"})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return UploadResult{}, fmt.Errorf("write upload field %s: %w", f[0], err)
		}
	}

	part, err := mw.CreateFormFile("file", req.Filename)
	if err != nil {
		return UploadResult{}, fmt.Errorf("create upload part: %w", err)
	}
	if _, err := io.Copy(part, req.Content); err != nil {
		return UploadResult{}, fmt.Errorf("read upload content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("finish upload body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), &body)
	if err != nil {
		return UploadResult{}, fmt.Errorf("build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		Upload json.RawMessage `json:"upload"`
	}
	if err := c.do(ctx, "upload", httpReq, &resp); err != nil {
		return UploadResult{}, err
	}
	var result UploadResult
	if err := json.Unmarshal(resp.Upload, &result); err != nil {
		return UploadResult{}, fmt.Errorf("decode upload result: %w", err)
	}
	if !strings.EqualFold(result.Result, "Success") && !strings.EqualFold(result.Result, "Warning") {
		return result, &APIError{Code: "upload-" + strings.ToLower(result.Result), Info: "upload was not completed"}
	}
	return result, nil
}
