package services

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
)

// FetchURL downloads a resolved visual and returns its body together with a
// file extension guessed from the response content type (falling back to the
// URL path). The caller owns closing the body.
func FetchURL(ctx context.Context, client *http.Client, rawURL string) (io.ReadCloser, string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", Wrap(ErrValidation, "", "fetch", fmt.Sprintf("build request for %s", rawURL), err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", Wrap(ErrTransient, "", "fetch", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		marker := ErrTransient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			marker = ErrValidation
		}
		return nil, "", Wrap(marker, "", "fetch", fmt.Sprintf("%s: http %d", rawURL, resp.StatusCode), nil)
	}
	return resp.Body, extensionFor(resp.Header.Get("Content-Type"), rawURL), nil
}

func extensionFor(contentType, rawURL string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "image/jpeg":
			return ".jpg"
		case "image/png":
			return ".png"
		case "image/gif":
			return ".gif"
		case "image/webp":
			return ".webp"
		case "video/mp4":
			return ".mp4"
		}
	}
	if ext := strings.ToLower(path.Ext(rawURL)); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".jpg"
}
