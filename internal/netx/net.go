// Package netx holds plain-HTTP helpers for talking to object storage.
package netx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

const defaultContentType = "application/octet-stream"

// UploadToPresignedURL PUTs body to a presigned object storage URL. An
// empty contentType is sent as application/octet-stream. Any 2xx response
// counts as success.
func UploadToPresignedURL(ctx context.Context, url, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = defaultContentType
	}
	req.Header.Set("Content-Type", contentType)

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return nil
}
