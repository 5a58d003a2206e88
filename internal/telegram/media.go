package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mymmrac/telego"
)

const (
	maxAttachmentBytes = 20 * 1024 * 1024
	downloadRetries    = 3
)

// downloadFile fetches fileID's bytes from Telegram's file API, retrying
// transient GetFile failures, mirroring media.go's downloadMedia but
// returning bytes directly instead of a temp-file path since
// internal/attachments works entirely in memory.
func (c *Channel) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	var file *telego.File
	var err error
	for attempt := 1; attempt <= downloadRetries; attempt++ {
		file, err = c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
		if err == nil {
			break
		}
		if attempt < downloadRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("get file info after %d attempts: %w", downloadRetries, err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("empty file path for file_id %s", fileID)
	}
	if int64(file.FileSize) > maxAttachmentBytes {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", file.FileSize, maxAttachmentBytes)
	}

	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", c.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	written, err := io.Copy(&buf, io.LimitReader(resp.Body, maxAttachmentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("save file: %w", err)
	}
	if written > maxAttachmentBytes {
		return nil, fmt.Errorf("file exceeds max size during download: %d bytes", written)
	}
	return buf.Bytes(), nil
}
