package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// HTTPUploader multipart 上传附件，进度按已读字节回调
type HTTPUploader struct {
	UploadURL string
	Client    *http.Client
}

func NewHTTPUploader(uploadURL string) *HTTPUploader {
	return &HTTPUploader{
		UploadURL: uploadURL,
		Client:    &http.Client{Timeout: 60 * time.Second},
	}
}

// progressReader 包一层 Reader 统计进度
type progressReader struct {
	r        io.Reader
	total    int
	read     int
	progress func(percent int)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.read += n
	if p.progress != nil && p.total > 0 {
		p.progress(p.read * 100 / p.total)
	}
	return n, err
}

func (u *HTTPUploader) Upload(ctx context.Context, file FileRef, progress func(percent int)) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", file.Name)
	if err != nil {
		return "", fmt.Errorf("fail to build form:%w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return "", fmt.Errorf("fail to write form:%w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("fail to close form:%w", err)
	}

	reader := &progressReader{r: &body, total: body.Len(), progress: progress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.UploadURL, reader)
	if err != nil {
		return "", fmt.Errorf("fail to build request:%w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fail to upload:%w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload rejected: %s", resp.Status)
	}

	var out struct {
		Code int    `json:"code"`
		URL  string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("fail to decode upload response:%w", err)
	}
	if out.Code != 0 || out.URL == "" {
		return "", fmt.Errorf("upload failed")
	}
	return out.URL, nil
}
