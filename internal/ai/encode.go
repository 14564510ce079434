package ai

import (
	"encoding/base64"
	"fmt"
	"io"
)

// InlinePayload is an image encoded for embedding in a JSON request body.
type InlinePayload struct {
	MimeType string
	Data     string // base64, no data-URL prefix
}

// EncodeInline reads r fully and base64-encodes it for transport.
func EncodeInline(r io.Reader, mimeType string) (InlinePayload, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return InlinePayload{}, fmt.Errorf("failed to read image: %w", err)
	}
	return InlinePayload{
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// DataURL renders the payload as a data URL for APIs that take image URLs.
func (p InlinePayload) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", p.MimeType, p.Data)
}
