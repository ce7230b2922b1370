package aisdk

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// ImageRef is an image attached to a user turn. Exactly one of Data or URL is
// set.
type ImageRef struct {
	MimeType string `json:"mime_type,omitempty"` // "image/png", "image/jpeg", etc.
	Data     string `json:"data,omitempty"`      // base64 encoded image data
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"` // original filename if available
}

// NewImageRef creates an inline image from raw bytes, sniffing the mime type
// when none is given.
func NewImageRef(data []byte, mimeType, filename string) ImageRef {
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return ImageRef{
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
		Filename: filename,
	}
}

// DataURL renders the image as a data: URL, or returns URL for remote images.
func (i ImageRef) DataURL() string {
	if i.URL != "" {
		return i.URL
	}
	return fmt.Sprintf("data:%s;base64,%s", i.mimeType(), i.Data)
}

// IsRemote reports whether the image is referenced by URL only.
func (i ImageRef) IsRemote() bool {
	return i.Data == "" && i.URL != ""
}

func (i ImageRef) mimeType() string {
	if i.MimeType == "" || !strings.HasPrefix(i.MimeType, "image/") {
		return "image/png"
	}
	return i.MimeType
}

// MediaType returns the normalized image mime type.
func (i ImageRef) MediaType() string {
	return i.mimeType()
}

// Summary returns a short placeholder used when a vendor cannot take images.
func (i ImageRef) Summary() string {
	name := i.Filename
	if name == "" {
		name = "image"
	}
	return fmt.Sprintf("[Image: %s, Format: %s]", name, i.mimeType())
}
