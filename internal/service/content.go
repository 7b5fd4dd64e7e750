package service

import (
	"fmt"
	"mime"
	"strings"

	"messaging-service/internal/apperr"
	"messaging-service/internal/models"
)

// Attachment is an uploaded file already resolved by the upload handler.
type Attachment struct {
	MimeType string `json:"mime_type"`
	URL      string `json:"url"`
}

// ClassifyMime maps a media type to a file message type by its top-level type.
func ClassifyMime(mimeType string) (models.MessageType, error) {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "", fmt.Errorf("invalid mime type %q: %w", mimeType, apperr.ErrValidation)
	}
	top, _, _ := strings.Cut(mediaType, "/")
	switch top {
	case "image":
		return models.MessageTypeImage, nil
	case "audio":
		return models.MessageTypeAudio, nil
	case "video":
		return models.MessageTypeVideo, nil
	}
	return "", fmt.Errorf("unsupported attachment type %q: %w", mimeType, apperr.ErrValidation)
}

// BuildContent turns a send request into the content union. Every attachment
// must classify; the last one defines the content and text is dropped.
func BuildContent(text string, attachments []Attachment) (models.Content, error) {
	if len(attachments) == 0 {
		content := models.NewTextContent(text)
		return content, content.Validate()
	}

	var content models.Content
	for _, a := range attachments {
		kind, err := ClassifyMime(a.MimeType)
		if err != nil {
			return models.Content{}, err
		}
		if strings.TrimSpace(a.URL) == "" {
			return models.Content{}, fmt.Errorf("attachment has no url: %w", apperr.ErrValidation)
		}
		content = models.NewFileContent(kind, a.URL)
	}
	return content, content.Validate()
}
