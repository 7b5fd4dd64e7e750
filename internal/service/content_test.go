package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/apperr"
	"messaging-service/internal/models"
)

func TestClassifyMime(t *testing.T) {
	cases := map[string]models.MessageType{
		"image/jpeg":             models.MessageTypeImage,
		"image/png":              models.MessageTypeImage,
		"audio/mpeg":             models.MessageTypeAudio,
		"video/mp4":              models.MessageTypeVideo,
		"Video/MP4; codecs=avc1": models.MessageTypeVideo,
		"audio/ogg; codecs=opus": models.MessageTypeAudio,
	}
	for mimeType, want := range cases {
		got, err := ClassifyMime(mimeType)
		require.NoError(t, err, mimeType)
		assert.Equal(t, want, got, mimeType)
	}

	for _, bad := range []string{"application/pdf", "text/plain", "", "garbage"} {
		_, err := ClassifyMime(bad)
		assert.ErrorIs(t, err, apperr.ErrValidation, bad)
	}
}

func TestBuildContentText(t *testing.T) {
	content, err := BuildContent("hello", nil)
	require.NoError(t, err)
	assert.Equal(t, models.Content{Type: models.MessageTypeText, Text: "hello"}, content)

	_, err = BuildContent("   ", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestBuildContentSingleImageClearsText(t *testing.T) {
	content, err := BuildContent("caption", []Attachment{{MimeType: "image/jpeg", URL: "/uploads/messages/a.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeImage, content.Type)
	assert.Equal(t, "/uploads/messages/a.jpg", content.FileURL)
	assert.Equal(t, "", content.Text)
}

func TestBuildContentLastAttachmentWins(t *testing.T) {
	content, err := BuildContent("", []Attachment{
		{MimeType: "image/jpeg", URL: "/a.jpg"},
		{MimeType: "video/mp4", URL: "/b.mp4"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.NewFileContent(models.MessageTypeVideo, "/b.mp4"), content)
}

func TestBuildContentRejectsUnsupportedAttachment(t *testing.T) {
	_, err := BuildContent("", []Attachment{
		{MimeType: "image/jpeg", URL: "/a.jpg"},
		{MimeType: "application/zip", URL: "/b.zip"},
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = BuildContent("", []Attachment{{MimeType: "audio/mpeg"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
