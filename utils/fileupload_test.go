package utils

import (
	"bytes"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestFileHeader creates a multipart.FileHeader for testing
func createTestFileHeader(filename string, size int64, content []byte) *multipart.FileHeader {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", "application/octet-stream")
	part, _ := writer.CreatePart(h)
	part.Write(content)
	writer.Close()

	reader := multipart.NewReader(body, writer.Boundary())
	form, _ := reader.ReadForm(int64(len(content)) + 1024)

	if len(form.File["file"]) > 0 {
		fileHeader := form.File["file"][0]
		// Override size for testing purposes
		fileHeader.Size = size
		return fileHeader
	}

	return nil
}

func TestValidateImageFile(t *testing.T) {
	content := []byte("fake image content")

	tests := []struct {
		name     string
		filename string
		size     int64
		wantCode string
	}{
		{"png accepted", "tee.png", int64(len(content)), ""},
		{"jpg accepted", "tee.jpg", int64(len(content)), ""},
		{"uppercase jpeg accepted", "TEE.JPEG", int64(len(content)), ""},
		{"webp accepted", "tee.webp", int64(len(content)), ""},
		{"gif rejected", "tee.gif", int64(len(content)), "INVALID_FILE_FORMAT"},
		{"no extension rejected", "tee", int64(len(content)), "INVALID_FILE_FORMAT"},
		{"too large", "tee.png", 6 * 1024 * 1024, "FILE_TOO_LARGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fileHeader := createTestFileHeader(tt.filename, tt.size, content)
			require.NotNil(t, fileHeader)

			err := ValidateImageFile(fileHeader)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			fileErr, ok := err.(*FileUploadError)
			require.True(t, ok, "Error should be of type FileUploadError")
			assert.Equal(t, tt.wantCode, fileErr.Code)
		})
	}
}

func TestImageKey(t *testing.T) {
	key := ImageKey("classic-crew-tee", "Front View.PNG")
	assert.True(t, strings.HasPrefix(key, "classic-crew-tee_"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.NotEqual(t, key, ImageKey("classic-crew-tee", "Front View.PNG"))
}

func TestSaveUploadedFile(t *testing.T) {
	tmpDir := t.TempDir()
	content := []byte("product photo bytes")
	fileHeader := createTestFileHeader("photo.png", int64(len(content)), content)
	require.NotNil(t, fileHeader)

	err := SaveUploadedFile(fileHeader, filepath.Join(tmpDir, "nested"), "stored.png")
	require.NoError(t, err)

	saved, err := os.ReadFile(filepath.Join(tmpDir, "nested", "stored.png"))
	require.NoError(t, err)
	assert.Equal(t, content, saved)
}

func TestGetImageURL(t *testing.T) {
	assert.Equal(t, "", GetImageURL(""))
	assert.Equal(t, "/api/v1/uploads/tee.png", GetImageURL("tee.png"))
}
