// utils/upload.go
package utils

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
)

const maxProofImageSize = 10 * 1024 * 1024 // 10MB

// Accepted proof screenshot content types.
var allowedProofTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ValidateProofImage checks size and content type of an uploaded proof
// screenshot and returns the file extension to store it under.
func ValidateProofImage(fileHeader *multipart.FileHeader) (string, error) {
	if fileHeader.Size > maxProofImageSize {
		return "", fmt.Errorf("file too large: %d bytes (max %d)", fileHeader.Size, maxProofImageSize)
	}
	contentType := fileHeader.Header.Get("Content-Type")
	ext, ok := allowedProofTypes[strings.ToLower(contentType)]
	if !ok {
		return "", fmt.Errorf("unsupported content type %q (want jpeg, png or webp)", contentType)
	}
	return ext, nil
}

// ProofObjectKey builds the R2 object key for a proof upload.
func ProofObjectKey(registrationID, fileID, ext string) string {
	return filepath.ToSlash(filepath.Join("proofs", registrationID, fileID+ext))
}
