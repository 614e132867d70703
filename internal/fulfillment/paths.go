package fulfillment

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrInvalidPath is returned for storage paths outside the
// <purchaseID>/<fileName> convention.
var ErrInvalidPath = errors.New("invalid artifact path")

// ArtifactPath namespaces fileName under purchaseID.
func ArtifactPath(purchaseID, fileName string) (string, error) {
	if !validSegment(purchaseID) || !validSegment(fileName) {
		return "", fmt.Errorf("%w: %q/%q", ErrInvalidPath, purchaseID, fileName)
	}
	return purchaseID + "/" + fileName, nil
}

// SplitArtifactPath is the inverse of ArtifactPath.
func SplitArtifactPath(storagePath string) (purchaseID, fileName string, err error) {
	dir, file := path.Split(storagePath)
	dir = strings.TrimSuffix(dir, "/")
	if !validSegment(dir) || !validSegment(file) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, storagePath)
	}
	return dir, file, nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`) && strings.TrimSpace(s) == s
}
