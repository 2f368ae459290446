package annotation

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// HashFile returns the hex sha256 of a file, used as the image identifier.
func HashFile(filepath string) (string, error) {
	f, err := os.Open(filepath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hasher := sha256.New()
	_, err = io.Copy(hasher, f)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}
