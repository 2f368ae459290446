package annotation

import (
	"crypto/sha256"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path"

	"github.com/google/uuid"
)

func DecodeImage(filepath string) (image.Image, error) {
	f, err := os.Open(filepath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeImageSize reads the pixel dimensions without decoding the whole image.
func DecodeImageSize(filepath string) (width, height int, err error) {
	f, err := os.Open(filepath)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// IngestImage stores img as a PNG named after its sha256, which is also its
// IIIF identifier. It returns that identifier.
func IngestImage(img image.Image, outputDir string) (string, error) {
	tempFile := path.Join(outputDir, fmt.Sprintf("%s.png", uuid.New()))
	f, err := os.Create(tempFile)
	if err != nil {
		return "", err
	}
	hasher := sha256.New()
	w := io.MultiWriter(f, hasher)
	err = png.Encode(w, img)
	if err != nil {
		f.Close()
		os.Remove(tempFile)
		return "", err
	}
	err = f.Close()
	if err != nil {
		os.Remove(tempFile)
		return "", err
	}
	id := fmt.Sprintf("%x", hasher.Sum(nil))
	err = os.Rename(tempFile, path.Join(outputDir, id+".png"))
	if err != nil {
		os.Remove(tempFile)
		return "", err
	}
	return id, nil
}
