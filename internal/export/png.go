package export

import (
	"fmt"
	"image"
	"image/png"
	"os"
)

// PNGFile writes the rendered canvas to path.
func PNGFile(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("export: encode png: %w", err)
	}
	return f.Close()
}
