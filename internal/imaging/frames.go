package imaging

import (
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// frameExtensions lists the file types LoadFrame can decode.
var frameExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// IsFrameFile reports whether path has a supported image extension.
func IsFrameFile(path string) bool {
	return frameExtensions[strings.ToLower(filepath.Ext(path))]
}

// ListFrames returns the image files directly inside dir, sorted by name.
func ListFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsFrameFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// LoadFrame loads an image through cache and returns it as a fresh RGBA
// frame with origin (0,0). When width and height are both positive the image
// is resized to exactly width×height.
func LoadFrame(cache *ImageCache, path string, width, height int) (*image.RGBA, error) {
	f, err := cache.frame(path, width, height)
	if err != nil {
		return nil, err
	}
	out := image.NewRGBA(f.Rect)
	copy(out.Pix, f.Pix)
	return out, nil
}
