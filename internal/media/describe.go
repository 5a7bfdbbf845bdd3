package media

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"course-backend/internal/composer"
)

// Describe builds a composer.File for a local path, sniffing the content type from its
// first bytes and falling back to the extension when sniffing is inconclusive.
func Describe(path string) (composer.File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return composer.File{}, fmt.Errorf("open media: %w", err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return composer.File{}, fmt.Errorf("stat media: %w", err)
	}
	if info.IsDir() {
		return composer.File{}, fmt.Errorf("%s is a directory", path)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(fh, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return composer.File{}, fmt.Errorf("read media: %w", err)
	}

	f := composer.File{
		Path: path,
		Name: filepath.Base(path),
		Size: info.Size(),
	}
	sniffed := http.DetectContentType(head[:n])
	if strings.HasPrefix(sniffed, "video/") {
		f.ContentType = sniffed
	} else if byExt := (composer.File{Name: f.Name}).MediaType(); byExt != "" {
		f.ContentType = byExt
	} else {
		f.ContentType = sniffed
	}
	return f, nil
}
