package dl

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"strings"
)

// ArchiveFetcher serves a tile store packed into a single zip archive.
// URLs are archive member names, optionally prefixed with zip://.
type ArchiveFetcher struct {
	Files map[string]*zip.File

	reader *zip.ReadCloser
}

func OpenArchive(path string) (*ArchiveFetcher, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}

	files := make(map[string]*zip.File)
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		files[f.Name] = f
	}

	return &ArchiveFetcher{
		Files:  files,
		reader: r,
	}, nil
}

func (a *ArchiveFetcher) Fetch(ctx context.Context, u string, offset, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := strings.TrimPrefix(strings.TrimPrefix(u, "zip://"), "/")
	file, ok := a.Files[name]
	if !ok {
		return nil, fmt.Errorf("file %s does not exist: %w", name, ErrNotFound)
	}

	fd, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	data, err := io.ReadAll(fd)
	if err != nil {
		return nil, err
	}
	if length > 0 {
		return sliceRange(data, offset, length)
	}
	return data, nil
}

func (a *ArchiveFetcher) Close() error {
	return a.reader.Close()
}
