// services/report-svc/internal/generator/atomic.go
package generator

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TempPrefix префикс незавершённых файлов в каталоге артефактов
const TempPrefix = ".tmp-"

// countingWriter считает записанные байты
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// writeAtomic пишет файл через временный файл в том же каталоге и rename.
// При любой ошибке временный файл удаляется, а path не затрагивается.
func writeAtomic(path string, write func(w io.Writer) error) (n int64, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), TempPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	buf := bufio.NewWriter(tmp)
	cw := &countingWriter{w: buf}

	if err = write(cw); err != nil {
		return 0, err
	}
	if err = buf.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush %s: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return 0, fmt.Errorf("failed to publish %s: %w", path, err)
	}

	return cw.n, nil
}
