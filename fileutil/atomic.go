// Package fileutil holds file helpers shared by the harness's writers.
package fileutil

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// FileMode is the permission of files written by WriteAtomic, before umask
const FileMode os.FileMode = 0644

// WriteAtomic creates path with the content produced by write. The content
// goes to a pending file in the same directory which replaces path only
// once write and the flush succeed, so a failed write leaves any previous
// file untouched and no partial file behind.
func WriteAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithTempDir(dir), renameio.WithPermissions(FileMode))
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	defer func() {
		// no-op once the file was replaced
		_ = pending.Cleanup()
	}()

	bw := bufio.NewWriter(pending)
	if err := write(bw); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
