package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteFileAtomic writes data to a temporary file in the target directory
// and renames it over path, so readers never see a partial catalogue. The
// whole sequence is retried on transient errors.
func WriteFileAtomic(path string, data []byte, perm os.FileMode, config RetryConfig) error {
	start := time.Now()
	volume := config.resolveVolume(path)

	err := retry("write", path, config, func() error {
		return writeAndRename(path, data, perm)
	})

	if obs := observe(); obs != nil {
		obs.ObserveOperation(volume, "write", time.Since(start).Seconds(), err)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeAndRename(path string, data []byte, perm os.FileMode) error {
	tmp, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// writeTemp writes data to a synced temporary file next to path and
// returns its name. Nothing is left behind on error.
func writeTemp(path string, data []byte, perm os.FileMode) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	fail := func(err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", err
	}

	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		return fail(err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fail(err)
	}
	return tmpName, nil
}

// File is one member of a WriteFilesAtomic batch.
type File struct {
	Path string
	Data []byte
}

// WriteFilesAtomic replaces either every file of the batch or none of
// them. All files are staged first; targets are renamed over only once
// staging succeeded, and a failed rename restores the targets already
// replaced from hard-link backups.
func WriteFilesAtomic(files []File, perm os.FileMode, config RetryConfig) error {
	start := time.Now()
	b := &batch{}
	err := b.stage(files, perm, config)
	if err == nil {
		err = b.commit()
	}
	b.cleanup()

	if obs := observe(); obs != nil {
		elapsed := time.Since(start).Seconds()
		for _, f := range files {
			obs.ObserveOperation(config.resolveVolume(f.Path), "write", elapsed, err)
		}
	}
	return err
}

type stagedFile struct {
	path    string
	tmp     string
	backup  string
	renamed bool
}

type batch struct {
	files []stagedFile
}

func (b *batch) stage(files []File, perm os.FileMode, config RetryConfig) error {
	for _, f := range files {
		var tmp string
		err := retry("write", f.Path, config, func() error {
			var err error
			tmp, err = writeTemp(f.Path, f.Data, perm)
			return err
		})
		if err != nil {
			return fmt.Errorf("write %s: %w", f.Path, err)
		}
		b.files = append(b.files, stagedFile{path: f.Path, tmp: tmp})

		if _, err := os.Lstat(f.Path); err == nil {
			backup := tmp + ".bak"
			if err := os.Link(f.Path, backup); err != nil {
				return fmt.Errorf("back up %s: %w", f.Path, err)
			}
			b.files[len(b.files)-1].backup = backup
		}
	}
	return nil
}

func (b *batch) commit() error {
	for i := range b.files {
		sf := &b.files[i]
		if err := os.Rename(sf.tmp, sf.path); err != nil {
			b.rollback()
			return fmt.Errorf("write %s: %w", sf.path, err)
		}
		sf.renamed = true
	}
	return nil
}

func (b *batch) rollback() {
	for _, sf := range b.files {
		if !sf.renamed {
			continue
		}
		if sf.backup != "" {
			_ = os.Rename(sf.backup, sf.path)
		} else {
			_ = os.Remove(sf.path)
		}
	}
}

// cleanup removes leftover temporary files and backups.
func (b *batch) cleanup() {
	for _, sf := range b.files {
		if !sf.renamed {
			_ = os.Remove(sf.tmp)
		}
		if sf.backup != "" {
			_ = os.Remove(sf.backup)
		}
	}
}

// ReadFileWithRetry reads a whole file, retrying transient errors.
func ReadFileWithRetry(path string, config RetryConfig) ([]byte, error) {
	start := time.Now()
	var data []byte
	err := retry("open", path, config, func() error {
		var err error
		data, err = os.ReadFile(path)
		return err
	})
	if obs := observe(); obs != nil {
		obs.ObserveOperation(config.resolveVolume(path), "read", time.Since(start).Seconds(), err)
	}
	return data, err
}
