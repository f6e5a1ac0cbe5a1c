package profile

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shehryarbajwa/whatsapp-sender/pkg/models"
)

// ErrNoSnapshot is returned when a profile has never been saved
var ErrNoSnapshot = errors.New("profile has no saved snapshot")

// skipDirs are Chrome caches that need not survive a restart
var skipDirs = map[string]bool{
	"Cache":         true,
	"Code Cache":    true,
	"GPUCache":      true,
	"GrShaderCache": true,
	"ShaderCache":   true,
	"Crashpad":      true,
}

// Store keeps tar.gz snapshots of Chrome user-data directories, so a
// WhatsApp Web login survives browser restarts and container removal.
type Store struct {
	storePath string
	mu        sync.Mutex
}

// NewStore creates a store rooted at storePath
func NewStore(storePath string) (*Store, error) {
	if err := os.MkdirAll(storePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &Store{
		storePath: storePath,
	}, nil
}

// Get returns metadata for a saved profile
func (s *Store) Get(name string) (*models.Profile, error) {
	path, err := s.archivePath(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}

	return &models.Profile{
		Name:      name,
		UpdatedAt: info.ModTime(),
		Size:      info.Size(),
		DataPath:  path,
	}, nil
}

// Delete removes a saved profile
func (s *Store) Delete(name string) error {
	path, err := s.archivePath(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete profile data: %w", err)
	}
	return nil
}

// Save compresses userDataDir into the named snapshot
func (s *Store) Save(name, userDataDir string) (*models.Profile, error) {
	path, err := s.archivePath(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := path + ".tmp"
	if err := compressDirectory(userDataDir, tmp); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to compress profile data: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to store profile data: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &models.Profile{
		Name:      name,
		UpdatedAt: time.Now(),
		Size:      info.Size(),
		DataPath:  path,
	}, nil
}

// Restore extracts the named snapshot into userDataDir. An existing,
// non-empty userDataDir is left untouched and reported as restored=false.
func (s *Store) Restore(name, userDataDir string) (bool, error) {
	p, err := s.Get(name)
	if err != nil {
		return false, err
	}

	if entries, err := os.ReadDir(userDataDir); err == nil && len(entries) > 0 {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(userDataDir, 0755); err != nil {
		return false, fmt.Errorf("failed to create user data directory: %w", err)
	}
	if err := extractDirectory(p.DataPath, userDataDir); err != nil {
		return false, fmt.Errorf("failed to extract profile data: %w", err)
	}
	return true, nil
}

func (s *Store) archivePath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid profile name %q", name)
	}
	return filepath.Join(s.storePath, fmt.Sprintf("%s.tar.gz", name)), nil
}

// compressDirectory creates a tar.gz archive of a directory
func compressDirectory(source, target string) error {
	file, err := os.Create(target)
	if err != nil {
		return err
	}
	defer file.Close()

	gzWriter := gzip.NewWriter(file)
	tarWriter := tar.NewWriter(gzWriter)

	walkErr := filepath.Walk(source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() && skipDirs[info.Name()] {
			return filepath.SkipDir
		}
		// Singleton locks and sockets belong to the running Chrome
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tarWriter, f)
		return err
	})
	if walkErr != nil {
		return walkErr
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzWriter.Close()
}

// extractDirectory extracts a tar.gz archive to a directory
func extractDirectory(source, target string) error {
	file, err := os.Open(source)
	if err != nil {
		return err
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	root := filepath.Clean(target) + string(os.PathSeparator)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		targetPath := filepath.Join(target, filepath.FromSlash(header.Name))
		if !strings.HasPrefix(targetPath, root) {
			return fmt.Errorf("archive entry %q escapes target directory", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
				return err
			}

			outFile, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode).Perm())
			if err != nil {
				return err
			}

			if _, err := io.Copy(outFile, tarReader); err != nil {
				outFile.Close()
				return err
			}
			outFile.Close()
		}
	}

	return nil
}
