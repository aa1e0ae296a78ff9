// Package store persists uploaded media files, their frame metadata, and the
// catalog that lists them.
//
// The layout under the storage root is:
//
//	media_files.json                  catalog of {id, filename} entries
//	media_files/{id}/{filename}       uploaded media
//	media_files/{id}/metadata.json    per-second frame metadata
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/augmedia/augplayer/internal/log"
	"github.com/augmedia/augplayer/internal/metadata"
)

const (
	mediaDir     = "media_files"
	catalogFile  = "media_files.json"
	metadataFile = "metadata.json"
)

var (
	// ErrNotFound is returned for IDs that have no catalog entry.
	ErrNotFound = errors.New("media file not found")
	// ErrInvalidID is returned for IDs that are not UUIDs, which keeps
	// caller-provided IDs from naming paths outside the media directory.
	ErrInvalidID = errors.New("invalid media file id")
	// ErrInvalidFilename is returned for upload names with no usable base name.
	ErrInvalidFilename = errors.New("invalid media file name")
	// ErrTooLarge is returned when an upload exceeds its size limit.
	ErrTooLarge = errors.New("media file too large")
)

// MediaFile is a catalog entry.
type MediaFile struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

// Store manages the storage layout on a filesystem.
type Store struct {
	fs   afero.Fs
	root string

	// catalogMu serializes read-modify-write cycles of the catalog.
	catalogMu sync.Mutex
}

// New returns a Store rooted at root on fs, creating the media directory if
// necessary.
func New(fs afero.Fs, root string) (*Store, error) {
	if err := fs.MkdirAll(filepath.Join(root, mediaDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating media directory: %w", err)
	}
	return &Store{fs: fs, root: root}, nil
}

// NewOS returns a Store on the operating system filesystem.
func NewOS(root string) (*Store, error) {
	return New(afero.NewOsFs(), root)
}

func (s *Store) catalogPath() string {
	return filepath.Join(s.root, catalogFile)
}

func (s *Store) dir(id string) string {
	return filepath.Join(s.root, mediaDir, id)
}

func (s *Store) filePath(f MediaFile) string {
	return filepath.Join(s.dir(f.ID), f.Filename)
}

// LocalPath returns the absolute path of the stored media for f. It is only
// meaningful for stores on the operating system filesystem, where other
// processes such as media pipelines can open the file.
func (s *Store) LocalPath(f MediaFile) (string, error) {
	return filepath.Abs(s.filePath(f))
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidID
	}
	return nil
}

// cleanFilename reduces a client-provided name to its base name. Both slash
// styles are treated as separators, since browsers on some platforms send
// full paths.
func cleanFilename(name string) (string, error) {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." || strings.TrimSpace(name) == "" {
		return "", ErrInvalidFilename
	}
	return name, nil
}

// SaveUpload writes the contents of r under a new ID, reading at most limit
// bytes. A limit of 0 or less disables the check. The returned file is not
// yet in the catalog; see AddMediaFile.
func (s *Store) SaveUpload(filename string, r io.Reader, limit int64) (MediaFile, error) {
	name, err := cleanFilename(filename)
	if err != nil {
		return MediaFile{}, err
	}

	f := MediaFile{ID: uuid.NewString(), Filename: name}
	if err := s.fs.MkdirAll(s.dir(f.ID), 0o755); err != nil {
		return MediaFile{}, fmt.Errorf("creating directories: %w", err)
	}

	if err := s.writeUpload(f, r, limit); err != nil {
		if rmErr := s.Remove(f.ID); rmErr != nil {
			log.Tprintf(s, "Failed to clean up partial upload %s: %v", f.ID, rmErr)
		}
		return MediaFile{}, err
	}
	return f, nil
}

func (s *Store) writeUpload(f MediaFile, r io.Reader, limit int64) error {
	out, err := s.fs.Create(s.filePath(f))
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer out.Close()

	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(out, r)
	if err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	if limit > 0 && n > limit {
		return ErrTooLarge
	}
	return out.Close()
}

// SaveMetadata writes the frames for id as indented JSON.
func (s *Store) SaveMetadata(id string, frames []metadata.Frame) error {
	if err := validateID(id); err != nil {
		return err
	}
	if frames == nil {
		frames = []metadata.Frame{}
	}

	data, err := json.MarshalIndent(frames, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing metadata: %w", err)
	}
	if err := afero.WriteFile(s.fs, filepath.Join(s.dir(id), metadataFile), data, 0o644); err != nil {
		return fmt.Errorf("writing metadata file: %w", err)
	}
	return nil
}

// Metadata reads the frames stored for id. Unparsable metadata is reported as
// an empty list.
func (s *Store) Metadata(id string) ([]metadata.Frame, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, filepath.Join(s.dir(id), metadataFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading metadata file: %w", err)
	}

	var frames []metadata.Frame
	if err := json.Unmarshal(data, &frames); err != nil || frames == nil {
		return []metadata.Frame{}, nil
	}
	return frames, nil
}

// MediaFiles reads the catalog. Unlike an unparsable catalog, which is
// reported as an empty list, a missing catalog is an error.
func (s *Store) MediaFiles() ([]MediaFile, error) {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	data, err := afero.ReadFile(s.fs, s.catalogPath())
	if err != nil {
		return nil, fmt.Errorf("reading media files: %w", err)
	}

	var files []MediaFile
	if err := json.Unmarshal(data, &files); err != nil || files == nil {
		return []MediaFile{}, nil
	}
	return files, nil
}

// MediaFile looks up the catalog entry for id.
func (s *Store) MediaFile(id string) (MediaFile, error) {
	if err := validateID(id); err != nil {
		return MediaFile{}, err
	}

	files, err := s.MediaFiles()
	if errors.Is(err, os.ErrNotExist) {
		return MediaFile{}, ErrNotFound
	}
	if err != nil {
		return MediaFile{}, err
	}

	for _, f := range files {
		if f.ID == id {
			return f, nil
		}
	}
	return MediaFile{}, ErrNotFound
}

// Open opens the stored media for f.
func (s *Store) Open(f MediaFile) (afero.File, error) {
	file, err := s.fs.Open(s.filePath(f))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return file, err
}

// AddMediaFile appends f to the catalog, creating the catalog if necessary.
// The catalog is replaced atomically, so readers never observe a partial
// write.
func (s *Store) AddMediaFile(f MediaFile) error {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	var files []MediaFile
	data, err := afero.ReadFile(s.fs, s.catalogPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("reading media files: %w", err)
	default:
		if err := json.Unmarshal(data, &files); err != nil {
			return fmt.Errorf("parsing media files: %w", err)
		}
	}

	files = append(files, f)
	data, err = json.MarshalIndent(files, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing media files: %w", err)
	}
	return s.replaceFile(s.catalogPath(), data)
}

func (s *Store) replaceFile(name string, data []byte) error {
	tmp, err := afero.TempFile(s.fs, filepath.Dir(name), "."+filepath.Base(name)+"-*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = s.fs.Rename(tmpName, name)
	}
	if err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", filepath.Base(name), err)
	}
	return nil
}

// Remove deletes the directory holding the media and metadata for id. It does
// not change the catalog.
func (s *Store) Remove(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	return s.fs.RemoveAll(s.dir(id))
}
