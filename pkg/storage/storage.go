package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"camctl/pkg/storage/consts"
	"camctl/pkg/storage/util"
	"camctl/pkg/types"
	"camctl/pkg/utils"
)

var (
	ErrInvalidName = errors.New("invalid file name")
	ErrUnknownKind = errors.New("unknown media kind")
)

// Storage lays out the media directory and names captured files.
type Storage struct {
	root   string
	now    func() time.Time
	logger *zap.SugaredLogger
}

func New(root string) (*Storage, error) {
	if root == "" {
		return nil, fmt.Errorf("storage path can not be empty")
	}
	s := &Storage{
		root:   root,
		now:    utils.Now,
		logger: utils.GetLogger().Named("storage"),
	}
	if err := util.MkdirAll(s.PhotoDir(), s.VideoDir(), s.QueueDir()); err != nil {
		return nil, fmt.Errorf("create storage dirs: %w", err)
	}

	return s, nil
}

func (s *Storage) Root() string {
	return s.root
}

func (s *Storage) PhotoDir() string {
	return filepath.Join(s.root, consts.DefaultPhotosDir)
}

func (s *Storage) VideoDir() string {
	return filepath.Join(s.root, consts.DefaultVideosDir)
}

func (s *Storage) QueueDir() string {
	return filepath.Join(s.root, consts.DefaultQueueDir)
}

// PhotoPath names a new photo of the given size.
func (s *Storage) PhotoPath(size types.Size) (string, error) {
	return s.newPath(s.PhotoDir(), consts.PhotoPrefix, size, consts.DefaultImageExt)
}

// VideoPath names a new recording of the given size in the container's
// extension.
func (s *Storage) VideoPath(size types.Size, format types.OutputFormat) (string, error) {
	return s.newPath(s.VideoDir(), consts.VideoPrefix, size, "."+format.Ext())
}

// newPath builds <prefix><time>_<W>x<H><ext>. Captures within the same second
// get a numeric suffix.
func (s *Storage) newPath(dir, prefix string, size types.Size, ext string) (string, error) {
	if err := util.MkdirAll(dir); err != nil {
		return "", err
	}
	base := fmt.Sprintf("%s%s_%s", prefix, s.now().Format(consts.TimeLayout), size)
	name := filepath.Join(dir, base+ext)
	for i := 1; util.Exists(name); i++ {
		name = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, i, ext))
	}

	return name, nil
}

// ThumbnailPath is the preview image written next to a recording.
func ThumbnailPath(video string) string {
	return strings.TrimSuffix(video, filepath.Ext(video)) + consts.DefaultThumbnailExt
}

// resolve maps a listed name back into dir, rejecting anything that would
// leave it.
func resolve(dir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}

	return filepath.Join(dir, name), nil
}
