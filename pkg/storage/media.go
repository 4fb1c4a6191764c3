package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"camctl/pkg/storage/consts"
	"camctl/pkg/storage/util"
)

type Kind string

const (
	KindPhoto Kind = "photo"
	KindVideo Kind = "video"
)

// Media is one listed capture.
type Media struct {
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Size      int64     `json:"size"`
	HumanSize string    `json:"humanSize"`
	ModTime   time.Time `json:"modTime"`
	Thumbnail string    `json:"thumbnail,omitempty"`
}

func (s *Storage) dir(kind Kind) (string, error) {
	switch kind {
	case KindPhoto:
		return s.PhotoDir(), nil
	case KindVideo:
		return s.VideoDir(), nil
	default:
		return "", fmt.Errorf("%q: %w", kind, ErrUnknownKind)
	}
}

func isMedia(kind Kind, name string) bool {
	switch kind {
	case KindPhoto:
		return strings.HasPrefix(name, consts.PhotoPrefix) && strings.HasSuffix(name, consts.DefaultImageExt)
	case KindVideo:
		return strings.HasPrefix(name, consts.VideoPrefix) && !strings.HasSuffix(name, consts.DefaultThumbnailExt)
	}
	return false
}

// ListMedia lists the captures of one kind, newest first.
func (s *Storage) ListMedia(kind Kind) ([]Media, error) {
	dir, err := s.dir(kind)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var res []Media
	for _, e := range entries {
		if e.IsDir() || !isMedia(kind, e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			s.logger.Warnf("stat %s: %s", e.Name(), err)
			continue
		}
		m := Media{
			Name:      e.Name(),
			Kind:      kind,
			Size:      info.Size(),
			HumanSize: humanize.Bytes(uint64(info.Size())),
			ModTime:   info.ModTime(),
		}
		if kind == KindVideo {
			if thumb := ThumbnailPath(filepath.Join(dir, e.Name())); util.Exists(thumb) {
				m.Thumbnail = filepath.Base(thumb)
			}
		}
		res = append(res, m)
	}
	slices.SortFunc(res, func(a, b Media) int {
		return b.ModTime.Compare(a.ModTime)
	})

	return res, nil
}

// MediaPath returns the file of a listed capture. Thumbnails of recordings
// are reachable under their video kind.
func (s *Storage) MediaPath(kind Kind, name string) (string, error) {
	dir, err := s.dir(kind)
	if err != nil {
		return "", err
	}
	p, err := resolve(dir, name)
	if err != nil {
		return "", err
	}
	if _, err = os.Stat(p); err != nil {
		return "", fmt.Errorf("media %s: %w", name, err)
	}

	return p, nil
}

// DeleteMedia removes a capture and the thumbnail of a recording.
func (s *Storage) DeleteMedia(kind Kind, name string) error {
	p, err := s.MediaPath(kind, name)
	if err != nil {
		return err
	}
	if err = os.Remove(p); err != nil {
		return err
	}
	if kind == KindVideo {
		if err = os.Remove(ThumbnailPath(p)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	s.logger.Infof("deleted %s %s", kind, name)

	return nil
}

// Usage sums the bytes of all captures.
func (s *Storage) Usage() (uint64, error) {
	var total uint64
	err := filepath.WalkDir(s.root, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(info.Size())
		return nil
	})

	return total, err
}
