package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"camctl/pkg/storage/consts"
)

// SaveJob persists a pending post-processing job under id.
func (s *Storage) SaveJob(id string, job any) error {
	p, err := resolve(s.QueueDir(), id+consts.DefaultJobExt)
	if err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", id, err)
	}
	tmp := p + ".tmp"
	if err = os.WriteFile(tmp, data, consts.DefaultFilePerm); err != nil {
		return fmt.Errorf("write job %s: %w", id, err)
	}

	return os.Rename(tmp, p)
}

// LoadJobs decodes every persisted job with decode. Jobs that fail to decode
// are logged and removed.
func (s *Storage) LoadJobs(decode func(id string, data []byte) error) error {
	entries, err := os.ReadDir(s.QueueDir())
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, consts.DefaultJobExt) {
			continue
		}
		id := strings.TrimSuffix(name, consts.DefaultJobExt)
		data, err := os.ReadFile(filepath.Join(s.QueueDir(), name))
		if err != nil {
			return fmt.Errorf("read job %s: %w", id, err)
		}
		if err = decode(id, data); err != nil {
			s.logger.Warnf("dropping unreadable job %s: %s", id, err)
			_ = s.DeleteJob(id)
		}
	}

	return nil
}

func (s *Storage) DeleteJob(id string) error {
	p, err := resolve(s.QueueDir(), id+consts.DefaultJobExt)
	if err != nil {
		return err
	}
	if err = os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}
