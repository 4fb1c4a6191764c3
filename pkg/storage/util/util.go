package util

import (
	"os"

	"camctl/pkg/storage/consts"
)

func MkdirAll(dirs ...string) error {
	for _, d := range dirs {
		err := os.MkdirAll(d, consts.DefaultDirPerm)
		if err != nil {
			return err
		}
	}

	return nil
}

// Exists reports whether name exists. Errors other than not-exist count as
// existing.
func Exists(name string) bool {
	_, err := os.Stat(name)
	return !os.IsNotExist(err)
}
