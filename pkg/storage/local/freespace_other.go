//go:build !unix

package local

import "github.com/marmos91/dittovfs/pkg/storage"

func freeSpace(string) (int64, error) {
	return storage.SpaceUnknown, nil
}
