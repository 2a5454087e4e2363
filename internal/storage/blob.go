// Package storage keeps generated artifacts such as difficulty charts.
package storage

import (
	"errors"
	"io"
	"path"
	"strings"
)

var ErrBadKey = errors.New("invalid blob key")

type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	SignedURL(key string) (string, error) // fs returns "file://..." for dev
}

// CleanKey canonicalizes a slash-separated key and rejects keys that would
// escape the store root.
func CleanKey(key string) (string, error) {
	key = strings.ReplaceAll(strings.TrimSpace(key), "\\", "/")
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", ErrBadKey
		}
	}
	k := strings.TrimPrefix(path.Clean("/"+key), "/")
	if k == "" {
		return "", ErrBadKey
	}
	return k, nil
}
