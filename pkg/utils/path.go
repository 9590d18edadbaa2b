package utils

import (
	"path/filepath"
	"strings"

	"github.com/capadapt/capadapt/pkg/errors"
)

// SecureJoin joins elements below base and fails when the result would escape it.
// Elements are slash-separated and converted to the host separator.
//
//	path, err := SecureJoin("/var/backups", "nightly/hot/20240101.jsonl")
func SecureJoin(base string, elements ...string) (string, error) {
	if base == "" {
		return "", errors.NewError(errors.ErrCodeInvalidConfig, "base path cannot be empty")
	}

	cleanBase := filepath.Clean(base)
	parts := make([]string, 0, len(elements)+1)
	parts = append(parts, cleanBase)
	for _, e := range elements {
		parts = append(parts, filepath.FromSlash(e))
	}
	full := filepath.Join(parts...)

	if full != cleanBase && !strings.HasPrefix(full, cleanBase+string(filepath.Separator)) {
		return "", errors.Newf(errors.ErrCodeInvalidConfig, "path %q escapes %s", strings.Join(elements, "/"), base)
	}
	return full, nil
}
