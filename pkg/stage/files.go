// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/stacklok/snowflake-client/pkg/errors"
	"github.com/stacklok/snowflake-client/pkg/logger"
)

// sizedFiles partitions upload candidates by the size threshold. Small files
// go through the bounded-parallel path, large files are transferred one at a
// time to cap memory pressure.
type sizedFiles struct {
	small []string
	large []string
}

// listFiles expands each source location as a filesystem glob and buckets
// every match by size. A negative threshold is clamped to zero, which makes
// every file large. Unreadable glob patterns are skipped; a missing file
// named without wildcards surfaces as an IO error.
func listFiles(srcLocations []string, threshold int64) (sizedFiles, error) {
	if threshold < 0 {
		threshold = 0
	}

	var files sizedFiles
	for _, src := range srcLocations {
		matches, err := filepath.Glob(src)
		if err != nil {
			logger.Warnw("skipping unreadable glob pattern", "pattern", src)
			continue
		}
		if len(matches) == 0 && !hasGlobMeta(src) {
			if _, err := os.Stat(src); err != nil {
				return sizedFiles{}, errors.NewIOError("reading upload source "+src, err)
			}
		}

		for _, path := range matches {
			info, err := os.Stat(path)
			if err != nil {
				return sizedFiles{}, errors.NewIOError("reading upload source "+path, err)
			}
			if info.IsDir() {
				continue
			}
			if info.Size() > threshold {
				files.large = append(files.large, path)
			} else {
				files.small = append(files.small, path)
			}
		}
	}
	return files, nil
}

func hasGlobMeta(path string) bool {
	return strings.ContainsAny(path, "*?[")
}
