// SPDX-License-Identifier: ice License 1.0

//go:build test

package cfg

import (
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cockroachdb/errors"
)

func init() {
	mustInit(findAllApplicationConfigFiles()...)
}

func findAllApplicationConfigFiles() []string {
	var hints []string
	if p, err := os.Getwd(); err == nil {
		hints = append(hints, p)
	}
	if p, err := os.Executable(); err == nil {
		hints = append(hints, filepath.Dir(p))
	}
	_, callerFile, _, _ := runtime.Caller(0)
	hints = append(hints,
		filepath.Join(filepath.Dir(callerFile), ".."),
		filepath.Join(filepath.Dir(callerFile), "..", ".."))

	var files []string
	for _, dir := range hints {
		for _, pattern := range []string{
			filepath.Join(dir, ".testdata", "application.yaml"),
			filepath.Join(dir, "application.yaml"),
		} {
			if f, err := filepath.Glob(pattern); err != nil {
				log.Println(errors.Wrapf(err, "glob failed for [%v]", pattern))
			} else {
				files = append(files, f...)
			}
		}
	}

	return files
}
