package projectpath

import (
	"path/filepath"
	"runtime"
)

var (
	_, b, _, _ = runtime.Caller(0)

	// Root is the repository root, two levels above this file.
	Root = filepath.Join(filepath.Dir(b), "../..")
)
