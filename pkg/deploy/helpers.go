package deploy

import (
	"path/filepath"
	"strings"
)

// normalizePath resolves pathList against projectRoot. Paths starting with // are relative to the project root.
func normalizePath(projectRoot string, pathList ...string) string {
	result := projectRoot

	for _, path := range pathList {
		if strings.HasPrefix(path, "//") {
			result = filepath.Join(projectRoot, path[2:])
		} else if strings.HasPrefix(path, "/") {
			result = filepath.Join(filepath.VolumeName(result), path)
		} else if !filepath.IsAbs(path) {
			result = filepath.Join(result, path)
		} else {
			result = path
		}
	}

	return filepath.Clean(result)
}

func simplifyPath(projectRoot, path string) string {
	if projectRoot == "" {
		return path
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	if absPath == projectRoot {
		return "//"
	}

	if strings.HasPrefix(absPath, projectRoot+string(filepath.Separator)) {
		return "//" + filepath.ToSlash(absPath[len(projectRoot)+1:])
	}
	return path
}
