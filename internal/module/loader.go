package module

import (
	"os"
	"path/filepath"
)

// Loader resolves a module name to a source file and reads it (§4.7,
// component C7). FileSystemLoader is the default implementation; a host
// embedding the VM can substitute one that reads from an archive or a
// network source instead.
type Loader interface {
	ResolvePath(moduleName, fromPath string) (string, bool)
	LoadSource(path string) (string, error)
	Timestamp(path string) int64
	AddSearchPath(path string)
}

// FileSystemLoader resolves module names against the filesystem: relative
// to the importing module's own directory first, then each configured
// search root, trying each extension in order, finally treating the name
// as a literal path that already exists. Ported in semantics from
// Vm/Module.cpp's FileSystemLoader.
type FileSystemLoader struct {
	searchPaths []string
	extensions  []string
}

func NewFileSystemLoader(searchPaths, extensions []string) *FileSystemLoader {
	if len(searchPaths) == 0 {
		searchPaths = []string{"."}
	}
	if len(extensions) == 0 {
		extensions = []string{".flx", ".spt", ".flxc"}
	}
	return &FileSystemLoader{searchPaths: searchPaths, extensions: extensions}
}

func (l *FileSystemLoader) ResolvePath(moduleName, fromPath string) (string, bool) {
	if fromPath != "" {
		parent := filepath.Dir(fromPath)
		for _, ext := range l.extensions {
			candidate := filepath.Join(parent, moduleName+ext)
			if fileExists(candidate) {
				abs, err := filepath.Abs(candidate)
				if err == nil {
					return abs, true
				}
				return candidate, true
			}
		}
	}

	for _, searchPath := range l.searchPaths {
		for _, ext := range l.extensions {
			candidate := filepath.Join(searchPath, moduleName+ext)
			if fileExists(candidate) {
				abs, err := filepath.Abs(candidate)
				if err == nil {
					return abs, true
				}
				return candidate, true
			}
		}
	}

	if fileExists(moduleName) {
		abs, err := filepath.Abs(moduleName)
		if err == nil {
			return abs, true
		}
		return moduleName, true
	}

	return "", false
}

func (l *FileSystemLoader) LoadSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (l *FileSystemLoader) Timestamp(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixMilli()
}

func (l *FileSystemLoader) AddSearchPath(path string) {
	l.searchPaths = append(l.searchPaths, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
