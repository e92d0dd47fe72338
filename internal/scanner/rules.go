package scanner

import (
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/dshills/filesift/internal/config"
	"github.com/dshills/filesift/pkg/types"
)

// Rules decides which directories are descended into and which files become
// candidates
type Rules struct {
	ignoreDirs  map[string]struct{}
	ignoreExts  map[string]struct{}
	ignoreFiles map[string]struct{}
	patterns    *gitignore.GitIgnore
}

// NewRules compiles the ignore lists of an indexer setting
func NewRules(s config.IndexerSetting) *Rules {
	r := &Rules{
		ignoreDirs:  make(map[string]struct{}, len(s.IgnoreDirs)),
		ignoreExts:  make(map[string]struct{}, len(s.IgnoreExts)),
		ignoreFiles: make(map[string]struct{}, len(s.IgnoreFiles)),
	}
	for _, d := range s.IgnoreDirs {
		r.ignoreDirs[d] = struct{}{}
	}
	for _, e := range s.IgnoreExts {
		r.ignoreExts[types.NormalizeExt(e)] = struct{}{}
	}
	for _, f := range s.IgnoreFiles {
		r.ignoreFiles[filepath.Clean(f)] = struct{}{}
	}
	if len(s.IgnorePatterns) > 0 {
		r.patterns = gitignore.CompileIgnoreLines(s.IgnorePatterns...)
	}
	return r
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func (r *Rules) matchesPattern(path string, isDir bool) bool {
	if r.patterns == nil {
		return false
	}
	p := filepath.ToSlash(path)
	if isDir {
		p += "/"
	}
	return r.patterns.MatchesPath(p)
}

// SkipDir reports whether the directory at path is left out of a scan
func (r *Rules) SkipDir(path string) bool {
	name := filepath.Base(path)
	if isHidden(name) {
		return true
	}
	if _, ok := r.ignoreDirs[name]; ok {
		return true
	}
	return r.matchesPattern(path, true)
}

// InIgnoredDir reports whether an ancestor directory of path is in the
// ignored directory set
func (r *Rules) InIgnoredDir(path string) bool {
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		if _, ok := r.ignoreDirs[filepath.Base(dir)]; ok {
			return true
		}
		if parent := filepath.Dir(dir); parent == dir {
			return false
		}
	}
}

// SkipFile reports whether the file at path is not a candidate. Files without
// an extension never are.
func (r *Rules) SkipFile(path string) bool {
	name := filepath.Base(path)
	if isHidden(name) {
		return true
	}
	ext := types.ExtOf(name)
	if ext == "" {
		return true
	}
	if _, ok := r.ignoreExts[ext]; ok {
		return true
	}
	if _, ok := r.ignoreFiles[filepath.Clean(path)]; ok {
		return true
	}
	return r.matchesPattern(path, false)
}
