// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

package ingestion

import (
	"context"
	"path/filepath"
	"strings"

	"log/slog"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"

	"github.com/scopegraph/scopegraph/pkg/kind"
)

// RepoLoader enumerates a repository's source files through an abstract
// filesystem (github.com/viant/afs), so an ingestion run can point at a
// local directory today and, without touching the walker, at a remote
// object store tomorrow.
type RepoLoader struct {
	logger  *slog.Logger
	service afs.Service
}

// NewRepoLoader constructs a RepoLoader over the default afs service
// (local + the schemes afs registers by default).
func NewRepoLoader(logger *slog.Logger) *RepoLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepoLoader{logger: logger, service: afs.New()}
}

// FileInfo describes one file discovered under a repository root.
type FileInfo struct {
	Path     string // relative to the repo root, forward-slashed
	URL      string // absolute afs URL, usable with Read
	Size     int64
	Language string
}

// LoadResult is everything LoadRepository discovers about one root.
type LoadResult struct {
	RootURL     string
	Files       []FileInfo
	FileCount   int
	TotalSize   int64
	Languages   map[string]int
	SkipReasons map[string]int
}

// LoadRepository walks rootURL (a local path or any afs-supported URL)
// collecting eligible source files: not matched by excludeGlobs, not
// larger than maxFileSize (0 = unlimited).
func (rl *RepoLoader) LoadRepository(ctx context.Context, rootURL string, excludeGlobs []string, maxFileSize int64) (*LoadResult, error) {
	result := &LoadResult{
		RootURL:     rootURL,
		Languages:   make(map[string]int),
		SkipReasons: make(map[string]int),
	}

	if err := rl.walk(ctx, rootURL, rootURL, excludeGlobs, maxFileSize, result); err != nil {
		return nil, kind.Wrap(kind.ParseError, "walking repository root "+rootURL, err)
	}

	result.FileCount = len(result.Files)
	rl.logger.Info("repo.load.complete", "files", result.FileCount, "total_size", result.TotalSize)
	return result, nil
}

func (rl *RepoLoader) walk(ctx context.Context, rootURL, dirURL string, excludeGlobs []string, maxFileSize int64, result *LoadResult) error {
	objects, err := rl.service.List(ctx, dirURL)
	if err != nil {
		return err
	}
	for _, obj := range objects {
		if isSelf(obj, dirURL) {
			continue
		}
		relPath := relativePath(rootURL, obj.URL())
		if obj.IsDir() {
			if rl.shouldExclude(relPath, excludeGlobs) {
				result.SkipReasons["excluded_dir"]++
				continue
			}
			if err := rl.walk(ctx, rootURL, obj.URL(), excludeGlobs, maxFileSize, result); err != nil {
				rl.logger.Warn("repo.walk.error", "path", relPath, "err", err)
			}
			continue
		}

		if rl.shouldExclude(relPath, excludeGlobs) {
			result.SkipReasons["excluded"]++
			continue
		}
		if maxFileSize > 0 && obj.Size() > maxFileSize {
			result.SkipReasons["too_large"]++
			continue
		}

		language := detectLanguageFromPath(relPath)
		result.Files = append(result.Files, FileInfo{
			Path: relPath, URL: obj.URL(), Size: obj.Size(), Language: language,
		})
		result.TotalSize += obj.Size()
		if language != "" {
			result.Languages[language]++
		}
	}
	return nil
}

// Read fetches the content of one file previously returned by
// LoadRepository. It does no binary sniffing and no size re-check; the
// size limit was already applied by LoadRepository.
func (rl *RepoLoader) Read(ctx context.Context, fileURL string) ([]byte, error) {
	return rl.service.DownloadWithURL(ctx, fileURL)
}

func isSelf(obj storage.Object, dirURL string) bool {
	return strings.TrimRight(obj.URL(), "/") == strings.TrimRight(dirURL, "/")
}

func relativePath(rootURL, url string) string {
	rel := strings.TrimPrefix(url, rootURL)
	rel = strings.TrimPrefix(rel, "/")
	return filepath.ToSlash(rel)
}

func (rl *RepoLoader) shouldExclude(path string, excludeGlobs []string) bool {
	normalized := filepath.ToSlash(path)
	for _, pattern := range excludeGlobs {
		if matchesGlob(normalized, pattern) {
			return true
		}
	}
	return false
}

// matchesGlob performs full glob matching with support for *, **, ?, and
// character classes, matched against the full relative path (an
// unanchored pattern matches at any depth).
func matchesGlob(path, pattern string) bool {
	pattern = filepath.ToSlash(pattern)

	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
		parts := strings.Split(path, "/")
		for i := range parts {
			subpath := strings.Join(parts[i:], "/")
			if subpath == prefix || strings.HasPrefix(subpath, prefix+"/") {
				return true
			}
		}
	}

	if strings.HasPrefix(pattern, "*.") && !strings.Contains(pattern, "/") {
		return strings.HasSuffix(path, pattern[1:])
	}

	if !strings.ContainsAny(pattern, "*?[") {
		return path == pattern || strings.HasSuffix(path, "/"+pattern) || strings.HasPrefix(path, pattern+"/")
	}

	if matchGlobPattern(path, pattern) {
		return true
	}
	parts := strings.Split(path, "/")
	for i := range parts {
		subpath := strings.Join(parts[i:], "/")
		if matchGlobPattern(subpath, pattern) {
			return true
		}
	}
	return false
}

func matchGlobPattern(path, pattern string) bool {
	return matchGlobRecursive(path, pattern, 0, 0)
}

func matchGlobRecursive(path, pattern string, pi, pti int) bool {
	for pi < len(path) || pti < len(pattern) {
		if pti >= len(pattern) {
			return false
		}

		if pti+1 < len(pattern) && pattern[pti] == '*' && pattern[pti+1] == '*' {
			nextPti := pti + 2
			if nextPti < len(pattern) && pattern[nextPti] == '/' {
				nextPti++
			}
			if nextPti >= len(pattern) {
				return true
			}
			for i := pi; i <= len(path); i++ {
				if matchGlobRecursive(path, pattern, i, nextPti) {
					return true
				}
			}
			return false
		}

		if pattern[pti] == '*' {
			nextPti := pti + 1
			for i := pi; i <= len(path); i++ {
				if i > pi && path[i-1] == '/' {
					break
				}
				if matchGlobRecursive(path, pattern, i, nextPti) {
					return true
				}
			}
			return false
		}

		if pattern[pti] == '?' {
			if pi >= len(path) || path[pi] == '/' {
				return false
			}
			pi++
			pti++
			continue
		}

		if pattern[pti] == '[' {
			closeIdx := strings.IndexByte(pattern[pti:], ']')
			if closeIdx < 0 {
				if pi < len(path) && path[pi] == '[' {
					pi++
					pti++
					continue
				}
				return false
			}
			closeIdx += pti
			if pi >= len(path) || !matchCharClass(path[pi], pattern[pti+1:closeIdx]) {
				return false
			}
			pi++
			pti = closeIdx + 1
			continue
		}

		if pi >= len(path) || path[pi] != pattern[pti] {
			return false
		}
		pi++
		pti++
	}
	return pi == len(path) && pti == len(pattern)
}

func matchCharClass(c byte, class string) bool {
	if len(class) == 0 {
		return false
	}
	negated := false
	idx := 0
	if class[0] == '!' || class[0] == '^' {
		negated = true
		idx = 1
	}
	matched := false
	for idx < len(class) {
		if idx+2 < len(class) && class[idx+1] == '-' {
			if c >= class[idx] && c <= class[idx+2] {
				matched = true
			}
			idx += 3
			continue
		}
		if c == class[idx] {
			matched = true
		}
		idx++
	}
	if negated {
		return !matched
	}
	return matched
}

func detectLanguageFromPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	langMap := map[string]string{
		".go": "go", ".py": "python", ".js": "javascript", ".ts": "typescript",
		".jsx": "javascript", ".tsx": "typescript", ".java": "java", ".rs": "rust",
		".cpp": "cpp", ".c": "c", ".h": "c", ".hpp": "cpp", ".cc": "cpp",
		".cs": "csharp", ".rb": "ruby", ".php": "php", ".proto": "protobuf",
	}
	if lang, ok := langMap[ext]; ok {
		return lang
	}
	return ""
}
