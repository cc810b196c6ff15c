// Package extractor fetches media from a URL into a local folder.
package extractor

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Request describes one extraction.
type Request struct {
	URL string
	// Dir is the folder the file is written to.
	Dir string
	// Prefix is prepended to the media title to form the file name.
	Prefix string
	// Format is the quality selector, e.g. "best".
	Format string
}

// Result is what the extractor learned about the written file.
// Path may be empty when the backend could not report it.
type Result struct {
	Title     string
	Extension string
	Path      string
}

// Extractor downloads media. Implementations block until the file is
// written or the context is done.
type Extractor interface {
	Extract(ctx context.Context, req Request) (*Result, error)
}

// Prefix returns the file name prefix for a requester.
func Prefix(requesterID int64) string {
	return strconv.FormatInt(requesterID, 10) + "_"
}

// FileName returns "{prefix}{title}.{ext}".
func FileName(prefix, title, ext string) string {
	return prefix + title + "." + strings.TrimPrefix(ext, ".")
}

// Locate finds the file a successful extraction produced. It tries the
// path the extractor reported, then the recomputed name, then scans dir
// for an entry whose NFC-normalized name matches. ok is false when
// nothing exists.
func Locate(dir, prefix string, res *Result) (path string, ok bool) {
	if res == nil {
		return "", false
	}
	if res.Path != "" && isRegular(res.Path) {
		return res.Path, true
	}
	if res.Title == "" {
		return "", false
	}

	if res.Extension != "" {
		expected := filepath.Join(dir, FileName(prefix, res.Title, res.Extension))
		if isRegular(expected) {
			return expected, true
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	want := norm.NFC.String(prefix + res.Title)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := norm.NFC.String(e.Name())
		ext := filepath.Ext(name)
		if strings.TrimSuffix(name, ext) != want {
			continue
		}
		if res.Extension != "" && !strings.EqualFold(strings.TrimPrefix(ext, "."), strings.TrimPrefix(res.Extension, ".")) {
			continue
		}
		// Partial downloads are never a delivered file.
		if ext == ".part" || ext == ".ytdl" {
			continue
		}
		return filepath.Join(dir, e.Name()), true
	}
	return "", false
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
