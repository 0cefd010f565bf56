// Package preview decides how a prompt can be shown to a reader.
package preview

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

type Kind string

const (
	KindImage    Kind = "image"
	KindPDF      Kind = "pdf"
	KindDocument Kind = "document"
	KindLink     Kind = "link"
	KindFile     Kind = "file"
)

var (
	pathIDRegex  = regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`)
	queryIDRegex = regexp.MustCompile(`id=([a-zA-Z0-9_-]+)`)

	kindsByExt = map[string]Kind{
		".png":  KindImage,
		".jpg":  KindImage,
		".jpeg": KindImage,
		".gif":  KindImage,
		".pdf":  KindPDF,
		".doc":  KindDocument,
		".docx": KindDocument,
	}
)

// Target describes what a client should render for a prompt.
type Target struct {
	Kind   Kind   `json:"kind"`
	Name   string `json:"name"`
	FileID string `json:"fileId,omitempty"`
	// Link is the external link as pasted by the teacher.
	Link string `json:"link,omitempty"`
	// URL is an embeddable preview of Link. Empty when Link is not previewable.
	URL string `json:"url,omitempty"`
}

// Previewable reports whether the target can be embedded rather than only downloaded or followed.
func (t Target) Previewable() bool {
	switch t.Kind {
	case KindLink:
		return t.URL != ""
	case KindFile:
		return false
	}
	return true
}

// KindOf returns the kind of an uploaded file from its name.
func KindOf(name string) Kind {
	if kind, ok := kindsByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return kind
	}
	return KindFile
}

// ForFile describes an uploaded prompt.
func ForFile(fileID, name string) Target {
	return Target{Kind: KindOf(name), Name: name, FileID: fileID}
}

// ForLink describes an external link prompt.
func ForLink(fileID, name, link string) Target {
	link = strings.TrimSpace(link)
	url, _ := ResolveTarget(link)
	return Target{Kind: KindLink, Name: name, FileID: fileID, Link: link, URL: url}
}

// ResolveTarget maps a shared document link to its embeddable preview URL.
// It returns false when no document id can be extracted from raw.
func ResolveTarget(raw string) (string, bool) {
	id := extractID(raw)
	if id == "" {
		return "", false
	}
	if strings.Contains(raw, "docs.google.com") {
		switch {
		case strings.Contains(raw, "presentation"):
			return fmt.Sprintf("https://docs.google.com/presentation/d/%s/preview", id), true
		case strings.Contains(raw, "spreadsheets"):
			return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/preview", id), true
		default:
			return fmt.Sprintf("https://docs.google.com/document/d/%s/preview", id), true
		}
	}
	return fmt.Sprintf("https://drive.google.com/file/d/%s/preview", id), true
}

func extractID(raw string) string {
	if m := pathIDRegex.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	if m := queryIDRegex.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return ""
}
