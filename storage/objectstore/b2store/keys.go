package b2store

import (
	"net/url"
	"strings"
)

const folderMarker = ".folder"

func childPrefix(parentID string) string {
	if parentID == "" {
		return ""
	}
	return parentID + "/"
}

// folderKey is the ID of folder name in parentID. Names are escaped so that they never add a level.
func folderKey(parentID, name string) string {
	return childPrefix(parentID) + url.PathEscape(name)
}

func markerKey(folderID string) string {
	return folderID + "/" + folderMarker
}

func blobKey(parentID, nonce, name string) string {
	return childPrefix(parentID) + nonce + "_" + url.PathEscape(name)
}

// blobName returns the name of the blob stored at key directly in parentID, or "" if key is not one.
func blobName(parentID, key string) string {
	rest, ok := strings.CutPrefix(key, childPrefix(parentID))
	if !ok || strings.Contains(rest, "/") {
		return ""
	}
	_, escaped, ok := strings.Cut(rest, "_")
	if !ok {
		return ""
	}
	name, err := url.PathUnescape(escaped)
	if err != nil {
		return ""
	}
	return name
}
