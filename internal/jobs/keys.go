package jobs

import (
	"path"
	"strings"

	"media-shrinker/internal/mediatypes"
)

const (
	// UploadPrefix is where clients upload originals.
	UploadPrefix = "uploads/"
	// OutputPrefix is where converted files are written.
	OutputPrefix = "processed/"
)

// OutputKey returns the object key for the converted form of sourceKey:
// processed/<file name without its last extension>.jpg|.mp4. Re-running a
// job writes the same key.
func OutputKey(sourceKey string, kind mediatypes.Kind) string {
	return OutputPrefix + baseName(sourceKey) + mediatypes.OutputExtension(kind)
}

// CandidateOutputKeys lists the keys a conversion of sourceKey may have
// produced, video first.
func CandidateOutputKeys(sourceKey string) []string {
	return []string{
		OutputKey(sourceKey, mediatypes.KindVideo),
		OutputKey(sourceKey, mediatypes.KindImage),
	}
}

// UploadKey builds the object key for a new upload. Directory components of
// filename are dropped so the key always sits directly under UploadPrefix.
func UploadKey(id, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if name == "." || name == "/" {
		name = "upload"
	}
	return UploadPrefix + id + "-" + name
}

// baseName strips the directory and the last extension from key.
func baseName(key string) string {
	name := key
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}
