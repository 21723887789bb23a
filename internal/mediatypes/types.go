package mediatypes

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"media-shrinker/internal/logging"
)

// Kind is the coarse media category that selects a size targeter.
type Kind string

const (
	// KindImage selects the image quality ladder.
	KindImage Kind = "image"
	// KindVideo selects the video bitrate ladder. It is also the fallback for
	// anything that cannot be identified.
	KindVideo Kind = "video"
)

const (
	// ContentTypeJPEG is the content type of every image output.
	ContentTypeJPEG = "image/jpeg"
	// ContentTypeMP4 is the content type of every video output.
	ContentTypeMP4 = "video/mp4"
	// ContentTypeDefault is used when nothing better is known.
	ContentTypeDefault = "application/octet-stream"
)

// ImageExtensions is the allow-list consulted when content sniffing is
// inconclusive. It includes camera RAW formats the sniffer does not know.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
	".ico":  true,
	".svg":  true,
	".heic": true,
	".heif": true,
	".avif": true,
	".jxl":  true,
	".raw":  true,
	".cr2":  true,
	".nef":  true,
	".arw":  true,
	".dng":  true,
	".orf":  true,
	".rw2":  true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	// Images
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
	".avif": "image/avif",

	// Videos
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
	".ts":   "video/mp2t",
}

// Classify decides whether the file at path is an image or a video. It
// never fails: unreadable or unrecognised content falls back to the
// extension allow-list and then to KindVideo. The declared content type is
// only used for diagnostics.
func Classify(path, declaredContentType string) Kind {
	kind, detected, ok := sniff(path)
	if !ok {
		ext := strings.ToLower(filepath.Ext(path))
		if ImageExtensions[ext] {
			kind = KindImage
		} else {
			kind = KindVideo
		}
		logging.Debug("Sniffing inconclusive for %s (detected %q), classified as %s by extension %q", path, detected, kind, ext)
	}

	if declaredContentType != "" && !strings.HasPrefix(declaredContentType, string(kind)+"/") {
		logging.Debug("Declared content type %q disagrees with detected kind %s for %s", declaredContentType, kind, path)
	}
	return kind
}

// sniff walks the detected MIME type and its parents looking for an image or
// video family.
func sniff(path string) (Kind, string, bool) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", "", false
	}

	for m := mt; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "image/"):
			return KindImage, mt.String(), true
		case strings.HasPrefix(m.String(), "video/"):
			return KindVideo, mt.String(), true
		}
	}
	return "", mt.String(), false
}

// OutputExtension returns the file extension produced for a kind.
func OutputExtension(kind Kind) string {
	if kind == KindImage {
		return ".jpg"
	}
	return ".mp4"
}

// OutputContentType returns the content type produced for a kind.
func OutputContentType(kind Kind) string {
	if kind == KindImage {
		return ContentTypeJPEG
	}
	return ContentTypeMP4
}

// GetMimeType returns the MIME type for a given file extension.
// The extension is matched case-insensitively and must include the leading dot.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[strings.ToLower(ext)]; ok {
		return mime
	}
	return ContentTypeDefault
}
