// Package mediatypes classifies uploaded media and holds the content type
// tables shared by the converter and the HTTP API.
//
// # Classification
//
// Classify inspects the file content with mimetype and walks the detected
// type's parent chain for an image/* or video/* family:
//
//	kind := mediatypes.Classify("/tmp/job-1/source.heic", "image/heic")
//	// kind == mediatypes.KindImage
//
// When the content is not recognised the ImageExtensions allow-list decides;
// anything else is treated as video, so the video pipeline is the catch-all.
//
// # Outputs
//
// Every image is re-encoded to JPEG and every video to MP4.
// OutputExtension and OutputContentType return the matching suffix and
// content type for a Kind.
package mediatypes
