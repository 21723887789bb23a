// Package transcoder wraps the encoders used to re-encode media.
//
// FFmpeg runs ffmpeg and ffprobe as tracked child processes and can encode
// both images and videos. Native (disintegration/imaging) and Vips (libvips)
// encode images in process. Chain composes image encoders so that an
// in-process encoder which cannot decode a file hands it on to the next one,
// with ffmpeg as the last resort.
//
// All encoders overwrite their destination and report the resulting size in
// bytes; choosing parameters is left to the sizing package.
package transcoder
