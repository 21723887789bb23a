// Command shrink runs the media-shrinker size ladders on a local file,
// without S3, Redis or the job queue.
//
// Usage:
//
//	shrink [-o output] [-target bytes] [-encoder auto|native|vips|ffmpeg] [-json] <input>
//
// Images become JPEG and everything else is treated as video and becomes
// MP4. Files already within the target are left alone. The report is
// printed as text on a terminal and as JSON otherwise.
//
// Exit codes: 0 on success, 1 on error, 2 on bad usage, 3 when the output
// is still over the target after the smallest setting.
package main
