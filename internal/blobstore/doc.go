// Package blobstore provides object storage for uploads and converted
// outputs on top of the AWS SDK for Go v2.
//
// Clients upload directly to the bucket with presigned multipart URLs
// (CreateMultipartUpload, PresignPartUpload, CompleteMultipartUpload). The
// conversion job then uses Head, Download and PutFile, and the status API
// hands out PresignDownload links. Setting Config.Endpoint and
// Config.UsePathStyle targets S3-compatible services like MinIO or R2.
package blobstore
