// Package api implements the HTTP handlers for the video catalog: multipart
// upload ingest, metadata CRUD, and authorized range streaming of originals,
// renditions, and thumbnails.
package api
