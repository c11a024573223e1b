// Package generation holds the service interfaces the pipeline depends on
// and their production implementations: the script model client, still
// renderer, asynchronous clip service, ffmpeg stitcher, uploader, and the
// filesystem store for staged assets.
package generation
