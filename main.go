// Package main implements a web control panel for a single supervised FFmpeg
// video encoder process.
//
// Usage:
//
//	zwfm-videoencoder [serve] [--config path/to/config.json]
//	zwfm-videoencoder version
//
// If --config is not specified, the encoder looks for config.json in the same
// directory as the binary.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
