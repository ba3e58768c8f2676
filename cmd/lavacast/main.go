// Package main is the entry point for the lavacast server.
//
// lavacast is a multi-channel multicast broadcaster: uploaded media files
// are conditioned with ffmpeg and streamed as numbered MPEG-TS channels
// over UDP or RTP multicast.
package main

import (
	"os"

	"github.com/lavacast/lavacast/cmd/lavacast/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
