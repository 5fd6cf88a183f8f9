// Package ffmpeg provides shared FFmpeg utilities and constants.
package ffmpeg

import (
	"cmp"
	"strings"
	"unicode/utf8"
)

// maxErrorLen caps the length of an extracted error line in bytes.
const maxErrorLen = 200

// Default encoding parameters.
const (
	DefaultBinary     = "ffmpeg"
	DefaultVideoCodec = "libx264"
	DefaultPreset     = "veryfast"
	DefaultAudioCodec = "aac"
	DefaultFormat     = "flv"
)

// Preset holds the fixed encoding parameters of the command line.
// Zero fields fall back to the defaults.
type Preset struct {
	Binary     string
	VideoCodec string
	Preset     string
	AudioCodec string
	Format     string
}

// BinaryPath returns the executable to launch.
func (p Preset) BinaryPath() string {
	return cmp.Or(p.Binary, DefaultBinary)
}

// BuildArgs constructs the FFmpeg arguments for one input and one output.
func (p Preset) BuildArgs(input, output string) []string {
	return []string{
		"-i", input,
		"-c:v", cmp.Or(p.VideoCodec, DefaultVideoCodec),
		"-preset", cmp.Or(p.Preset, DefaultPreset),
		"-c:a", cmp.Or(p.AudioCodec, DefaultAudioCodec),
		"-f", cmp.Or(p.Format, DefaultFormat),
		output,
	}
}

// ExtractLastError returns the last meaningful line from FFmpeg output.
// Returns empty string if no meaningful line is found.
func ExtractLastError(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || (strings.HasPrefix(line, "[") && strings.Contains(line, "] Encoder ")) {
			continue
		}
		if len(line) > maxErrorLen {
			cut := maxErrorLen
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			return line[:cut] + "..."
		}
		return line
	}
	return ""
}
