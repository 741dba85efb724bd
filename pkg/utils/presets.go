package utils

import (
	"strings"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/models"
)

type resolutionPreset struct {
	height  int
	bitrate int
}

var resolutionPresets = map[string]resolutionPreset{
	"2160p": {height: 2160, bitrate: 20000},
	"4k":    {height: 2160, bitrate: 20000},
	"1440p": {height: 1440, bitrate: 10000},
	"2k":    {height: 1440, bitrate: 10000},
	"1080p": {height: 1080, bitrate: 6000},
	"720p":  {height: 720, bitrate: 3000},
	"480p":  {height: 480, bitrate: 1200},
	"360p":  {height: 360, bitrate: 700},
}

// PresetForLabel maps a resolution style version label such as "720p" to
// encoding options. ok is false for any other label.
func PresetForLabel(label string) (opts models.EncodingOptions, ok bool) {
	p, ok := resolutionPresets[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return models.EncodingOptions{}, false
	}
	return models.EncodingOptions{
		VideoCodec:    "libx264",
		AudioCodec:    "aac",
		VideoBitrate:  p.bitrate,
		AudioBitrate:  192,
		AudioChannels: 2,
		MaxHeight:     p.height,
	}, true
}
