// Package encoder builds ffmpeg invocations and supervises the spawned
// process: exit status, forced termination and progress parsed from the
// -progress key=value stream.
package encoder

import (
	"fmt"
	"strconv"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/models"
)

const (
	defaultVideoCodec = "libx264"
	defaultAudioCodec = "aac"
	defaultPreset     = "veryfast"
	defaultCRF        = 23
)

// ArgumentBuilder maps a source and encoding options to an ordered ffmpeg
// argument list. Implementations must be pure.
type ArgumentBuilder interface {
	BuildArguments(src models.MediaSource, opts models.EncodingOptions, outputPath string) []string
}

// FFmpegArguments produces a single-file fragmented-safe MP4 encode with
// progress reporting on stdout.
type FFmpegArguments struct{}

func (FFmpegArguments) BuildArguments(src models.MediaSource, opts models.EncodingOptions, outputPath string) []string {
	args := []string{
		"-hide_banner",
		"-nostats",
		"-progress", "pipe:1",
		"-i", src.Path,
		"-map_metadata", "-1",
		"-map_chapters", "-1",
		"-threads", strconv.Itoa(opts.Threads),
		"-map", "0:v:0?",
		"-map", "0:a:0?",
	}
	args = append(args, videoArguments(opts)...)
	args = append(args, audioArguments(opts)...)
	args = append(args,
		"-f", "mp4",
		"-movflags", "+faststart",
		"-max_delay", "5000000",
		"-avoid_negative_ts", "disabled",
		"-start_at_zero",
		"-y", outputPath,
	)
	return args
}

func videoArguments(opts models.EncodingOptions) []string {
	codec := opts.VideoCodec
	if codec == "" {
		codec = defaultVideoCodec
	}
	args := []string{"-codec:v:0", codec}
	if codec == "copy" {
		args = append(args, "-copyts")
		if opts.VideoSync != "" {
			args = append(args, "-vsync", opts.VideoSync)
		}
		return args
	}

	if codec == "libx264" || codec == "libx265" {
		preset := opts.Preset
		if preset == "" {
			preset = defaultPreset
		}
		args = append(args, "-preset", preset)
	}

	switch {
	case opts.VideoBitrate > 0:
		args = append(args,
			"-b:v", fmt.Sprintf("%dk", opts.VideoBitrate),
			"-maxrate", fmt.Sprintf("%dk", opts.VideoBitrate),
			"-bufsize", fmt.Sprintf("%dk", opts.VideoBitrate*2),
		)
	case opts.CRF > 0:
		args = append(args, "-crf", strconv.Itoa(opts.CRF))
	default:
		args = append(args, "-crf", strconv.Itoa(defaultCRF))
	}

	if filter := scaleFilter(opts.MaxWidth, opts.MaxHeight); filter != "" {
		args = append(args, "-vf", filter)
	}

	args = append(args, "-copyts")
	if opts.VideoSync != "" {
		args = append(args, "-vsync", opts.VideoSync)
	}
	return args
}

// scaleFilter bounds the output size while keeping the aspect ratio and even
// dimensions.
func scaleFilter(maxWidth, maxHeight int) string {
	switch {
	case maxWidth > 0 && maxHeight > 0:
		return fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease:force_divisible_by=2", maxWidth, maxHeight)
	case maxWidth > 0:
		return fmt.Sprintf("scale=w='min(%d,iw)':h=-2", maxWidth)
	case maxHeight > 0:
		return fmt.Sprintf("scale=w=-2:h='min(%d,ih)'", maxHeight)
	}
	return ""
}

func audioArguments(opts models.EncodingOptions) []string {
	codec := opts.AudioCodec
	if codec == "" {
		codec = defaultAudioCodec
	}
	args := []string{"-codec:a:0", codec}
	if codec == "copy" {
		return args
	}
	if opts.AudioChannels > 0 {
		args = append(args, "-ac", strconv.Itoa(opts.AudioChannels))
	}
	if opts.AudioBitrate > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dk", opts.AudioBitrate))
	}
	if opts.AudioSampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(opts.AudioSampleRate))
	}
	return args
}
