package models

import "time"

type JobKind string

const (
	// JobKindDownload output is streamed to one consumer and then removed.
	JobKindDownload JobKind = "download"
	// JobKindConversion output is kept next to the source as a named version.
	JobKindConversion JobKind = "conversion"
)

type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// Terminal reports whether no transition can leave s.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

type MediaSource struct {
	ID       string        `json:"id"`
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration"`
}

type EncodingOptions struct {
	VideoCodec      string `json:"video_codec" validate:"omitempty,oneof=copy libx264 libx265 libsvtav1 h264_vaapi hevc_vaapi"`
	AudioCodec      string `json:"audio_codec" validate:"omitempty,oneof=copy aac libopus ac3 mp3"`
	VideoBitrate    int    `json:"video_bitrate" validate:"omitempty,min=64,max=200000"`
	AudioBitrate    int    `json:"audio_bitrate" validate:"omitempty,min=32,max=1536"`
	AudioChannels   int    `json:"audio_channels" validate:"omitempty,min=1,max=8"`
	AudioSampleRate int    `json:"audio_sample_rate" validate:"omitempty,oneof=22050 32000 44100 48000 96000"`
	MaxWidth        int    `json:"max_width" validate:"omitempty,min=16,max=7680"`
	MaxHeight       int    `json:"max_height" validate:"omitempty,min=16,max=4320"`
	CRF             int    `json:"crf" validate:"omitempty,min=1,max=63"`
	Preset          string `json:"preset" validate:"omitempty,alpha"`
	Threads         int    `json:"threads" validate:"omitempty,min=0,max=64"`
	VideoSync       string `json:"video_sync" validate:"omitempty,oneof=passthrough cfr vfr drop auto"`
}

// InitiateInput is the request body accepted by the HTTP layer and the queue
// worker.
type InitiateInput struct {
	MediaID         string          `json:"media_id" validate:"required,lte=64"`
	SourcePath      string          `json:"source_path" validate:"required,lte=4096"`
	OutputVersion   string          `json:"output_version" validate:"omitempty,lte=128"`
	DurationSeconds float64         `json:"duration_seconds" validate:"omitempty,min=0"`
	Options         EncodingOptions `json:"options"`
}

// Kind derives the job kind: a version label makes it a conversion.
func (in *InitiateInput) Kind() JobKind {
	if in.OutputVersion != "" {
		return JobKindConversion
	}
	return JobKindDownload
}

func (in *InitiateInput) Source() MediaSource {
	return MediaSource{
		ID:       in.MediaID,
		Path:     in.SourcePath,
		Duration: time.Duration(in.DurationSeconds * float64(time.Second)),
	}
}

type ConversionStatusReport struct {
	Error           bool     `json:"error" redis:"error"`
	Message         string   `json:"message" redis:"message"`
	JobID           string   `json:"job_id" redis:"job_id"`
	MediaID         string   `json:"media_id,omitempty" redis:"media_id"`
	State           JobState `json:"state,omitempty" redis:"state"`
	PercentComplete float64  `json:"percent_complete" redis:"percent_complete"`
	Type            JobKind  `json:"type,omitempty" redis:"type"`
	IsComplete      bool     `json:"is_complete" redis:"is_complete"`
}

type CancelInput struct {
	MediaID    string `json:"media_id" validate:"omitempty,lte=64"`
	PathPrefix string `json:"path_prefix" validate:"omitempty,lte=4096"`
	All        bool   `json:"all"`
}

// ConversionRecord is the persisted outcome of a finished job.
type ConversionRecord struct {
	JobID      string    `json:"job_id" db:"job_id"`
	MediaID    string    `json:"media_id" db:"media_id"`
	Kind       JobKind   `json:"kind" db:"kind"`
	State      JobState  `json:"state" db:"state"`
	OutputPath string    `json:"output_path" db:"output_path"`
	Label      string    `json:"label" db:"label"`
	Message    string    `json:"message" db:"message"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	FinishedAt time.Time `json:"finished_at" db:"finished_at"`
}

type ConversionList struct {
	Records    []*ConversionRecord `json:"records"`
	TotalCount int                 `json:"total_count"`
	TotalPages int                 `json:"total_pages"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"page_size"`
	HasMore    bool                `json:"has_more"`
}
