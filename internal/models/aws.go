package models

import "io"

type UploadInput struct {
	File       io.Reader `json:"file,omitempty"`
	Name       string    `json:"name" validate:"required"`
	MimeType   string    `json:"mime_type" validate:"required"`
	Size       int64     `json:"size" validate:"required"`
	Key        string    `json:"key" validate:"required"`
	BucketName string    `json:"bucket_name" validate:"required"`
}
