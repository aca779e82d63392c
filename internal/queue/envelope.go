package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/reeltorecipe/video-worker/internal/models"
)

// ErrInvalidEnvelope marks a stream entry that carries no usable job
var ErrInvalidEnvelope = errors.New("invalid job envelope")

// ParseEnvelope decodes a queue:video_processing entry. Two layouts are accepted:
// a JSON blob under "data", or flat "job_id" and "url" fields.
func ParseEnvelope(values map[string]any) (*models.JobEnvelope, error) {
	job := &models.JobEnvelope{}

	if data, ok := values["data"]; ok {
		blob, ok := data.(string)
		if !ok {
			return nil, fmt.Errorf("%w: data field is not a string", ErrInvalidEnvelope)
		}
		if err := json.Unmarshal([]byte(blob), job); err != nil {
			return nil, fmt.Errorf("%w: failed to parse job data: %v", ErrInvalidEnvelope, err)
		}
		if job.JobID == "" {
			job.JobID = stringValue(values, "job_id")
		}
	} else {
		job.JobID = stringValue(values, "job_id")
		job.URL = stringValue(values, "url")
	}

	if job.JobID == "" || job.URL == "" {
		return nil, fmt.Errorf("%w: job_id and url are required", ErrInvalidEnvelope)
	}
	return job, nil
}

func stringValue(values map[string]any, key string) string {
	if val, ok := values[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
