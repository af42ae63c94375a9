package domain

// EnqueueTrackRequest is the request body for enqueueing a single track.
type EnqueueTrackRequest struct {
	TrackID string `json:"track_id" validate:"required"`
	Quality string `json:"quality" validate:"omitempty,oneof=low standard lossless"`
}

// EnqueueBatchRequest is the request body for enqueueing an album, playlist
// or multi-selection batch.
type EnqueueBatchRequest struct {
	Type     BatchType `json:"type" validate:"required,oneof=album playlist selection"`
	Title    string    `json:"title" validate:"omitempty,max=512"`
	TrackIDs []string  `json:"track_ids" validate:"required,min=1,max=1000,dive,required"`
	Quality  string    `json:"quality" validate:"omitempty,oneof=low standard lossless"`
}

// ConcurrencyRequest is the request body for changing the concurrency limit
// at runtime.
type ConcurrencyRequest struct {
	Limit int `json:"limit" validate:"required,min=1,max=10"`
}
