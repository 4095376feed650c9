package store

import "context"

// TranscriptRepository defines chat transcript operations.
type TranscriptRepository interface {
	Record(ctx context.Context, msg *Message) error
	List(ctx context.Context, sessionID string) ([]Message, error)
	Count(ctx context.Context, sessionID string) (int64, error)
	Clear(ctx context.Context, sessionID string) error
}

var _ TranscriptRepository = (*MessageStore)(nil)
