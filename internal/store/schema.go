package store

const (
	KindText = "text"
	KindFile = "file"
)

// Message is one transcript line. Contact holds a fingerprint, never the raw
// contact id.
type Message struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"index;not null"`
	Contact   string
	Kind      string `gorm:"not null"`
	Text      string
	FileName  string
	FileSize  int64
	Local     bool
	CreatedAt int64
}
