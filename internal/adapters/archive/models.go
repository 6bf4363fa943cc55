package archive

import "time"

// FrameRow is one received frame, accepted or rejected.
type FrameRow struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	Seq        uint64    `gorm:"index" json:"seq"`
	ReceivedAt time.Time `gorm:"index" json:"received_at"`
	Raw        string    `json:"raw"`
	Accepted   bool      `gorm:"index" json:"accepted"`
	Error      string    `gorm:"size:200" json:"error,omitempty"`
}

// TableName specifies the table name for GORM
func (FrameRow) TableName() string {
	return "frames"
}

// CommandRow is the outcome of one uplink command.
type CommandRow struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	Text       string    `json:"text"`
	Source     string    `gorm:"size:20" json:"source"`
	Status     string    `gorm:"index;size:20" json:"status"`
	Error      string    `gorm:"size:200" json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	At         time.Time `gorm:"index" json:"at"`
}

// TableName specifies the table name for GORM
func (CommandRow) TableName() string {
	return "commands"
}
