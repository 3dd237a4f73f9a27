package domain

import "time"

// Message kinds.
const (
	KindText       = "text"
	KindPhoto      = "photo"
	KindVoice      = "voice"
	KindSystem     = "system"
	KindIceBreaker = "iceBreaker"
)

// Delivery states. The order of the constants is the only legal direction
// of travel; failed is terminal and reachable from sending only.
const (
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Moderation statuses.
const (
	ModerationNone        = "none"
	ModerationAutoFlagged = "autoFlagged"
)

var statusRank = map[string]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// CanAdvance reports whether a message may move from status "from" to "to".
func CanAdvance(from, to string) bool {
	if from == StatusFailed {
		return false
	}
	if to == StatusFailed {
		return from == StatusSending
	}
	f, ok1 := statusRank[from]
	t, ok2 := statusRank[to]
	return ok1 && ok2 && t > f
}

// StringList is a JSON-serialized []string column.
type StringList []string

// Contains reports whether s is in the list.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// Media describes an uploaded blob. Keys are internal and used to release
// the blobs after a delete-for-everyone.
type Media struct {
	URL          string   `json:"url"                  gorm:"column:url;type:varchar(1024)"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty" gorm:"column:thumbnail_url;type:varchar(1024)"`
	Key          string   `json:"-"                    gorm:"column:key;type:varchar(512)"`
	ThumbnailKey string   `json:"-"                    gorm:"column:thumbnail_key;type:varchar(512)"`
	DurationSec  *float64 `json:"duration_sec,omitempty" gorm:"column:duration_sec"`
	Size         int64    `json:"size,omitempty"       gorm:"column:size"`
	Mime         string   `json:"mime,omitempty"       gorm:"column:mime;type:varchar(64)"`
	Width        int      `json:"w,omitempty"          gorm:"column:width"`
	Height       int      `json:"h,omitempty"          gorm:"column:height"`
}

// Empty reports whether no blob is attached.
func (m Media) Empty() bool { return m.URL == "" }

// ReplySnapshot freezes the replied-to message at send time.
type ReplySnapshot struct {
	MessageID string `json:"message_id"`
	SenderID  string `json:"sender_id"`
	Kind      string `json:"kind"`
	Text      string `json:"text,omitempty"`
}

// Message is one entry in a conversation.
//
// Fields:
//   - Seq: per-conversation monotonic sequence, assigned under the
//     conversation lock; persistence order equals fan-out order.
//   - Status: delivery state, see CanAdvance.
//   - ClientMessageID: optional sender correlation id, unique within
//     (conversation, sender); NULLs do not collide.
//   - DeletedAt/DeletedBy/DeletedForEveryone: soft delete record; a
//     delete-for-everyone also erases Body and Media.
type Message struct {
	ID                 string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID     string         `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_seq,priority:1;uniqueIndex:ux_msg_client,priority:1"`
	Seq                int64          `json:"seq"             gorm:"not null;index:idx_conv_seq,priority:2"`
	SenderID           string         `json:"sender_id"       gorm:"type:varchar(64);not null;uniqueIndex:ux_msg_client,priority:2"`
	ClientMessageID    *string        `json:"client_message_id,omitempty" gorm:"type:varchar(128);uniqueIndex:ux_msg_client,priority:3"`
	Kind               string         `json:"kind"            gorm:"type:varchar(16);not null"`
	Body               string         `json:"text"            gorm:"type:text"`
	Media              Media          `json:"media"           gorm:"embedded;embeddedPrefix:media_"`
	Status             string         `json:"status"          gorm:"type:varchar(16);not null;default:'sent'"`
	SentAt             time.Time      `json:"sent_at"`
	DeliveredAt        *time.Time     `json:"delivered_at,omitempty"`
	ReadAt             *time.Time     `json:"read_at,omitempty"`
	ReadBy             StringList     `json:"read_by"         gorm:"type:text;serializer:json"`
	IsEdited           bool           `json:"is_edited"       gorm:"not null;default:false"`
	EditedAt           *time.Time     `json:"edited_at,omitempty"`
	OriginalText       *string        `json:"-"               gorm:"type:text"`
	DeletedAt          *time.Time     `json:"deleted_at,omitempty"`
	DeletedBy          string         `json:"deleted_by,omitempty" gorm:"type:varchar(64)"`
	DeletedForEveryone bool           `json:"deleted_for_everyone" gorm:"not null;default:false"`
	ReplyTo            *ReplySnapshot `json:"reply_to,omitempty" gorm:"type:text;serializer:json"`
	ModerationFlagged  bool           `json:"-"               gorm:"not null;default:false"`
	ModerationReason   string         `json:"-"               gorm:"type:varchar(64)"`
	ModerationSeverity string         `json:"-"               gorm:"type:varchar(16)"`
	ModerationStatus   string         `json:"-"               gorm:"type:varchar(16);not null;default:'none'"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`

	Reactions []MessageReaction `json:"reactions" gorm:"foreignKey:MessageID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// HiddenFor reports whether userID should no longer see the message.
func (m *Message) HiddenFor(userID string) bool {
	if m.DeletedAt == nil {
		return false
	}
	return m.DeletedForEveryone || m.DeletedBy == userID
}

// MessageReaction holds at most one emoji per (message, user).
type MessageReaction struct {
	MessageID string    `json:"message_id" gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);primaryKey"`
	Emoji     string    `json:"emoji"      gorm:"type:varchar(16);not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for MessageReaction.
func (MessageReaction) TableName() string { return "message_reactions" }

// MessageReport is a moderation report. Automatic reports are filed by the
// moderation gate on high-severity content.
type MessageReport struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	MessageID  string    `json:"message_id"  gorm:"type:char(36);not null;index"`
	ReporterID string    `json:"reporter_id" gorm:"type:varchar(64);not null"`
	Reason     string    `json:"reason"      gorm:"type:varchar(64);not null"`
	Severity   string    `json:"severity"    gorm:"type:varchar(16);not null"`
	Automatic  bool      `json:"automatic"   gorm:"not null;default:false"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for MessageReport.
func (MessageReport) TableName() string { return "message_reports" }

// MessageSave records that a user bookmarked a message.
type MessageSave struct {
	MessageID string    `json:"message_id" gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);primaryKey;index"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for MessageSave.
func (MessageSave) TableName() string { return "message_saves" }
