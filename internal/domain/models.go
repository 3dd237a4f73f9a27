// Package domain defines the persistence models for users, matches,
// conversations, messages, blocks and game sessions. These types are mapped
// with GORM and form the data layer shared by the repository and service
// layers.
package domain

import (
	"strings"
	"time"
)

// Conversation statuses.
const (
	ConversationActive   = "active"
	ConversationBlocked  = "blocked"
	ConversationDeleted  = "deleted"
	ConversationArchived = "archived"
)

// Match statuses.
const (
	MatchPending = "pending"
	MatchMutual  = "mutual"
	MatchBlocked = "blocked"
)

// User is created by the profile service; this backend only mutates presence.
//
// Fields:
//   - ID: opaque identity bound to a connection at handshake.
//   - DisplayName / AvatarURL: display fields echoed in game payloads.
//   - IsOnline / LastSeen: maintained by the presence registry.
type User struct {
	ID          string     `json:"id"           gorm:"type:varchar(64);primaryKey"`
	DisplayName string     `json:"display_name" gorm:"type:varchar(128)"`
	AvatarURL   string     `json:"avatar_url"   gorm:"type:varchar(512)"`
	IsOnline    bool       `json:"is_online"    gorm:"not null;default:false"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Match is a pairing produced by the match-making service. UserA and UserB
// are stored in canonical (sorted) order so the pair is unique regardless of
// who liked first.
type Match struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserA     string    `json:"user_a"     gorm:"type:varchar(64);not null;uniqueIndex:ux_match_pair,priority:1"`
	UserB     string    `json:"user_b"     gorm:"type:varchar(64);not null;uniqueIndex:ux_match_pair,priority:2;index"`
	Status    string    `json:"status"     gorm:"type:varchar(16);not null;default:'pending'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Match.
func (Match) TableName() string { return "matches" }

// Has reports whether userID is one side of the match.
func (m Match) Has(userID string) bool { return m.UserA == userID || m.UserB == userID }

// Other returns the counterpart of userID.
func (m Match) Other(userID string) string {
	if m.UserA == userID {
		return m.UserB
	}
	return m.UserA
}

// CanonicalPair orders two user ids so that (a,b) and (b,a) map to the same row.
func CanonicalPair(a, b string) (string, string) {
	if strings.Compare(a, b) <= 0 {
		return a, b
	}
	return b, a
}

// PairKey is the unordered pair identity used in indexes and lock keys.
func PairKey(a, b string) string {
	x, y := CanonicalPair(a, b)
	return x + "|" + y
}

// Conversation is the durable chat context for one mutual match.
//
// Fields:
//   - MatchID: unique, so a match owns at most one conversation.
//   - LastSeq: last assigned message sequence; messages are ordered by it.
//   - LastMessagePreview / LastMessageAt / MessageCount: list-view summary,
//     updated in the same transaction as the message insert.
//   - Participants: exactly two rows.
type Conversation struct {
	ID                 string        `json:"id"                   gorm:"type:char(36);primaryKey"`
	MatchID            string        `json:"match_id"             gorm:"type:char(36);not null;uniqueIndex"`
	Status             string        `json:"status"               gorm:"type:varchar(16);not null;default:'active';index"`
	LastMessagePreview string        `json:"last_message_preview" gorm:"type:varchar(160)"`
	LastMessageAt      *time.Time    `json:"last_message_at,omitempty"`
	MessageCount       int64         `json:"message_count"        gorm:"not null;default:0"`
	LastSeq            int64         `json:"-"                    gorm:"not null;default:0"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	Participants       []Participant `json:"participants"         gorm:"foreignKey:ConversationID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Participant returns the row for userID, or nil.
func (c *Conversation) Participant(userID string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// OtherParticipant returns the counterpart row of userID, or nil.
func (c *Conversation) OtherParticipant(userID string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID != userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// Participant is one side of a conversation with its read cursor.
type Participant struct {
	ConversationID    string     `json:"conversation_id"      gorm:"type:char(36);primaryKey"`
	UserID            string     `json:"user_id"              gorm:"type:varchar(64);primaryKey;index"`
	JoinedAt          time.Time  `json:"joined_at"`
	LastReadAt        *time.Time `json:"last_read_at,omitempty"`
	LastSeenMessageID string     `json:"last_seen_message_id" gorm:"type:char(36)"`
	UnreadCount       int64      `json:"unread_count"         gorm:"not null;default:0"`
	IsBlocked         bool       `json:"is_blocked"           gorm:"not null;default:false"`
	IsMuted           bool       `json:"is_muted"             gorm:"not null;default:false"`
	HasDeleted        bool       `json:"has_deleted"          gorm:"not null;default:false"`
	UpdatedAt         time.Time  `json:"-"`
}

// TableName returns the database table name for Participant.
func (Participant) TableName() string { return "conversation_participants" }

// Block is a directed block edge. A nil ExpiresAt means permanent.
type Block struct {
	ID        string     `json:"id"         gorm:"type:char(36);primaryKey"`
	BlockerID string     `json:"blocker_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_block_pair,priority:1"`
	BlockedID string     `json:"blocked_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_block_pair,priority:2;index"`
	Reason    string     `json:"reason,omitempty" gorm:"type:varchar(255)"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" gorm:"index"`
	CreatedAt time.Time  `json:"created_at"`
}

// TableName returns the database table name for Block.
func (Block) TableName() string { return "blocks" }

// ActiveAt reports whether the block is in force at now.
func (b Block) ActiveAt(now time.Time) bool { return b.ExpiresAt == nil || b.ExpiresAt.After(now) }
