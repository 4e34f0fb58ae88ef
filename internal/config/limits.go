package config

import "time"

const (
	// Messages
	MaxMessageChars    = 4000
	MaxAttachmentBytes = 8 << 20
	MaxCommentChars    = 2000
	MaxEmojiBytes      = 32

	// Websocket transport
	WriteWait          = 10 * time.Second
	PongWait           = 60 * time.Second
	PingPeriod         = (PongWait * 9) / 10
	MaxFrameBytes      = 12 << 20
	DefaultSendQueue   = 256
	MinSendQueue       = 32
	DefaultAckTimeout  = 10 * time.Second
	DefaultStorageCall = 5 * time.Second

	// History
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)
