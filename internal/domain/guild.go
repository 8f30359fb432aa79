package domain

import (
	"fmt"
	"strings"
)

// EmbedSize is a guild's preferred size for rich replies.
type EmbedSize int

const (
	EmbedLarge EmbedSize = iota
	EmbedMedium
	EmbedSmall
)

func (s EmbedSize) String() string {
	switch s {
	case EmbedLarge:
		return "large"
	case EmbedMedium:
		return "medium"
	case EmbedSmall:
		return "small"
	default:
		return fmt.Sprintf("EmbedSize(%d)", int(s))
	}
}

// Valid reports whether s is one of the known sizes.
func (s EmbedSize) Valid() bool {
	return s >= EmbedLarge && s <= EmbedSmall
}

// ParseEmbedSize accepts "large", "medium" or "small" in any case.
func ParseEmbedSize(s string) (EmbedSize, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "large":
		return EmbedLarge, nil
	case "medium":
		return EmbedMedium, nil
	case "small":
		return EmbedSmall, nil
	}
	return 0, fmt.Errorf("unknown embed size %q", s)
}

// GuildField names a persisted column of GuildConfig.
type GuildField string

const GuildEmbedSize GuildField = "embed_size"

var AllGuildFields = []GuildField{GuildEmbedSize}

// GuildConfig holds per-guild (group chat) settings.
type GuildConfig struct {
	ID        int64
	EmbedSize EmbedSize
}

func NewGuildConfig(id int64) GuildConfig {
	return GuildConfig{ID: id, EmbedSize: EmbedSmall}
}
