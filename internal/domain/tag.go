package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	MaxTagNameLen    = 50
	MaxTagContentLen = 2000
)

// reservedTagNames collide with /tag subcommands.
var reservedTagNames = map[string]bool{
	"create": true, "alias": true, "edit": true, "delete": true, "list": true,
}

// Tag is a named snippet owned by a user. An alias carries no content and
// names the tag it points at.
type Tag struct {
	Name      string
	OwnerID   int64
	Content   string
	Alias     string // target tag name; empty for an original
	CreatedAt time.Time
}

func (t Tag) IsAlias() bool { return t.Alias != "" }

// NormalizeTagName lowercases and trims name, then checks it is a single
// word of at most MaxTagNameLen characters that is not a subcommand.
func NormalizeTagName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch {
	case name == "":
		return "", fmt.Errorf("%w: empty", ErrInvalidTagName)
	case len([]rune(name)) > MaxTagNameLen:
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidTagName, MaxTagNameLen)
	case strings.IndexFunc(name, unicode.IsSpace) >= 0:
		return "", fmt.Errorf("%w: must be one word", ErrInvalidTagName)
	case strings.HasPrefix(name, "/"):
		return "", fmt.Errorf("%w: must not start with /", ErrInvalidTagName)
	case reservedTagNames[name]:
		return "", fmt.Errorf("%w: %q is reserved", ErrInvalidTagName, name)
	}
	return name, nil
}

// ValidateTagContent trims content and checks its length.
func ValidateTagContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: empty content", ErrInvalidTag)
	}
	if len([]rune(content)) > MaxTagContentLen {
		return "", fmt.Errorf("%w: content longer than %d characters", ErrInvalidTag, MaxTagContentLen)
	}
	return content, nil
}
