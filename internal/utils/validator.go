package utils

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/Gopher0727/PropChat/internal/models"
)

var (
	ErrEmptyContent       = errors.New("content must not be empty")
	ErrContentTooLong     = errors.New("content too long")
	ErrInvalidChannelName = errors.New("channel name may only contain lowercase letters, numbers, hyphens and underscores")
)

// NormalizeContent 去除首尾空白并校验长度 (按字符计数)
func NormalizeContent(content string, maxLen int) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if maxLen > 0 && utf8.RuneCountInString(content) > maxLen {
		return "", ErrContentTooLong
	}
	return content, nil
}

// ValidateChannelName 频道名格式校验，长度 1-80
func ValidateChannelName(name string) error {
	if len(name) == 0 || len(name) > 80 || !models.ChannelNamePattern.MatchString(name) {
		return ErrInvalidChannelName
	}
	return nil
}
