package engine

import (
	"strings"

	"github.com/yourusername/telegram-feed-router/router-service/internal/domain/routing/entities"
)

// Passes reports whether msg satisfies every constraint of policy.
// A nil policy always passes. Keyword matching is case-insensitive substring
// matching: the include list is OR-matched, any exclude hit rejects. Media
// tri-states constrain only when set.
func Passes(msg *entities.Message, policy *entities.FilterPolicy) bool {
	if policy == nil {
		return true
	}

	text := strings.ToLower(msg.Text)

	if len(policy.KeywordsInclude) > 0 {
		matched := false
		for _, keyword := range policy.KeywordsInclude {
			if strings.Contains(text, strings.ToLower(keyword)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, keyword := range policy.KeywordsExclude {
		if strings.Contains(text, strings.ToLower(keyword)) {
			return false
		}
	}

	if policy.HasImage != nil && msg.HasPhoto != *policy.HasImage {
		return false
	}

	if policy.HasVideo != nil && msg.HasVideoContent() != *policy.HasVideo {
		return false
	}

	return true
}
