package gate

import (
	"fmt"
	"strings"

	"AnnounceRelay/internal/domain"
)

// metaPhrases mark generations where the model asked for input instead of writing the announcement.
var metaPhrases = []string{
	"i don't see any",
	"could you provide",
	"i'm ready to help",
	"please provide",
	"drop the content",
	"share the post",
	"once you share",
}

// CheckOutput rejects generated text that reads like a clarifying question.
func CheckOutput(generated string) error {
	lower := strings.ToLower(strings.ReplaceAll(generated, "’", "'"))
	for _, phrase := range metaPhrases {
		if strings.Contains(lower, phrase) {
			return fmt.Errorf("%w: matched %q", domain.ErrMetaResponse, phrase)
		}
	}
	return nil
}
