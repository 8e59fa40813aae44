package youtubeapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/streamsense-live/backend/chat"
)

// wrapAPIError maps a Data API failure onto the chat error taxonomy so the
// scheduler can react without knowing the transport. Unclassified errors pass
// through wrapped and are treated as transient upstream.
func wrapAPIError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusForbidden && hasReason(gerr, "quotaExceeded", "rateLimitExceeded", "dailyLimitExceeded"):
			return fmt.Errorf("%s: %w", op, chat.ErrQuotaExceeded)
		case gerr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w", op, chat.ErrQuotaExceeded)
		case gerr.Code == http.StatusUnauthorized:
			return fmt.Errorf("%s: %w", op, chat.ErrAuthExpired)
		case gerr.Code == http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, chat.ErrNotFound)
		}
	}
	// The API sometimes reports expired tokens as a plain 401 body.
	if strings.Contains(err.Error(), "Invalid Credentials") {
		return fmt.Errorf("%s: %w", op, chat.ErrAuthExpired)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func hasReason(gerr *googleapi.Error, reasons ...string) bool {
	for _, item := range gerr.Errors {
		for _, r := range reasons {
			if item.Reason == r {
				return true
			}
		}
	}
	return false
}
