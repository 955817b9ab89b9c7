package delivery

import (
	"errors"
	"fmt"

	"github.com/xbora/mio/internal/types"
)

// MissingContactError means the user has no address for the channel.
type MissingContactError struct {
	Channel types.Channel
	UserID  types.UserID
	Field   string
}

func (e *MissingContactError) Error() string {
	return fmt.Sprintf("user %s has no %s configured for %s delivery", e.UserID, e.Field, e.Channel)
}

// UnsupportedChannelError means no dispatcher handles the channel.
type UnsupportedChannelError struct {
	Channel types.Channel
}

func (e *UnsupportedChannelError) Error() string {
	return fmt.Sprintf("unknown delivery channel: %s", e.Channel)
}

// DeliveryError is a non-2xx answer from a delivery webhook.
type DeliveryError struct {
	Status int
	Body   string
}

func (e *DeliveryError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook returned %d", e.Status)
	}
	return fmt.Sprintf("webhook returned %d: %s", e.Status, e.Body)
}

func IsMissingContact(err error) bool {
	var target *MissingContactError
	return errors.As(err, &target)
}

func IsUnsupportedChannel(err error) bool {
	var target *UnsupportedChannelError
	return errors.As(err, &target)
}
