package vault

import "github.com/xbora/mio/internal/types"

// MissingSkillError reports a skill absent from a vault, together with the
// skills that vault does have.
type MissingSkillError struct {
	Message   string
	Available []string
}

func (e *MissingSkillError) Error() string {
	return e.Message
}

func (e *MissingSkillError) Unwrap() error {
	return &types.NotFoundError{Resource: "skill", Message: e.Message}
}
