package session

import (
	"errors"
	"strings"

	"github.com/SGman98/mafiabot/internal/mafia"
)

var sentinels = []struct {
	err  error
	lead string
}{
	{mafia.ErrNoActiveVote, "There is no vote in progress right now."},
	{mafia.ErrNotEligible, "You can't do that in this stage."},
	{mafia.ErrInvalidState, "That can't be done right now."},
	{mafia.ErrNotFound, "Couldn't find that."},
	{mafia.ErrValidation, "That request is not valid."},
	{mafia.ErrConcurrencyConflict, "The room changed while saving, try again."},
}

// Describe turns an error from the Manager into text fit for a player. The
// wrapped detail follows the generic lead when there is one.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	for _, s := range sentinels {
		if !errors.Is(err, s.err) {
			continue
		}
		detail := strings.TrimPrefix(err.Error(), s.err.Error()+": ")
		if detail == "" || detail == err.Error() {
			return s.lead
		}
		return s.lead + " " + capitalize(detail) + "."
	}
	return "Something went wrong."
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
