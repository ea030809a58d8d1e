package activity

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf8"

	"babybot/pkg/command"
	"babybot/pkg/failure"
)

// MaxDiaryLength is the longest accepted diary entry, in characters.
const MaxDiaryLength = 200

// MsgPermissionDenied is the reply for users who manage no baby.
const MsgPermissionDenied = "You don't have permission to record for any baby."

// Request is a parsed command from a known user.
type Request struct {
	OwnerUserID int64
	Command     command.Command
	Access      Access
	At          time.Time
}

// Resolve picks the target baby and validates the payload. Checks run in a
// fixed order: permission, then baby selection, then value.
func Resolve(req Request) (Record, error) {
	category := req.Command.Category
	if category == command.Unknown {
		return Record{}, failure.New(failure.Internal, "resolve called with unknown category")
	}

	var (
		entityID int64
		payload  = req.Command.Rest
	)

	switch req.Access.Kind() {
	case NoAccess:
		return Record{}, failure.New(failure.PermissionDenied, MsgPermissionDenied)
	case Single:
		entityID, _ = req.Access.Only()
	case Multiple:
		ids := req.Access.EntityIDs()
		index, rest, ok := selectIndex(payload, len(ids))
		if !ok {
			return Record{}, failure.New(failure.DisambiguationRequired, disambiguationMessage(category, req.Command.Head, len(ids)))
		}
		entityID = ids[index-1]
		payload = rest
	}

	record := Record{
		OwnerUserID: req.OwnerUserID,
		EntityID:    entityID,
		Category:    category,
		Payload:     payload,
		RecordedAt:  req.At,
	}

	if category == command.Diary {
		if n := utf8.RuneCountInString(payload); n == 0 || n > MaxDiaryLength {
			return Record{}, failure.Newf(failure.InvalidValue, "Invalid value for diary: text must be 1 to %d characters.", MaxDiaryLength)
		}
		return record, nil
	}

	amount, err := parseAmount(category, payload)
	if err != nil {
		return Record{}, err
	}
	record.Amount = &amount

	return record, nil
}

// selectIndex reads the 1-based baby number at the start of payload.
func selectIndex(payload string, count int) (int, string, bool) {
	token, rest := command.Split(payload)
	if token == "" {
		return 0, "", false
	}

	index, err := strconv.Atoi(token)
	if err != nil || index < 1 || index > count {
		return 0, "", false
	}

	return index, rest, true
}

func parseAmount(category command.Category, payload string) (float64, error) {
	upper := Limit(category)
	invalid := failure.Newf(failure.InvalidValue, "Invalid value for %s: %q. Please enter a number greater than 0 and up to %g %s.",
		category, payload, upper, category.Unit())

	if payload == "" {
		return 0, invalid
	}

	value, err := strconv.ParseFloat(payload, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, invalid
	}
	if value <= 0 || value > upper {
		return 0, invalid
	}

	return value, nil
}

// Limit returns the largest plausible value for a numeric category.
func Limit(category command.Category) float64 {
	switch category {
	case command.Milk, command.Food:
		return 2000
	case command.Sleep:
		return 24
	case command.Medicine:
		return 100
	case command.Height:
		return 200
	case command.Weight:
		return 100
	default:
		return 0
	}
}

func disambiguationMessage(category command.Category, head string, count int) string {
	example := "160"
	switch category {
	case command.Sleep:
		example = "1.5"
	case command.Medicine:
		example = "2.5"
	case command.Height:
		example = "62.5"
	case command.Weight:
		example = "6.8"
	case command.Diary:
		example = "first smile"
	}

	return fmt.Sprintf("You manage %d babies. Put the baby number (1-%d) before the value, e.g. \"%s 1 %s\".",
		count, count, head, example)
}

// Message returns the user-facing text for a resolver error, or "" when err
// is not one the user can act on.
func Message(err error) string {
	var categorized *failure.Error
	if !errors.As(err, &categorized) {
		return ""
	}

	switch categorized.Kind {
	case failure.PermissionDenied, failure.DisambiguationRequired, failure.InvalidValue:
		return categorized.Detail
	default:
		return ""
	}
}
