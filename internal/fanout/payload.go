package fanout

import (
	"strconv"
	"strings"
)

// Payloads describing what changed on an event.
const (
	PayloadEvent   = "e" // name, description, colour, password or links
	PayloadState   = "s"
	PayloadTags    = "t"
	PayloadDeleted = "d"

	questionPrefix = "q:"
)

// PayloadQuestion reports a change to a single question.
func PayloadQuestion(id int) string {
	return questionPrefix + strconv.Itoa(id)
}

// QuestionID extracts the question id from a PayloadQuestion payload.
func QuestionID(payload string) (int, bool) {
	rest, ok := strings.CutPrefix(payload, questionPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return id, true
}
