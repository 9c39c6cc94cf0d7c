package service

import "fmt"

// Status is the pet's mood, sent as a 1-byte status code.
type Status uint8

const (
	Happy Status = iota
	Hungry
	Tired
	Sick
	Playing
	Sleeping
)

// StatusCount is the length of the status rotation.
const StatusCount = 6

var statusMessages = [StatusCount]string{
	Happy:    "I'm happy!",
	Hungry:   "Hungry...",
	Tired:    "Tired...",
	Sick:     "Sick :(",
	Playing:  "Playing!",
	Sleeping: "Sleeping zzz",
}

var statusNames = [StatusCount]string{
	Happy:    "happy",
	Hungry:   "hungry",
	Tired:    "tired",
	Sick:     "sick",
	Playing:  "playing",
	Sleeping: "sleeping",
}

// StatusAt returns the i-th status of the rotation, wrapping around.
func StatusAt(i int) Status {
	return Status(i % StatusCount)
}

// Message returns the canonical text sent along with the status.
func (s Status) Message() string {
	if int(s) < StatusCount {
		return statusMessages[s]
	}
	return ""
}

func (s Status) String() string {
	if int(s) < StatusCount {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}
