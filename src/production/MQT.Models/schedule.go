package mqtmodels

import (
	"fmt"
	"strings"
	"time"
)

// Action is what a schedule entry does to its pin
type Action string

const (
	ActionOn  Action = "ON"
	ActionOff Action = "OFF"
)

// ParseAction accepts "on"/"off" in any letter case
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionOn:
		return ActionOn, nil
	case ActionOff:
		return ActionOff, nil
	}
	return "", fmt.Errorf("invalid action %q (expected ON or OFF)", s)
}

// ScheduleEntry fires once a day at Time (HH:mm, scheduler zone) and sets or
// clears one pin of one device.
type ScheduleEntry struct {
	ID        string    `json:"id" bson:"_id" db:"id"`
	DeviceID  string    `json:"device_id" bson:"device_id" db:"device_id"`
	PinIndex  int       `json:"pin_index" bson:"pin_index" db:"pin_index"`
	Action    Action    `json:"action" bson:"action" db:"action"`
	Time      string    `json:"time" bson:"time" db:"time"`
	Note      string    `json:"note,omitempty" bson:"note,omitempty" db:"note"`
	CreatedBy string    `json:"created_by" bson:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" db:"created_at"`
}
