package types

import (
	"fmt"
	"strings"
)

// DevState is the operational state reported by a device.
type DevState int

const (
	StateOn DevState = iota
	StateOff
	StateClose
	StateOpen
	StateInsert
	StateExtract
	StateMoving
	StateStandby
	StateFault
	StateInit
	StateRunning
	StateAlarm
	StateDisable
	StateUnknown
)

var devStateNames = [...]string{
	"ON", "OFF", "CLOSE", "OPEN", "INSERT", "EXTRACT", "MOVING",
	"STANDBY", "FAULT", "INIT", "RUNNING", "ALARM", "DISABLE", "UNKNOWN",
}

func (s DevState) String() string {
	if s < 0 || int(s) >= len(devStateNames) {
		return fmt.Sprintf("DevState(%d)", int(s))
	}
	return devStateNames[s]
}

func ParseDevState(s string) (DevState, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.TrimPrefix(key, "DEVSTATE.")
	for i, name := range devStateNames {
		if name == key {
			return DevState(i), nil
		}
	}
	return StateUnknown, fmt.Errorf("unknown device state %q", s)
}

func (s DevState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *DevState) UnmarshalText(text []byte) error {
	parsed, err := ParseDevState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
