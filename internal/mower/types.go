package mower

import (
	"fmt"
	"regexp"
	"time"
)

// APITimeLayout is the fixed timestamp format the vendor cloud uses for
// lastSeen and lastCommunication fields.
const APITimeLayout = "2006-01-02T15:04:05Z"

// Registration identifies one lawn mower tracked by a coordinator. The set
// of registrations is supplied at coordinator construction and is immutable
// for the coordinator's lifetime.
type Registration struct {
	IMEI string
	Name string
}

var imeiPattern = regexp.MustCompile(`^35[0-9]{13}$`)

// ValidateIMEI checks the vendor hardware identifier format: exactly 15
// digits with the "35" prefix.
func ValidateIMEI(imei string) error {
	if !imeiPattern.MatchString(imei) {
		return fmt.Errorf("invalid IMEI %q: must be 15 digits starting with 35", imei)
	}
	return nil
}

// RobotState is the operating state reported by the mower. Zero means the
// mower has never reported or the reported value is out of range.
type RobotState int

const (
	StateUnknown RobotState = iota
	StateCharging
	StateWorking
	StateStop
	StateError
	StateNoSignal
	StateGoToStation
	StateGoToArea
	StateBorderCut
)

var stateNames = [...]string{
	"unknown",
	"charging",
	"working",
	"stop",
	"error",
	"nosignal",
	"gotostation",
	"gotoarea",
	"bordercut",
}

// Normalize collapses out-of-range vendor states to StateUnknown.
func (s RobotState) Normalize() RobotState {
	if s < 0 || int(s) >= len(stateNames) {
		return StateUnknown
	}
	return s
}

func (s RobotState) String() string {
	return stateNames[s.Normalize()]
}

// Location is the last known mower position.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Device is the snapshot row for one mower. IMEI and Name are static; the
// remaining fields are overwritten on refresh and keep their previous value
// when the corresponding cloud field is absent from a response.
type Device struct {
	IMEI              string
	Name              string
	Serial            *string
	SWVersion         *string
	State             RobotState
	Location          *Location
	Connected         bool
	LastCommunication *time.Time
	LastSeen          *time.Time
}

// NewDevice returns the placeholder row for a registration: state unknown,
// disconnected, all nullable fields unset.
func NewDevice(reg Registration) Device {
	return Device{IMEI: reg.IMEI, Name: reg.Name}
}

// Clone returns a copy that shares no pointers with the receiver.
func (d Device) Clone() Device {
	out := d
	if d.Serial != nil {
		serial := *d.Serial
		out.Serial = &serial
	}
	if d.SWVersion != nil {
		version := *d.SWVersion
		out.SWVersion = &version
	}
	if d.Location != nil {
		location := *d.Location
		out.Location = &location
	}
	if d.LastCommunication != nil {
		lastComm := *d.LastCommunication
		out.LastCommunication = &lastComm
	}
	if d.LastSeen != nil {
		lastSeen := *d.LastSeen
		out.LastSeen = &lastSeen
	}
	return out
}

// Available reports whether the mower has reported a meaningful state.
func (d Device) Available() bool {
	return d.State.Normalize() > StateUnknown
}

const defaultManufacturer = "Zucchetti Centro Sistemi"

// Serial prefixes identify which brand the mower was sold under.
var manufacturers = map[string]string{
	"AM": "Ambrogio Robot",
	"KX": "Kaaz",
	"TH": "Techline",
	"WI": "Wiper",
}

// Model derives the model code from the first five serial characters.
// Empty until the first refresh that carries a serial number.
func (d Device) Model() string {
	if d.Serial == nil || len(*d.Serial) < 5 {
		return ""
	}
	return (*d.Serial)[:5]
}

// Manufacturer derives the brand from the serial prefix.
func (d Device) Manufacturer() string {
	if d.Serial != nil && len(*d.Serial) >= 2 {
		if name, ok := manufacturers[(*d.Serial)[:2]]; ok {
			return name
		}
	}
	return defaultManufacturer
}
