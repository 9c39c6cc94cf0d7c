// Package service defines the GATT services the peripheral exposes:
// battery, HID keyboard and the notification service.
package service

import (
	"github.com/rigado/bleperiph"
)

var (
	NotificationUUID = bleperiph.MustParse("12345678-1234-5678-1234-56789abcdef0")
	MessageUUID      = bleperiph.MustParse("12345678-1234-5678-1234-56789abcdef1")
	CounterUUID      = bleperiph.MustParse("12345678-1234-5678-1234-56789abcdef2")
	StatusUUID       = bleperiph.MustParse("12345678-1234-5678-1234-56789abcdef3")

	BatteryUUID       = bleperiph.UUID16(0x180f)
	BatteryLevelUUID  = bleperiph.UUID16(0x2a19)
	BatteryStatusUUID = bleperiph.MustParse("408813df-5dd4-1f87-ec11-cdb001100000")

	HIDUUID             = bleperiph.UUID16(0x1812)
	HIDInformationUUID  = bleperiph.UUID16(0x2a4a)
	ReportMapUUID       = bleperiph.UUID16(0x2a4b)
	HIDControlPointUUID = bleperiph.UUID16(0x2a4c)
	ReportUUID          = bleperiph.UUID16(0x2a4d)
	ProtocolModeUUID    = bleperiph.UUID16(0x2a4e)

	ValidRangeUUID      = bleperiph.UUID16(0x2906)
	UserDescriptionUUID = bleperiph.UUID16(0x2901)
	ReportReferenceUUID = bleperiph.UUID16(0x2908)
)

const (
	MessageLen = 128
	CounterLen = 4
	StatusLen  = 1
)

// Notification is the custom service carrying text messages, a counter
// and the status code.
type Notification struct {
	*bleperiph.Service
	Message *bleperiph.Characteristic
	Counter *bleperiph.Characteristic
	Status  *bleperiph.Characteristic
}

func NewNotification() *Notification {
	s := bleperiph.NewService(NotificationUUID)
	return &Notification{
		Service: s,
		Message: s.NewCharacteristic(MessageUUID, bleperiph.CharRead|bleperiph.CharNotify, make([]byte, MessageLen)),
		Counter: s.NewCharacteristic(CounterUUID, bleperiph.CharRead|bleperiph.CharNotify, make([]byte, CounterLen)),
		Status:  s.NewCharacteristic(StatusUUID, bleperiph.CharRead|bleperiph.CharNotify, make([]byte, StatusLen)),
	}
}

// Battery is the battery service plus a writable status flag.
type Battery struct {
	*bleperiph.Service
	Level  *bleperiph.Characteristic
	Status *bleperiph.Characteristic
}

func NewBattery(log bleperiph.Logger) *Battery {
	s := bleperiph.NewService(BatteryUUID)
	b := &Battery{Service: s}

	b.Level = s.NewCharacteristic(BatteryLevelUUID, bleperiph.CharRead|bleperiph.CharNotify, []byte{10})
	b.Level.NewDescriptor(ValidRangeUUID, []byte{0, 100})
	b.Level.NewDescriptor(UserDescriptionUUID, []byte("Battery Level"))

	b.Status = s.NewCharacteristic(BatteryStatusUUID, bleperiph.CharWrite|bleperiph.CharRead|bleperiph.CharNotify, []byte{0})
	b.Status.HandleWrite(func(v []byte) error {
		log.Infof("battery status set to %t", len(v) > 0 && v[0] != 0)
		return nil
	})
	return b
}

// HID is a boot keyboard.
type HID struct {
	*bleperiph.Service
	Information  *bleperiph.Characteristic
	ReportMap    *bleperiph.Characteristic
	ControlPoint *bleperiph.Characteristic
	ProtocolMode *bleperiph.Characteristic
	Input        *bleperiph.Characteristic
	Output       *bleperiph.Characteristic
}

// keyboardReportMap is an 8-byte input report (modifiers, reserved,
// 6 keys) and a 1-byte LED output report.
var keyboardReportMap = []byte{
	0x05, 0x01, 0x09, 0x06, 0xa1, 0x01, 0x05, 0x07, 0x19, 0xe0, 0x29, 0xe7, 0x15, 0x00, 0x25, 0x01,
	0x75, 0x01, 0x95, 0x08, 0x81, 0x02, 0x15, 0x00, 0x26, 0xff, 0x00, 0x75, 0x08, 0x95, 0x01, 0x81,
	0x03, 0x05, 0x08, 0x19, 0x01, 0x29, 0x05, 0x25, 0x01, 0x75, 0x01, 0x95, 0x05, 0x91, 0x02, 0x95,
	0x03, 0x91, 0x03, 0x05, 0x07, 0x19, 0x00, 0x29, 0xdd, 0x26, 0xff, 0x00, 0x75, 0x08, 0x95, 0x06,
	0x81, 0x00, 0xc0,
}

func NewHID(log bleperiph.Logger) *HID {
	s := bleperiph.NewService(HIDUUID)
	h := &HID{Service: s}

	h.Information = s.NewCharacteristic(HIDInformationUUID, bleperiph.CharRead, []byte{0x01, 0x01, 0x00, 0x03})
	h.ReportMap = s.NewCharacteristic(ReportMapUUID, bleperiph.CharRead, append([]byte(nil), keyboardReportMap...))
	h.ControlPoint = s.NewCharacteristic(HIDControlPointUUID, bleperiph.CharWriteNR, []byte{0})
	h.ControlPoint.HandleWrite(func(v []byte) error {
		log.Debugf("hid control point % x", v)
		return nil
	})
	h.ProtocolMode = s.NewCharacteristic(ProtocolModeUUID, bleperiph.CharRead|bleperiph.CharWriteNR, []byte{1})

	h.Input = s.NewCharacteristic(ReportUUID, bleperiph.CharRead|bleperiph.CharNotify, make([]byte, 8))
	h.Input.NewDescriptor(ReportReferenceUUID, []byte{0, 1})

	h.Output = s.NewCharacteristic(ReportUUID, bleperiph.CharRead|bleperiph.CharWrite|bleperiph.CharWriteNR, []byte{0})
	h.Output.NewDescriptor(ReportReferenceUUID, []byte{0, 2})
	h.Output.HandleWrite(func(v []byte) error {
		log.Debugf("keyboard leds % x", v)
		return nil
	})
	return h
}

// Set is the full attribute profile of the peripheral. A new Set is built
// for every connection.
type Set struct {
	Battery      *Battery
	HID          *HID
	Notification *Notification
}

func NewSet(log bleperiph.Logger) *Set {
	if log == nil {
		log = bleperiph.ComponentLogger("service")
	}
	return &Set{
		Battery:      NewBattery(log),
		HID:          NewHID(log),
		Notification: NewNotification(),
	}
}

func (s *Set) Profile() *bleperiph.Profile {
	return &bleperiph.Profile{Services: []*bleperiph.Service{
		s.Battery.Service,
		s.HID.Service,
		s.Notification.Service,
	}}
}

// AdvertisedUUIDs returns the 16-bit services listed in the advertising
// payload.
func AdvertisedUUIDs() []bleperiph.UUID {
	return []bleperiph.UUID{BatteryUUID, HIDUUID}
}
