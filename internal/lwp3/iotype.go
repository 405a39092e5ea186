package lwp3

import "fmt"

// IOType identifies the kind of device attached to a port.
type IOType uint16

// Device kinds.
const (
	IOMotor                         IOType = 0x0001
	IOSystemTrainMotor              IOType = 0x0002
	IOButton                        IOType = 0x0005
	IOLedLight                      IOType = 0x0008
	IOVoltage                       IOType = 0x0014
	IOCurrent                       IOType = 0x0015
	IOPiezoTone                     IOType = 0x0016
	IOHubLED                        IOType = 0x0017
	IOExternalTiltSensor            IOType = 0x0022
	IOMotionSensor                  IOType = 0x0023
	IOVisionSensor                  IOType = 0x0025
	IOExternalMotorTacho            IOType = 0x0026
	IOInternalMotorTacho            IOType = 0x0027
	IOInternalTilt                  IOType = 0x0028
	IODuploTrainMotor               IOType = 0x0029
	IODuploTrainSpeaker             IOType = 0x002A
	IODuploTrainColor               IOType = 0x002B
	IODuploTrainSpeedometer         IOType = 0x002C
	IOTechnicLargeLinearMotor       IOType = 0x002E
	IOTechnicXLargeLinearMotor      IOType = 0x002F
	IOTechnicMediumAngularMotor     IOType = 0x0030
	IOTechnicLargeAngularMotor      IOType = 0x0031
	IOTechnicHubGestureSensor       IOType = 0x0036
	IORemoteControlButton           IOType = 0x0037
	IORemoteControlRSSI             IOType = 0x0038
	IOTechnicHubAccelerometer       IOType = 0x0039
	IOTechnicHubGyroSensor          IOType = 0x003A
	IOTechnicHubTiltSensor          IOType = 0x003B
	IOTechnicHubTemperatureSensor   IOType = 0x003C
	IOTechnicColorSensor            IOType = 0x003D
	IOTechnicDistanceSensor         IOType = 0x003E
	IOTechnicForceSensor            IOType = 0x003F
	IOTechnic3x3ColorLightMatrix    IOType = 0x0040
	IOTechnicSmallAngularMotor      IOType = 0x0041
	IOTechnicMediumAngularMotorGrey IOType = 0x004B
	IOTechnicLargeAngularMotorGrey  IOType = 0x004C
)

// Family groups device kinds by the commands they accept.
type Family uint8

// Device families.
const (
	FamilyUnknown Family = iota
	FamilyMotor
	FamilyTachoMotor
	FamilyLight
	FamilyHubLED
	FamilyRemoteButton
	FamilySensor
)

var familyNames = map[Family]string{
	FamilyUnknown:      "unknown",
	FamilyMotor:        "motor",
	FamilyTachoMotor:   "tacho_motor",
	FamilyLight:        "light",
	FamilyHubLED:       "hub_led",
	FamilyRemoteButton: "remote_button",
	FamilySensor:       "sensor",
}

func (f Family) String() string { return lookup(familyNames, f, "family") }

type ioTypeInfo struct {
	name   string
	family Family
}

var ioTypes = map[IOType]ioTypeInfo{
	IOMotor:                         {"motor", FamilyMotor},
	IOSystemTrainMotor:              {"system_train_motor", FamilyMotor},
	IOButton:                        {"button", FamilySensor},
	IOLedLight:                      {"led_light", FamilyLight},
	IOVoltage:                       {"voltage", FamilySensor},
	IOCurrent:                       {"current", FamilySensor},
	IOPiezoTone:                     {"piezo_tone", FamilySensor},
	IOHubLED:                        {"hub_led", FamilyHubLED},
	IOExternalTiltSensor:            {"external_tilt_sensor", FamilySensor},
	IOMotionSensor:                  {"motion_sensor", FamilySensor},
	IOVisionSensor:                  {"vision_sensor", FamilySensor},
	IOExternalMotorTacho:            {"external_motor_tacho", FamilyTachoMotor},
	IOInternalMotorTacho:            {"internal_motor_tacho", FamilyTachoMotor},
	IOInternalTilt:                  {"internal_tilt", FamilySensor},
	IODuploTrainMotor:               {"duplo_train_motor", FamilyMotor},
	IODuploTrainSpeaker:             {"duplo_train_speaker", FamilySensor},
	IODuploTrainColor:               {"duplo_train_color", FamilySensor},
	IODuploTrainSpeedometer:         {"duplo_train_speedometer", FamilySensor},
	IOTechnicLargeLinearMotor:       {"technic_large_linear_motor", FamilyTachoMotor},
	IOTechnicXLargeLinearMotor:      {"technic_xlarge_linear_motor", FamilyTachoMotor},
	IOTechnicMediumAngularMotor:     {"technic_medium_angular_motor", FamilyTachoMotor},
	IOTechnicLargeAngularMotor:      {"technic_large_angular_motor", FamilyTachoMotor},
	IOTechnicHubGestureSensor:       {"technic_hub_gesture_sensor", FamilySensor},
	IORemoteControlButton:           {"remote_control_button", FamilyRemoteButton},
	IORemoteControlRSSI:             {"remote_control_rssi", FamilySensor},
	IOTechnicHubAccelerometer:       {"technic_hub_accelerometer", FamilySensor},
	IOTechnicHubGyroSensor:          {"technic_hub_gyro_sensor", FamilySensor},
	IOTechnicHubTiltSensor:          {"technic_hub_tilt_sensor", FamilySensor},
	IOTechnicHubTemperatureSensor:   {"technic_hub_temperature_sensor", FamilySensor},
	IOTechnicColorSensor:            {"technic_color_sensor", FamilySensor},
	IOTechnicDistanceSensor:         {"technic_distance_sensor", FamilySensor},
	IOTechnicForceSensor:            {"technic_force_sensor", FamilySensor},
	IOTechnic3x3ColorLightMatrix:    {"technic_3x3_color_light_matrix", FamilySensor},
	IOTechnicSmallAngularMotor:      {"technic_small_angular_motor", FamilyTachoMotor},
	IOTechnicMediumAngularMotorGrey: {"technic_medium_angular_motor_grey", FamilyTachoMotor},
	IOTechnicLargeAngularMotorGrey:  {"technic_large_angular_motor_grey", FamilyTachoMotor},
}

func (t IOType) String() string {
	if info, ok := ioTypes[t]; ok {
		return info.name
	}
	return fmt.Sprintf("io_type(0x%04x)", uint16(t))
}

// Family returns the command family of the device kind.
func (t IOType) Family() Family {
	return ioTypes[t].family
}

// IsMotor reports whether the kind accepts power commands.
func (t IOType) IsMotor() bool {
	f := t.Family()
	return f == FamilyMotor || f == FamilyTachoMotor
}

// ParseIOType resolves a device kind name as produced by String.
func ParseIOType(name string) (IOType, bool) {
	for t, info := range ioTypes {
		if info.name == name {
			return t, true
		}
	}
	return 0, false
}
