package clclassifier

import "strings"

type Device string

const (
	DeviceDesktop Device = "Desktop"
	DeviceMobile  Device = "Mobile"
	DeviceTablet  Device = "Tablet"
)

// Devices liste les classes d'appareil, dans l'ordre d'affichage
var Devices = []Device{DeviceDesktop, DeviceMobile, DeviceTablet}

var tabletTokens = []string{
	"ipad",
	"tablet",
	"kindle",
	"silk/",
	"playbook",
	"nexus 7",
	"nexus 10",
	"sm-t",
}

var mobileTokens = []string{
	"mobi",
	"iphone",
	"ipod",
	"android",
	"blackberry",
	"bb10",
	"opera mini",
	"windows phone",
	"iemobile",
	"webos",
}

// DetectDevice déduit la classe d'appareil depuis le user-agent.
// Les jetons tablette passent avant les jetons mobiles : un Android sans
// "mobile" est une tablette.
func DetectDevice(userAgent string) Device {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return DeviceDesktop
	}

	for _, token := range tabletTokens {
		if strings.Contains(ua, token) {
			return DeviceTablet
		}
	}
	if strings.Contains(ua, "android") && !strings.Contains(ua, "mobile") {
		return DeviceTablet
	}

	for _, token := range mobileTokens {
		if strings.Contains(ua, token) {
			return DeviceMobile
		}
	}
	return DeviceDesktop
}
