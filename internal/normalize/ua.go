package normalize

import (
	"strings"

	"github.com/avct/uasurfer"
)

// UAResult is the device/browser/os triple extracted from a User-Agent.
type UAResult struct {
	Device  string
	Browser string
	OS      string
}

// ParseUA classifies a raw User-Agent header per §4.2. Browser precedence
// is edge, then chrome, then safari (unless chrome also matched), then
// firefox, then opera; anything else is "unknown".
func ParseUA(ua string) UAResult {
	if strings.TrimSpace(ua) == "" {
		return UAResult{Device: "desktop", Browser: "unknown", OS: "unknown"}
	}
	parsed := uasurfer.Parse(ua)

	device := "desktop"
	switch parsed.DeviceType {
	case uasurfer.DevicePhone, uasurfer.DeviceTablet:
		device = "mobile"
	}

	browser := "unknown"
	switch parsed.Browser.Name {
	case uasurfer.BrowserEdge:
		browser = "edge"
	case uasurfer.BrowserChrome:
		browser = "chrome"
	case uasurfer.BrowserSafari:
		browser = "safari"
	case uasurfer.BrowserFirefox:
		browser = "firefox"
	case uasurfer.BrowserOpera:
		browser = "opera"
	}

	os := "unknown"
	switch parsed.OS.Platform {
	case uasurfer.PlatformWindows:
		os = "windows"
	case uasurfer.PlatformMac:
		os = "macos"
	}
	switch parsed.OS.Name {
	case uasurfer.OSAndroid:
		os = "android"
	case uasurfer.OSiOS:
		os = "ios"
	case uasurfer.OSLinux:
		os = "linux"
	}

	return UAResult{Device: device, Browser: browser, OS: os}
}
