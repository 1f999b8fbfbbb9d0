package utils

import (
	"fmt"
	"strings"

	"hrsecurity/model"

	ua "github.com/mileusna/useragent"
)

// ParseUserAgent extracts useful information from User-Agent string
func ParseUserAgent(userAgent string) (browser, os, device string) {
	if userAgent == "" {
		return "Unknown Browser", "Unknown OS", "Desktop"
	}

	parsedUA := ua.Parse(userAgent)

	// Get browser name (without version)
	if parsedUA.Name != "" {
		browser = parsedUA.Name
	} else {
		browser = "Unknown Browser"
	}

	// Get OS name (without version)
	if parsedUA.OS != "" {
		os = parsedUA.OS
	} else {
		os = "Unknown OS"
	}

	// Determine device type
	device = "Desktop" // Default
	if parsedUA.Mobile {
		if strings.Contains(userAgent, "iPhone") {
			device = "iPhone"
		} else {
			device = "Mobile"
		}
	} else if parsedUA.Tablet {
		device = "Tablet"
	} else if parsedUA.Bot {
		device = "Bot"
	}

	return strings.TrimSpace(browser), strings.TrimSpace(os), device
}

// DeviceInfo renders the device descriptor stored on session records.
func DeviceInfo(userAgent string) string {
	browser, os, device := ParseUserAgent(userAgent)
	return fmt.Sprintf("%s on %s (%s)", browser, os, device)
}

// GenerateSessionName creates a user-friendly session name
func GenerateSessionName(userAgent string, location model.Location) string {
	browser, os, _ := ParseUserAgent(userAgent)

	// Basic format: "Browser on OS (Location)"
	return fmt.Sprintf("%s on %s (%s)", browser, os, location.String())
}
