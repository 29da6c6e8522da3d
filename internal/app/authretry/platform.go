// Package authretry selects timeout and backoff values for the external
// auth redirect flow, based on the client platform.
package authretry

import "strings"

// PlatformInfo describes the client browser.
type PlatformInfo struct {
	IsIOS     bool `json:"is_ios"`
	IsSafari  bool `json:"is_safari"`
	IsMobile  bool `json:"is_mobile"`
	IsFirefox bool `json:"is_firefox"`
	IsAndroid bool `json:"is_android"`
}

// DetectPlatform derives platform flags from a User-Agent header.
func DetectPlatform(userAgent string) PlatformInfo {
	ua := strings.ToLower(userAgent)

	info := PlatformInfo{
		IsIOS:     containsAny(ua, "iphone", "ipad", "ipod"),
		IsAndroid: strings.Contains(ua, "android"),
		IsFirefox: containsAny(ua, "firefox", "fxios"),
	}
	// iPadOS reports a desktop Macintosh UA but keeps the Mobile token.
	if strings.Contains(ua, "macintosh") && strings.Contains(ua, "mobile/") {
		info.IsIOS = true
	}
	info.IsMobile = info.IsIOS || info.IsAndroid || strings.Contains(ua, "mobi")
	info.IsSafari = strings.Contains(ua, "safari") &&
		!containsAny(ua, "chrome", "crios", "chromium", "edg", "fxios", "opr", "android")

	return info
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
