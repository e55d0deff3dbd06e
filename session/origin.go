package session

import "strings"

// Origin is the fixed structured record of where a session was created.
// It replaces ad-hoc metadata blobs so schema drift is caught at compile
// time; Tags remains for genuinely free-form annotations.
type Origin struct {
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"ua,omitempty"`
	Platform  string            `json:"platform,omitempty"`
	Browser   string            `json:"browser,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// NewOrigin builds an Origin from the raw request attributes, sniffing
// platform and browser from the user-agent string.
func NewOrigin(ip, userAgent string) Origin {
	return Origin{
		IP:        ip,
		UserAgent: userAgent,
		Platform:  sniffPlatform(userAgent),
		Browser:   sniffBrowser(userAgent),
	}
}

func sniffPlatform(ua string) string {
	ua = strings.ToLower(ua)
	switch {
	case strings.Contains(ua, "android"):
		return "android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		return "ios"
	case strings.Contains(ua, "windows"):
		return "windows"
	case strings.Contains(ua, "mac os"), strings.Contains(ua, "macintosh"):
		return "macos"
	case strings.Contains(ua, "linux"):
		return "linux"
	case ua == "":
		return ""
	default:
		return "other"
	}
}

func sniffBrowser(ua string) string {
	ua = strings.ToLower(ua)
	switch {
	// Order matters: Edge and Opera embed "chrome", Chrome embeds "safari".
	case strings.Contains(ua, "edg/"), strings.Contains(ua, "edge"):
		return "edge"
	case strings.Contains(ua, "opr/"), strings.Contains(ua, "opera"):
		return "opera"
	case strings.Contains(ua, "firefox"):
		return "firefox"
	case strings.Contains(ua, "chrome"):
		return "chrome"
	case strings.Contains(ua, "safari"):
		return "safari"
	case strings.Contains(ua, "curl"):
		return "curl"
	case ua == "":
		return ""
	default:
		return "other"
	}
}
