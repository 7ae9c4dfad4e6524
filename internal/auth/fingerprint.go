package auth

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
)

// DeviceSignals are the client-reported characteristics folded into a
// device fingerprint. They arrive with the verification request; none can
// be trusted individually.
type DeviceSignals struct {
	Language       string `json:"language"`
	ScreenGeometry string `json:"screen_geometry"` // e.g. "1920x1080x24"
	TimezoneOffset int    `json:"timezone_offset"` // minutes from UTC
	CanvasSample   string `json:"canvas_sample"`   // rendering-surface sample
}

// Fingerprint derives a best-effort device identifier from the request's
// user agent plus the client-reported signals, folded through a 32-bit FNV
// hash to a hex string. It is heuristic: it reduces MFA friction for a
// recognized browser and can collide or be spoofed. It must never be
// treated as proof of identity on its own.
func Fingerprint(r *http.Request, signals DeviceSignals) string {
	components := []string{
		r.UserAgent(),
		signals.Language,
		signals.ScreenGeometry,
		fmt.Sprintf("%d", signals.TimezoneOffset),
		signals.CanvasSample,
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.Join(components, "|")))
	return fmt.Sprintf("%08x", h.Sum32())
}
