package model

import "time"

// Unavailable marks a signal that could not be captured. It keeps the digest
// input shape identical whether or not a capability was granted.
const Unavailable = "unavailable"

type Signal struct {
	Name      string `bson:"name" json:"name"`
	Value     string `bson:"value" json:"value"`
	Available bool   `bson:"available" json:"available"`
}

// DeviceFingerprint is immutable once computed.
type DeviceFingerprint struct {
	Hash       string    `bson:"hash" json:"hash"`
	Signals    []Signal  `bson:"signals" json:"signals"`
	CapturedAt time.Time `bson:"captured_at" json:"captured_at"`
}

// ClientSignals is what the interaction layer reports about the client device.
type ClientSignals struct {
	UserAgent     string   `json:"user_agent"`
	Language      string   `json:"language"`
	Timezone      string   `json:"timezone"`
	ScreenWidth   int      `json:"screen_width" binding:"gte=0"`
	ScreenHeight  int      `json:"screen_height" binding:"gte=0"`
	ColorDepth    int      `json:"color_depth" binding:"gte=0"`
	PixelRatio    float64  `json:"pixel_ratio" binding:"gte=0"`
	CanvasSample  string   `json:"canvas_sample"`
	WebGLRenderer string   `json:"webgl_renderer"`
	AudioSample   string   `json:"audio_sample"`
	UserGesture   bool     `json:"user_gesture"`
	GeoPermission bool     `json:"geo_permission"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	IPAddress     string   `json:"-"`
}
