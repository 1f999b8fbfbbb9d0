package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"hrsecurity/model"
	"hrsecurity/utils"

	"go.uber.org/zap"
	"golang.org/x/text/language"
)

var errNoSignal = errors.New("signal not reported")

// Probe captures one weak device signal.
type Probe interface {
	Name() string
	// RequiresGesture probes are skipped unless the client reported a user gesture.
	RequiresGesture() bool
	Collect(ctx context.Context, client model.ClientSignals) (string, error)
}

type FingerprintGenerator struct {
	probes []Probe
	clock  utils.Clock
	logger *zap.Logger
}

func NewFingerprintGenerator(clock utils.Clock, logger *zap.Logger, probes ...Probe) *FingerprintGenerator {
	if len(probes) == 0 {
		probes = DefaultProbes()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FingerprintGenerator{probes: probes, clock: clock, logger: logger}
}

// DefaultProbes returns the built-in probes in digest order. The order is
// part of the digest and must not change.
func DefaultProbes() []Probe {
	return []Probe{
		NewHardwareProbe(),
		UserAgentProbe{},
		DisplayProbe{},
		LocaleProbe{},
		TimezoneProbe{},
		CanvasProbe{},
		WebGLProbe{},
		AudioProbe{},
	}
}

// Generate runs every probe and reduces the results to one digest. It never
// fails: a probe that errors, returns nothing or panics contributes the
// unavailable marker.
func (g *FingerprintGenerator) Generate(ctx context.Context, client model.ClientSignals) model.DeviceFingerprint {
	signals := make([]model.Signal, 0, len(g.probes))
	for _, p := range g.probes {
		signals = append(signals, g.collect(ctx, p, client))
	}

	return model.DeviceFingerprint{
		Hash:       DigestSignals(signals),
		Signals:    signals,
		CapturedAt: g.clock.Now(),
	}
}

func (g *FingerprintGenerator) collect(ctx context.Context, p Probe, client model.ClientSignals) (sig model.Signal) {
	sig = model.Signal{Name: p.Name(), Value: model.Unavailable}
	if p.RequiresGesture() && !client.UserGesture {
		return sig
	}

	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("fingerprint probe panicked",
				zap.String("probe", sig.Name),
				zap.Any("panic", r),
			)
			sig = model.Signal{Name: sig.Name, Value: model.Unavailable}
		}
	}()

	value, err := p.Collect(ctx, client)
	value = strings.TrimSpace(value)
	if err != nil || value == "" {
		if err != nil && !errors.Is(err, errNoSignal) {
			g.logger.Debug("fingerprint probe unavailable", zap.String("probe", sig.Name), zap.Error(err))
		}
		return sig
	}

	sig.Value = value
	sig.Available = true
	return sig
}

// DigestSignals hashes name=value pairs joined by "|" with SHA-256 and returns
// lowercase hex. Values are quoted so separators inside a value cannot collide.
func DigestSignals(signals []model.Signal) string {
	parts := make([]string, 0, len(signals))
	for _, s := range signals {
		parts = append(parts, fmt.Sprintf("%s=%q", s.Name, s.Value))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// HardwareProbe reads the host descriptor once; later calls reuse it so the
// value stays stable for the life of the process.
type HardwareProbe struct {
	once  sync.Once
	value string
	err   error
	read  func(ctx context.Context) (string, error)
}

func NewHardwareProbe() *HardwareProbe {
	return &HardwareProbe{read: utils.HardwareDescriptor}
}

func (p *HardwareProbe) Name() string          { return "hardware" }
func (p *HardwareProbe) RequiresGesture() bool { return false }

func (p *HardwareProbe) Collect(ctx context.Context, _ model.ClientSignals) (string, error) {
	p.once.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		p.value, p.err = p.read(ctx)
	})
	return p.value, p.err
}

type UserAgentProbe struct{}

func (UserAgentProbe) Name() string          { return "user_agent" }
func (UserAgentProbe) RequiresGesture() bool { return false }

func (UserAgentProbe) Collect(_ context.Context, client model.ClientSignals) (string, error) {
	if client.UserAgent == "" {
		return "", errNoSignal
	}
	browser, osName, device := utils.ParseUserAgent(client.UserAgent)
	return browser + "/" + osName + "/" + device, nil
}

type DisplayProbe struct{}

func (DisplayProbe) Name() string          { return "display" }
func (DisplayProbe) RequiresGesture() bool { return false }

func (DisplayProbe) Collect(_ context.Context, client model.ClientSignals) (string, error) {
	if client.ScreenWidth <= 0 || client.ScreenHeight <= 0 {
		return "", errNoSignal
	}
	return fmt.Sprintf("%dx%d@%d*%.2f", client.ScreenWidth, client.ScreenHeight, client.ColorDepth, client.PixelRatio), nil
}

// LocaleProbe canonicalises the reported language tag. Without one it falls
// back to the locale of the host process.
type LocaleProbe struct{}

func (LocaleProbe) Name() string          { return "locale" }
func (LocaleProbe) RequiresGesture() bool { return false }

func (LocaleProbe) Collect(_ context.Context, client model.ClientSignals) (string, error) {
	raw := client.Language
	if raw == "" {
		raw = hostLocale()
	}
	if raw == "" {
		return "", errNoSignal
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", raw, err)
	}
	return tag.String(), nil
}

func hostLocale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		// en_US.UTF-8@euro -> en-US
		if i := strings.IndexAny(v, ".@"); i >= 0 {
			v = v[:i]
		}
		if v == "C" || v == "POSIX" || v == "" {
			return ""
		}
		return strings.ReplaceAll(v, "_", "-")
	}
	return ""
}

type TimezoneProbe struct{}

func (TimezoneProbe) Name() string          { return "timezone" }
func (TimezoneProbe) RequiresGesture() bool { return false }

func (TimezoneProbe) Collect(_ context.Context, client model.ClientSignals) (string, error) {
	if client.Timezone == "" {
		return "", errNoSignal
	}
	loc, err := time.LoadLocation(client.Timezone)
	if err != nil {
		return "", fmt.Errorf("unknown timezone %q: %w", client.Timezone, err)
	}
	return loc.String(), nil
}

type CanvasProbe struct{}

func (CanvasProbe) Name() string          { return "canvas" }
func (CanvasProbe) RequiresGesture() bool { return false }

func (CanvasProbe) Collect(_ context.Context, client model.ClientSignals) (string, error) {
	return client.CanvasSample, nil
}

type WebGLProbe struct{}

func (WebGLProbe) Name() string          { return "webgl" }
func (WebGLProbe) RequiresGesture() bool { return false }

func (WebGLProbe) Collect(_ context.Context, client model.ClientSignals) (string, error) {
	return client.WebGLRenderer, nil
}

// AudioProbe needs a prior user gesture before an audio pipeline may run.
type AudioProbe struct{}

func (AudioProbe) Name() string          { return "audio" }
func (AudioProbe) RequiresGesture() bool { return true }

func (AudioProbe) Collect(_ context.Context, client model.ClientSignals) (string, error) {
	return client.AudioSample, nil
}
