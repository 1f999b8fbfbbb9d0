package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"hrsecurity/model"
	"hrsecurity/testutils"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func fullClient() model.ClientSignals {
	return model.ClientSignals{
		UserAgent:     chromeUA,
		Language:      "en-US",
		Timezone:      "Europe/Berlin",
		ScreenWidth:   1920,
		ScreenHeight:  1080,
		ColorDepth:    24,
		PixelRatio:    1,
		CanvasSample:  "canvas:9f86d081",
		WebGLRenderer: "ANGLE (Intel, Intel(R) UHD Graphics 620)",
		AudioSample:   "124.04347527516074",
		UserGesture:   true,
	}
}

func fixedHardware(value string, err error) *HardwareProbe {
	return &HardwareProbe{read: func(context.Context) (string, error) { return value, err }}
}

func testGenerator(probes ...Probe) *FingerprintGenerator {
	clock := testutils.NewManualClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	if len(probes) == 0 {
		probes = []Probe{
			fixedHardware("platform=linux,cores=8", nil),
			UserAgentProbe{}, DisplayProbe{}, LocaleProbe{}, TimezoneProbe{},
			CanvasProbe{}, WebGLProbe{}, AudioProbe{},
		}
	}
	return NewFingerprintGenerator(clock, nil, probes...)
}

func signal(fp model.DeviceFingerprint, name string) model.Signal {
	for _, s := range fp.Signals {
		if s.Name == name {
			return s
		}
	}
	return model.Signal{}
}

func TestGenerateIsDeterministic(t *testing.T) {
	g := testGenerator()
	ctx := context.Background()

	first := g.Generate(ctx, fullClient())
	for i := 0; i < 5; i++ {
		if got := g.Generate(ctx, fullClient()); got.Hash != first.Hash {
			t.Fatalf("call %d: hash %s, want %s", i, got.Hash, first.Hash)
		}
	}
	if !hexDigest.MatchString(first.Hash) {
		t.Errorf("hash %q is not 64 lowercase hex chars", first.Hash)
	}
	for _, s := range first.Signals {
		if !s.Available {
			t.Errorf("signal %s unavailable with a full client", s.Name)
		}
	}
}

func TestGenerateDegradesForEverySubset(t *testing.T) {
	g := testGenerator()
	ctx := context.Background()

	blankers := []func(*model.ClientSignals){
		func(c *model.ClientSignals) { c.UserAgent = "" },
		func(c *model.ClientSignals) { c.Language = "" },
		func(c *model.ClientSignals) { c.Timezone = "" },
		func(c *model.ClientSignals) { c.ScreenWidth, c.ScreenHeight = 0, 0 },
		func(c *model.ClientSignals) { c.CanvasSample = "" },
		func(c *model.ClientSignals) { c.WebGLRenderer = "" },
		func(c *model.ClientSignals) { c.UserGesture = false },
	}

	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "")

	seen := map[string]bool{}
	for mask := 0; mask < 1<<len(blankers); mask++ {
		client := fullClient()
		for i, blank := range blankers {
			if mask&(1<<i) != 0 {
				blank(&client)
			}
		}

		fp := g.Generate(ctx, client)
		if !hexDigest.MatchString(fp.Hash) {
			t.Fatalf("mask %b: invalid hash %q", mask, fp.Hash)
		}
		if len(fp.Signals) != 8 {
			t.Fatalf("mask %b: %d signals, want 8", mask, len(fp.Signals))
		}
		if again := g.Generate(ctx, client); again.Hash != fp.Hash {
			t.Fatalf("mask %b: not stable across calls", mask)
		}
		seen[fp.Hash] = true
	}

	if len(seen) != 1<<len(blankers) {
		t.Errorf("got %d distinct digests for %d capability states", len(seen), 1<<len(blankers))
	}
}

func TestAudioProbeNeedsGesture(t *testing.T) {
	g := testGenerator()
	client := fullClient()
	client.UserGesture = false

	fp := g.Generate(context.Background(), client)
	audio := signal(fp, "audio")
	if audio.Available || audio.Value != model.Unavailable {
		t.Errorf("audio = %+v, want unavailable without a gesture", audio)
	}
}

type panickyProbe struct{}

func (panickyProbe) Name() string          { return "panicky" }
func (panickyProbe) RequiresGesture() bool { return false }
func (panickyProbe) Collect(context.Context, model.ClientSignals) (string, error) {
	panic("renderer crashed")
}

type failingProbe struct{}

func (failingProbe) Name() string          { return "failing" }
func (failingProbe) RequiresGesture() bool { return false }
func (failingProbe) Collect(context.Context, model.ClientSignals) (string, error) {
	return "partial", errors.New("permission denied")
}

func TestFailingProbesFoldToUnavailable(t *testing.T) {
	g := testGenerator(panickyProbe{}, failingProbe{}, fixedHardware("", errors.New("no host info")))
	fp := g.Generate(context.Background(), fullClient())

	for _, s := range fp.Signals {
		if s.Available || s.Value != model.Unavailable {
			t.Errorf("signal %s = %+v, want unavailable", s.Name, s)
		}
	}
	want := DigestSignals([]model.Signal{
		{Name: "panicky", Value: model.Unavailable},
		{Name: "failing", Value: model.Unavailable},
		{Name: "hardware", Value: model.Unavailable},
	})
	if fp.Hash != want {
		t.Errorf("hash = %s, want %s", fp.Hash, want)
	}
}

func TestHardwareProbeReadsOnce(t *testing.T) {
	calls := 0
	p := &HardwareProbe{read: func(context.Context) (string, error) {
		calls++
		return "platform=linux", nil
	}}
	for i := 0; i < 3; i++ {
		if v, err := p.Collect(context.Background(), model.ClientSignals{}); err != nil || v != "platform=linux" {
			t.Fatalf("Collect() = %q, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("descriptor read %d times, want 1", calls)
	}
}

func TestProbeValues(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		probe  Probe
		client model.ClientSignals
		want   string
		ok     bool
	}{
		{"ua", UserAgentProbe{}, model.ClientSignals{UserAgent: chromeUA}, "Chrome/Windows/Desktop", true},
		{"display", DisplayProbe{}, model.ClientSignals{ScreenWidth: 1440, ScreenHeight: 900, ColorDepth: 30, PixelRatio: 2}, "1440x900@30*2.00", true},
		{"display missing", DisplayProbe{}, model.ClientSignals{ScreenWidth: 1440}, "", false},
		{"locale canonical", LocaleProbe{}, model.ClientSignals{Language: "en-us"}, "en-US", true},
		{"locale invalid", LocaleProbe{}, model.ClientSignals{Language: "!!"}, "", false},
		{"timezone", TimezoneProbe{}, model.ClientSignals{Timezone: "Asia/Tokyo"}, "Asia/Tokyo", true},
		{"timezone invalid", TimezoneProbe{}, model.ClientSignals{Timezone: "Mars/Olympus"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.probe.Collect(ctx, tt.client)
			if tt.ok && (err != nil || got != tt.want) {
				t.Errorf("Collect() = %q, %v; want %q", got, err, tt.want)
			}
			if !tt.ok && err == nil {
				t.Errorf("Collect() = %q, expected an error", got)
			}
		})
	}
}

func TestLocaleFallsBackToHost(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "de_DE.UTF-8")

	got, err := LocaleProbe{}.Collect(context.Background(), model.ClientSignals{})
	if err != nil || got != "de-DE" {
		t.Errorf("Collect() = %q, %v; want de-DE", got, err)
	}
}
