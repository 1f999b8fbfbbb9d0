package utils

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// HardwareDescriptor summarises the host hardware and platform in a stable
// string. Parts that cannot be read are left out; an error is returned only
// when nothing could be read at all.
func HardwareDescriptor(ctx context.Context) (string, error) {
	var parts []string
	var firstErr error

	if info, err := host.InfoWithContext(ctx); err == nil {
		parts = append(parts,
			"platform="+info.Platform,
			"family="+info.PlatformFamily,
			"version="+info.PlatformVersion,
			"arch="+info.KernelArch,
		)
		if info.HostID != "" {
			parts = append(parts, "host="+info.HostID)
		}
	} else {
		firstErr = err
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		parts = append(parts, fmt.Sprintf("cores=%d", cores))
	} else if firstErr == nil {
		firstErr = err
	}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		parts = append(parts, "cpu="+strings.TrimSpace(infos[0].ModelName))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		// round to GiB so ballooning or reserved memory does not shift the value
		parts = append(parts, fmt.Sprintf("mem=%dGiB", (vm.Total+(1<<29))>>30))
	} else if firstErr == nil {
		firstErr = err
	}

	if len(parts) == 0 {
		if firstErr == nil {
			firstErr = fmt.Errorf("no hardware information available")
		}
		return "", fmt.Errorf("failed to read hardware descriptor: %w", firstErr)
	}
	return strings.Join(parts, ","), nil
}
