package tool_sysinfo

import (
	"context"
	"runtime"

	"github.com/elee1766/chatmux/src/agent"
	"github.com/elee1766/chatmux/src/apps/toolsutil"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Tool name constant
const Name = "system_info"

const systemInfoPrompt = `Reports facts about the machine running the assistant: operating system, platform, CPU count, memory and load averages.`

// SystemInfoInput takes no parameters
type SystemInfoInput struct{}

// SystemInfoOutput represents the response from system_info
type SystemInfoOutput struct {
	OS              string    `json:"os"`
	Arch            string    `json:"arch"`
	Hostname        string    `json:"hostname,omitempty"`
	Platform        string    `json:"platform,omitempty"`
	PlatformVersion string    `json:"platform_version,omitempty"`
	KernelVersion   string    `json:"kernel_version,omitempty"`
	UptimeSeconds   uint64    `json:"uptime_seconds,omitempty"`
	CPUs            int       `json:"cpus"`
	CPUModel        string    `json:"cpu_model,omitempty"`
	MemoryTotal     string    `json:"memory_total,omitempty"`
	MemoryAvailable string    `json:"memory_available,omitempty"`
	MemoryUsedPct   float64   `json:"memory_used_percent,omitempty"`
	Load            []float64 `json:"load,omitempty"`
	Warnings        []string  `json:"warnings,omitempty"`
}

// Tool returns the system_info tool
func Tool() (agent.Tool, error) {
	return agent.NewGenericTool(Name, systemInfoPrompt, systemInfoHandler)
}

func systemInfoHandler(ctx context.Context, _ SystemInfoInput) (SystemInfoOutput, error) {
	out := SystemInfoOutput{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
		CPUs: runtime.NumCPU(),
	}
	warn := func(probe string, err error) {
		toolsutil.GetLogger().Debug("system probe failed", "probe", probe, "error", err)
		out.Warnings = append(out.Warnings, probe+": "+err.Error())
	}

	if info, err := host.InfoWithContext(ctx); err != nil {
		warn("host", err)
	} else {
		out.Hostname = info.Hostname
		out.Platform = info.Platform
		out.PlatformVersion = info.PlatformVersion
		out.KernelVersion = info.KernelVersion
		out.UptimeSeconds = info.Uptime
	}

	if infos, err := cpu.InfoWithContext(ctx); err != nil {
		warn("cpu", err)
	} else if len(infos) > 0 {
		out.CPUModel = infos[0].ModelName
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		warn("memory", err)
	} else {
		out.MemoryTotal = toolsutil.FormatBytes(int64(vm.Total))
		out.MemoryAvailable = toolsutil.FormatBytes(int64(vm.Available))
		out.MemoryUsedPct = vm.UsedPercent
	}

	if runtime.GOOS != "windows" {
		if avg, err := load.AvgWithContext(ctx); err != nil {
			warn("load", err)
		} else {
			out.Load = []float64{avg.Load1, avg.Load5, avg.Load15}
		}
	}

	return out, nil
}
