package services

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// MemoryReading holds byte counts and used percentage for RAM or swap.
type MemoryReading struct {
	Total       uint64
	Free        uint64
	UsedPercent float64
}

// DiskReading holds usage for the monitored mount point.
type DiskReading struct {
	Total       uint64
	UsedPercent float64
}

// NetworkCounters are cumulative byte counters summed over all interfaces.
type NetworkCounters struct {
	BytesRecv uint64
	BytesSent uint64
}

// ProcessReading describes the metricwatch process itself. CPUPercent
// covers the interval since the previous reading, 100 per fully busy core.
type ProcessReading struct {
	CPUPercent float64
	RSS        uint64
}

// HostReader reads raw host and process counters.
type HostReader interface {
	CPUPercent(ctx context.Context) (float64, error)
	VirtualMemory(ctx context.Context) (MemoryReading, error)
	SwapMemory(ctx context.Context) (MemoryReading, error)
	DiskUsage(ctx context.Context) (DiskReading, error)
	NetworkCounters(ctx context.Context) (NetworkCounters, error)
	Process(ctx context.Context) (ProcessReading, error)
}

// gopsutilReader implements HostReader on top of gopsutil.
type gopsutilReader struct {
	diskPath string
	proc     *process.Process
	now      func() time.Time

	mu          sync.Mutex
	procCPUPrev cpuBaseline
}

// cpuBaseline is the previous cumulative user+system CPU time of the process.
type cpuBaseline struct {
	busy  float64
	at    time.Time
	valid bool
}

// NewHostReader returns a HostReader backed by gopsutil. diskPath defaults to "/".
func NewHostReader(diskPath string) HostReader {
	if diskPath == "" {
		diskPath = "/"
	}
	// A nil proc disables process readings instead of failing the sampler.
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &gopsutilReader{diskPath: diskPath, proc: proc, now: time.Now}
}

func (r *gopsutilReader) CPUPercent(ctx context.Context) (float64, error) {
	percentage, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, errors.Wrap(err, "read cpu percent")
	}
	if len(percentage) == 0 {
		return 0, errors.New("cpu percent: no data")
	}
	return percentage[0], nil
}

func (r *gopsutilReader) VirtualMemory(ctx context.Context) (MemoryReading, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryReading{}, errors.Wrap(err, "read virtual memory")
	}
	return MemoryReading{Total: vm.Total, Free: vm.Available, UsedPercent: vm.UsedPercent}, nil
}

func (r *gopsutilReader) SwapMemory(ctx context.Context) (MemoryReading, error) {
	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return MemoryReading{}, errors.Wrap(err, "read swap memory")
	}
	return MemoryReading{Total: swap.Total, Free: swap.Free, UsedPercent: swap.UsedPercent}, nil
}

func (r *gopsutilReader) DiskUsage(ctx context.Context) (DiskReading, error) {
	usage, err := disk.UsageWithContext(ctx, r.diskPath)
	if err != nil {
		return DiskReading{}, errors.Wrapf(err, "read disk usage for %s", r.diskPath)
	}
	return DiskReading{Total: usage.Total, UsedPercent: usage.UsedPercent}, nil
}

func (r *gopsutilReader) NetworkCounters(ctx context.Context) (NetworkCounters, error) {
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return NetworkCounters{}, errors.Wrap(err, "read network counters")
	}

	loopbacks := r.loopbackInterfaces(ctx)

	var total NetworkCounters
	for _, counter := range counters {
		if isLoopback(counter.Name, loopbacks) {
			continue
		}
		total.BytesRecv += counter.BytesRecv
		total.BytesSent += counter.BytesSent
	}
	return total, nil
}

// loopbackInterfaces returns the names of interfaces flagged as loopback. A
// nil result leaves isLoopback to match on name alone.
func (r *gopsutilReader) loopbackInterfaces(ctx context.Context) map[string]bool {
	interfaces, err := net.InterfacesWithContext(ctx)
	if err != nil {
		return nil
	}
	loopbacks := make(map[string]bool)
	for _, iface := range interfaces {
		for _, flag := range iface.Flags {
			if flag == "loopback" {
				loopbacks[iface.Name] = true
			}
		}
	}
	return loopbacks
}

// isLoopback matches flagged interfaces plus "lo" (Linux) and "lo0".."loN" (BSD, macOS).
func isLoopback(name string, flagged map[string]bool) bool {
	if flagged[name] || name == "lo" {
		return true
	}
	suffix, ok := strings.CutPrefix(name, "lo")
	if !ok || suffix == "" {
		return false
	}
	for _, c := range suffix {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (r *gopsutilReader) Process(ctx context.Context) (ProcessReading, error) {
	if r.proc == nil {
		return ProcessReading{}, errors.New("process handle unavailable")
	}

	times, err := r.proc.TimesWithContext(ctx)
	if err != nil {
		return ProcessReading{}, errors.Wrap(err, "read process cpu times")
	}
	memInfo, err := r.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return ProcessReading{}, errors.Wrap(err, "read process memory")
	}

	busy := times.User + times.System
	at := r.now()

	r.mu.Lock()
	prev := r.procCPUPrev
	r.procCPUPrev = cpuBaseline{busy: busy, at: at, valid: true}
	r.mu.Unlock()

	return ProcessReading{CPUPercent: intervalCPUPercent(prev, busy, at), RSS: memInfo.RSS}, nil
}

// intervalCPUPercent converts cumulative CPU seconds into a percentage over
// the time since prev. The first reading, a non-positive interval, or a
// counter that went backwards all yield 0.
func intervalCPUPercent(prev cpuBaseline, busy float64, at time.Time) float64 {
	if !prev.valid {
		return 0
	}
	elapsed := at.Sub(prev.at).Seconds()
	if elapsed <= 0 || busy < prev.busy {
		return 0
	}
	return (busy - prev.busy) / elapsed * 100
}
