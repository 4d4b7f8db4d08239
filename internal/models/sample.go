package models

import (
	"math"
	"time"
)

// SystemMetricSample is one point-in-time observation of the host.
// Byte fields are bytes, rates are bytes/sec and percentages are 0-100.
type SystemMetricSample struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUUsage      float64   `json:"cpu_usage"`
	MemoryUsage   float64   `json:"memory_usage"`
	MemoryTotal   float64   `json:"memory_total"`
	MemoryFree    float64   `json:"memory_free"`
	SwapUsage     float64   `json:"swap_usage"`
	SwapTotal     float64   `json:"swap_total"`
	SwapFree      float64   `json:"swap_free"`
	ProcessCPU    float64   `json:"process_cpu"`
	ProcessMemory float64   `json:"process_memory"`
	NetworkRx     float64   `json:"network_rx"` // bytes/sec
	NetworkTx     float64   `json:"network_tx"` // bytes/sec
	DiskUsage     float64   `json:"disk_usage"`
	DiskTotal     float64   `json:"disk_total"`

	// SampleCount is only set on aggregated bucket records.
	SampleCount int `json:"sample_count,omitempty"`
}

// Normalize clamps percentages to [0,100] and every other numeric field to >= 0.
func (s SystemMetricSample) Normalize() SystemMetricSample {
	s.CPUUsage = clampPercent(s.CPUUsage)
	s.MemoryUsage = clampPercent(s.MemoryUsage)
	s.SwapUsage = clampPercent(s.SwapUsage)
	s.DiskUsage = clampPercent(s.DiskUsage)
	s.ProcessCPU = clampNonNegative(s.ProcessCPU)
	s.MemoryTotal = clampNonNegative(s.MemoryTotal)
	s.MemoryFree = clampNonNegative(s.MemoryFree)
	s.SwapTotal = clampNonNegative(s.SwapTotal)
	s.SwapFree = clampNonNegative(s.SwapFree)
	s.ProcessMemory = clampNonNegative(s.ProcessMemory)
	s.NetworkRx = clampNonNegative(s.NetworkRx)
	s.NetworkTx = clampNonNegative(s.NetworkTx)
	s.DiskTotal = clampNonNegative(s.DiskTotal)
	return s
}

// AggregatedStats summarises a selected set of samples.
// All fields are zero when the set is empty.
type AggregatedStats struct {
	AvgCPU         float64 `json:"avg_cpu"`
	MaxCPU         float64 `json:"max_cpu"`
	MinCPU         float64 `json:"min_cpu"`
	AvgMemory      float64 `json:"avg_memory"`
	MaxMemory      float64 `json:"max_memory"`
	MinMemory      float64 `json:"min_memory"`
	TotalNetworkRx float64 `json:"total_network_rx"`
	TotalNetworkTx float64 `json:"total_network_tx"`
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampNonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
