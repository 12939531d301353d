// Package metrics samples local load and turns it into the priority score used
// for leader election and task placement. Lower scores mean a less loaded
// node.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Priority weights. CPU dominates, then in-flight tasks, then memory pressure.
const (
	weightCPU    = 0.5
	weightTasks  = 0.3
	weightMemory = 0.2

	// tasksFullLoad is the active-task count treated as 100% task load.
	tasksFullLoad = 10.0
)

// SystemProbe reads system-global CPU and memory state. The production probe
// queries the OS; tests substitute fixed readings.
type SystemProbe interface {
	// CPUPercent returns total CPU utilization in [0, 100].
	CPUPercent() float64
	// MemoryAvailablePercent returns the share of memory still available in
	// [0, 100].
	MemoryAvailablePercent() float64
}

// Sensor combines the system probe with the in-process active-task counter.
// All reads are cheap and safe for concurrent use; Priority recomputes from
// live readings on every call.
type Sensor struct {
	probe       SystemProbe
	activeTasks atomic.Int64
	totalTasks  atomic.Uint64
}

// NewSensor builds a sensor over the given probe.
func NewSensor(probe SystemProbe) *Sensor {
	return &Sensor{probe: probe}
}

// CPUPercent reports system-global CPU utilization.
func (s *Sensor) CPUPercent() float64 { return s.probe.CPUPercent() }

// MemoryAvailablePercent reports the share of memory still available.
func (s *Sensor) MemoryAvailablePercent() float64 { return s.probe.MemoryAvailablePercent() }

// ActiveTasks reports the number of executor wrappers currently running.
func (s *Sensor) ActiveTasks() int64 { return s.activeTasks.Load() }

// TotalTasks reports the lifetime task count.
func (s *Sensor) TotalTasks() uint64 { return s.totalTasks.Load() }

// TaskStarted records one executor wrapper entering its task.
func (s *Sensor) TaskStarted() {
	s.activeTasks.Add(1)
	s.totalTasks.Add(1)
}

// TaskFinished records one executor wrapper leaving its task.
func (s *Sensor) TaskFinished() {
	s.activeTasks.Add(-1)
}

// Priority computes the load score in [0, 100]:
//
//	0.5*cpu + 0.3*min(active/10, 1)*100 + 0.2*(100 - memAvailable)
//
// For fixed CPU and memory, each additional active task strictly raises the
// score until the task term saturates at ten tasks.
func (s *Sensor) Priority() float64 {
	cpuPct := s.probe.CPUPercent()
	memAvailable := s.probe.MemoryAvailablePercent()
	tasks := float64(s.activeTasks.Load())

	taskScore := tasks / tasksFullLoad
	if taskScore > 1 {
		taskScore = 1
	}

	return weightCPU*cpuPct + weightTasks*taskScore*100 + weightMemory*(100-memAvailable)
}

// HostProbe reads CPU and memory from the operating system. Construct one per
// process at startup; it has no teardown.
type HostProbe struct{}

var _ SystemProbe = HostProbe{}

// NewHostProbe returns the process-wide OS probe.
func NewHostProbe() HostProbe { return HostProbe{} }

// CPUPercent returns utilization since the previous call, averaged across
// cores. The first call primes the counters and may report zero.
func (HostProbe) CPUPercent() float64 {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return 0
	}
	return percents[0]
}

// MemoryAvailablePercent returns available memory as a share of total.
func (HostProbe) MemoryAvailablePercent() float64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Total == 0 {
		return 100
	}
	return float64(vm.Available) / float64(vm.Total) * 100
}

// Timestamp returns the wall-clock seconds carried in heartbeats and history
// entries. Receivers never compare it against their own clock.
func Timestamp() uint64 {
	return uint64(time.Now().Unix())
}
