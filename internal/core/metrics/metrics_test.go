package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fixedProbe struct {
	cpu float64
	mem float64
}

func (p fixedProbe) CPUPercent() float64             { return p.cpu }
func (p fixedProbe) MemoryAvailablePercent() float64 { return p.mem }

func TestPriority_Formula(t *testing.T) {
	// 20% CPU, 2 active tasks, 80% memory available:
	// 0.5*20 + 0.3*20 + 0.2*20 = 20
	s := NewSensor(fixedProbe{cpu: 20, mem: 80})
	s.TaskStarted()
	s.TaskStarted()

	assert.InDelta(t, 20.0, s.Priority(), 1e-9)
}

func TestPriority_IdleIsZero(t *testing.T) {
	s := NewSensor(fixedProbe{cpu: 0, mem: 100})
	assert.Zero(t, s.Priority())
}

func TestPriority_SaturatedIsHundred(t *testing.T) {
	s := NewSensor(fixedProbe{cpu: 100, mem: 0})
	for i := 0; i < 25; i++ {
		s.TaskStarted()
	}
	assert.InDelta(t, 100.0, s.Priority(), 1e-9)
}

func TestPriority_MonotoneInTasks(t *testing.T) {
	s := NewSensor(fixedProbe{cpu: 35, mem: 60})

	prev := s.Priority()
	for i := 0; i < 10; i++ {
		s.TaskStarted()
		cur := s.Priority()
		assert.Greater(t, cur, prev, "task %d did not raise priority", i+1)
		prev = cur
	}

	// Beyond ten tasks the task term is capped.
	s.TaskStarted()
	assert.Equal(t, prev, s.Priority())
}

func TestPriority_TaskTermCapped(t *testing.T) {
	s := NewSensor(fixedProbe{cpu: 0, mem: 100})
	for i := 0; i < 100; i++ {
		s.TaskStarted()
	}
	assert.InDelta(t, 30.0, s.Priority(), 1e-9)
}

func TestActiveTasks_ConcurrentCounting(t *testing.T) {
	s := NewSensor(fixedProbe{cpu: 0, mem: 100})

	const workers = 64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.TaskStarted()
				s.TaskFinished()
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, s.ActiveTasks())
	assert.Equal(t, uint64(workers*100), s.TotalTasks())
}

func TestHostProbe_Bounds(t *testing.T) {
	probe := NewHostProbe()

	cpu := probe.CPUPercent()
	assert.GreaterOrEqual(t, cpu, 0.0)
	assert.LessOrEqual(t, cpu, 100.0)

	mem := probe.MemoryAvailablePercent()
	assert.GreaterOrEqual(t, mem, 0.0)
	assert.LessOrEqual(t, mem, 100.0)
}
