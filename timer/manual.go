package timer

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by Advance instead of the wall clock.
// Callbacks run synchronously on the goroutine calling Advance.
type Manual struct {
	mutex  sync.Mutex
	now    time.Duration
	nextId int64
	tasks  map[int64]*TimerTask
	offset map[int64]time.Duration
}

func NewManual() *Manual {
	return &Manual{
		nextId: 1,
		tasks:  make(map[int64]*TimerTask),
		offset: make(map[int64]time.Duration),
	}
}

func (m *Manual) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	id := m.nextId
	m.nextId++
	m.tasks[id] = &TimerTask{Id: id, Interval: interval, Callback: callback}
	m.offset[id] = m.now + delay
	return id
}

func (m *Manual) RemoveTimer(timerId int64) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.tasks[timerId]; !ok {
		return false
	}
	delete(m.tasks, timerId)
	delete(m.offset, timerId)
	return true
}

// Pending returns the number of scheduled timers.
func (m *Manual) Pending() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.tasks)
}

// Advance moves the clock forward by d, firing due timers in deadline order.
func (m *Manual) Advance(d time.Duration) {
	m.mutex.Lock()
	target := m.now + d
	m.mutex.Unlock()

	for {
		m.mutex.Lock()
		id, at, ok := m.earliest(target)
		if !ok {
			m.now = target
			m.mutex.Unlock()
			return
		}
		task := m.tasks[id]
		m.now = at
		if task.Interval > 0 {
			m.offset[id] = at + task.Interval
		} else {
			delete(m.tasks, id)
			delete(m.offset, id)
		}
		m.mutex.Unlock()

		task.Callback()
	}
}

func (m *Manual) earliest(limit time.Duration) (int64, time.Duration, bool) {
	ids := make([]int64, 0, len(m.offset))
	for id, at := range m.offset {
		if at <= limit {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, 0, false
	}
	sort.Slice(ids, func(i, j int) bool {
		if m.offset[ids[i]] == m.offset[ids[j]] {
			return ids[i] < ids[j]
		}
		return m.offset[ids[i]] < m.offset[ids[j]]
	})
	return ids[0], m.offset[ids[0]], true
}
