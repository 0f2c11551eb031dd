package thermal

import "time"

// History is a fixed-capacity ring buffer of data points. When full, the
// oldest point is evicted first. Eviction order is part of the contract,
// not a container side effect.
type History struct {
	points []DataPoint
	head   int // index of the oldest point
	size   int
}

// DefaultHistoryCapacity bounds memory and storage size regardless of uptime.
const DefaultHistoryCapacity = 1000

func NewHistory(capacity int) (*History, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &History{points: make([]DataPoint, capacity)}, nil
}

func (h *History) Len() int { return h.size }

func (h *History) Cap() int { return len(h.points) }

// Append adds a point, evicting the oldest when at capacity.
func (h *History) Append(p DataPoint) {
	if h.size < len(h.points) {
		h.points[(h.head+h.size)%len(h.points)] = p
		h.size++
		return
	}
	h.points[h.head] = p
	h.head = (h.head + 1) % len(h.points)
}

// Points returns a copy of all points, oldest first.
func (h *History) Points() []DataPoint {
	out := make([]DataPoint, 0, h.size)
	for i := 0; i < h.size; i++ {
		out = append(out, h.points[(h.head+i)%len(h.points)])
	}
	return out
}

// Since returns the points with a timestamp strictly after cutoff,
// oldest first. Aged-out points stay in the buffer until evicted by
// capacity; exclusion here is logical only.
func (h *History) Since(cutoff time.Time) []DataPoint {
	var out []DataPoint
	for i := 0; i < h.size; i++ {
		p := h.points[(h.head+i)%len(h.points)]
		if p.Timestamp.After(cutoff) {
			out = append(out, p)
		}
	}
	return out
}
