package frame

import (
	"sync"
	"time"
)

// DefaultQueueCapacity is the frame queue capacity used when none is given.
// Small on purpose: a renderer that falls behind should drop frames, not
// accumulate latency.
const DefaultQueueCapacity = 3

// Storage is one recycled frame buffer owned by a VideoFrameQueue. Its
// backing array is grown to fit the largest frame it has held and never
// shrunk. Planes are stored tightly packed.
type Storage struct {
	data   []byte
	width  int
	height int
	format PixelFormat
	ts     int64
}

// Width returns the pixel width of the stored frame.
func (s *Storage) Width() int { return s.width }

// Height returns the pixel height of the stored frame.
func (s *Storage) Height() int { return s.height }

// Format returns the stored frame's pixel format.
func (s *Storage) Format() PixelFormat { return s.format }

// TimestampUs returns the stored frame's timestamp in microseconds.
func (s *Storage) TimestampUs() int64 { return s.ts }

// Frame returns a view of the stored frame. The view aliases the storage
// buffer and is only valid until the storage is recycled.
func (s *Storage) Frame() *VideoFrame {
	f := &VideoFrame{
		Width:       s.width,
		Height:      s.height,
		Format:      s.format,
		TimestampUs: s.ts,
	}
	off := 0
	for i := 0; i < s.format.PlaneCount(); i++ {
		rowBytes := planeRowBytes(s.format, i, s.width)
		size := rowBytes * planeRows(s.format, i, s.height)
		f.Planes = append(f.Planes, s.data[off:off+size])
		f.Stride = append(f.Stride, rowBytes)
		off += size
	}
	return f
}

// grow ensures the buffer holds at least size bytes, keeping any larger
// allocation already made.
func (s *Storage) grow(size int) {
	if cap(s.data) >= size {
		s.data = s.data[:size]
		return
	}
	s.data = make([]byte, size)
}

// copyFrom packs the frame's planes into the storage buffer row by row,
// honoring the source stride of every plane.
func (s *Storage) copyFrom(f *VideoFrame) {
	s.width = f.Width
	s.height = f.Height
	s.format = f.Format
	s.ts = f.TimestampUs
	s.grow(f.StorageSize())

	off := 0
	for i := 0; i < f.Format.PlaneCount(); i++ {
		rowBytes := planeRowBytes(f.Format, i, f.Width)
		rows := planeRows(f.Format, i, f.Height)
		copyPlane(s.data[off:], rowBytes, f.Planes[i], f.Stride[i], rowBytes, rows)
		off += rowBytes * rows
	}
}

// VideoFrameQueue is a fixed-capacity FIFO between a push-model producer
// (the engine's frame delivery thread) and a pull-model consumer. When the
// consumer falls behind, frames are dropped instead of blocking the
// producer or growing without bound. Consumed buffers are returned through
// RecycleStorage and reused.
//
// The queue supports exactly one producer and one consumer. Neither
// Enqueue nor TryDequeue ever blocks; the internal critical sections are
// O(1) and frame copying happens outside them on a buffer not yet
// published.
type VideoFrameQueue struct {
	capacity int

	fifoMu sync.Mutex
	fifo   []*Storage

	poolMu sync.Mutex
	pool   []*Storage

	enqueued *rateTracker
	dequeued *rateTracker
	dropped  *rateTracker
}

// NewVideoFrameQueue creates a queue holding at most capacity frames.
func NewVideoFrameQueue(capacity int) *VideoFrameQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &VideoFrameQueue{
		capacity: capacity,
		enqueued: newRateTracker(defaultRateWindow),
		dequeued: newRateTracker(defaultRateWindow),
		dropped:  newRateTracker(defaultRateWindow),
	}
}

// Capacity returns the maximum number of queued frames.
func (q *VideoFrameQueue) Capacity() int { return q.capacity }

// Len returns the number of currently queued frames.
func (q *VideoFrameQueue) Len() int {
	q.fifoMu.Lock()
	n := len(q.fifo)
	q.fifoMu.Unlock()
	return n
}

// Enqueue copies the frame into a pooled buffer and appends it to the FIFO.
// It returns false if the frame was dropped because the queue is at
// capacity and no recycled buffer was available. A full queue is not an
// error; an error is returned only when the frame's declared geometry is
// inconsistent.
func (q *VideoFrameQueue) Enqueue(f *VideoFrame) (bool, error) {
	if err := f.Validate(); err != nil {
		return false, err
	}

	s := q.getStorage()
	if s == nil {
		q.dropped.Mark(time.Now())
		return false, nil
	}

	// Copy before publishing so the FIFO never holds a half-filled buffer.
	s.copyFrom(f)

	q.fifoMu.Lock()
	q.fifo = append(q.fifo, s)
	q.fifoMu.Unlock()

	q.enqueued.Mark(time.Now())
	return true, nil
}

// TryDequeue pops the oldest frame, or returns false when the queue is
// empty. Empty-queue attempts do not count toward the dequeue rate. The
// caller should return the storage via RecycleStorage when done with it.
func (q *VideoFrameQueue) TryDequeue() (*Storage, bool) {
	q.fifoMu.Lock()
	if len(q.fifo) == 0 {
		q.fifoMu.Unlock()
		return nil, false
	}
	s := q.fifo[0]
	q.fifo = q.fifo[1:]
	q.fifoMu.Unlock()

	q.dequeued.Mark(time.Now())
	return s, true
}

// RecycleStorage returns a dequeued buffer to the pool so a later Enqueue
// can reuse its allocation.
func (q *VideoFrameQueue) RecycleStorage(s *Storage) {
	if s == nil {
		return
	}
	q.poolMu.Lock()
	q.pool = append(q.pool, s)
	q.poolMu.Unlock()
}

// Clear drains the FIFO into the pool, keeping allocated buffers for reuse,
// and resets all rate statistics.
func (q *VideoFrameQueue) Clear() {
	q.fifoMu.Lock()
	drained := q.fifo
	q.fifo = nil
	q.fifoMu.Unlock()

	q.poolMu.Lock()
	q.pool = append(q.pool, drained...)
	q.poolMu.Unlock()

	q.enqueued.Reset()
	q.dequeued.Reset()
	q.dropped.Reset()
}

// QueuedFramesPerSecond returns the approximate rate of accepted enqueues.
func (q *VideoFrameQueue) QueuedFramesPerSecond() float64 {
	return q.enqueued.PerSecond()
}

// DequeuedFramesPerSecond returns the approximate rate of dequeues.
func (q *VideoFrameQueue) DequeuedFramesPerSecond() float64 {
	return q.dequeued.PerSecond()
}

// DroppedFramesPerSecond returns the approximate rate of dropped frames.
func (q *VideoFrameQueue) DroppedFramesPerSecond() float64 {
	return q.dropped.PerSecond()
}

// getStorage hands out a recycled buffer, a fresh one if the queue still
// has headroom, or nil when the frame must be dropped.
func (q *VideoFrameQueue) getStorage() *Storage {
	q.poolMu.Lock()
	if n := len(q.pool); n > 0 {
		s := q.pool[n-1]
		q.pool = q.pool[:n-1]
		q.poolMu.Unlock()
		return s
	}
	q.poolMu.Unlock()

	q.fifoMu.Lock()
	full := len(q.fifo) >= q.capacity
	q.fifoMu.Unlock()
	if full {
		return nil
	}
	return &Storage{}
}
