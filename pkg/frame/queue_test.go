package frame

import (
	"sync"
	"testing"
	"time"
)

func fillI420(f *VideoFrame, seed byte) {
	for p := range f.Planes {
		for i := range f.Planes[p] {
			f.Planes[p][i] = seed + byte(p) + byte(i%251)
		}
	}
}

func TestQueueOverflowDropsNewest(t *testing.T) {
	q := NewVideoFrameQueue(3)

	// Five frames back to back, no dequeue in between. The first three
	// fill the queue; the remaining two are dropped.
	accepted := 0
	for i := 0; i < 5; i++ {
		f := NewI420Frame(64, 48)
		f.TimestampUs = int64(i)
		fillI420(f, byte(i))
		ok, err := q.Enqueue(f)
		if err != nil {
			t.Fatalf("Enqueue(%d) error: %v", i, err)
		}
		if ok {
			accepted++
		}
	}

	if accepted != 3 {
		t.Errorf("accepted = %d, want 3", accepted)
	}
	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}

	// Dequeue yields the three accepted frames in enqueue order.
	for i := 0; i < 3; i++ {
		s, ok := q.TryDequeue()
		if !ok {
			t.Fatalf("TryDequeue(%d) empty, want frame", i)
		}
		if s.TimestampUs() != int64(i) {
			t.Errorf("frame %d TimestampUs = %d, want %d", i, s.TimestampUs(), i)
		}
		q.RecycleStorage(s)
	}
	if _, ok := q.TryDequeue(); ok {
		t.Error("queue should be empty after draining")
	}
}

func TestQueueRecyclingReusesBuffers(t *testing.T) {
	q := NewVideoFrameQueue(2)

	f := NewI420Frame(32, 32)
	if ok, _ := q.Enqueue(f); !ok {
		t.Fatal("first enqueue should succeed")
	}
	s, _ := q.TryDequeue()
	first := &s.data[0]
	q.RecycleStorage(s)

	if ok, _ := q.Enqueue(f); !ok {
		t.Fatal("second enqueue should succeed")
	}
	s2, _ := q.TryDequeue()
	if &s2.data[0] != first {
		t.Error("recycled storage should reuse the same backing buffer")
	}
}

func TestQueueStorageGrowsNeverShrinks(t *testing.T) {
	q := NewVideoFrameQueue(1)

	big := NewI420Frame(128, 128)
	if ok, _ := q.Enqueue(big); !ok {
		t.Fatal("enqueue big frame should succeed")
	}
	s, _ := q.TryDequeue()
	bigCap := cap(s.data)
	q.RecycleStorage(s)

	small := NewI420Frame(16, 16)
	if ok, _ := q.Enqueue(small); !ok {
		t.Fatal("enqueue small frame should succeed")
	}
	s, _ = q.TryDequeue()
	if cap(s.data) != bigCap {
		t.Errorf("storage cap = %d, want %d (buffer must not shrink)", cap(s.data), bigCap)
	}
	if len(s.data) != small.StorageSize() {
		t.Errorf("storage len = %d, want %d", len(s.data), small.StorageSize())
	}
}

func TestQueueCopyHonorsSourceStride(t *testing.T) {
	const w, h = 16, 8
	const pad = 10

	// Build a frame whose planes carry row padding; the padding bytes are
	// poisoned so any stride mistake shows up in the copied output.
	f := &VideoFrame{Width: w, Height: h, Format: PixelFormatI420}
	for p := 0; p < 3; p++ {
		rowBytes := planeRowBytes(PixelFormatI420, p, w)
		rows := planeRows(PixelFormatI420, p, h)
		stride := rowBytes + pad
		plane := make([]byte, stride*(rows-1)+rowBytes)
		for r := 0; r < rows; r++ {
			for c := 0; c < rowBytes; c++ {
				plane[r*stride+c] = byte(p*64 + r*8 + c)
			}
			if r < rows-1 {
				for c := rowBytes; c < stride; c++ {
					plane[r*stride+c] = 0xEE
				}
			}
		}
		f.Planes = append(f.Planes, plane)
		f.Stride = append(f.Stride, stride)
	}

	q := NewVideoFrameQueue(1)
	if ok, err := q.Enqueue(f); !ok || err != nil {
		t.Fatalf("Enqueue = %v, %v", ok, err)
	}

	s, ok := q.TryDequeue()
	if !ok {
		t.Fatal("TryDequeue empty, want frame")
	}
	out := s.Frame()
	for p := 0; p < 3; p++ {
		rowBytes := planeRowBytes(PixelFormatI420, p, w)
		rows := planeRows(PixelFormatI420, p, h)
		if out.Stride[p] != rowBytes {
			t.Errorf("plane %d packed stride = %d, want %d", p, out.Stride[p], rowBytes)
		}
		for r := 0; r < rows; r++ {
			for c := 0; c < rowBytes; c++ {
				got := out.Planes[p][r*rowBytes+c]
				want := byte(p*64 + r*8 + c)
				if got != want {
					t.Fatalf("plane %d row %d col %d = %#x, want %#x", p, r, c, got, want)
				}
			}
		}
	}
}

func TestQueueRejectsInvalidFrame(t *testing.T) {
	q := NewVideoFrameQueue(3)

	f := NewI420Frame(64, 64)
	f.Planes[0] = f.Planes[0][:10]

	ok, err := q.Enqueue(f)
	if ok {
		t.Error("invalid frame must not be enqueued")
	}
	if err == nil {
		t.Error("invalid frame must return an error")
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestQueueClear(t *testing.T) {
	q := NewVideoFrameQueue(3)

	f := NewI420Frame(32, 32)
	for i := 0; i < 3; i++ {
		if ok, _ := q.Enqueue(f); !ok {
			t.Fatalf("enqueue %d should succeed", i)
		}
	}

	q.Clear()

	if q.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", q.Len())
	}
	if _, ok := q.TryDequeue(); ok {
		t.Error("TryDequeue after Clear should be empty")
	}

	// Cleared buffers go back to the pool, so refilling succeeds without
	// hitting the capacity drop path.
	for i := 0; i < 3; i++ {
		if ok, _ := q.Enqueue(f); !ok {
			t.Fatalf("enqueue %d after Clear should succeed", i)
		}
	}
}

func TestQueueProducerConsumerConservation(t *testing.T) {
	q := NewVideoFrameQueue(4)
	const total = 200

	done := make(chan struct{})
	var wg sync.WaitGroup
	var dequeued int

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			s, ok := q.TryDequeue()
			if ok {
				dequeued++
				q.RecycleStorage(s)
				continue
			}
			select {
			case <-done:
				// Drain anything published after the last check.
				for {
					s, ok := q.TryDequeue()
					if !ok {
						return
					}
					dequeued++
					q.RecycleStorage(s)
				}
			default:
				time.Sleep(time.Millisecond)
			}
		}
	}()

	f := NewI420Frame(32, 32)
	accepted := 0
	for i := 0; i < total; i++ {
		ok, err := q.Enqueue(f)
		if err != nil {
			t.Fatalf("Enqueue error: %v", err)
		}
		if ok {
			accepted++
		}
	}
	close(done)
	wg.Wait()

	if dequeued != accepted {
		t.Errorf("dequeued %d frames, producer had %d accepted", dequeued, accepted)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d after drain, want 0", q.Len())
	}
}

func TestRateTracker(t *testing.T) {
	r := newRateTracker(30)

	if got := r.PerSecond(); got != 0 {
		t.Errorf("PerSecond before any event = %v, want 0", got)
	}

	// 30 events spaced exactly 10ms apart: rate converges on 100/s.
	base := time.Unix(0, 0)
	for i := 0; i <= 30; i++ {
		r.Mark(base.Add(time.Duration(i) * 10 * time.Millisecond))
	}

	got := r.PerSecond()
	if got < 99.0 || got > 101.0 {
		t.Errorf("PerSecond = %v, want ~100", got)
	}

	r.Reset()
	if got := r.PerSecond(); got != 0 {
		t.Errorf("PerSecond after Reset = %v, want 0", got)
	}
}

func TestRateTrackerWindowSlides(t *testing.T) {
	r := newRateTracker(4)

	base := time.Unix(0, 0)
	now := base
	// Four slow deltas of 100ms each.
	for i := 0; i < 5; i++ {
		r.Mark(now)
		now = now.Add(100 * time.Millisecond)
	}
	// Four fast deltas of 10ms each push the slow ones out of the window.
	now = now.Add(-90 * time.Millisecond)
	for i := 0; i < 4; i++ {
		now = now.Add(10 * time.Millisecond)
		r.Mark(now)
	}

	got := r.PerSecond()
	if got < 99.0 || got > 101.0 {
		t.Errorf("PerSecond = %v, want ~100 after window slides", got)
	}
}

func BenchmarkQueueEnqueueDequeue(b *testing.B) {
	q := NewVideoFrameQueue(4)
	f := NewI420Frame(1280, 720)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		q.Enqueue(f)
		if s, ok := q.TryDequeue(); ok {
			q.RecycleStorage(s)
		}
	}
}
