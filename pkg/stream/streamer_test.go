package stream_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/facestream/pkg/face"
	"github.com/MrWong99/facestream/pkg/stream"
	"github.com/MrWong99/facestream/pkg/stream/mock"
)

const fps = 60

var tick = time.Second / fps

func makeSeq(n int) face.EncodedSequence {
	seq := make(face.EncodedSequence, n)
	for i := range seq {
		seq[i] = face.WireFrame{byte(i), byte(i >> 8)}
	}
	return seq
}

func newClock() *mock.Clock {
	return mock.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestStream_PacesAtFrameRate(t *testing.T) {
	t.Parallel()

	clk := newClock()
	tr := &mock.Transport{Clock: clk}
	s := stream.New(stream.WithClock(clk))

	const n = 120
	stats, err := s.Stream(context.Background(), makeSeq(n), fps, nil, tr)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if stats.Sent != n || stats.Skipped != 0 || stats.Frames != n {
		t.Errorf("stats = %+v, want %d sent, 0 skipped", stats, n)
	}

	want := time.Duration(n) * time.Second / fps
	if d := want - stats.Elapsed; d < 0 || d > tick+time.Microsecond {
		t.Errorf("Elapsed = %v, want within one tick of %v", stats.Elapsed, want)
	}

	// Every frame goes out at exactly its scheduled slot.
	start := tr.SentAt[0]
	for k, at := range tr.SentAt {
		wantAt := time.Duration(int64(k) * int64(time.Second) / fps)
		if got := at.Sub(start); got != wantAt {
			t.Fatalf("frame %d sent at +%v, want +%v", k, got, wantAt)
		}
	}
	if diff := cmp.Diff([]byte(makeSeq(n)[n-1]), tr.Sent[n-1]); diff != "" {
		t.Errorf("last frame mismatch (-want +got):\n%s", diff)
	}
}

func TestStream_DriftSkipsLateFramesThenResumes(t *testing.T) {
	t.Parallel()

	clk := newClock()
	tr := &mock.Transport{Clock: clk}
	// The send of frame 10 stalls for 3.5 ticks.
	tr.OnSend = func(call int) {
		if call == 10 {
			clk.Advance(3*tick + tick/2)
		}
	}

	var mu sync.Mutex
	decisions := map[int]stream.TickDecision{}
	s := stream.New(
		stream.WithClock(clk),
		stream.WithTickHook(func(tk stream.Tick) {
			mu.Lock()
			decisions[tk.Index] = tk.Decision
			mu.Unlock()
		}),
	)

	const n = 30
	stats, err := s.Stream(context.Background(), makeSeq(n), fps, nil, tr)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if stats.Skipped != 2 || stats.Sent != n-2 {
		t.Errorf("stats = %+v, want 2 skipped, %d sent", stats, n-2)
	}
	for _, k := range []int{11, 12} {
		if decisions[k] != stream.TickSkip {
			t.Errorf("frame %d decision = %v, want skip", k, decisions[k])
		}
	}
	if decisions[13] != stream.TickSendNow {
		t.Errorf("frame 13 decision = %v, want send-now", decisions[13])
	}
	for k := 14; k < n; k++ {
		if decisions[k] != stream.TickWait {
			t.Fatalf("frame %d decision = %v, want wait (back on schedule)", k, decisions[k])
		}
	}

	// Frames are never reordered or duplicated.
	var gotIdx []byte
	for _, f := range tr.Sent {
		gotIdx = append(gotIdx, f[0])
	}
	var wantIdx []byte
	for k := range n {
		if k != 11 && k != 12 {
			wantIdx = append(wantIdx, byte(k))
		}
	}
	if diff := cmp.Diff(wantIdx, gotIdx); diff != "" {
		t.Errorf("sent order mismatch (-want +got):\n%s", diff)
	}

	// Once back on schedule, frames go out at their original slots.
	start := tr.SentAt[0]
	last := tr.SentAt[len(tr.SentAt)-1]
	if got, want := last.Sub(start), time.Duration(int64(n-1)*int64(time.Second)/fps); got != want {
		t.Errorf("last frame sent at +%v, want +%v", got, want)
	}
}

// A transport that stays slower than the frame rate never catches up. The
// schedule remains anchored to the first frame, so the streamer drops the
// frames it cannot fit instead of stretching the take or bursting to recover.
func TestStream_SustainedBacklogDropsFramesWithoutCatchingUp(t *testing.T) {
	t.Parallel()

	clk := newClock()
	tr := &mock.Transport{Clock: clk}
	// Every send takes 2.5 ticks.
	tr.OnSend = func(int) { clk.Advance(tick * 5 / 2) }

	var (
		mu        sync.Mutex
		decisions []stream.TickDecision
	)
	s := stream.New(
		stream.WithClock(clk),
		stream.WithTickHook(func(tk stream.Tick) {
			mu.Lock()
			decisions = append(decisions, tk.Decision)
			mu.Unlock()
		}),
	)

	const n = 40
	start := clk.Now()
	stats, err := s.Stream(context.Background(), makeSeq(n), fps, nil, tr)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if stats.Sent+stats.Skipped != n {
		t.Errorf("stats = %+v, want every frame sent or skipped", stats)
	}
	if stats.Sent < n/3 || stats.Sent > n/2 {
		t.Errorf("sent %d of %d, want between a third and a half", stats.Sent, n)
	}
	if len(clk.Sleeps) != 0 {
		t.Errorf("streamer slept %v while behind schedule", clk.Sleeps)
	}

	if len(decisions) != n {
		t.Fatalf("got %d ticks, want %d", len(decisions), n)
	}
	run := 0
	for k, d := range decisions {
		switch d {
		case stream.TickWait:
			t.Fatalf("frame %d decision = wait, streamer caught up on a permanently slow transport", k)
		case stream.TickSendNow:
			if k > 0 && decisions[k-1] == stream.TickSendNow {
				t.Errorf("frames %d and %d sent back to back", k-1, k)
			}
			run = 0
		case stream.TickSkip:
			run++
			if run > 2 {
				t.Errorf("frame %d is skip number %d in a row, want at most 2", k, run)
			}
		}
	}

	// Each sent frame goes out no earlier than its slot and one send
	// duration after the previous one: the schedule is never fast-forwarded.
	for i, f := range tr.Sent {
		k := int(f[0])
		slot := start.Add(time.Duration(int64(k) * int64(time.Second) / fps))
		begin := tr.SentAt[i].Add(-tick * 5 / 2)
		if begin.Before(slot) {
			t.Errorf("frame %d started at +%v, before its slot +%v", k, begin.Sub(start), slot.Sub(start))
		}
		if i > 0 {
			if gap := tr.SentAt[i].Sub(tr.SentAt[i-1]); gap != tick*5/2 {
				t.Errorf("gap before frame %d = %v, want %v", k, gap, tick*5/2)
			}
		}
	}
}

func TestStream_SlightlyLateFrameSentWithoutWait(t *testing.T) {
	t.Parallel()

	clk := newClock()
	tr := &mock.Transport{}
	tr.OnSend = func(call int) {
		if call == 0 {
			clk.Advance(tick + tick/2)
		}
	}
	var decisions []stream.TickDecision
	s := stream.New(stream.WithClock(clk), stream.WithTickHook(func(tk stream.Tick) {
		decisions = append(decisions, tk.Decision)
	}))

	stats, err := s.Stream(context.Background(), makeSeq(3), fps, nil, tr)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	want := []stream.TickDecision{stream.TickSendNow, stream.TickSendNow, stream.TickWait}
	if diff := cmp.Diff(want, decisions); diff != "" {
		t.Errorf("decisions mismatch (-want +got):\n%s", diff)
	}
	if stats.Sent != 3 {
		t.Errorf("Sent = %d, want 3", stats.Sent)
	}
}

func TestStream_WaitsForGate(t *testing.T) {
	t.Parallel()

	tr := &mock.Transport{}
	states := make(chan stream.State, 8)
	s := stream.New(
		stream.WithClock(newClock()),
		stream.WithStateHook(func(st stream.State) { states <- st }),
	)
	gate := stream.NewGate()

	type result struct {
		stats stream.Stats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		st, err := s.Stream(context.Background(), makeSeq(5), fps, gate, tr)
		done <- result{st, err}
	}()

	if st := <-states; st != stream.StateGatedWait {
		t.Fatalf("first state = %v, want gated-wait", st)
	}
	if tr.SentCount() != 0 {
		t.Fatalf("frames sent before gate: %d", tr.SentCount())
	}
	gate.Signal()

	res := <-done
	if res.err != nil {
		t.Fatalf("Stream: %v", res.err)
	}
	if res.stats.Sent != 5 {
		t.Errorf("Sent = %d, want 5", res.stats.Sent)
	}
	if st := <-states; st != stream.StateStreaming {
		t.Errorf("second state = %v, want streaming", st)
	}
	if st := <-states; st != stream.StateStopped {
		t.Errorf("third state = %v, want stopped", st)
	}
	if s.State() != stream.StateStopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
}

func TestStream_OwnedTransportClosedOnEveryExit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   func(tr *mock.Transport, cancel context.CancelFunc)
		gate    func() *stream.Gate
		wantErr error
	}{
		{
			name: "normal completion",
		},
		{
			name:    "send failure",
			setup:   func(tr *mock.Transport, _ context.CancelFunc) { tr.FailSendAt = map[int]bool{2: true} },
			wantErr: stream.ErrSend,
		},
		{
			name: "cancelled mid stream",
			setup: func(tr *mock.Transport, cancel context.CancelFunc) {
				tr.OnSend = func(call int) {
					if call == 1 {
						cancel()
					}
				}
			},
		},
		{
			name:  "cancelled before gate",
			setup: func(_ *mock.Transport, cancel context.CancelFunc) { cancel() },
			gate:  stream.NewGate,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			tr := &mock.Transport{}
			if tc.setup != nil {
				tc.setup(tr, cancel)
			}
			d := &mock.Dialer{Transport: tr}
			s := stream.New(stream.WithClock(newClock()), stream.WithDialer(d))

			var gate *stream.Gate
			if tc.gate != nil {
				gate = tc.gate()
			}
			_, err := s.Stream(ctx, makeSeq(5), fps, gate, nil)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Stream error = %v, want %v", err, tc.wantErr)
			}
			if d.CallCountDial != 1 {
				t.Errorf("CallCountDial = %d, want 1", d.CallCountDial)
			}
			if tr.CallCountClose != 1 {
				t.Errorf("CallCountClose = %d, want 1", tr.CallCountClose)
			}
		})
	}
}

func TestStream_BorrowedTransportNeverClosed(t *testing.T) {
	t.Parallel()

	tr := &mock.Transport{FailSendAt: map[int]bool{1: true}}
	s := stream.New(stream.WithClock(newClock()))

	if _, err := s.Stream(context.Background(), makeSeq(3), fps, nil, tr); !errors.Is(err, stream.ErrSend) {
		t.Fatalf("Stream error = %v, want ErrSend", err)
	}
	if _, err := s.Stream(context.Background(), makeSeq(3), fps, nil, &mock.Transport{}); err != nil {
		t.Fatalf("second Stream: %v", err)
	}
	if tr.CallCountClose != 0 {
		t.Errorf("CallCountClose = %d, want 0 for borrowed transport", tr.CallCountClose)
	}
}

func TestStream_SendFailureAborts(t *testing.T) {
	t.Parallel()

	tr := &mock.Transport{FailSendAt: map[int]bool{3: true}}
	s := stream.New(stream.WithClock(newClock()))

	stats, err := s.Stream(context.Background(), makeSeq(10), fps, nil, tr)
	if !errors.Is(err, stream.ErrSend) || !errors.Is(err, mock.ErrSend) {
		t.Fatalf("Stream error = %v, want ErrSend wrapping the transport error", err)
	}
	if stats.Sent != 3 || tr.CallCountSend != 4 {
		t.Errorf("Sent = %d, CallCountSend = %d; want 3, 4", stats.Sent, tr.CallCountSend)
	}
	if stats.Cancelled {
		t.Error("Cancelled = true, want false")
	}
}

func TestStream_CancellationIsCleanStop(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := &mock.Transport{OnSend: func(call int) {
		if call == 4 {
			cancel()
		}
	}}
	s := stream.New(stream.WithClock(newClock()))

	stats, err := s.Stream(ctx, makeSeq(60), fps, nil, tr)
	if err != nil {
		t.Fatalf("Stream error = %v, want nil on cancellation", err)
	}
	if !stats.Cancelled {
		t.Error("Cancelled = false, want true")
	}
	if stats.Sent != 4 {
		t.Errorf("Sent = %d, want 4", stats.Sent)
	}
}

func TestStream_EmptyFramesNotSent(t *testing.T) {
	t.Parallel()

	seq := makeSeq(6)
	seq[0] = nil
	seq[3] = face.WireFrame{}
	tr := &mock.Transport{}
	s := stream.New(stream.WithClock(newClock()))

	stats, err := s.Stream(context.Background(), seq, fps, nil, tr)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if stats.Empty != 2 || stats.Sent != 4 || tr.CallCountSend != 4 {
		t.Errorf("stats = %+v, CallCountSend = %d; want 2 empty, 4 sent", stats, tr.CallCountSend)
	}
}

func TestStream_DialFailure(t *testing.T) {
	t.Parallel()

	dialErr := errors.New("connection refused")
	s := stream.New(stream.WithDialer(&mock.Dialer{DialErr: dialErr}))
	_, err := s.Stream(context.Background(), makeSeq(3), fps, nil, nil)
	if !errors.Is(err, stream.ErrDial) || !errors.Is(err, dialErr) {
		t.Errorf("Stream error = %v, want ErrDial wrapping %v", err, dialErr)
	}
}

func TestStream_InvalidArguments(t *testing.T) {
	t.Parallel()

	s := stream.New()
	if _, err := s.Stream(context.Background(), makeSeq(1), 0, nil, &mock.Transport{}); !errors.Is(err, stream.ErrInvalidFPS) {
		t.Errorf("fps 0: err = %v, want ErrInvalidFPS", err)
	}
	if _, err := s.Stream(context.Background(), makeSeq(1), fps, nil, nil); !errors.Is(err, stream.ErrNoTransport) {
		t.Errorf("no transport: err = %v, want ErrNoTransport", err)
	}
}

func TestStream_BusyWhileRunning(t *testing.T) {
	t.Parallel()

	gate := stream.NewGate()
	started := make(chan struct{})
	s := stream.New(stream.WithClock(newClock()), stream.WithStateHook(func(st stream.State) {
		if st == stream.StateGatedWait {
			close(started)
		}
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Stream(context.Background(), makeSeq(3), fps, gate, &mock.Transport{})
	}()
	<-started

	if _, err := s.Stream(context.Background(), makeSeq(3), fps, nil, &mock.Transport{}); !errors.Is(err, stream.ErrBusy) {
		t.Errorf("concurrent Stream error = %v, want ErrBusy", err)
	}
	gate.Signal()
	<-done
}
