package idle_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/facestream/internal/idle"
	"github.com/MrWong99/facestream/pkg/face"
	"github.com/MrWong99/facestream/pkg/face/livelink"
	"github.com/MrWong99/facestream/pkg/stream"
	"github.com/MrWong99/facestream/pkg/stream/mock"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestBlink_Frame(t *testing.T) {
	t.Parallel()

	b := idle.Blink{
		Interval:      time.Second,
		Duration:      100 * time.Millisecond,
		BrowAmplitude: 0.2,
		BrowPeriod:    4 * time.Second,
	}

	tests := []struct {
		name      string
		elapsed   time.Duration
		wantBlink float64
		wantBrow  float64
	}{
		{"start", 0, 0, 0},
		{"blink peak", 50 * time.Millisecond, 1, 0.2 * 0.5 * (1 - math.Cos(2*math.Pi*0.05/4))},
		{"eyes open", 500 * time.Millisecond, 0, 0.2 * 0.5 * (1 - math.Cos(2*math.Pi*0.5/4))},
		{"brow peak", 2 * time.Second, 0, 0.2},
		{"second blink peak", 1050 * time.Millisecond, 1, 0.2 * 0.5 * (1 - math.Cos(2*math.Pi*1.05/4))},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := b.Frame(tc.elapsed)
			if len(f) != face.MaxChannels {
				t.Fatalf("len = %d, want %d", len(f), face.MaxChannels)
			}
			if !approx(f[livelink.EyeBlinkLeft], tc.wantBlink) || !approx(f[livelink.EyeBlinkRight], tc.wantBlink) {
				t.Errorf("blink = %v/%v, want %v", f[livelink.EyeBlinkLeft], f[livelink.EyeBlinkRight], tc.wantBlink)
			}
			if !approx(f[livelink.BrowInnerUp], tc.wantBrow) {
				t.Errorf("brow = %v, want %v", f[livelink.BrowInnerUp], tc.wantBrow)
			}
			if f[livelink.JawOpen] != 0 {
				t.Errorf("jaw = %v, want 0", f[livelink.JawOpen])
			}
		})
	}
}

func TestBlink_ZeroValueIsRest(t *testing.T) {
	t.Parallel()

	for _, v := range (idle.Blink{}).Frame(3 * time.Second) {
		if v != 0 {
			t.Fatalf("zero Blink produced non-zero frame")
		}
	}
}

// runLoop runs l against tr until tr has been asked to send stopAfter
// frames, then returns Run's error.
func runLoop(t *testing.T, l *idle.Loop, tr *mock.Transport, stopAfter int) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	prev := tr.OnSend
	tr.OnSend = func(call int) {
		if prev != nil {
			prev(call)
		}
		if call == stopAfter {
			cancel()
		}
	}

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, tr) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestLoop_PacesAndEncodes(t *testing.T) {
	t.Parallel()

	start := time.Unix(1000, 0)
	clk := mock.NewClock(start)
	tr := &mock.Transport{Clock: clk}
	anim := idle.Blink{Interval: 200 * time.Millisecond, Duration: 100 * time.Millisecond}
	l := idle.New(anim, idle.WithFPS(20), idle.WithClock(clk))

	if err := runLoop(t, l, tr, 10); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(tr.Sent) != 10 {
		t.Fatalf("sent %d frames, want 10", len(tr.Sent))
	}
	if tr.CallCountClose != 0 {
		t.Error("idle loop closed a borrowed transport")
	}

	tick := 50 * time.Millisecond
	for k, at := range tr.SentAt {
		if want := start.Add(time.Duration(k) * tick); !at.Equal(want) {
			t.Errorf("frame %d sent at %v, want %v", k, at.Sub(start), want.Sub(start))
		}
	}

	for k, wire := range tr.Sent {
		pkt, err := livelink.Decode(wire)
		if err != nil {
			t.Fatalf("frame %d: Decode: %v", k, err)
		}
		want := anim.Frame(time.Duration(k) * tick)[livelink.EyeBlinkLeft]
		if got := float64(pkt.Channels[livelink.EyeBlinkLeft]); math.Abs(got-want) > 1e-6 {
			t.Errorf("frame %d blink = %v, want %v", k, got, want)
		}
	}
}

func TestLoop_ResyncsAfterStall(t *testing.T) {
	t.Parallel()

	clk := mock.NewClock(time.Unix(0, 0))
	tick := time.Second / 10
	tr := &mock.Transport{OnSend: func(call int) {
		if call == 3 {
			clk.Advance(10 * tick)
		}
	}}

	var ticks []stream.Tick
	l := idle.New(nil,
		idle.WithFPS(10),
		idle.WithClock(clk),
		idle.WithTickHook(func(tk stream.Tick) { ticks = append(ticks, tk) }),
	)
	if err := runLoop(t, l, tr, 6); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var idx []int
	for _, tk := range ticks {
		idx = append(idx, tk.Index)
	}
	want := []int{0, 1, 2, 3, 13, 14}
	if len(idx) != len(want) {
		t.Fatalf("tick indices = %v, want %v", idx, want)
	}
	for i := range want {
		if idx[i] != want[i] {
			t.Fatalf("tick indices = %v, want %v", idx, want)
		}
	}
	if ticks[4].Decision != stream.TickSendNow {
		t.Errorf("resynced tick decision = %v, want send-now", ticks[4].Decision)
	}
	if ticks[5].Decision != stream.TickWait {
		t.Errorf("tick after resync = %v, want wait", ticks[5].Decision)
	}
}

func TestLoop_SendFailure(t *testing.T) {
	t.Parallel()

	tr := &mock.Transport{FailSendAt: map[int]bool{2: true}}
	l := idle.New(nil, idle.WithClock(mock.NewClock(time.Unix(0, 0))))

	err := l.Run(context.Background(), tr)
	if !errors.Is(err, idle.ErrSend) || !errors.Is(err, mock.ErrSend) {
		t.Fatalf("err = %v, want ErrSend wrapping the transport error", err)
	}
	if len(tr.Sent) != 2 {
		t.Errorf("sent %d frames before failure, want 2", len(tr.Sent))
	}
}

func TestLoop_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := &mock.Transport{}
	if err := idle.New(nil).Run(ctx, tr); err != nil {
		t.Errorf("Run = %v, want nil", err)
	}
	if tr.CallCountSend != 0 {
		t.Errorf("sent %d frames after cancellation", tr.CallCountSend)
	}
}

func TestLoop_CustomEncoderAndAnimation(t *testing.T) {
	t.Parallel()

	var gotFPS int
	var applied []face.RawFrame
	enc := &recordingEncoder{applied: &applied}
	anim := idle.AnimationFunc(func(elapsed time.Duration) face.RawFrame {
		return face.RawFrame{elapsed.Seconds()}
	})
	l := idle.New(anim,
		idle.WithFPS(4),
		idle.WithClock(mock.NewClock(time.Unix(0, 0))),
		idle.WithEncoder(func(fps int) face.Encoder {
			gotFPS = fps
			return enc
		}),
	)
	if l.FPS() != 4 {
		t.Errorf("FPS() = %d, want 4", l.FPS())
	}

	if err := runLoop(t, l, &mock.Transport{}, 3); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotFPS != 4 {
		t.Errorf("encoder built for %d fps, want 4", gotFPS)
	}
	// The fourth frame is encoded before its send is cancelled.
	want := []float64{0, 0.25, 0.5, 0.75}
	if len(applied) != len(want) {
		t.Fatalf("applied %d frames, want %d", len(applied), len(want))
	}
	for i, f := range applied {
		if !approx(f[0], want[i]) {
			t.Errorf("frame %d = %v, want %v", i, f[0], want[i])
		}
	}
}

type recordingEncoder struct {
	applied *[]face.RawFrame
}

func (e *recordingEncoder) SetChannel(int, float64) error { return nil }

func (e *recordingEncoder) ApplyFrame(f face.RawFrame) error {
	*e.applied = append(*e.applied, f)
	return nil
}

func (e *recordingEncoder) Encode() (face.WireFrame, error) { return face.WireFrame{1}, nil }
