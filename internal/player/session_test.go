package player

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"multitrack/internal/audio"
)

// fakeCatalog はメモリ上のトラックを返す Catalog
type fakeCatalog struct {
	names   []string
	files   map[string][]byte
	listErr error
}

func (c *fakeCatalog) ListTracks(ctx context.Context, dir string) ([]string, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.names, nil
}

func (c *fakeCatalog) FetchTrack(ctx context.Context, dir, name string) ([]byte, error) {
	data, ok := c.files[name]
	if !ok {
		return nil, &StatusError{URL: "/song/" + name, Status: 404, Body: "File not found"}
	}
	return data, nil
}

// manualClock はテスト用に手動で進める時計
type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func newManualClock() *manualClock {
	return &manualClock{t: time.Unix(1700000000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// silentWAV は指定した長さの無音WAV(8kHz, mono, 16bit)を返す
func silentWAV(t *testing.T, seconds float64) []byte {
	t.Helper()
	const rate = 8000

	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, int(seconds*rate)),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	return data
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

// newTestSession は2トラック(1秒と0.5秒)のセッションを作成する
func newTestSession(t *testing.T, frame time.Duration) (*Session, *audio.ClockEngine, *manualClock) {
	t.Helper()

	catalog := &fakeCatalog{
		names: []string{"drums.wav", "bass.wav"},
		files: map[string][]byte{
			"drums.wav": silentWAV(t, 1),
			"bass.wav":  silentWAV(t, 0.5),
		},
	}
	clock := newManualClock()
	engine := audio.NewClockEngine(clock.Now)

	s := NewSession(catalog, engine, Options{
		Dir:           "album",
		StartDelay:    100 * time.Millisecond,
		FrameInterval: frame,
	})
	t.Cleanup(func() { s.Close() })
	return s, engine, clock
}

// loadReady は全トラックの読み込み完了まで待つ
func loadReady(t *testing.T, s *Session) {
	t.Helper()
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady failed: %v", err)
	}
}

func TestSession_Load(t *testing.T) {
	s, _, _ := newTestSession(t, time.Hour)

	if err := s.Play(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Play before Load: expected ErrNotReady, got %v", err)
	}

	loadReady(t, s)

	snap := s.Snapshot()
	if snap.State != StateReady {
		t.Errorf("Expected ready, got %s", snap.State)
	}
	if snap.Loaded != 2 || snap.Total != 2 {
		t.Errorf("Expected 2/2 loaded, got %d/%d", snap.Loaded, snap.Total)
	}
	// 長さは最長トラックに合わせる
	if !approx(snap.Duration, 1) {
		t.Errorf("Expected duration 1, got %v", snap.Duration)
	}
	if snap.SessionID == "" || snap.SessionID != s.ID() {
		t.Errorf("Unexpected session id %q", snap.SessionID)
	}
	for i, tr := range snap.Tracks {
		if !tr.Loaded || tr.Size == 0 {
			t.Errorf("Track %d not loaded: %+v", i, tr)
		}
	}
	if !approx(snap.Tracks[1].Duration, 0.5) {
		t.Errorf("Expected bass duration 0.5, got %v", snap.Tracks[1].Duration)
	}

	if err := s.Load(context.Background()); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("Expected ErrAlreadyLoaded, got %v", err)
	}
}

func TestSession_PlayStartsAllTracksTogether(t *testing.T) {
	s, engine, _ := newTestSession(t, time.Hour)
	loadReady(t, s)

	if !engine.Suspended() {
		t.Fatal("Engine should start suspended")
	}
	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if engine.Suspended() {
		t.Error("Play should resume the engine")
	}

	voices := engine.Voices()
	if len(voices) != 2 {
		t.Fatalf("Expected 2 voices, got %d", len(voices))
	}
	for i, v := range voices {
		if !approx(v.When, 0.1) || v.Offset != 0 || v.Gain() != 1 {
			t.Errorf("voice %d: When=%v Offset=%v Gain=%v", i, v.When, v.Offset, v.Gain())
		}
	}

	snap := s.Snapshot()
	if snap.State != StatePlaying || len(snap.Units) != 2 {
		t.Errorf("Unexpected snapshot: state=%s units=%d", snap.State, len(snap.Units))
	}

	// 再生中の Play は何もしない
	if err := s.Play(); err != nil {
		t.Errorf("Play while playing failed: %v", err)
	}
	if len(engine.Voices()) != 2 {
		t.Error("Play while playing should not schedule voices")
	}
}

func TestSession_ToggleMute(t *testing.T) {
	s, engine, _ := newTestSession(t, time.Hour)
	loadReady(t, s)

	// 再生前のミュートは次の Play のゲインに反映される
	muted, err := s.ToggleMute(0)
	if err != nil || !muted {
		t.Fatalf("ToggleMute(0) = %v, %v", muted, err)
	}
	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	voices := engine.Voices()
	if voices[0].Gain() != 0 || voices[1].Gain() != 1 {
		t.Errorf("Unexpected gains: %v %v", voices[0].Gain(), voices[1].Gain())
	}

	// 再生中のミュートは即座にゲインを変える
	if muted, _ := s.ToggleMute(1); !muted {
		t.Error("Expected track 1 muted")
	}
	if voices[1].Gain() != 0 {
		t.Errorf("Expected gain 0, got %v", voices[1].Gain())
	}
	if muted, _ := s.ToggleMute(0); muted {
		t.Error("Expected track 0 unmuted")
	}
	if voices[0].Gain() != 1 {
		t.Errorf("Expected gain 1, got %v", voices[0].Gain())
	}

	snap := s.Snapshot()
	if snap.Tracks[0].Muted || !snap.Tracks[1].Muted {
		t.Errorf("Unexpected mute flags: %+v", snap.Tracks)
	}

	if _, err := s.ToggleMute(2); !errors.Is(err, ErrBadTrack) {
		t.Errorf("Expected ErrBadTrack, got %v", err)
	}
	if _, err := s.ToggleMute(-1); !errors.Is(err, ErrBadTrack) {
		t.Errorf("Expected ErrBadTrack, got %v", err)
	}
}

func TestSession_SeekWhilePlaying(t *testing.T) {
	s, engine, clock := newTestSession(t, time.Hour)
	loadReady(t, s)

	if _, err := s.ToggleMute(1); err != nil {
		t.Fatalf("ToggleMute failed: %v", err)
	}
	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	clock.Advance(300 * time.Millisecond)

	if err := s.Seek(0.5); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}

	voices := engine.Voices()
	if len(voices) != 4 {
		t.Fatalf("Expected 4 voices, got %d", len(voices))
	}
	// 古いユニットは止まり、新しいユニットが新しい位置から同時に始まる
	for i, v := range voices[:2] {
		if !v.Stopped() {
			t.Errorf("old voice %d not stopped", i)
		}
	}
	for i, v := range voices[2:] {
		if !approx(v.When, 0.4) || !approx(v.Offset, 0.5) {
			t.Errorf("new voice %d: When=%v Offset=%v", i, v.When, v.Offset)
		}
	}
	if voices[3].Gain() != 0 {
		t.Error("Mute should survive a seek")
	}

	snap := s.Snapshot()
	if snap.State != StatePlaying || !approx(snap.Position, 0.5) || !approx(snap.Offset, 0.5) {
		t.Errorf("Unexpected snapshot: %s pos=%v offset=%v", snap.State, snap.Position, snap.Offset)
	}
}

func TestSession_SeekClamps(t *testing.T) {
	s, engine, _ := newTestSession(t, time.Hour)
	loadReady(t, s)

	if err := s.Seek(-3); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if got := s.Snapshot().Offset; got != 0 {
		t.Errorf("Expected offset 0, got %v", got)
	}

	if err := s.Seek(42); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if got := s.Snapshot().Offset; !approx(got, 1) {
		t.Errorf("Expected offset 1, got %v", got)
	}

	// 停止中のシークは再生を開始しない
	if len(engine.Voices()) != 0 {
		t.Error("Seek while ready should not schedule voices")
	}
}

func TestSession_StopKeepsOffset(t *testing.T) {
	s, engine, _ := newTestSession(t, time.Hour)
	loadReady(t, s)

	if err := s.Seek(0.25); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	for i, v := range engine.Voices() {
		if !v.Stopped() {
			t.Errorf("voice %d not stopped", i)
		}
	}
	if s.Snapshot().State != StateStopped {
		t.Errorf("Expected stopped, got %s", s.Snapshot().State)
	}

	// 2回目の Stop もエラーにならない
	if err := s.Stop(); err != nil {
		t.Errorf("Second Stop failed: %v", err)
	}

	if err := s.Play(); err != nil {
		t.Fatalf("Play after Stop failed: %v", err)
	}
	voices := engine.Voices()
	if len(voices) != 4 || !approx(voices[2].Offset, 0.25) {
		t.Errorf("Expected restart from 0.25, got %d voices", len(voices))
	}
}

func TestSession_Pause(t *testing.T) {
	s, engine, clock := newTestSession(t, time.Hour)
	loadReady(t, s)

	if err := s.Pause(); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("Expected ErrNotPlaying, got %v", err)
	}

	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	// 開始時刻 0.1 から 0.25 秒進める
	clock.Advance(350 * time.Millisecond)

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	snap := s.Snapshot()
	if snap.State != StatePaused || !approx(snap.Offset, 0.25) || !approx(snap.Position, 0.25) {
		t.Errorf("Unexpected snapshot: %s pos=%v offset=%v", snap.State, snap.Position, snap.Offset)
	}

	if err := s.Play(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	voices := engine.Voices()
	if len(voices) != 4 || !approx(voices[2].Offset, 0.25) || !approx(voices[2].When, 0.45) {
		t.Errorf("Unexpected resumed voice: %+v", voices[len(voices)-1])
	}
}

func TestSession_PositionBeforeStartInstant(t *testing.T) {
	s, _, clock := newTestSession(t, time.Hour)
	loadReady(t, s)

	if err := s.Seek(0.2); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	// 開始時刻前に一時停止してもシーク位置より前には戻らない
	clock.Advance(50 * time.Millisecond)
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if got := s.Snapshot().Position; !approx(got, 0.2) {
		t.Errorf("Expected position 0.2, got %v", got)
	}
}

func TestSession_StopsAtEnd(t *testing.T) {
	var (
		mu    sync.Mutex
		snaps []Snapshot
	)
	catalog := &fakeCatalog{
		names: []string{"a.wav"},
		files: map[string][]byte{"a.wav": silentWAV(t, 0.5)},
	}
	clock := newManualClock()
	engine := audio.NewClockEngine(clock.Now)
	s := NewSession(catalog, engine, Options{
		Dir:           "album",
		FrameInterval: time.Millisecond,
		OnChange: func(snap Snapshot) {
			mu.Lock()
			snaps = append(snaps, snap)
			mu.Unlock()
		},
	})
	defer s.Close()

	loadReady(t, s)
	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	clock.Advance(2 * time.Second)

	deadline := time.Now().Add(5 * time.Second)
	for s.Snapshot().State != StateStopped {
		if time.Now().After(deadline) {
			t.Fatal("Playback did not stop at the end")
		}
		time.Sleep(time.Millisecond)
	}

	snap := s.Snapshot()
	if !approx(snap.Position, snap.Duration) {
		t.Errorf("Expected position at duration %v, got %v", snap.Duration, snap.Position)
	}
	if !engine.Voices()[0].Stopped() {
		t.Error("Voice should be stopped at the end")
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop after end failed: %v", err)
	}

	// 通知は別ゴルーチンから届くので最後の停止が届くまで待つ
	for {
		mu.Lock()
		stopped := len(snaps) > 0 && snaps[len(snaps)-1].State == StateStopped
		mu.Unlock()
		if stopped {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("OnChange should report the final stop")
		}
		time.Sleep(time.Millisecond)
	}
}

// TestSession_ControlFromOnChange は OnChange の中から操作を呼べることをテストする
func TestSession_ControlFromOnChange(t *testing.T) {
	testCases := []struct {
		name  string
		call  func(s *Session) error
		state State
	}{
		{"pause", func(s *Session) error { return s.Pause() }, StatePaused},
		{"stop", func(s *Session) error { return s.Stop() }, StateStopped},
		{"seek", func(s *Session) error { return s.Seek(1) }, StatePlaying},
		{"close", func(s *Session) error { return s.Close() }, StateStopped},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			catalog := &fakeCatalog{
				names: []string{"long.wav"},
				files: map[string][]byte{"long.wav": silentWAV(t, 5)},
			}
			clock := newManualClock()

			var (
				s    *Session
				once sync.Once
			)
			result := make(chan error, 1)
			s = NewSession(catalog, audio.NewClockEngine(clock.Now), Options{
				FrameInterval: time.Millisecond,
				OnChange: func(snap Snapshot) {
					if snap.State != StatePlaying || snap.Position <= 0.15 {
						return
					}
					once.Do(func() { result <- tc.call(s) })
				},
			})
			defer s.Close()

			loadReady(t, s)
			if err := s.Play(); err != nil {
				t.Fatalf("Play failed: %v", err)
			}
			clock.Advance(300 * time.Millisecond)

			select {
			case err := <-result:
				if err != nil {
					t.Fatalf("call from OnChange failed: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("call from OnChange did not return")
			}

			if got := s.Snapshot().State; got != tc.state {
				t.Errorf("Expected %s, got %s", tc.state, got)
			}
		})
	}
}

// blockingCatalog は解放されるまで ListTracks を返さない Catalog
type blockingCatalog struct {
	entered chan struct{}
	release chan struct{}
	fetched chan string
}

func (c *blockingCatalog) ListTracks(ctx context.Context, dir string) ([]string, error) {
	close(c.entered)
	<-c.release
	return []string{"a.wav", "b.wav"}, nil
}

func (c *blockingCatalog) FetchTrack(ctx context.Context, dir, name string) ([]byte, error) {
	c.fetched <- name
	return nil, ctx.Err()
}

func TestSession_CloseDuringLoad(t *testing.T) {
	catalog := &blockingCatalog{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		fetched: make(chan string, 2),
	}
	s := NewSession(catalog, audio.NewClockEngine(nil), Options{})

	loadErr := make(chan error, 1)
	go func() { loadErr <- s.Load(context.Background()) }()

	<-catalog.entered
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	close(catalog.release)

	if err := <-loadErr; !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	// 閉じた後にダウンロードを始めてはいけない
	select {
	case name := <-catalog.fetched:
		t.Errorf("Track %s fetched after Close", name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSession_DecodeFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	catalog := &fakeCatalog{
		names: []string{"good.wav", "broken.wav"},
		files: map[string][]byte{
			"good.wav":   silentWAV(t, 0.5),
			"broken.wav": []byte("not a wav file"),
		},
	}
	s := NewSession(catalog, audio.NewClockEngine(nil), Options{Logger: zap.New(core)})

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := s.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
	if err := s.Play(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}

	s.Close()

	snap := s.Snapshot()
	if snap.Loaded != 1 || snap.Total != 2 {
		t.Errorf("Expected 1/2 loaded, got %d/%d", snap.Loaded, snap.Total)
	}
	if n := logs.FilterMessage("トラックのデコードに失敗しました").Len(); n != 1 {
		t.Errorf("Expected 1 decode failure log, got %d", n)
	}
}

func TestSession_FetchFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	catalog := &fakeCatalog{names: []string{"missing.wav"}}
	s := NewSession(catalog, audio.NewClockEngine(nil), Options{Logger: zap.New(core)})

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	s.Close()

	if n := logs.FilterMessage("トラックの取得に失敗しました").Len(); n != 1 {
		t.Errorf("Expected 1 fetch failure log, got %d", n)
	}
	if s.Snapshot().State != StateLoading {
		t.Errorf("Expected loading, got %s", s.Snapshot().State)
	}
}

func TestSession_LoadErrors(t *testing.T) {
	t.Run("empty list", func(t *testing.T) {
		s := NewSession(&fakeCatalog{names: []string{}}, audio.NewClockEngine(nil), Options{})
		defer s.Close()

		if err := s.Load(context.Background()); !errors.Is(err, ErrNoTracks) {
			t.Errorf("Expected ErrNoTracks, got %v", err)
		}
		if s.Snapshot().State != StateIdle {
			t.Errorf("Expected idle, got %s", s.Snapshot().State)
		}
	})

	t.Run("list failure", func(t *testing.T) {
		listErr := &StatusError{URL: "/list-audio/x", Status: 500, Body: "Failed to list files"}
		s := NewSession(&fakeCatalog{listErr: listErr}, audio.NewClockEngine(nil), Options{})
		defer s.Close()

		err := s.Load(context.Background())
		var se *StatusError
		if !errors.As(err, &se) || se.Status != 500 {
			t.Errorf("Expected StatusError, got %v", err)
		}
	})

	t.Run("closed", func(t *testing.T) {
		s := NewSession(&fakeCatalog{}, audio.NewClockEngine(nil), Options{})
		s.Close()

		if err := s.Load(context.Background()); !errors.Is(err, ErrClosed) {
			t.Errorf("Expected ErrClosed, got %v", err)
		}
		if err := s.WaitReady(context.Background()); !errors.Is(err, ErrNotReady) {
			t.Errorf("Expected ErrNotReady, got %v", err)
		}
	})
}

func TestSession_CloseStopsPlayback(t *testing.T) {
	s, engine, _ := newTestSession(t, time.Millisecond)
	loadReady(t, s)

	if err := s.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	for i, v := range engine.Voices() {
		if !v.Stopped() {
			t.Errorf("voice %d not stopped", i)
		}
	}
	if err := s.Play(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	// 2回目の Close は何もしない
	if err := s.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}
