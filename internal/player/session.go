package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"multitrack/internal/audio"
)

var (
	// ErrNotReady は全トラックの読み込みが完了していないことを表す
	ErrNotReady = errors.New("player: tracks are not ready")

	// ErrNoTracks はトラック一覧が空だったことを表す
	ErrNoTracks = errors.New("player: no tracks")

	// ErrAlreadyLoaded はセッションが既に読み込み済みであることを表す
	ErrAlreadyLoaded = errors.New("player: session already loaded")

	// ErrNotPlaying は再生中でないことを表す
	ErrNotPlaying = errors.New("player: not playing")

	// ErrBadTrack は存在しないトラック番号が指定されたことを表す
	ErrBadTrack = errors.New("player: no such track")

	// ErrClosed はセッションが閉じられていることを表す
	ErrClosed = errors.New("player: session closed")
)

// デフォルト値
const (
	DefaultStartDelay    = 100 * time.Millisecond
	DefaultFrameInterval = 16 * time.Millisecond
)

// DecodeFunc は楽曲データをPCMバッファに変換する関数
type DecodeFunc func(name string, data []byte) (*audio.Buffer, error)

// Options はセッションの設定
type Options struct {
	Dir           string        // 再生するディレクトリ
	StartDelay    time.Duration // 現在時刻から同期開始までの猶予
	FrameInterval time.Duration // 進捗を更新する間隔
	Decode        DecodeFunc    // nil なら audio.Decode
	Logger        *zap.Logger

	// OnChange は読み込み・進捗・状態が変わる度に専用のゴルーチンから呼ばれる。
	// 通知が追いつかない場合は最新の Snapshot のみが渡される
	OnChange func(Snapshot)
}

// Track は1トラックの状態
type Track struct {
	Index    int
	Name     string
	Title    string
	Artist   string
	Size     int64   // ダウンロードしたバイト数
	Duration float64 // 秒
	Loaded   bool
	Muted    bool
}

// Snapshot はセッション状態の複製
type Snapshot struct {
	SessionID string
	State     State
	Loaded    int
	Total     int
	Position  float64 // 現在の再生位置（秒）
	Offset    float64 // 次に再生を開始するシーク位置（秒）
	Duration  float64 // 最長トラックの長さ（秒）
	Tracks    []Track
	Units     []Unit // 直近の Play で予約した再生ユニット
}

// Session は1回分の再生セッション。バッファ・ゲイン・ミュート状態を所有する
type Session struct {
	id      string
	catalog Catalog
	engine  audio.Engine
	opts    Options
	logger  *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	loaders sync.WaitGroup
	once    sync.Once

	mu       sync.Mutex
	closed   bool
	state    State
	tracks   []Track
	buffers  []*audio.Buffer
	loaded   int
	duration float64
	offset   float64
	position float64
	startAt  float64
	units    []Unit
	voices   []audio.Voice
	run      *progressRun
	readyCh  chan struct{}

	notifyCh chan struct{}
	pending  *Snapshot
}

// progressRun は1回の再生に対応する進捗ループ
type progressRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession は新しいSessionを作成する
func NewSession(catalog Catalog, engine audio.Engine, opts Options) *Session {
	if opts.StartDelay <= 0 {
		opts.StartDelay = DefaultStartDelay
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if opts.Decode == nil {
		opts.Decode = audio.Decode
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:      id,
		catalog: catalog,
		engine:  engine,
		opts:    opts,
		logger:  opts.Logger.With(zap.String("session", id), zap.String("dir", opts.Dir)),
		ctx:     ctx,
		cancel:  cancel,
		state:   StateIdle,
	}
	if opts.OnChange != nil {
		s.notifyCh = make(chan struct{}, 1)
		go s.dispatch()
	}
	return s
}

// ID はセッションIDを返す
func (s *Session) ID() string {
	return s.id
}

// Load はトラック一覧を取得し、各トラックのダウンロードとデコードを並行して開始する。
// 読み込みの完了は待たない
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyLoaded
	}
	s.state = StateLoading
	s.mu.Unlock()

	names, err := s.catalog.ListTracks(ctx, s.opts.Dir)
	if err == nil && len(names) == 0 {
		err = ErrNoTracks
	}
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		s.logger.Error("トラック一覧の取得に失敗しました", zap.Error(err))
		return fmt.Errorf("トラック一覧の取得に失敗: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.tracks = make([]Track, len(names))
	for i, name := range names {
		s.tracks[i] = Track{Index: i, Name: name}
	}
	s.buffers = make([]*audio.Buffer, len(names))
	s.loaded = 0
	s.readyCh = make(chan struct{})
	// Close の Wait より前に登録されるようロック内で Add する
	s.loaders.Add(len(names))
	s.publishLocked()
	s.mu.Unlock()

	s.logger.Info("トラックの読み込みを開始します", zap.Int("tracks", len(names)))

	for i, name := range names {
		go s.loadTrack(i, name)
	}
	return nil
}

// loadTrack は1トラックをダウンロードしてデコードし、スロットを埋める
func (s *Session) loadTrack(index int, name string) {
	defer s.loaders.Done()
	logger := s.logger.With(zap.String("track", name))

	data, err := s.catalog.FetchTrack(s.ctx, s.opts.Dir, name)
	if err != nil {
		logger.Error("トラックの取得に失敗しました", zap.Error(err))
		return
	}

	buffer, err := s.opts.Decode(name, data)
	if err != nil {
		logger.Error("トラックのデコードに失敗しました", zap.Error(err))
		return
	}
	title, artist := readTags(data)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.buffers[index] = buffer
	t := &s.tracks[index]
	t.Loaded = true
	t.Size = int64(len(data))
	t.Duration = buffer.Duration()
	t.Title = title
	t.Artist = artist
	s.loaded++
	duration := t.Duration
	if duration > s.duration {
		s.duration = duration
	}
	if s.loaded == len(s.tracks) {
		s.state = StateReady
		close(s.readyCh)
	}
	loaded := s.loaded
	s.publishLocked()
	s.mu.Unlock()

	logger.Debug("トラックを読み込みました", zap.Float64("duration", duration), zap.Int("loaded", loaded))
}

// WaitReady は全トラックの読み込みが完了するか ctx が終了するまで待つ
func (s *Session) WaitReady(ctx context.Context) error {
	s.mu.Lock()
	ch := s.readyCh
	s.mu.Unlock()

	if ch == nil {
		return ErrNotReady
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Play は全トラックを共通の開始時刻・シーク位置で再生する
func (s *Session) Play() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state == StatePlaying {
		s.mu.Unlock()
		return nil
	}
	if !s.state.CanPlay() {
		s.mu.Unlock()
		return ErrNotReady
	}

	err := s.playLocked()
	s.publishLocked()
	s.mu.Unlock()

	return err
}

// playLocked は再生ユニットを作り直して予約する（ロック済み前提）
func (s *Session) playLocked() error {
	if s.engine.Suspended() {
		if err := s.engine.Resume(); err != nil {
			return fmt.Errorf("オーディオクロックの再開に失敗: %w", err)
		}
	}

	names := make([]string, len(s.tracks))
	muted := make([]bool, len(s.tracks))
	for i, t := range s.tracks {
		names[i] = t.Name
		muted[i] = t.Muted
	}

	when := s.engine.CurrentTime() + s.opts.StartDelay.Seconds()
	units := Plan(names, muted, when, s.offset)

	voices := make([]audio.Voice, 0, len(units))
	for _, u := range units {
		v, err := s.engine.Start(s.buffers[u.Index], u.When, u.Offset, u.Gain)
		if err != nil {
			stopVoices(voices, s.logger)
			return fmt.Errorf("トラック %s の再生開始に失敗: %w", u.Track, err)
		}
		voices = append(voices, v)
	}

	s.units = units
	s.voices = voices
	s.startAt = when
	s.position = s.offset
	s.state = StatePlaying
	s.run = s.startProgressLocked()

	s.logger.Info("再生を開始しました", zap.Float64("when", when), zap.Float64("offset", s.offset))
	return nil
}

// Stop は全ての再生ユニットを即座に停止する。シーク位置は保持する
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != StatePlaying && s.state != StatePaused {
		s.mu.Unlock()
		return nil
	}
	run := s.haltLocked()
	s.state = StateStopped
	s.publishLocked()
	s.mu.Unlock()

	wait(run)
	s.logger.Info("再生を停止しました")
	return nil
}

// Pause は再生を止め、現在位置を次のシーク位置として保持する
func (s *Session) Pause() error {
	s.mu.Lock()
	if s.state != StatePlaying {
		s.mu.Unlock()
		return ErrNotPlaying
	}
	pos := s.elapsedLocked()
	run := s.haltLocked()
	s.offset = pos
	s.position = pos
	s.state = StatePaused
	s.publishLocked()
	s.mu.Unlock()

	wait(run)
	s.logger.Info("再生を一時停止しました", zap.Float64("position", pos))
	return nil
}

// ToggleMute はトラックのミュートを切り替え、再生中ならゲインを即座に反映する。
// 切り替え後のミュート状態を返す
func (s *Session) ToggleMute(index int) (bool, error) {
	s.mu.Lock()
	if index < 0 || index >= len(s.tracks) {
		s.mu.Unlock()
		return false, fmt.Errorf("トラック番号 %d: %w", index, ErrBadTrack)
	}

	t := &s.tracks[index]
	t.Muted = !t.Muted
	if index < len(s.voices) {
		s.voices[index].SetGain(gainFor(t.Muted))
	}
	muted := t.Muted
	s.publishLocked()
	s.mu.Unlock()

	return muted, nil
}

// Seek はシーク位置を変更する。再生中なら全トラックを新しい位置から再同期する
func (s *Session) Seek(seconds float64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StatePlaying && !s.state.CanPlay() {
		s.mu.Unlock()
		return ErrNotReady
	}

	if seconds < 0 {
		seconds = 0
	}
	if seconds > s.duration {
		seconds = s.duration
	}
	s.offset = seconds
	s.position = seconds

	var (
		old *progressRun
		err error
	)
	if s.state == StatePlaying {
		old = s.haltLocked()
		if err = s.playLocked(); err != nil {
			s.state = StateStopped
		}
	}
	s.publishLocked()
	s.mu.Unlock()

	wait(old)
	return err
}

// Snapshot は現在の状態を返す
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close は再生と読み込みを終了し、セッションを破棄する
func (s *Session) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		run := s.haltLocked()
		if s.state == StatePlaying || s.state == StatePaused {
			s.state = StateStopped
		}
		s.mu.Unlock()

		s.cancel()
		wait(run)
		s.loaders.Wait()
	})
	return nil
}

// startProgressLocked は進捗ループを開始する（ロック済み前提）
func (s *Session) startProgressLocked() *progressRun {
	ctx, cancel := context.WithCancel(s.ctx)
	run := &progressRun{cancel: cancel, done: make(chan struct{})}
	go s.progressLoop(ctx, run)
	return run
}

// progressLoop はフレーム毎に再生位置を更新し、終端に達したら自動停止する
func (s *Session) progressLoop(ctx context.Context, run *progressRun) {
	defer close(run.done)

	ticker := time.NewTicker(s.opts.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.tick(run) {
				return
			}
		}
	}
}

// tick は1フレーム分の進捗更新を行う。ループを続けるなら true を返す
func (s *Session) tick(run *progressRun) bool {
	s.mu.Lock()
	if s.run != run {
		s.mu.Unlock()
		return false
	}

	elapsed := s.engine.CurrentTime() - s.startAt + s.offset
	finished := elapsed >= s.duration
	if finished {
		s.position = s.duration
		s.haltLocked()
		s.state = StateStopped
	} else {
		s.position = s.elapsedLocked()
	}
	s.publishLocked()
	s.mu.Unlock()

	if finished {
		s.logger.Info("終端に達したため再生を停止しました")
	}
	return !finished
}

// elapsedLocked は共有クロックから現在の再生位置を求める（ロック済み前提）
func (s *Session) elapsedLocked() float64 {
	elapsed := s.engine.CurrentTime() - s.startAt + s.offset
	// 開始時刻前はシーク位置に留める
	if elapsed < s.offset {
		elapsed = s.offset
	}
	if elapsed > s.duration {
		elapsed = s.duration
	}
	return elapsed
}

// haltLocked は全ての再生ユニットと進捗ループを止める（ロック済み前提）。
// 止めた進捗ループを返すので、ロック解放後に wait すること
func (s *Session) haltLocked() *progressRun {
	stopVoices(s.voices, s.logger)
	s.voices = nil

	run := s.run
	s.run = nil
	if run != nil {
		run.cancel()
	}
	return run
}

func (s *Session) snapshotLocked() Snapshot {
	tracks := make([]Track, len(s.tracks))
	copy(tracks, s.tracks)
	units := make([]Unit, len(s.units))
	copy(units, s.units)

	return Snapshot{
		SessionID: s.id,
		State:     s.state,
		Loaded:    s.loaded,
		Total:     len(s.tracks),
		Position:  s.position,
		Offset:    s.offset,
		Duration:  s.duration,
		Tracks:    tracks,
		Units:     units,
	}
}

// publishLocked は現在の状態を通知待ちにする（ロック済み前提）
func (s *Session) publishLocked() {
	if s.notifyCh == nil {
		return
	}
	snap := s.snapshotLocked()
	s.pending = &snap
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// dispatch は通知待ちの Snapshot を OnChange に渡す。
// 進捗ループやロックの外で呼ぶので、OnChange から Pause などを呼べる
func (s *Session) dispatch() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.notifyCh:
		}

		s.mu.Lock()
		snap := s.pending
		s.pending = nil
		s.mu.Unlock()

		if snap != nil {
			s.opts.OnChange(*snap)
		}
	}
}

// stopVoices は全ての Voice を止める。終了済みの Voice のエラーは無視する
func stopVoices(voices []audio.Voice, logger *zap.Logger) {
	for _, v := range voices {
		if err := v.Stop(); err != nil && !errors.Is(err, audio.ErrVoiceEnded) {
			logger.Warn("再生ユニットの停止に失敗しました", zap.Error(err))
		}
	}
}

func wait(run *progressRun) {
	if run != nil {
		<-run.done
	}
}
