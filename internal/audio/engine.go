package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrVoiceEnded は既に終了または停止した Voice を停止しようとしたことを表す
var ErrVoiceEnded = errors.New("audio: voice already ended")

// Engine はホスト側のオーディオクロックと再生ユニットの予約を担うインターフェース
type Engine interface {
	// CurrentTime は共有クロックの現在時刻を秒で返す
	CurrentTime() float64

	// Suspended はクロックが停止中かどうかを返す
	Suspended() bool

	// Resume は停止中のクロックを再開する
	Resume() error

	// Start は buffer を when 秒の時点から offset 秒の位置で再生する Voice を予約する
	Start(buffer *Buffer, when, offset, gain float64) (Voice, error)
}

// Voice はゲインを通して出力に接続された1つの再生ユニット
type Voice interface {
	// SetGain はゲインを即座に変更する
	SetGain(gain float64)

	// Gain は現在のゲインを返す
	Gain() float64

	// Stop は再生を即座に停止する
	Stop() error
}

// ClockEngine は実時間に沿って進むヘッドレスな Engine 実装。
// 生成直後はサスペンド状態で、Resume するまで時刻は0のまま
type ClockEngine struct {
	now func() time.Time

	mu        sync.Mutex
	elapsed   time.Duration
	resumedAt time.Time
	running   bool
	voices    []*ScheduledVoice
}

// NewClockEngine は新しいClockEngineを作成する。now が nil なら time.Now を使う
func NewClockEngine(now func() time.Time) *ClockEngine {
	if now == nil {
		now = time.Now
	}
	return &ClockEngine{now: now}
}

// CurrentTime は共有クロックの現在時刻を秒で返す
func (e *ClockEngine) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentLocked().Seconds()
}

// Suspended はクロックが停止中かどうかを返す
func (e *ClockEngine) Suspended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.running
}

// Resume は停止中のクロックを再開する
func (e *ClockEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		e.running = true
		e.resumedAt = e.now()
	}
	return nil
}

// Suspend はクロックを停止する
func (e *ClockEngine) Suspend() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		e.elapsed = e.currentLocked()
		e.running = false
	}
}

// Start は Voice を予約する
func (e *ClockEngine) Start(buffer *Buffer, when, offset, gain float64) (Voice, error) {
	if buffer == nil {
		return nil, errors.New("バッファがnilです")
	}
	if when < 0 || offset < 0 {
		return nil, fmt.Errorf("無効な開始指定: when=%f offset=%f", when, offset)
	}

	v := &ScheduledVoice{
		engine: e,
		Buffer: buffer,
		When:   when,
		Offset: offset,
		gain:   gain,
	}

	e.mu.Lock()
	e.voices = append(e.voices, v)
	e.mu.Unlock()

	return v, nil
}

// Voices はこれまでに予約された Voice を予約順に返す
func (e *ClockEngine) Voices() []*ScheduledVoice {
	e.mu.Lock()
	defer e.mu.Unlock()

	voices := make([]*ScheduledVoice, len(e.voices))
	copy(voices, e.voices)
	return voices
}

func (e *ClockEngine) currentLocked() time.Duration {
	if !e.running {
		return e.elapsed
	}
	return e.elapsed + e.now().Sub(e.resumedAt)
}

// ScheduledVoice は ClockEngine 上に予約された Voice
type ScheduledVoice struct {
	engine *ClockEngine

	Buffer *Buffer // 再生するバッファ
	When   float64 // 開始時刻（共有クロック上の秒）
	Offset float64 // バッファ内の開始位置（秒）

	mu      sync.Mutex
	gain    float64
	stopped bool
}

// SetGain はゲインを即座に変更する
func (v *ScheduledVoice) SetGain(gain float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gain = gain
}

// Gain は現在のゲインを返す
func (v *ScheduledVoice) Gain() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gain
}

// EndTime はバッファ終端に達する時刻を返す
func (v *ScheduledVoice) EndTime() float64 {
	remaining := v.Buffer.Duration() - v.Offset
	if remaining < 0 {
		remaining = 0
	}
	return v.When + remaining
}

// Stop は再生を停止する
func (v *ScheduledVoice) Stop() error {
	now := v.engine.CurrentTime()

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.stopped || now >= v.EndTime() {
		v.stopped = true
		return ErrVoiceEnded
	}
	v.stopped = true
	return nil
}

// Stopped は Stop 済みかどうかを返す
func (v *ScheduledVoice) Stopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}

// Playing は現在時刻に音が出ているかどうかを返す
func (v *ScheduledVoice) Playing() bool {
	now := v.engine.CurrentTime()

	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.stopped && now >= v.When && now < v.EndTime()
}
