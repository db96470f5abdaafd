package audio

// Buffer はデコード済みのPCMデータ
type Buffer struct {
	SampleRate int       // サンプリング周波数 (Hz)
	Channels   int       // チャンネル数
	Data       []float32 // インターリーブされたサンプル (-1.0 〜 1.0)
}

// Frames はフレーム数を返す
func (b *Buffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Data) / b.Channels
}

// Duration は再生時間を秒で返す
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}
