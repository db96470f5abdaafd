package player

// State は再生セッションの状態を表す
type State int

const (
	StateIdle    State = iota // 未読み込み
	StateLoading              // トラックを読み込み中
	StateReady                // 全トラックの読み込み完了
	StatePlaying              // 再生中
	StatePaused               // 一時停止中
	StateStopped              // 停止中
)

// String は状態の文字列表現を返す
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// CanPlay は Play を受け付ける状態かどうかを返す
func (s State) CanPlay() bool {
	return s == StateReady || s == StatePaused || s == StateStopped
}
