// Package audio は音声データのデコードと、再生ユニットを予約する
// ホスト側オーディオクロックの抽象を提供する。
//
// # 責務
// - WAV / MP3 のバイト列をPCMバッファへデコード
// - 共有クロック上の指定時刻に再生ユニットを開始する Engine の定義
// - 実時間で進むヘッドレス実装 ClockEngine
//
// # 仕様
// - Engine は生成時にサスペンド状態で、Resume するまで時刻が進まない
// - 同期は共有クロックと共通の開始時刻のみで行い、サンプル単位の補正はしない
// - 終了済み・停止済みの Voice を Stop すると ErrVoiceEnded を返す
package audio
