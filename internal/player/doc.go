// Package player はマルチトラック再生クライアントを実装する。
//
// # 責務
// - サーバーからのトラック一覧と楽曲データの取得
// - 全トラックの並行ダウンロードとデコード
// - 共有クロック上の共通開始時刻による同期再生
// - トラック毎のミュート、シーク、進捗の追跡
//
// # 仕様
// - 状態遷移: Idle → Loading → Ready → Playing ⇄ Paused/Stopped
// - Ready への遷移は読み込み数がトラック数に達した時点で暗黙に行う
// - 1トラックでもデコードに失敗するとそのセッションは Ready にならない（再試行なし）
// - 再生ユニットの記述子は Play の度に新しく作る
// - Thread-safe な操作をサポート
package player
