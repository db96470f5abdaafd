// Package server は、楽曲ファイルを配信するHTTPサーバーを管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// ディレクトリ一覧とRange対応ファイル配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - 音声ファイル一覧のJSON応答
//   - 単一区間のRangeリクエストに対応したファイル配信
//   - プレースホルダーページ（埋め込みテンプレート）の配信
//
// 仕様:
//   - ルーティングはgin-gonic/ginを使用
//   - /song/:id の id はエスケープされた "/" を含められる
//   - エラー応答はプレーンテキストのみ
//   - グレースフルシャットダウンに対応
package server
