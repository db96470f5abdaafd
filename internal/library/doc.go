// Package library は楽曲ディレクトリへの読み取り専用アクセスを提供する。
//
// # 責務
// - 指定ディレクトリ直下の音声ファイル名の列挙
// - 個別ファイルのオープンとサイズ・Content-Typeの判定
//
// # 仕様
// - 許可する拡張子は .mp3 と .wav のみ（大文字小文字は区別しない）
// - 列挙順はOSのディレクトリ列挙順のまま（ソートしない）
// - ルート外を指すパスは存在しないファイルとして扱う
// - ファイルは読み取りのみ行うため、ロックは不要
package library
