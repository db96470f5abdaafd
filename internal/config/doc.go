// Package config はサーバーと再生クライアントの設定を扱う。
//
// 設定は環境変数とデフォルト値から構築され、任意でYAMLファイルを
// 読み込める。ファイルを指定した場合も環境変数が優先される。
package config
