package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Library LibraryConfig `yaml:"library"`
	Player  PlayerConfig  `yaml:"player"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST" env-default:"0.0.0.0"` // リッスンするホスト
	Port int    `yaml:"port" env:"SERVER_PORT" env-default:"8080"`    // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"10s"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"0s"` // 書き込みタイムアウト（ストリーミング用に0で無効）

	Mode        string `yaml:"mode" env:"GIN_MODE" env-default:"release"`                // ginの動作モード
	AllowOrigin string `yaml:"allow_origin" env:"SERVER_ALLOW_ORIGIN" env-default:"*"` // CORSで許可するオリジン
}

// LibraryConfig は楽曲ファイルの配置に関する設定
type LibraryConfig struct {
	Root string `yaml:"root" env:"SONGS_ROOT" env-default:"resources/songs"` // 楽曲ルートディレクトリ
}

// PlayerConfig は再生クライアントの設定
type PlayerConfig struct {
	ServerURL string `yaml:"server_url" env:"PLAYER_SERVER_URL" env-default:"http://localhost:8080"` // 接続先サーバー
	Dir       string `yaml:"dir" env:"PLAYER_DIR" env-default:"HumanRadio_YouMeAndTheRadio_Full"`    // 再生するディレクトリ

	StartDelay    time.Duration `yaml:"start_delay" env:"PLAYER_START_DELAY" env-default:"100ms"`       // 同期開始までの猶予
	FrameInterval time.Duration `yaml:"frame_interval" env:"PLAYER_FRAME_INTERVAL" env-default:"16ms"` // 進捗更新の間隔
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`   // debug, info, warn, error
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"auto"` // auto, console, json
}

// Load は設定を読み込む。
// path が空の場合は環境変数とデフォルト値のみを使う
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("設定ファイル %s の読み込みに失敗: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
		}
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return &cfg, nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("タイムアウトに負の値は指定できません")
	}

	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("無効な動作モード: %q", c.Server.Mode)
	}

	if c.Library.Root == "" {
		return fmt.Errorf("楽曲ルートディレクトリが設定されていません")
	}

	// 再生クライアント設定の検証
	if c.Player.StartDelay <= 0 {
		return fmt.Errorf("無効な開始猶予: %s", c.Player.StartDelay)
	}
	if c.Player.FrameInterval <= 0 {
		return fmt.Errorf("無効な更新間隔: %s", c.Player.FrameInterval)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("無効なログレベル: %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("無効なログ形式: %q", c.Log.Format)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
