package library

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound はディレクトリまたはファイルが存在しないことを表す
var ErrNotFound = errors.New("library: not found")

// DefaultContentType は拡張子から判定できない場合のContent-Type
const DefaultContentType = "application/octet-stream"

// contentTypes は許可された音声拡張子とContent-Typeの対応表
var contentTypes = map[string]string{
	".mp3": "audio/mpeg",
	".wav": "audio/wav",
}

// Library は楽曲ルートディレクトリ配下のファイルを扱う
type Library struct {
	root string
}

// File はオープン済みの楽曲ファイル
type File struct {
	io.ReadSeekCloser

	Name        string    // ルートからの相対名
	Size        int64     // バイトサイズ
	ModTime     time.Time // 更新時刻
	ContentType string    // 拡張子から判定したContent-Type
}

// New は新しいLibraryを作成する
func New(root string) *Library {
	return &Library{root: filepath.Clean(root)}
}

// Root はルートディレクトリを返す
func (l *Library) Root() string {
	return l.root
}

// List は dir 直下の音声ファイル名を列挙順のまま返す
func (l *Library) List(dir string) ([]string, error) {
	path, err := l.resolve(dir)
	if err != nil {
		return nil, err
	}

	d, err := os.Open(path)
	if err != nil {
		return nil, wrapNotFound(dir, err)
	}
	defer d.Close()

	names, err := d.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("ディレクトリ %s の読み込みに失敗: %w", dir, err)
	}

	audio := make([]string, 0, len(names))
	for _, name := range names {
		if IsAudio(name) {
			audio = append(audio, name)
		}
	}

	return audio, nil
}

// Open は name のファイルを開く。呼び出し側でCloseすること
func (l *Library) Open(name string) (*File, error) {
	path, err := l.resolve(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, wrapNotFound(name, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ファイル %s の情報取得に失敗: %w", name, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s はディレクトリです: %w", name, ErrNotFound)
	}

	return &File{
		ReadSeekCloser: f,
		Name:           name,
		Size:           info.Size(),
		ModTime:        info.ModTime(),
		ContentType:    ContentType(name),
	}, nil
}

// ContentType は拡張子からContent-Typeを判定する
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return DefaultContentType
}

// IsAudio は許可された音声拡張子かどうかを返す
func IsAudio(name string) bool {
	_, ok := contentTypes[strings.ToLower(filepath.Ext(name))]
	return ok
}

// resolve は相対名をルート配下の絶対パスに変換する
func (l *Library) resolve(name string) (string, error) {
	path := filepath.Join(l.root, filepath.FromSlash(name))
	rel, err := filepath.Rel(l.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("ルート外のパス %q: %w", name, ErrNotFound)
	}
	return path, nil
}

func wrapNotFound(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s が見つかりません: %w", name, ErrNotFound)
	}
	return fmt.Errorf("%s のオープンに失敗: %w", name, err)
}
