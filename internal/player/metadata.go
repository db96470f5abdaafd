package player

import (
	"bytes"
	"strings"

	"github.com/dhowden/tag"
)

// readTags は楽曲データからタイトルとアーティストを読み取る。
// タグがない形式やタグが壊れている場合は空文字を返す
func readTags(data []byte) (title, artist string) {
	m, err := tag.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return "", ""
	}
	return strings.TrimSpace(m.Title()), strings.TrimSpace(m.Artist())
}
