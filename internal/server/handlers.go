package server

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"multitrack/internal/byterange"
	"multitrack/internal/library"
	"multitrack/internal/logging"
)

// handler は各エンドポイントの実装を持つ
type handler struct {
	library *library.Library
	title   string
}

// health はヘルスチェックエンドポイントの実装
func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// index はプレースホルダーページを返す
func (h *handler) index(c *gin.Context) {
	c.HTML(http.StatusOK, indexTemplate, gin.H{"title": h.title})
}

// listAudio はディレクトリ内の音声ファイル名をJSON配列で返す
func (h *handler) listAudio(c *gin.Context) {
	dir, err := pathParam(c, "dir")
	if err != nil {
		logging.FromContext(c.Request.Context()).Warn("ディレクトリ名の復号に失敗しました", zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to list files")
		return
	}

	names, err := h.library.List(dir)
	if err != nil {
		logging.FromContext(c.Request.Context()).Error("ファイル一覧の取得に失敗しました",
			zap.String("dir", dir), zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to list files")
		return
	}

	c.JSON(http.StatusOK, names)
}

// streamSong は楽曲ファイルを配信する。Rangeヘッダーがあれば指定区間のみ返す
func (h *handler) streamSong(c *gin.Context) {
	id, err := pathParam(c, "id")
	if err != nil {
		logging.FromContext(c.Request.Context()).Warn("楽曲名の復号に失敗しました", zap.Error(err))
		c.String(http.StatusNotFound, "File not found")
		return
	}
	logger := logging.FromContext(c.Request.Context()).With(zap.String("song", id))

	file, err := h.library.Open(id)
	if err != nil {
		logger.Warn("楽曲ファイルのオープンに失敗しました", zap.Error(err))
		c.String(http.StatusNotFound, "File not found")
		return
	}
	defer file.Close()

	header := c.GetHeader("Range")
	if header == "" {
		h.serveFull(c, file)
		return
	}

	rng, err := byterange.Parse(header, file.Size)
	switch {
	case err == nil:
	case errors.Is(err, byterange.ErrNotSatisfiable):
		logger.Info("範囲外のRangeが要求されました", zap.String("range", header), zap.Int64("size", file.Size))
		c.Header("Content-Range", byterange.Unsatisfied(file.Size))
		c.String(http.StatusRequestedRangeNotSatisfiable, "%s", err.Error())
		return
	default:
		// 解釈できないRangeヘッダーは無視して全体を返す
		logger.Debug("Rangeヘッダーを無視します", zap.String("range", header), zap.Error(err))
		h.serveFull(c, file)
		return
	}

	if _, err := file.Seek(rng.Start, io.SeekStart); err != nil {
		logger.Error("シークに失敗しました", zap.Int64("start", rng.Start), zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to read file")
		return
	}

	c.DataFromReader(http.StatusPartialContent, rng.Length(), file.ContentType, io.LimitReader(file, rng.Length()), map[string]string{
		"Content-Range": rng.ContentRange(file.Size),
		"Accept-Ranges": "bytes",
	})
}

// serveFull はファイル全体を返す
func (h *handler) serveFull(c *gin.Context, file *library.File) {
	c.DataFromReader(http.StatusOK, file.Size, file.ContentType, file, map[string]string{
		"Accept-Ranges": "bytes",
	})
}

// pathParam はパスパラメータを復号して返す。
// RawPath でルーティングされた場合のみ値がエスケープされたまま渡される
func pathParam(c *gin.Context, name string) (string, error) {
	v := c.Param(name)
	if c.Request.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}
