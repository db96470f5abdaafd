package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

var (
	// ErrDecode はデコードに失敗したことを表す
	ErrDecode = errors.New("audio: decode failed")

	// ErrUnsupported は対応していない形式であることを表す
	ErrUnsupported = errors.New("audio: unsupported format")
)

// DecodeError はデコードに失敗したトラック名と原因を保持する
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s のデコードに失敗: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is は errors.Is(err, ErrDecode) を満たす
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// Decode は拡張子に応じたデコーダーでバイト列をPCMバッファに変換する
func Decode(name string, data []byte) (*Buffer, error) {
	var (
		buf *Buffer
		err error
	)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		buf, err = decodeWAV(data)
	case ".mp3":
		buf, err = decodeMP3(data)
	default:
		err = ErrUnsupported
	}
	if err != nil {
		return nil, &DecodeError{Name: name, Err: err}
	}

	if buf.Frames() == 0 {
		return nil, &DecodeError{Name: name, Err: errors.New("音声フレームがありません")}
	}
	return buf, nil
}

// decodeWAV はリニアPCMのWAVをデコードする
func decodeWAV(data []byte) (*Buffer, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, errors.New("WAVヘッダーが不正です")
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("PCMデータの読み込みに失敗: %w", err)
	}
	if pcm.Format == nil || pcm.Format.NumChannels <= 0 || pcm.Format.SampleRate <= 0 {
		return nil, errors.New("WAVフォーマット情報が不正です")
	}

	depth := pcm.SourceBitDepth
	if depth == 0 {
		depth = int(d.BitDepth)
	}
	if depth <= 0 || depth > 32 {
		return nil, fmt.Errorf("未対応のビット深度: %d", depth)
	}

	out := make([]float32, len(pcm.Data))
	if depth == 8 {
		// 8bitは符号なし
		for i, v := range pcm.Data {
			out[i] = float32(v-128) / 128
		}
	} else {
		scale := float32(int64(1) << (depth - 1))
		for i, v := range pcm.Data {
			out[i] = float32(v) / scale
		}
	}

	return &Buffer{
		SampleRate: pcm.Format.SampleRate,
		Channels:   pcm.Format.NumChannels,
		Data:       out,
	}, nil
}

// decodeMP3 はMP3をデコードする。出力は常に16bitステレオ
func decodeMP3(data []byte) (*Buffer, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("MP3ストリームの解析に失敗: %w", err)
	}

	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("MP3フレームのデコードに失敗: %w", err)
	}

	const channels = 2
	samples := len(raw) / 2
	out := make([]float32, samples-samples%channels)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768
	}

	return &Buffer{
		SampleRate: d.SampleRate(),
		Channels:   channels,
		Data:       out,
	}, nil
}
