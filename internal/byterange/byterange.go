// Package byterange はHTTPのRangeヘッダーを単一区間として解釈する
package byterange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformed はRangeヘッダーの書式が不正であることを表す
	ErrMalformed = errors.New("byterange: malformed range")

	// ErrNotSatisfiable は要求された区間がファイルに収まらないことを表す
	ErrNotSatisfiable = errors.New("byterange: range not satisfiable")
)

const unitPrefix = "bytes="

// NotSatisfiableError は範囲外だった開始位置とファイルサイズを保持する
type NotSatisfiableError struct {
	Start int64
	Size  int64
}

func (e *NotSatisfiableError) Error() string {
	return fmt.Sprintf("Requested range not satisfiable\n%d >= %d", e.Start, e.Size)
}

// Is は errors.Is(err, ErrNotSatisfiable) を満たす
func (e *NotSatisfiableError) Is(target error) bool {
	return target == ErrNotSatisfiable
}

// Range は両端を含むバイト区間
type Range struct {
	Start int64
	End   int64
}

// Length は区間のバイト数を返す
func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange はContent-Rangeヘッダーの値を返す
func (r Range) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// Unsatisfied は416応答用のContent-Range値を返す
func Unsatisfied(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// Parse はRangeヘッダーを解釈する。
// 複数区間が指定された場合は最初の区間のみを使う
func Parse(header string, size int64) (Range, error) {
	ranges, ok := strings.CutPrefix(strings.TrimSpace(header), unitPrefix)
	if !ok {
		return Range{}, fmt.Errorf("%w: %q", ErrMalformed, header)
	}
	if first, _, found := strings.Cut(ranges, ","); found {
		ranges = first
	}

	startStr, endStr, found := strings.Cut(strings.TrimSpace(ranges), "-")
	if !found {
		return Range{}, fmt.Errorf("%w: %q", ErrMalformed, header)
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	// 末尾からの指定 (bytes=-N)
	if startStr == "" {
		n, err := parseOffset(endStr)
		if err != nil || n == 0 {
			return Range{}, fmt.Errorf("%w: %q", ErrMalformed, header)
		}
		if size == 0 {
			return Range{}, &NotSatisfiableError{Start: 0, Size: size}
		}
		if n > size {
			n = size
		}
		return Range{Start: size - n, End: size - 1}, nil
	}

	start, err := parseOffset(startStr)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", ErrMalformed, header)
	}
	if start >= size {
		return Range{}, &NotSatisfiableError{Start: start, Size: size}
	}

	end := size - 1
	if endStr != "" {
		end, err = parseOffset(endStr)
		if err != nil {
			return Range{}, fmt.Errorf("%w: %q", ErrMalformed, header)
		}
		// 終了が開始より前の指定は不正な書式として扱う
		if end < start {
			return Range{}, fmt.Errorf("%w: 終了が開始より前 %q", ErrMalformed, header)
		}
		if end > size-1 {
			end = size - 1
		}
	}

	return Range{Start: start, End: end}, nil
}

func parseOffset(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("負のオフセット: %d", v)
	}
	return v, nil
}
