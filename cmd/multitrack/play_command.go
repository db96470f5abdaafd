package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"multitrack/internal/audio"
	"multitrack/internal/player"
)

func newPlayCommand(ctx *commandContext) *cobra.Command {
	var (
		seek        float64
		mute        []int
		loadTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "play [dir]",
		Short: "ディレクトリ内の全トラックを読み込み、同期再生する",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			logger := ctx.loggerValue()
			dir := cfg.Player.Dir
			if len(args) == 1 {
				dir = args[0]
			}

			session := player.NewSession(
				player.NewClient(cfg.Player.ServerURL, nil),
				audio.NewClockEngine(nil),
				player.Options{
					Dir:           dir,
					StartDelay:    cfg.Player.StartDelay,
					FrameInterval: cfg.Player.FrameInterval,
					Logger:        logger,
				},
			)
			defer session.Close()

			runCtx := cmd.Context()
			if err := session.Load(runCtx); err != nil {
				return err
			}

			loadCtx := runCtx
			if loadTimeout > 0 {
				var cancel context.CancelFunc
				loadCtx, cancel = context.WithTimeout(runCtx, loadTimeout)
				defer cancel()
			}
			if err := waitLoaded(loadCtx, session, cmd.ErrOrStderr(), cfg.Player.FrameInterval); err != nil {
				snap := session.Snapshot()
				return fmt.Errorf("%d/%d トラックのみ読み込めました: %w", snap.Loaded, snap.Total, err)
			}

			for _, i := range mute {
				if _, err := session.ToggleMute(i); err != nil {
					return err
				}
			}
			if seek > 0 {
				if err := session.Seek(seek); err != nil {
					return err
				}
			}

			printTracks(cmd.OutOrStdout(), session.Snapshot())

			if err := session.Play(); err != nil {
				return err
			}
			logger.Debug("同期再生を開始しました", zap.String("session", session.ID()))

			return waitPlayback(runCtx, session, cmd.ErrOrStderr(), cfg.Player.FrameInterval)
		},
	}

	cmd.Flags().Float64Var(&seek, "seek", 0, "再生開始位置（秒）")
	cmd.Flags().IntSliceVar(&mute, "mute", nil, "ミュートするトラック番号（複数指定可）")
	cmd.Flags().DurationVar(&loadTimeout, "load-timeout", 0, "全トラックの読み込みを待つ上限 (0 で無制限)")

	return cmd
}

// waitLoaded は読み込み進捗を表示しながら全トラックの読み込みを待つ
func waitLoaded(ctx context.Context, session *player.Session, w io.Writer, interval time.Duration) error {
	total := session.Snapshot().Total
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("loading"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snap := session.Snapshot()
		_ = bar.Set(snap.Loaded)
		if snap.State == player.StateReady {
			return bar.Finish()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitPlayback は再生位置を表示しながら終端まで待つ。ctx が終了したら停止する
func waitPlayback(ctx context.Context, session *player.Session, w io.Writer, interval time.Duration) error {
	snap := session.Snapshot()
	bar := progressbar.NewOptions64(int64(snap.Duration*1000),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("playing"),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snap := session.Snapshot()
		_ = bar.Set64(int64(snap.Position * 1000))
		bar.Describe(fmt.Sprintf("%s / %s", formatSeconds(snap.Position), formatSeconds(snap.Duration)))
		if snap.State == player.StateStopped {
			_ = bar.Finish()
			fmt.Fprintln(w)
			return nil
		}

		select {
		case <-ctx.Done():
			fmt.Fprintln(w)
			return session.Stop()
		case <-ticker.C:
		}
	}
}

func printTracks(w io.Writer, snap player.Snapshot) {
	rows := make([][]string, 0, len(snap.Tracks))
	for _, t := range snap.Tracks {
		muted := ""
		if t.Muted {
			muted = "muted"
		}
		rows = append(rows, []string{
			strconv.Itoa(t.Index),
			t.Name,
			valueOrDash(t.Title),
			valueOrDash(t.Artist),
			formatSeconds(t.Duration),
			humanize.Bytes(uint64(t.Size)),
			muted,
		})
	}

	headers := []string{"#", "Track", "Title", "Artist", "Length", "Size", ""}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}
	fmt.Fprintln(w, renderTable(headers, rows, aligns))
	fmt.Fprintf(w, "session %s  start %s / %s\n", snap.SessionID, formatSeconds(snap.Offset), formatSeconds(snap.Duration))
}
