// Package logger はアプリケーション共通のJSON構造化ログを設定する。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// ServiceName は全てのログに付与するservice属性の値。
const ServiceName = "courseman"

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// levelより低いレベルのログは出力しない。attrsは全てのログに付与する。
func Setup(w io.Writer, level slog.Leveler, attrs ...slog.Attr) *slog.Logger {
	if level == nil {
		level = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	base := append([]slog.Attr{slog.String("service", ServiceName)}, attrs...)
	return slog.New(handler.WithAttrs(base))
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定し、そのロガーを返す。
// writerがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer, level slog.Leveler, attrs ...slog.Attr) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w, level, attrs...)
	slog.SetDefault(logger)
	return logger
}
