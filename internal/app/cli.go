package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/hitoshi/courseman/internal/cli"
)

// NewCLIOpener はcoursectl用に、環境変数の設定からワークフローを組み立てるOpenerを返す。
// ログはwに出力する（標準出力の結果と混ざらないよう標準エラーを渡す）。
func NewCLIOpener(w io.Writer) cli.Opener {
	return func(ctx context.Context) (cli.Workflow, func() error, error) {
		cfg, err := Init(w, slog.String("command", "coursectl"))
		if err != nil {
			return nil, nil, err
		}
		components, err := Build(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return components.Service, components.Close, nil
	}
}
