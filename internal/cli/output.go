package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hitoshi/courseman/internal/model"
)

// 終了コード
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // ワークフローがドメインエラーで失敗した
	ExitCommandError = 2 // 引数・設定・ストア接続の誤り
)

// CLI固有のエラーコード
const (
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeInvalidCatalog = "INVALID_CATALOG"
	ErrCodeStoreOpen      = "STORE_OPEN_FAILED"
)

// ExitError は終了コード付きのエラー。出力済みのエラーを包む。
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// GetExitCode はエラーから終了コードを取り出す。ExitError以外はExitCommandError。
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// Response はJSON出力の共通フォーマット。
type Response struct {
	Status string         `json:"status"` // "ok" | "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError はJSON出力のエラー部分。
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// textRenderer はテキスト形式で自分自身を出力できる結果。
type textRenderer interface {
	renderText(w io.Writer)
}

// OutputFormatter はtext/jsonの出力を切り替える。
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Success は結果を出力する。
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
	}
	if r, ok := data.(textRenderer); ok {
		r.renderText(f.Writer)
		return nil
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Fail はエラーを出力し、終了コード付きのエラーを返す。
// ドメインエラーはAPIと同じエラーコードで出力する。
func (f *OutputFormatter) Fail(err error) error {
	apiErr := model.ToAPIError(err)
	if apiErr == nil {
		return f.FailWithCode(ErrCodeInternal, ExitCommandError, err)
	}
	f.writeError(apiErr)
	return &ExitError{Code: ExitFailure, Err: err}
}

// FailWithCode はドメインエラーに分類しないエラーを指定のコードで出力する。
func (f *OutputFormatter) FailWithCode(code string, exitCode int, err error) error {
	f.writeError(&model.APIError{Code: code, Message: err.Error()})
	return &ExitError{Code: exitCode, Err: err}
}

func (f *OutputFormatter) writeError(apiErr *model.APIError) {
	if f.Format == "json" {
		_ = json.NewEncoder(f.Writer).Encode(Response{
			Status: "error",
			Error:  &ResponseError{Code: apiErr.Code, Message: apiErr.Message, Action: apiErr.Action},
		})
		return
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", apiErr.Code, apiErr.Message)
	if apiErr.Action != "" {
		fmt.Fprintf(f.Writer, "  %s\n", apiErr.Action)
	}
}
