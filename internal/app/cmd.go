// Package app はcoursemanサーバーバイナリの起動処理を提供する。
package app

import "fmt"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	CommandServe   Command = "serve"
	CommandWorker  Command = "worker" // 監査ログのクリーンアップ
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistrolessイメージのHEALTHCHECKから呼ばれる。
	CommandHealthcheck Command = "healthcheck"
)

var commands = []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck}

// ParseCommand は先頭の引数からサブコマンドを決める。引数がなければserve。
// 綴り違いで意図せずAPIサーバーが起動しないよう、未知のコマンドはエラーにする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	for _, c := range commands {
		if Command(args[0]) == c {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown command %q (want one of %v)", args[0], commands)
}
