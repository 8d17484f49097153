package app

import (
	"fmt"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker はセッション要約とユーザースタブ整合のジョブを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はプライマリとセカンダリのマイグレーションを適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中サーバーの/healthを確認する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空の場合はCommandServeを返す。未知のサブコマンドはエラーとする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}

	name := strings.ToLower(strings.TrimSpace(args[0]))
	for _, c := range commands {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown command %q (available: serve, worker, migrate, healthcheck)", args[0])
}
