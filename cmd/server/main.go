package main

import (
	"github.com/cleargate-io/cleargate/internal/server"
	"github.com/cleargate-io/cleargate/internal/util"
	"github.com/cleargate-io/cleargate/pkg/logger"
	"github.com/cleargate-io/cleargate/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
