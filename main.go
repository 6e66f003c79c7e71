package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"go-blockdb/config"
	"go-blockdb/pkg/accounts"
	"go-blockdb/util/logger"

	"github.com/chzyer/readline"
)

func main() {
	configFile := flag.String("config", "", "JSON config file")
	dbPath := flag.String("db", "", "Path of the accounts database (overrides the config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides the config)")
	flag.Parse()

	configs := config.New()
	if *configFile != "" {
		var err error
		if configs, err = config.Load(*configFile); err != nil {
			fatal(err)
		}
	}
	if *dbPath != "" {
		configs.DBPath = *dbPath
	}
	if *logLevel != "" {
		configs.LogLevel = *logLevel
	}

	if err := logger.SetLevel(configs.LogLevel); err != nil {
		fatal(err)
	}

	db, err := accounts.Open(configs.DBPath, &accounts.Options{
		Storage: &configs.Storage,
		Tree:    configs.Tree,
	})
	if err != nil {
		fatal(err)
	}

	defer func() {
		if err := db.Close(); err != nil {
			logger.L.Errorf("error on closing database: %v", err)
		}
	}()

	logger.L.Infof("opened accounts database '%s'", configs.DBPath)
	if err := run(db, configs.Shell); err != nil {
		logger.L.Error(err)
	}
}

func run(db *accounts.Database, cfg *config.ShellConfig) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cfg.Prompt,
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Println("Enter .help for usage hints.")
	sh := &shell{db: db, out: rl.Stdout()}
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		if stop := sh.execute(line); stop {
			return nil
		}
	}
}

func fatal(val interface{}) {
	fmt.Println(val)
	os.Exit(1)
}
