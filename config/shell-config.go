package config

type ShellConfig struct {
	Prompt      string `json:"prompt"`
	HistoryFile string `json:"history_file"`
}

func NewShellConfig() *ShellConfig {
	return &ShellConfig{
		Prompt:      "blockdb> ",
		HistoryFile: "",
	}
}
