package main

import (
	"difftab/buffer"
	"difftab/logger"
	"difftab/types"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
)

// Config is the daemon configuration, passed as JSON in the DIFFTAB_CONFIG
// environment variable by the editor plugin.
type Config struct {
	Provider            string  `json:"provider"` // fim, inline or rewrite
	ProviderURL         string  `json:"provider_url"`
	CompletionPath      string  `json:"completion_path"`
	APIKey              string  `json:"api_key"`
	ProviderModel       string  `json:"provider_model"`
	ProviderTemperature float64 `json:"provider_temperature"`
	ProviderMaxTokens   int     `json:"provider_max_tokens"`
	ProviderTopK        int     `json:"provider_top_k"`
	MaxContextTokens    int     `json:"max_context_tokens"` // input trimming budget

	FIMPrefixToken string `json:"fim_prefix_token"`
	FIMSuffixToken string `json:"fim_suffix_token"`
	FIMMiddleToken string `json:"fim_middle_token"`

	Debounce       int  `json:"debounce"`        // in milliseconds, 0 = engine default
	PredictTimeout int  `json:"predict_timeout"` // in milliseconds, 0 = engine default
	AcceptOnClick  bool `json:"accept_on_click"`
	PartialRange   bool `json:"partial_range"`

	GhostHighlight     string `json:"ghost_highlight"`
	DeletedHighlight   string `json:"deleted_highlight"`
	IndicatorHighlight string `json:"indicator_highlight"`
	IndicatorText      string `json:"indicator_text"`

	LogLevel    string `json:"log_level"` // debug, info, warn, error
	PrivacyMode bool   `json:"privacy_mode"`
	MetricsURL  string `json:"metrics_url"` // empty disables reporting
	EditorInfo  string `json:"editor_info"`
	DataDir     string `json:"data_dir"`

	DebugImmediateShutdown bool `json:"debug_immediate_shutdown"`
}

func (c Config) providerConfig() *types.ProviderConfig {
	return &types.ProviderConfig{
		ProviderURL:         c.ProviderURL,
		APIKey:              c.APIKey,
		ProviderModel:       c.ProviderModel,
		ProviderTemperature: c.ProviderTemperature,
		ProviderMaxTokens:   c.ProviderMaxTokens,
		MaxContextTokens:    c.MaxContextTokens,
		ProviderTopK:        c.ProviderTopK,
		CompletionPath:      c.CompletionPath,
		FIMTokens: types.FIMTokenConfig{
			Prefix: c.FIMPrefixToken,
			Suffix: c.FIMSuffixToken,
			Middle: c.FIMMiddleToken,
		},
		PrivacyMode: c.PrivacyMode,
	}
}

func (c Config) bufferConfig() buffer.Config {
	return buffer.Config{
		GhostHighlight:     c.GhostHighlight,
		DeletedHighlight:   c.DeletedHighlight,
		IndicatorHighlight: c.IndicatorHighlight,
		IndicatorText:      c.IndicatorText,
	}
}

type ServerMode string

const (
	ModeDaemon ServerMode = "daemon"
	ModeClient ServerMode = "client"
)

// Setup logger to log to a file in the same directory as the executable
// Caller must defer Close()
func setupLogger(logLevel string) *logger.FileLogger {
	logPath := filepath.Join(execDir(), "difftab.log")

	fileLogger, err := logger.Init(logPath, logger.ParseLevel(logLevel))
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}

	log.SetOutput(fileLogger)
	return fileLogger
}

func execDir() string {
	execPath, err := os.Executable()
	if err != nil {
		log.Fatalf("error getting executable path: %v", err)
	}
	return filepath.Dir(execPath)
}

func getSocketPath() string {
	return filepath.Join(execDir(), "difftab.sock")
}

func getPidPath() string {
	return filepath.Join(execDir(), "difftab.pid")
}

func isDaemonRunning() (bool, int) {
	pidPath := getPidPath()
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return false, 0
	}

	// Check if process is still running
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}

	// On Unix, Signal(0) checks if process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil, pid
}

func loadConfig() Config {
	var config Config
	if err := json.Unmarshal([]byte(os.Getenv("DIFFTAB_CONFIG")), &config); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if config.Provider == "" {
		config.Provider = string(types.ProviderKindRewrite)
	}
	// FIM token defaults match the Qwen family; override per model.
	if config.FIMPrefixToken == "" {
		config.FIMPrefixToken = "<|fim_prefix|>"
	}
	if config.FIMSuffixToken == "" {
		config.FIMSuffixToken = "<|fim_suffix|>"
	}
	if config.FIMMiddleToken == "" {
		config.FIMMiddleToken = "<|fim_middle|>"
	}
	if config.DataDir == "" {
		config.DataDir = execDir()
	}

	logged := config
	if logged.APIKey != "" {
		logged.APIKey = "[redacted]"
	}
	log.Printf("config: %+v", logged)
	return config
}

func runDaemon() {
	config := loadConfig()

	// Default to info level if not specified
	logLevel := config.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}

	fileLogger := setupLogger(logLevel)
	defer fileLogger.Close()

	daemon, err := NewDaemon(config)
	if err != nil {
		log.Fatalf("error creating daemon: %v", err)
	}

	if err := daemon.Start(); err != nil {
		log.Fatalf("error starting daemon: %v", err)
	}
}

func runClient() {
	conn, err := connectDaemon()
	if err != nil {
		log.Fatalf("error reaching daemon: %v", err)
	}
	defer conn.Close()

	if err := relaySession(conn, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("error relaying editor session: %v", err)
	}
}

func main() {
	var mode ServerMode = ModeClient

	// Check command line arguments
	if len(os.Args) > 1 && os.Args[1] == "--daemon" {
		mode = ModeDaemon
	}

	switch mode {
	case ModeDaemon:
		runDaemon()
	case ModeClient:
		runClient()
	}
}
