package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every setting the service reads.
type Config struct {
	Server   ServerConfig
	Realtime RealtimeConfig
	Store    StoreConfig
	Tuning   TuningConfig
	Menu     MenuConfig
	Sinks    SinkConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	realtime, err := loadRealtimeConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	tuning, err := loadTuningConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Realtime: realtime,
		Store:    store,
		Tuning:   tuning,
		Menu:     loadMenuConfig(),
		Sinks:    loadSinkConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
	// PublicHost is the externally reachable host used to build the
	// media-stream websocket URL returned by the call webhook.
	PublicHost string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	addr := port
	if !strings.Contains(port, ":") {
		if strings.Contains(port, " ") {
			return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
		}
		addr = ":" + port
	}

	return ServerConfig{
		Addr:       addr,
		PublicHost: getEnvOrDefault("PUBLIC_HOST", "localhost:8080"),
	}, nil
}

// RealtimeConfig describes the conversational speech endpoint.
type RealtimeConfig struct {
	URL               string
	APIKey            string
	Voice             string
	MaxResponseTokens int
	// Turn detection tuning. Shorter silence trades naturalness for latency.
	VADThreshold    float64
	VADPaddingMS    int
	VADSilenceMS    int
	ConnectTimeout  time.Duration
	ConnectAttempts int
}

// Enabled reports whether the realtime credentials are present.
func (c RealtimeConfig) Enabled() bool {
	return c.APIKey != "" && c.URL != ""
}

func loadRealtimeConfig() (RealtimeConfig, error) {
	threshold := 0.6
	if v, err := parseOptionalFloatEnv("REALTIME_VAD_THRESHOLD"); err != nil {
		return RealtimeConfig{}, err
	} else if v != nil {
		threshold = *v
	}

	padding, err := parseIntEnv("REALTIME_VAD_PADDING_MS", 300)
	if err != nil {
		return RealtimeConfig{}, err
	}
	silence, err := parseIntEnv("REALTIME_VAD_SILENCE_MS", 600)
	if err != nil {
		return RealtimeConfig{}, err
	}
	maxTokens, err := parseIntEnv("REALTIME_MAX_RESPONSE_TOKENS", 4096)
	if err != nil {
		return RealtimeConfig{}, err
	}
	attempts, err := parseIntEnv("REALTIME_CONNECT_ATTEMPTS", 3)
	if err != nil {
		return RealtimeConfig{}, err
	}

	return RealtimeConfig{
		URL:               getEnvOrDefault("REALTIME_URL", "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview"),
		APIKey:            strings.TrimSpace(os.Getenv("REALTIME_API_KEY")),
		Voice:             getEnvOrDefault("REALTIME_VOICE", "alloy"),
		MaxResponseTokens: maxTokens,
		VADThreshold:      threshold,
		VADPaddingMS:      padding,
		VADSilenceMS:      silence,
		ConnectTimeout:    15 * time.Second,
		ConnectAttempts:   attempts,
	}, nil
}

// StoreConfig carries store identity and the greeting script.
type StoreConfig struct {
	Name     string
	Greeting string
	TaxRate  float64
}

func loadStoreConfig() (StoreConfig, error) {
	taxRate := 0.0875
	if v, err := parseOptionalFloatEnv("STORE_TAX_RATE"); err != nil {
		return StoreConfig{}, err
	} else if v != nil {
		taxRate = *v
	}

	name := getEnvOrDefault("STORE_NAME", "Hot Slice Pizza")
	return StoreConfig{
		Name:     name,
		Greeting: getEnvOrDefault("STORE_GREETING", "Thanks for calling "+name+"! What can I get started for you?"),
		TaxRate:  taxRate,
	}, nil
}

// TuningConfig collects the orchestration timing constants. One consistent
// set, overridable individually through the environment.
type TuningConfig struct {
	SettleWindow     time.Duration // post-greeting spurious-response suppression
	GreetingGrace    time.Duration // leading slice of the window that admits the greeting
	ResponseDebounce time.Duration // minimum spacing between response creates
	ConfirmDelay     time.Duration // delay before the post-mutation confirmation
	FinalizeSettle   time.Duration // delay between confirm action and the gate
	DuplicateRatio   float64       // token-overlap threshold for the loop breaker
	RelayQueueCap    int           // max buffered inbound chunks pre-readiness
	ReconnectBase    time.Duration
	ReconnectMax     int
	SinkTimeout      time.Duration
	SessionMaxAge    time.Duration
	SweepSpec        string // cron spec for the stale-session sweep
	MenuReloadSpec   string // cron spec for menu reload, "" disables
}

func loadTuningConfig() (TuningConfig, error) {
	debounceMS, err := parseIntEnv("TURN_DEBOUNCE_MS", 800)
	if err != nil {
		return TuningConfig{}, err
	}
	settleMS, err := parseIntEnv("TURN_SETTLE_WINDOW_MS", 4000)
	if err != nil {
		return TuningConfig{}, err
	}
	queueCap, err := parseIntEnv("RELAY_QUEUE_CAP", 256)
	if err != nil {
		return TuningConfig{}, err
	}

	ratio := 0.75
	if v, err := parseOptionalFloatEnv("GUARD_DUPLICATE_RATIO"); err != nil {
		return TuningConfig{}, err
	} else if v != nil {
		ratio = *v
	}

	return TuningConfig{
		SettleWindow:     time.Duration(settleMS) * time.Millisecond,
		GreetingGrace:    2 * time.Second,
		ResponseDebounce: time.Duration(debounceMS) * time.Millisecond,
		ConfirmDelay:     150 * time.Millisecond,
		FinalizeSettle:   1200 * time.Millisecond,
		DuplicateRatio:   ratio,
		RelayQueueCap:    queueCap,
		ReconnectBase:    time.Second,
		ReconnectMax:     3,
		SinkTimeout:      5 * time.Second,
		SessionMaxAge:    2 * time.Hour,
		SweepSpec:        getEnvOrDefault("SESSION_SWEEP_SPEC", "@every 1h"),
		MenuReloadSpec:   strings.TrimSpace(os.Getenv("MENU_RELOAD_SPEC")),
	}, nil
}

// MenuConfig points at the YAML menu file; empty means the built-in sample.
type MenuConfig struct {
	Path string
}

func loadMenuConfig() MenuConfig {
	return MenuConfig{Path: strings.TrimSpace(os.Getenv("MENU_PATH"))}
}

// SinkConfig enables the order logging sinks. Each sink is independent and
// optional; an empty setting disables that sink.
type SinkConfig struct {
	WebhookURL      string
	POSURL          string
	POSToken        string
	SlackWebhookURL string
	SQLitePath      string
}

func loadSinkConfig() SinkConfig {
	return SinkConfig{
		WebhookURL:      strings.TrimSpace(os.Getenv("SINK_WEBHOOK_URL")),
		POSURL:          strings.TrimSpace(os.Getenv("SINK_POS_URL")),
		POSToken:        strings.TrimSpace(os.Getenv("SINK_POS_TOKEN")),
		SlackWebhookURL: strings.TrimSpace(os.Getenv("SINK_SLACK_WEBHOOK_URL")),
		SQLitePath:      strings.TrimSpace(os.Getenv("SINK_SQLITE_PATH")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
