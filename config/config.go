// Package config loads process configuration from the environment, with an
// optional .env file for development.
package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config carries every setting the gateway reads at startup. Provider
// credentials may be empty; the affected capability degrades to
// unavailable instead of failing the process.
type Config struct {
	ListenAddr  string
	MetricsAddr string

	// Provider selection, resolved once at startup.
	STTProvider string
	LLMProvider string
	TTSProvider string

	DeepgramAPIKey   string
	OpenAIAPIKey     string
	OpenAIModel      string
	GoogleAPIKey     string
	GeminiModel      string
	ElevenLabsAPIKey string
	ElevenLabsVoice  string
	ElevenLabsModel  string

	HistoryStore  string // "memory" or "mongo"
	MongoURI      string
	MongoDatabase string

	LiveKitAPIKey    string
	LiveKitAPISecret string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	BaseURL          string
	BaseWSURL        string

	LogLevel  string
	LogFormat string // "text" or "json"
}

// Load reads configuration from the environment. A missing .env file is
// not an error.
func Load(log *logrus.Logger) *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, falling back to environment variables")
	}

	return &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":3000"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9091"),

		STTProvider: getEnv("STT_PROVIDER", "DEEPGRAM"),
		LLMProvider: getEnv("LLM_PROVIDER", "GOOGLE"),
		TTSProvider: getEnv("TTS_PROVIDER", "ELEVENLABS"),

		DeepgramAPIKey:   os.Getenv("DEEPGRAM_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GoogleAPIKey:     os.Getenv("GOOGLE_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		ElevenLabsAPIKey: os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoice:  os.Getenv("ELEVENLABS_VOICE_ID"),
		ElevenLabsModel:  getEnv("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),

		HistoryStore:  getEnv("HISTORY_STORE", "memory"),
		MongoURI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGODB_DATABASE", "voice_gateway"),

		LiveKitAPIKey:    os.Getenv("LIVEKIT_API_KEY_SERVER"),
		LiveKitAPISecret: os.Getenv("LIVEKIT_API_SECRET_SERVER"),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		BaseURL:          os.Getenv("BASE_URL"),
		BaseWSURL:        os.Getenv("BASE_WS_URL"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// NewLogger builds the process logger from the LOG_LEVEL and LOG_FORMAT
// environment settings.
func NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if getEnv("LOG_FORMAT", "text") == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
