package config

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLoadDefaults(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := Load(log)
	if cfg.ListenAddr != ":3000" {
		t.Errorf("ListenAddr: got %q", cfg.ListenAddr)
	}
	if cfg.STTProvider != "DEEPGRAM" || cfg.LLMProvider != "GOOGLE" || cfg.TTSProvider != "ELEVENLABS" {
		t.Errorf("provider defaults: %q %q %q", cfg.STTProvider, cfg.LLMProvider, cfg.TTSProvider)
	}
	if cfg.HistoryStore != "memory" {
		t.Errorf("HistoryStore: got %q", cfg.HistoryStore)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":8080")
	t.Setenv("LLM_PROVIDER", "OPENAI")
	t.Setenv("HISTORY_STORE", "mongo")

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := Load(log)
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr: got %q", cfg.ListenAddr)
	}
	if cfg.LLMProvider != "OPENAI" {
		t.Errorf("LLMProvider: got %q", cfg.LLMProvider)
	}
	if cfg.HistoryStore != "mongo" {
		t.Errorf("HistoryStore: got %q", cfg.HistoryStore)
	}
}
