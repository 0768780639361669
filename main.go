package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/mrsingh-rishi/voice-gateway/call"
	"github.com/mrsingh-rishi/voice-gateway/config"
	"github.com/mrsingh-rishi/voice-gateway/history"
	"github.com/mrsingh-rishi/voice-gateway/livekit"
	"github.com/mrsingh-rishi/voice-gateway/metrics"
	"github.com/mrsingh-rishi/voice-gateway/orchestrator"
	"github.com/mrsingh-rishi/voice-gateway/providers"
	llmprovider "github.com/mrsingh-rishi/voice-gateway/providers/llm"
	sttprovider "github.com/mrsingh-rishi/voice-gateway/providers/stt"
	ttsprovider "github.com/mrsingh-rishi/voice-gateway/providers/tts"
	"github.com/mrsingh-rishi/voice-gateway/queue"
	"github.com/mrsingh-rishi/voice-gateway/telephony"
	"github.com/mrsingh-rishi/voice-gateway/types"
)

// sseKeepAliveInterval bounds how long a dead event-stream client can hold
// its subscription open when its conversation is idle.
const sseKeepAliveInterval = 15 * time.Second

type chatRequest struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversationId"`
}

type callRequest struct {
	To             string `json:"to"`
	ConversationID string `json:"conversationId"`
}

func main() {
	log := config.NewLogger()
	cfg := config.Load(log)
	ctx := context.Background()

	m, registry := metrics.New()
	go metrics.Serve(ctx, cfg.MetricsAddr, registry, log)

	store := newHistoryStore(ctx, cfg, log)
	fanout := queue.NewFanout()

	registerProviders(ctx, cfg, log)
	sttProv := resolveSTT(cfg.STTProvider, log)
	llmProv := resolveLLM(cfg.LLMProvider, log)
	ttsProv := resolveTTS(cfg.TTSProvider, log)

	orch := orchestrator.New(llmProv, ttsProv, store, fanout, log, m)

	tel, err := telephony.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, cfg.BaseURL, cfg.BaseWSURL)
	if err != nil {
		log.WithError(err).Warn("Telephony unavailable")
		tel = nil
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Single-shot text turn: acknowledged immediately, the response
	// arrives on the event channel.
	app.Post("/api/chat", func(c *fiber.Ctx) error {
		var req chatRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
		if req.Text == "" || req.ConversationID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "`text` and `conversationId` are required"})
		}
		orch.SubmitText(req.ConversationID, req.Text)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"status":         "accepted",
			"conversationId": req.ConversationID,
		})
	})

	// Server-push event channel, one subscriber per connection. A
	// reconnecting client resubscribes and may miss events published
	// during the gap; there is no replay.
	app.Get("/api/events/:conversationId", func(c *fiber.Ctx) error {
		conversationID := c.Params("conversationId")
		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			m.SubscriberDelta(1)
			defer m.SubscriberDelta(-1)
			subCtx, cancel := context.WithCancel(context.Background())
			defer cancel()
			streamEvents(w, fanout.Subscribe(subCtx, conversationID), sseKeepAliveInterval)
		}))
		return nil
	})

	app.Use("/api/voice", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Persistent audio-input channel. Binary messages are raw audio;
	// Twilio media-stream envelopes are accepted on the same endpoint.
	app.Get("/api/voice/:conversationId", websocket.New(func(ws *websocket.Conn) {
		defer ws.Close()
		conversationID := ws.Params("conversationId")
		wsLog := log.WithField("conversation_id", conversationID)
		if sttProv == nil {
			wsLog.Error("Voice connection rejected: STT provider unavailable")
			return
		}
		sess, err := call.NewSession(conversationID, ws, sttProv, orch, fanout, log, m)
		if err != nil {
			wsLog.WithError(err).Error("Failed to create voice session")
			return
		}
		wsLog.Info("Voice session connected")
		sess.Run(context.Background())
		wsLog.Info("Voice session closed")
	}))

	app.Delete("/api/history/:conversationId", func(c *fiber.Ctx) error {
		existed, err := orch.ClearHistory(c.Context(), c.Params("conversationId"))
		if err != nil {
			log.WithError(err).Error("History clear failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to clear history"})
		}
		if !existed {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"cleared": false})
		}
		return c.JSON(fiber.Map{"cleared": true})
	})

	app.Get("/api/livekit-token", func(c *fiber.Ctx) error {
		room := c.Query("room", "ai-voice-bot")
		token, identity, err := livekit.NewAccessToken(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, room, "", livekit.DefaultTTL)
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"token": token, "identity": identity})
	})

	// Outbound call: Twilio fetches /api/twiml, which bridges the call's
	// media stream onto /api/voice/:conversationId.
	app.Post("/api/call", func(c *fiber.Ctx) error {
		if tel == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "telephony is not configured"})
		}
		var req callRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
		if req.To == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "`to` field is required"})
		}
		if req.ConversationID == "" {
			req.ConversationID = uuid.NewString()
		}
		sid, err := tel.PlaceCall(req.To, req.ConversationID)
		if err != nil {
			log.WithError(err).Error("Failed to create call")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create call"})
		}
		return c.JSON(fiber.Map{"sid": sid, "conversationId": req.ConversationID, "message": "call initiated"})
	})

	app.Get("/api/twiml", func(c *fiber.Ctx) error {
		if tel == nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("telephony is not configured")
		}
		conversationID := c.Query("conversationId")
		if conversationID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "conversationId missing"})
		}
		c.Type("xml")
		return c.SendString(tel.TwiML(conversationID))
	})

	log.WithField("addr", cfg.ListenAddr).Info("Gateway listening")
	if err := app.Listen(cfg.ListenAddr); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
}

// streamEvents relays a subscription onto w as server-sent events until the
// subscription closes or a write fails. Idle streams get a comment line every
// keepAlive so a disconnected client is detected without waiting for the
// conversation's next event.
func streamEvents(w *bufio.Writer, sub <-chan types.Event, keepAlive time.Duration) {
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			if err := w.Flush(); err != nil {
				return // client disconnected
			}
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}

// newHistoryStore picks the configured store. An unreachable MongoDB is
// logged and degraded to the in-memory store so turns keep working.
func newHistoryStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) history.Store {
	if cfg.HistoryStore != "mongo" {
		return history.NewMemoryStore()
	}
	store, err := history.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.WithError(err).Warn("MongoDB unreachable, falling back to in-memory history")
		return history.NewMemoryStore()
	}
	log.WithField("database", cfg.MongoDatabase).Info("History persisted to MongoDB")
	return store
}

// registerProviders binds every concrete provider to its registry name.
// Adding a provider means adding an entry here.
func registerProviders(ctx context.Context, cfg *config.Config, log *logrus.Logger) {
	providers.RegisterSTT("DEEPGRAM", func() (providers.STT, error) {
		p, err := sttprovider.NewDeepgram(cfg.DeepgramAPIKey, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	providers.RegisterLLM("OPENAI", func() (providers.LLM, error) {
		p, err := llmprovider.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	providers.RegisterLLM("GOOGLE", func() (providers.LLM, error) {
		p, err := llmprovider.NewGoogle(ctx, cfg.GoogleAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	providers.RegisterTTS("ELEVENLABS", func() (providers.TTS, error) {
		p, err := ttsprovider.NewElevenLabs(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoice, cfg.ElevenLabsModel, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// The resolve helpers share one policy: an unknown provider name is a
// fatal startup error, a missing credential only degrades the capability.

func resolveSTT(name string, log *logrus.Logger) providers.STT {
	p, err := providers.NewSTT(name)
	if err != nil {
		fatalUnlessConfig(err, "STT", name, log)
		return nil
	}
	return p
}

func resolveLLM(name string, log *logrus.Logger) providers.LLM {
	p, err := providers.NewLLM(name)
	if err != nil {
		fatalUnlessConfig(err, "LLM", name, log)
		return nil
	}
	return p
}

func resolveTTS(name string, log *logrus.Logger) providers.TTS {
	p, err := providers.NewTTS(name)
	if err != nil {
		fatalUnlessConfig(err, "TTS", name, log)
		return nil
	}
	return p
}

func fatalUnlessConfig(err error, capability, name string, log *logrus.Logger) {
	var cfgErr *providers.ConfigError
	if errors.As(err, &cfgErr) {
		log.WithError(err).Warnf("%s capability unavailable", capability)
		return
	}
	log.WithError(err).Fatalf("Failed to initialize %s provider %q", capability, name)
}
