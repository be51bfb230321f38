package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// BotStatus is the per-bot view returned by the admin API.
type BotStatus struct {
	Name             string  `json:"name"`
	State            string  `json:"state"`
	KeepRunning      bool    `json:"keepRunning"`
	Paused           bool    `json:"paused"`
	NowFarming       bool    `json:"nowFarming"`
	GamesToFarm      int     `json:"gamesToFarm"`
	CurrentlyFarming []Game  `json:"currentlyFarming,omitempty"`
	RedeemQueue      int     `json:"redeemQueue"`
	SteamID          uint64  `json:"steamID,omitempty"`
}

func botStatus(bot *Bot) BotStatus {
	farmer := bot.Farmer()

	return BotStatus{
		Name:             bot.Name,
		State:            bot.State().String(),
		KeepRunning:      bot.KeepRunning(),
		Paused:           farmer.Paused(),
		NowFarming:       farmer.NowFarming(),
		GamesToFarm:      len(farmer.GamesToFarm()),
		CurrentlyFarming: farmer.CurrentlyFarming(),
		RedeemQueue:      bot.Database().RedeemQueueLength(),
		SteamID:          bot.SteamID(),
	}
}

// NewRouter builds the admin HTTP API.
func NewRouter(app *AppContext) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/api/status", func(w http.ResponseWriter, req *http.Request) {
		statuses := make([]BotStatus, 0)
		for _, bot := range app.Registry.ExpandTargets("all") {
			statuses = append(statuses, botStatus(bot))
		}
		sendJSONResponse(w, http.StatusOK, statuses)
	})

	r.Get("/api/bot/{name}", func(w http.ResponseWriter, req *http.Request) {
		bot := app.Registry.GetBot(chi.URLParam(req, "name"))
		if bot == nil {
			sendJSONResponse(w, http.StatusNotFound, map[string]string{"error": "unknown bot"})
			return
		}
		sendJSONResponse(w, http.StatusOK, botStatus(bot))
	})

	r.Post("/api/bot/{name}/start", botActionHandler(app, func(bot *Bot) (bool, string) {
		return bot.Actions().Start()
	}))

	r.Post("/api/bot/{name}/stop", botActionHandler(app, func(bot *Bot) (bool, string) {
		return bot.Actions().Stop()
	}))

	r.Post("/api/bot/{name}/pause", botActionHandler(app, func(bot *Bot) (bool, string) {
		return bot.Actions().Pause(0)
	}))

	r.Post("/api/bot/{name}/resume", botActionHandler(app, func(bot *Bot) (bool, string) {
		return bot.Actions().Resume()
	}))

	r.Post("/api/bot/{name}/farm", botActionHandler(app, func(bot *Bot) (bool, string) {
		return bot.Actions().Farm()
	}))

	r.Post("/api/bot/{name}/loot", botActionHandler(app, func(bot *Bot) (bool, string) {
		return bot.Actions().SendInventory()
	}))

	r.Post("/api/bot/{name}/redeem", func(w http.ResponseWriter, req *http.Request) {
		bot := app.Registry.GetBot(chi.URLParam(req, "name"))
		if bot == nil {
			sendJSONResponse(w, http.StatusNotFound, map[string]string{"error": "unknown bot"})
			return
		}

		var body struct {
			Keys []string `json:"keys"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			sendJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}

		ok, message := bot.Actions().Redeem(body.Keys)
		writeActionResult(w, ok, message)
	})

	r.Post("/api/command", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Command string `json:"command"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Command == "" {
			sendJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}

		response := DispatchCommand(app, nil, body.Command)
		sendJSONResponse(w, http.StatusOK, map[string]string{"response": response})
	})

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		sendJSONResponse(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"bots":   len(app.Registry.BotNames()),
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return r
}

func botActionHandler(app *AppContext, action func(*Bot) (bool, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		bot := app.Registry.GetBot(chi.URLParam(req, "name"))
		if bot == nil {
			sendJSONResponse(w, http.StatusNotFound, map[string]string{"error": "unknown bot"})
			return
		}

		ok, message := action(bot)
		writeActionResult(w, ok, message)
	}
}

func writeActionResult(w http.ResponseWriter, ok bool, message string) {
	status := http.StatusOK
	if !ok {
		status = http.StatusConflict
	}

	sendJSONResponse(w, status, map[string]interface{}{
		"success": ok,
		"message": message,
	})
}

// requestIDMiddleware tags every request with an ID for log
// correlation.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requestID := req.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, req)
	})
}
