package main

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// BackgroundRedeemer drains a bot's persisted key queue. At most one
// drain runs per bot; each terminal outcome is written to an audit log
// before the key leaves the queue, so a crash can duplicate an audit
// line but never lose one.
type BackgroundRedeemer struct {
	bot *Bot

	running atomic.Bool

	timerMutex  sync.Mutex
	resumeTimer *time.Timer
}

func NewBackgroundRedeemer(bot *Bot) *BackgroundRedeemer {
	return &BackgroundRedeemer{bot: bot}
}

// Running reports whether a queue drain is in progress.
func (r *BackgroundRedeemer) Running() bool {
	return r.running.Load()
}

// Stop cancels a pending cooldown resume. An in-flight drain winds
// down on its own once the bot is no longer logged on.
func (r *BackgroundRedeemer) Stop() {
	r.timerMutex.Lock()
	defer r.timerMutex.Unlock()

	if r.resumeTimer != nil {
		r.resumeTimer.Stop()
		r.resumeTimer = nil
	}
}

// RunQueue drains the redemption queue until it is empty, the bot
// drops offline, or Steam rate-limits us. Concurrent calls while a
// drain is active return immediately.
func (r *BackgroundRedeemer) RunQueue() {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	defer r.running.Store(false)

	database := r.bot.Database()

	for r.bot.IsConnectedAndLoggedOn() {
		entry, ok := database.PeekRedeemKey()
		if !ok {
			return
		}

		response, err := r.bot.Actions().RedeemKey(entry.Key)
		if err != nil {
			LogWarning("Bot %s: Redemption of %s failed: %v", r.bot.Name, entry.Name, err)
			return
		}

		// The store refuses some key types over this endpoint; wallet
		// codes go through their own one
		if response.Detail == PurchaseDetailCannotRedeemFromClient {
			walletResponse, walletErr := r.bot.web.RedeemWalletCode(r.bot.RunContext(), entry.Key)
			if walletErr != nil {
				LogWarning("Bot %s: Wallet redemption of %s failed: %v", r.bot.Name, entry.Name, walletErr)
				return
			}
			response = walletResponse
		}

		if response.Detail == PurchaseDetailRateLimited {
			LogWarning("Bot %s: Redemption rate limited, resuming in %v", r.bot.Name, r.bot.app.Settings.RedeemCooldown)
			r.armResume()
			return
		}

		if !response.Detail.Terminal() {
			LogWarning("Bot %s: Non-terminal redemption outcome for %s: %v", r.bot.Name, entry.Name, response.Detail)
			return
		}

		r.audit(entry, response)
		database.RemoveRedeemKey(entry.Key)

		LogInfo("Bot %s: Redeemed %s: %v", r.bot.Name, entry.Name, response.Detail)
	}
}

func (r *BackgroundRedeemer) armResume() {
	r.timerMutex.Lock()
	defer r.timerMutex.Unlock()

	if r.resumeTimer != nil {
		r.resumeTimer.Stop()
	}

	r.resumeTimer = time.AfterFunc(r.bot.app.Settings.RedeemCooldown, func() {
		if r.bot.IsConnectedAndLoggedOn() {
			r.RunQueue()
		}
	})
}

// audit appends one line per terminal outcome, to the used file when
// the key was consumed and to the unused file otherwise. Audit
// failures are logged, not fatal; losing an audit line beats looping
// on one key.
func (r *BackgroundRedeemer) audit(entry RedeemQueueEntry, response *PurchaseResponse) {
	var items []string
	for appID, name := range response.Items {
		items = append(items, fmt.Sprintf("%d:%s", appID, name))
	}

	line := fmt.Sprintf("%s | %s | %s | %v | %s\n",
		time.Now().Format(time.RFC3339), entry.Name, entry.Key, response.Detail, strings.Join(items, ", "))

	path := r.bot.app.Settings.RedeemAuditPath(r.bot.Name, response.Detail.Success())

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		LogWarning("Bot %s: Cannot open redemption audit log: %v", r.bot.Name, err)
		return
	}
	defer file.Close()

	if _, err := file.WriteString(line); err != nil {
		LogWarning("Bot %s: Cannot write redemption audit log: %v", r.bot.Name, err)
	}
}
