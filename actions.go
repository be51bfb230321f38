package main

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// Steam community items live in app 753, context 6
	CommunityAppID     uint32 = 753
	CommunityContextID uint64 = 6

	confirmationPollTries = 10
	confirmationPollDelay = time.Second
)

// Actions is the user-facing facade over one bot. Every method
// returns success plus a human-readable message, shared by the chat
// commands and the HTTP API.
type Actions struct {
	bot *Bot

	// One outbound trade at a time per bot; concurrent requests abort
	tradingScheduled atomic.Bool
	tradingMutex     sync.Mutex
}

func NewActions(bot *Bot) *Actions {
	return &Actions{bot: bot}
}

// Start brings the bot online.
func (a *Actions) Start() (bool, string) {
	if a.bot.KeepRunning() {
		return false, "Already running"
	}

	a.bot.Start()
	return true, "Done"
}

// Stop takes the bot offline until a manual start.
func (a *Actions) Stop() (bool, string) {
	if !a.bot.KeepRunning() {
		return false, "Already stopped"
	}

	a.bot.Stop(false)
	return true, "Done"
}

// Pause halts farming. With resumeInSeconds > 0 farming resumes on
// its own after that long.
func (a *Actions) Pause(resumeInSeconds int) (bool, string) {
	if a.bot.Farmer().Paused() {
		return false, "Already paused"
	}

	a.bot.Farmer().Pause(time.Duration(resumeInSeconds) * time.Second)

	if resumeInSeconds > 0 {
		return true, fmt.Sprintf("Paused, resuming in %ds", resumeInSeconds)
	}
	return true, "Paused"
}

// Resume restarts farming after a pause.
func (a *Actions) Resume() (bool, string) {
	if !a.bot.Farmer().Paused() {
		return false, "Not paused"
	}

	a.bot.Farmer().Resume()
	return true, "Done"
}

// Farm forces a fresh badge scan and farming session.
func (a *Actions) Farm() (bool, string) {
	if !a.bot.IsConnectedAndLoggedOn() {
		return false, "Not connected"
	}

	go a.bot.Farmer().RestartFarming()
	return true, "Done"
}

// Redeem queues the given keys and kicks the background redeemer.
func (a *Actions) Redeem(keys []string) (bool, string) {
	entries := make([]RedeemQueueEntry, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		entries = append(entries, RedeemQueueEntry{Key: key, Name: key})
	}

	if len(entries) == 0 {
		return false, "No keys given"
	}

	added := a.bot.Database().EnqueueRedeemKeys(entries)

	if a.bot.IsConnectedAndLoggedOn() {
		go a.bot.Redeemer().RunQueue()
	}

	return true, fmt.Sprintf("Queued %d key(s), %d duplicate(s) skipped", added, len(entries)-added)
}

// RedeemKey performs one paced key redemption against the store.
func (a *Actions) RedeemKey(key string) (*PurchaseResponse, error) {
	if err := a.bot.app.GiftsLimiter.Wait(a.bot.RunContext()); err != nil {
		return nil, err
	}

	return a.bot.web.RedeemKey(a.bot.RunContext(), key)
}

// SendInventory sends every tradable community item to the master
// account. Only one send runs per bot; callers arriving mid-send get
// an abort rather than a duplicate offer.
func (a *Actions) SendInventory() (bool, string) {
	if !a.bot.IsConnectedAndLoggedOn() {
		return false, "Not connected"
	}

	config := a.bot.Config()
	if config.SteamMasterID == 0 {
		return false, "No master configured"
	}

	if !a.tradingScheduled.CompareAndSwap(false, true) {
		return false, "Trade already in progress, aborted"
	}

	a.tradingMutex.Lock()
	defer a.tradingMutex.Unlock()
	defer a.tradingScheduled.Store(false)

	ctx := a.bot.RunContext()

	assets, err := a.bot.web.GetInventory(ctx, a.bot.SteamID(), CommunityAppID, CommunityContextID)
	if err != nil {
		return false, fmt.Sprintf("Inventory fetch failed: %v", err)
	}

	tradable := assets[:0]
	for _, asset := range assets {
		if asset.Tradable {
			tradable = append(tradable, asset)
		}
	}

	if len(tradable) == 0 {
		return false, "Nothing tradable to send"
	}

	confirmationIDs, err := a.bot.web.SendTradeOffer(ctx, config.SteamMasterID, tradable, config.SteamTradeToken)
	if err != nil {
		return false, fmt.Sprintf("Trade offer failed: %v", err)
	}

	if len(confirmationIDs) > 0 {
		if ok, message := a.acceptConfirmations(confirmationIDs); !ok {
			return false, message
		}
	}

	return true, fmt.Sprintf("Sent %d item(s)", len(tradable))
}

// acceptConfirmations polls the mobile confirmation list until every
// wanted ID has been approved or the poll budget runs out. Steam takes
// a moment to surface new confirmations, so absence is retried.
func (a *Actions) acceptConfirmations(wantedIDs []uint64) (bool, string) {
	ctx := a.bot.RunContext()

	wanted := make(map[uint64]struct{}, len(wantedIDs))
	for _, id := range wantedIDs {
		wanted[id] = struct{}{}
	}

	for attempt := 0; attempt < confirmationPollTries && len(wanted) > 0; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(confirmationPollDelay):
			case <-ctx.Done():
				return false, "Cancelled"
			}
		}

		if err := a.bot.app.ConfirmationsLimiter.Wait(ctx); err != nil {
			return false, "Cancelled"
		}

		confirmations, err := a.bot.web.GetConfirmations(ctx)
		if err != nil {
			LogWarning("Bot %s: Confirmation fetch failed: %v", a.bot.Name, err)
			continue
		}

		var matched []Confirmation
		for _, confirmation := range confirmations {
			if _, want := wanted[confirmation.CreatorID]; want {
				matched = append(matched, confirmation)
			}
		}

		if len(matched) == 0 {
			continue
		}

		if _, err := a.bot.web.HandleConfirmations(ctx, matched, true); err != nil {
			LogWarning("Bot %s: Confirmation accept failed: %v", a.bot.Name, err)
			continue
		}

		for _, confirmation := range matched {
			delete(wanted, confirmation.CreatorID)
		}
	}

	if len(wanted) > 0 {
		return false, fmt.Sprintf("%d confirmation(s) left unapproved", len(wanted))
	}

	return true, "Done"
}

// Status summarizes the bot for chat and HTTP consumers.
func (a *Actions) Status() string {
	b := a.bot
	farmer := b.Farmer()

	if !b.KeepRunning() {
		return fmt.Sprintf("%s: stopped", b.Name)
	}

	if !b.IsConnectedAndLoggedOn() {
		return fmt.Sprintf("%s: %s", b.Name, b.State())
	}

	if farmer.Paused() {
		return fmt.Sprintf("%s: paused", b.Name)
	}

	current := farmer.CurrentlyFarming()
	if len(current) == 0 {
		return fmt.Sprintf("%s: online, not farming", b.Name)
	}

	names := make([]string, 0, len(current))
	remaining := 0
	for _, game := range current {
		names = append(names, game.Name)
		remaining += int(game.RemainingCards)
	}

	return fmt.Sprintf("%s: farming %s (%d games left, %d cards)",
		b.Name, strings.Join(names, ", "), len(farmer.GamesToFarm()), remaining)
}
