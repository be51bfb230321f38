package main

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Game is one farmable entry discovered during a badge scan.
type Game struct {
	AppID          uint32
	Name           string
	Hours          float64
	RemainingCards uint16
	BadgeLevel     uint8
	Marketable     bool
	RedeemDate     time.Time

	// App actually idled; differs from AppID when the badge belongs to
	// a DLC and drops come from the parent
	PlayableAppID uint32
}

// CardsFarmer schedules card-drop idling for one bot. At most one
// farming session runs per bot; start/stop transitions are serialized.
type CardsFarmer struct {
	bot *Bot

	// Serializes StartFarming/StopFarming transitions
	initLock sync.Mutex

	nowFarming  atomic.Bool
	paused      atomic.Bool
	keepFarming atomic.Bool

	// Buffered so a stop request never blocks the requester
	stopSignal chan struct{}

	gamesMutex       sync.RWMutex
	gamesToFarm      []*Game
	currentlyFarming []*Game

	farmedSomething atomic.Bool

	timersMutex sync.Mutex
	resumeTimer *time.Timer
	rescanTimer *time.Timer
}

func NewCardsFarmer(bot *Bot) *CardsFarmer {
	return &CardsFarmer{
		bot:        bot,
		stopSignal: make(chan struct{}, 1),
	}
}

// NowFarming reports whether a farming session is active.
func (f *CardsFarmer) NowFarming() bool {
	return f.nowFarming.Load()
}

// Paused reports whether farming is administratively paused.
func (f *CardsFarmer) Paused() bool {
	return f.paused.Load()
}

// GamesToFarm returns a snapshot of the remaining farm queue. Entries
// are value copies; the farm loop keeps mutating its own instances.
func (f *CardsFarmer) GamesToFarm() []Game {
	f.gamesMutex.RLock()
	defer f.gamesMutex.RUnlock()

	games := make([]Game, 0, len(f.gamesToFarm))
	for _, game := range f.gamesToFarm {
		games = append(games, *game)
	}
	return games
}

// CurrentlyFarming returns a snapshot of the games being idled now.
func (f *CardsFarmer) CurrentlyFarming() []Game {
	f.gamesMutex.RLock()
	defer f.gamesMutex.RUnlock()

	games := make([]Game, 0, len(f.currentlyFarming))
	for _, game := range f.currentlyFarming {
		games = append(games, *game)
	}
	return games
}

// Pause stops farming and keeps it stopped until Resume. With
// resumeIn > 0 a timer resumes automatically.
func (f *CardsFarmer) Pause(resumeIn time.Duration) {
	f.paused.Store(true)
	f.StopFarming()

	if resumeIn <= 0 {
		return
	}

	f.timersMutex.Lock()
	if f.resumeTimer != nil {
		f.resumeTimer.Stop()
	}
	f.resumeTimer = time.AfterFunc(resumeIn, func() {
		f.Resume()
	})
	f.timersMutex.Unlock()
}

// Resume clears the pause flag and restarts farming.
func (f *CardsFarmer) Resume() {
	f.timersMutex.Lock()
	if f.resumeTimer != nil {
		f.resumeTimer.Stop()
		f.resumeTimer = nil
	}
	f.timersMutex.Unlock()

	if !f.paused.CompareAndSwap(true, false) {
		return
	}

	go f.StartFarming()
}

// RestartFarming stops the current session and starts a fresh one,
// rescanning badges from scratch.
func (f *CardsFarmer) RestartFarming() {
	f.StopFarming()
	f.StartFarming()
}

// OnDisconnected tears down farming state after a transport loss. The
// session ends as stopped, never as finished.
func (f *CardsFarmer) OnDisconnected() {
	f.keepFarming.Store(false)
	select {
	case f.stopSignal <- struct{}{}:
	default:
	}
}

// StartFarming scans badges and farms everything with drops left.
// No-op when already farming, paused, not logged on, or the library is
// held by another session.
func (f *CardsFarmer) StartFarming() {
	f.initLock.Lock()
	defer f.initLock.Unlock()

	if f.nowFarming.Load() || f.paused.Load() {
		return
	}

	if !f.bot.IsConnectedAndLoggedOn() {
		return
	}

	if f.bot.PlayingBlocked() {
		LogInfo("Bot %s: Farming deferred, library in use elsewhere", f.bot.Name)
		return
	}

	games, err := f.scanBadges()
	if err != nil {
		LogWarning("Bot %s: Badge scan failed: %v", f.bot.Name, err)
		return
	}

	f.gamesMutex.Lock()
	f.gamesToFarm = games
	f.gamesMutex.Unlock()

	if len(games) == 0 {
		LogInfo("Bot %s: Nothing to farm", f.bot.Name)
		f.onNothingToFarm()
		return
	}

	LogInfo("Bot %s: Farming %d games", f.bot.Name, len(games))

	f.nowFarming.Store(true)
	f.keepFarming.Store(true)

	// Drop a stale stop request left over from a previous session
	select {
	case <-f.stopSignal:
	default:
	}

	go f.farm()
}

// StopFarming halts the active session, bounded so a wedged farm loop
// cannot wedge the caller.
func (f *CardsFarmer) StopFarming() {
	f.initLock.Lock()
	defer f.initLock.Unlock()

	if !f.nowFarming.Load() {
		return
	}

	f.keepFarming.Store(false)
	select {
	case f.stopSignal <- struct{}{}:
	default:
	}

	for i := 0; i < 10 && f.nowFarming.Load(); i++ {
		time.Sleep(CallbackPollInterval)
	}

	if f.nowFarming.Load() {
		LogWarning("Bot %s: Farming did not stop in time, marking stopped", f.bot.Name)
		f.nowFarming.Store(false)
	}

	f.bot.PlayGames(nil)
}

// scanBadges walks every badge page and builds the farm queue.
func (f *CardsFarmer) scanBadges() ([]*Game, error) {
	ctx := f.bot.RunContext()
	config := f.bot.Config()
	database := f.bot.Database()

	var games []*Game

	page := 1
	totalPages := 1

	for page <= totalPages {
		badgePage, err := f.bot.web.GetBadgePage(ctx, page)
		if err != nil {
			return nil, err
		}
		if badgePage.TotalPages > totalPages {
			totalPages = badgePage.TotalPages
		}

		for _, entry := range badgePage.Entries {
			game, ok := f.evaluateBadge(ctx, config, database, entry)
			if !ok {
				continue
			}
			games = append(games, game)
		}

		page++
	}

	f.sortGames(games, config, database)

	return games, nil
}

// evaluateBadge decides whether one badge entry is farmable and
// resolves which app to actually idle for it.
func (f *CardsFarmer) evaluateBadge(ctx context.Context, config *BotConfig, database *BotDatabase, entry BadgeEntry) (*Game, bool) {
	if database.IsBlacklisted(entry.AppID) {
		return nil, false
	}

	if config.FarmPriorityQueueOnly && !database.IsPriority(entry.AppID) {
		return nil, false
	}

	remaining := entry.RemainingCards

	// Some apps under-report zero on the badge page; the per-game page
	// is authoritative for those
	if remaining == 0 && f.bot.app.Settings.IsUntrustedAppID(entry.AppID) {
		verified, err := f.bot.web.GetGameCardsRemaining(ctx, entry.AppID)
		if err != nil {
			LogWarning("Bot %s: Could not verify drops for app %d: %v", f.bot.Name, entry.AppID, err)
		} else {
			remaining = verified
		}
	}

	if remaining == 0 {
		return nil, false
	}

	playable, ok := f.resolvePlayable(ctx, entry.AppID)
	if !ok {
		return nil, false
	}

	return &Game{
		AppID:          entry.AppID,
		Name:           entry.Name,
		Hours:          entry.Hours,
		RemainingCards: remaining,
		BadgeLevel:     entry.BadgeLevel,
		Marketable:     entry.Marketable,
		RedeemDate:     entry.RedeemDate,
		PlayableAppID:  playable,
	}, true
}

// resolvePlayable maps a badge app to the app we must idle, walking
// DLC parents and consulting the shared unplayable cache.
func (f *CardsFarmer) resolvePlayable(ctx context.Context, appID uint32) (uint32, bool) {
	db := f.bot.app.GlobalDB

	if db != nil && db.IsAppUnplayable(appID) {
		return 0, false
	}

	details, err := f.bot.web.GetAppDetails(ctx, appID)
	if err != nil {
		// Farm optimistically on lookup failure
		LogWarning("Bot %s: App details lookup failed for %d: %v", f.bot.Name, appID, err)
		return appID, true
	}

	if details.Playable() {
		return appID, true
	}

	if details.ParentAppID != 0 && details.ParentAppID != appID {
		// Idling a DLC parent we do not own just errors server-side
		if !f.bot.OwnsApp(details.ParentAppID) {
			return 0, false
		}
		return f.resolvePlayable(ctx, details.ParentAppID)
	}

	if db != nil {
		db.MarkAppUnplayable(appID)
	}

	return 0, false
}

// sortGames applies the configured farming orders as a stable
// multi-key sort, least significant key first. Priority-queue
// membership always wins over everything else.
func (f *CardsFarmer) sortGames(games []*Game, config *BotConfig, database *BotDatabase) {
	orders := config.FarmingOrders
	if len(orders) == 0 {
		orders = []string{OrderUnordered}
	}

	for i := len(orders) - 1; i >= 0; i-- {
		f.applyOrder(games, orders[i])
	}

	sort.SliceStable(games, func(a, b int) bool {
		return database.IsPriority(games[a].AppID) && !database.IsPriority(games[b].AppID)
	})
}

func (f *CardsFarmer) applyOrder(games []*Game, order string) {
	switch order {
	case OrderAppIDsAscending:
		sort.SliceStable(games, func(a, b int) bool { return games[a].AppID < games[b].AppID })
	case OrderAppIDsDescending:
		sort.SliceStable(games, func(a, b int) bool { return games[a].AppID > games[b].AppID })
	case OrderBadgeLevelsAscending:
		sort.SliceStable(games, func(a, b int) bool { return games[a].BadgeLevel < games[b].BadgeLevel })
	case OrderBadgeLevelsDescending:
		sort.SliceStable(games, func(a, b int) bool { return games[a].BadgeLevel > games[b].BadgeLevel })
	case OrderRemainingCardsAscending:
		sort.SliceStable(games, func(a, b int) bool { return games[a].RemainingCards < games[b].RemainingCards })
	case OrderRemainingCardsDescending:
		sort.SliceStable(games, func(a, b int) bool { return games[a].RemainingCards > games[b].RemainingCards })
	case OrderHoursAscending:
		sort.SliceStable(games, func(a, b int) bool { return games[a].Hours < games[b].Hours })
	case OrderHoursDescending:
		sort.SliceStable(games, func(a, b int) bool { return games[a].Hours > games[b].Hours })
	case OrderNamesAscending:
		sort.SliceStable(games, func(a, b int) bool {
			return strings.ToLower(games[a].Name) < strings.ToLower(games[b].Name)
		})
	case OrderNamesDescending:
		sort.SliceStable(games, func(a, b int) bool {
			return strings.ToLower(games[a].Name) > strings.ToLower(games[b].Name)
		})
	case OrderRedeemDatesAscending:
		sort.SliceStable(games, func(a, b int) bool { return games[a].RedeemDate.Before(games[b].RedeemDate) })
	case OrderRedeemDatesDescending:
		sort.SliceStable(games, func(a, b int) bool { return games[a].RedeemDate.After(games[b].RedeemDate) })
	case OrderMarketableAscending:
		sort.SliceStable(games, func(a, b int) bool { return !games[a].Marketable && games[b].Marketable })
	case OrderMarketableDescending:
		sort.SliceStable(games, func(a, b int) bool { return games[a].Marketable && !games[b].Marketable })
	case OrderRandom:
		rand.Shuffle(len(games), func(a, b int) { games[a], games[b] = games[b], games[a] })
	case OrderUnordered:
		// Keep badge-page order
	}
}

// farm runs one farming session to completion or until stopped.
func (f *CardsFarmer) farm() {
	defer func() {
		f.setCurrentlyFarming(nil)
		f.bot.PlayGames(nil)
		f.nowFarming.Store(false)
	}()

	threshold := f.bot.Config().HoursUntilCardDrops

	for f.keepFarming.Load() {
		f.gamesMutex.RLock()
		remaining := len(f.gamesToFarm)
		f.gamesMutex.RUnlock()

		if remaining == 0 {
			break
		}

		if threshold <= 0 {
			f.farmSolo()
		} else {
			f.farmRestricted(threshold)
		}
	}

	if !f.keepFarming.Load() {
		LogInfo("Bot %s: Farming stopped", f.bot.Name)
		return
	}

	LogInfo("Bot %s: Farming finished", f.bot.Name)
	f.onFarmingFinished()
}

// farmSolo idles the head of the queue until its drops run out.
func (f *CardsFarmer) farmSolo() {
	game := f.headGame()
	if game == nil {
		return
	}

	LogInfo("Bot %s: Now farming %s (%d cards remaining)", f.bot.Name, game.Name, game.RemainingCards)
	f.setCurrentlyFarming([]*Game{game})
	f.bot.PlayGames([]uint32{game.PlayableAppID})

	for f.keepFarming.Load() {
		if !f.farmingWait(f.bot.app.Settings.FarmingRecheckDelay) {
			return
		}

		remaining, err := f.bot.web.GetGameCardsRemaining(f.bot.RunContext(), game.AppID)
		if err != nil {
			// Keep farming on a failed check rather than losing progress
			LogWarning("Bot %s: Drop re-check failed for %s: %v", f.bot.Name, game.Name, err)
			continue
		}

		f.farmedSomething.Store(true)

		if remaining == 0 {
			LogInfo("Bot %s: Finished farming %s", f.bot.Name, game.Name)
			f.removeGame(game.AppID)
			return
		}

		f.gamesMutex.Lock()
		game.RemainingCards = remaining
		f.gamesMutex.Unlock()
	}
}

// farmRestricted handles accounts still under the hours threshold:
// first finish any games already past it one at a time, then idle a
// batch together until the batch minimum crosses the threshold.
func (f *CardsFarmer) farmRestricted(threshold float64) {
	f.gamesMutex.RLock()
	var ready *Game
	var batch []*Game
	for _, game := range f.gamesToFarm {
		if game.Hours >= threshold {
			if ready == nil {
				ready = game
			}
		} else if len(batch) < f.bot.app.Settings.MaxGamesFarmedConcurrently {
			batch = append(batch, game)
		}
	}
	f.gamesMutex.RUnlock()

	if ready != nil {
		f.farmSoloGame(ready)
		return
	}

	if len(batch) == 0 {
		return
	}

	appIDs := make([]uint32, 0, len(batch))
	names := make([]string, 0, len(batch))
	for _, game := range batch {
		appIDs = append(appIDs, game.PlayableAppID)
		names = append(names, game.Name)
	}

	LogInfo("Bot %s: Hour-farming %d games: %s", f.bot.Name, len(batch), strings.Join(names, ", "))
	f.setCurrentlyFarming(batch)
	f.bot.PlayGames(appIDs)

	for f.keepFarming.Load() {
		if !f.farmingWait(f.bot.app.Settings.FarmingRecheckDelay) {
			return
		}

		elapsed := f.bot.app.Settings.FarmingRecheckDelay.Hours()
		minHours := threshold
		f.gamesMutex.Lock()
		for _, game := range batch {
			game.Hours += elapsed
			if game.Hours < minHours {
				minHours = game.Hours
			}
		}
		f.gamesMutex.Unlock()

		f.farmedSomething.Store(true)

		if minHours >= threshold {
			return
		}
	}
}

// farmSoloGame farms one specific game past the threshold to
// completion.
func (f *CardsFarmer) farmSoloGame(game *Game) {
	LogInfo("Bot %s: Now farming %s (%d cards remaining)", f.bot.Name, game.Name, game.RemainingCards)
	f.setCurrentlyFarming([]*Game{game})
	f.bot.PlayGames([]uint32{game.PlayableAppID})

	for f.keepFarming.Load() {
		if !f.farmingWait(f.bot.app.Settings.FarmingRecheckDelay) {
			return
		}

		remaining, err := f.bot.web.GetGameCardsRemaining(f.bot.RunContext(), game.AppID)
		if err != nil {
			LogWarning("Bot %s: Drop re-check failed for %s: %v", f.bot.Name, game.Name, err)
			continue
		}

		f.farmedSomething.Store(true)

		if remaining == 0 {
			LogInfo("Bot %s: Finished farming %s", f.bot.Name, game.Name)
			f.removeGame(game.AppID)
			return
		}

		f.gamesMutex.Lock()
		game.RemainingCards = remaining
		f.gamesMutex.Unlock()
	}
}

// farmingWait sleeps up to the full duration in short bounded chunks
// so stop requests are observed promptly. Returns false when farming
// should end.
func (f *CardsFarmer) farmingWait(duration time.Duration) bool {
	deadline := time.Now().Add(duration)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		if !f.keepFarming.Load() {
			return false
		}

		chunk := time.Second
		if remaining < chunk {
			chunk = remaining
		}

		select {
		case <-f.stopSignal:
			return false
		case <-time.After(chunk):
		}
	}

	return f.keepFarming.Load()
}

func (f *CardsFarmer) headGame() *Game {
	f.gamesMutex.RLock()
	defer f.gamesMutex.RUnlock()

	if len(f.gamesToFarm) == 0 {
		return nil
	}
	return f.gamesToFarm[0]
}

func (f *CardsFarmer) removeGame(appID uint32) {
	f.gamesMutex.Lock()
	defer f.gamesMutex.Unlock()

	for i, game := range f.gamesToFarm {
		if game.AppID == appID {
			f.gamesToFarm = append(f.gamesToFarm[:i], f.gamesToFarm[i+1:]...)
			return
		}
	}
}

func (f *CardsFarmer) setCurrentlyFarming(games []*Game) {
	f.gamesMutex.Lock()
	f.currentlyFarming = games
	f.gamesMutex.Unlock()
}

// onFarmingFinished runs the configured end-of-farming actions.
func (f *CardsFarmer) onFarmingFinished() {
	config := f.bot.Config()
	farmed := f.farmedSomething.Swap(false)

	if config.SendOnFarmingFinished && farmed {
		if ok, message := f.bot.Actions().SendInventory(); !ok {
			LogWarning("Bot %s: Post-farming loot failed: %s", f.bot.Name, message)
		}
	}

	if config.ShutdownOnFarmingFinished {
		f.bot.Stop(false)
		return
	}

	f.onNothingToFarm()
}

// onNothingToFarm arms the idle rescan timer, if enabled.
func (f *CardsFarmer) onNothingToFarm() {
	period := f.bot.app.Settings.IdleFarmingPeriod
	if period <= 0 {
		return
	}

	f.timersMutex.Lock()
	if f.rescanTimer != nil {
		f.rescanTimer.Stop()
	}
	f.rescanTimer = time.AfterFunc(period, func() {
		if f.bot.IsConnectedAndLoggedOn() {
			f.StartFarming()
		}
	})
	f.timersMutex.Unlock()
}
