package main

import (
	"testing"
	"time"
)

func newFarmingBot(t *testing.T, web *fakeWebClient, config *BotConfig) (*Bot, *fakeSession) {
	t.Helper()

	session := newFakeSession()
	app := newTestApp(t, session, web)
	bot := newTestBot(t, app, config)

	// Simulate an established session without running the login flow
	bot.sessionMutex.Lock()
	bot.session = session
	bot.sessionMutex.Unlock()
	bot.connected.Store(true)
	bot.loggedOn.Store(true)
	bot.keepRunning.Store(true)

	return bot, session
}

func TestFarmingOrderSorting(t *testing.T) {
	web := newFakeWebClient()
	config := testBotConfig()
	config.FarmingOrders = []string{OrderRemainingCardsDescending, OrderAppIDsAscending}

	bot, _ := newFarmingBot(t, web, config)

	games := []*Game{
		{AppID: 30, RemainingCards: 2},
		{AppID: 10, RemainingCards: 5},
		{AppID: 20, RemainingCards: 5},
		{AppID: 40, RemainingCards: 9},
	}

	bot.Farmer().sortGames(games, config, bot.Database())

	want := []uint32{40, 10, 20, 30}
	for i, appID := range want {
		if games[i].AppID != appID {
			t.Fatalf("position %d: want app %d, got %d", i, appID, games[i].AppID)
		}
	}
}

func TestPrioritySetOverridesFarmingOrders(t *testing.T) {
	web := newFakeWebClient()
	config := testBotConfig()
	config.FarmingOrders = []string{OrderRemainingCardsDescending}

	bot, _ := newFarmingBot(t, web, config)
	bot.Database().SetPriority(30, true)

	games := []*Game{
		{AppID: 10, RemainingCards: 9},
		{AppID: 20, RemainingCards: 5},
		{AppID: 30, RemainingCards: 1},
	}

	bot.Farmer().sortGames(games, config, bot.Database())

	if games[0].AppID != 30 {
		t.Fatalf("priority game must sort first, got app %d", games[0].AppID)
	}
}

func TestUntrustedZeroDropEntriesAreVerified(t *testing.T) {
	web := newFakeWebClient()
	web.badges = []BadgeEntry{
		{AppID: 440, Name: "TF2", RemainingCards: 0},
		{AppID: 730, Name: "CS", RemainingCards: 0},
		{AppID: 100, Name: "Trusted", RemainingCards: 0},
	}
	web.cardsRemaining[440] = []uint16{3}
	web.cardsRemaining[730] = []uint16{0}

	bot, _ := newFarmingBot(t, web, nil)

	games, err := bot.Farmer().scanBadges()
	if err != nil {
		t.Fatalf("scanBadges: %v", err)
	}

	if len(games) != 1 || games[0].AppID != 440 {
		t.Fatalf("expected only app 440 to survive the scan, got %v", games)
	}

	if games[0].RemainingCards != 3 {
		t.Errorf("verified drop count not applied, got %d", games[0].RemainingCards)
	}

	web.mu.Lock()
	defer web.mu.Unlock()

	if web.cardChecks[730] != 1 {
		t.Errorf("untrusted app 730 not verified, %d checks", web.cardChecks[730])
	}

	if web.cardChecks[100] != 0 {
		t.Errorf("trusted app 100 should skip verification, %d checks", web.cardChecks[100])
	}
}

func TestBlacklistAndPriorityQueueFiltering(t *testing.T) {
	web := newFakeWebClient()
	web.badges = []BadgeEntry{
		{AppID: 1, Name: "Wanted", RemainingCards: 2},
		{AppID: 2, Name: "Blacklisted", RemainingCards: 2},
		{AppID: 3, Name: "NotPriority", RemainingCards: 2},
	}

	config := testBotConfig()
	config.FarmPriorityQueueOnly = true

	bot, _ := newFarmingBot(t, web, config)
	bot.Database().SetPriority(1, true)
	bot.Database().SetPriority(2, true)
	bot.Database().SetBlacklisted(2, true)

	games, err := bot.Farmer().scanBadges()
	if err != nil {
		t.Fatalf("scanBadges: %v", err)
	}

	if len(games) != 1 || games[0].AppID != 1 {
		t.Fatalf("expected only app 1 to survive filtering, got %d games", len(games))
	}
}

func TestDlcResolvesToParentApp(t *testing.T) {
	web := newFakeWebClient()
	web.badges = []BadgeEntry{
		{AppID: 501, Name: "Some DLC", RemainingCards: 1},
	}
	web.appDetails[501] = &AppDetails{AppID: 501, Type: "dlc", ReleaseState: "released", ParentAppID: 500}

	bot, _ := newFarmingBot(t, web, nil)

	games, err := bot.Farmer().scanBadges()
	if err != nil {
		t.Fatalf("scanBadges: %v", err)
	}

	if len(games) != 1 {
		t.Fatalf("expected one game, got %d", len(games))
	}

	if games[0].AppID != 501 || games[0].PlayableAppID != 500 {
		t.Fatalf("DLC should idle its parent: badge %d playable %d", games[0].AppID, games[0].PlayableAppID)
	}
}

func TestUnownedDlcParentIsSkipped(t *testing.T) {
	web := newFakeWebClient()
	web.badges = []BadgeEntry{
		{AppID: 501, Name: "Owned DLC", RemainingCards: 1},
		{AppID: 601, Name: "Orphan DLC", RemainingCards: 1},
	}
	web.appDetails[501] = &AppDetails{AppID: 501, Type: "dlc", ReleaseState: "released", ParentAppID: 500}
	web.appDetails[601] = &AppDetails{AppID: 601, Type: "dlc", ReleaseState: "released", ParentAppID: 600}
	web.packageContents[77] = []uint32{500, 501, 601}

	bot, _ := newFarmingBot(t, web, nil)
	bot.resolveOwnedApps([]uint32{77})

	games, err := bot.Farmer().scanBadges()
	if err != nil {
		t.Fatalf("scanBadges: %v", err)
	}

	if len(games) != 1 || games[0].AppID != 501 {
		t.Fatalf("expected only the owned parent's DLC, got %d games", len(games))
	}
}

func TestFarmToCompletion(t *testing.T) {
	web := newFakeWebClient()
	web.badges = []BadgeEntry{
		{AppID: 1000, Name: "First", RemainingCards: 1},
		{AppID: 2000, Name: "Second", RemainingCards: 1},
	}
	web.cardsRemaining[1000] = []uint16{0}
	web.cardsRemaining[2000] = []uint16{0}

	config := testBotConfig()
	config.FarmingOrders = []string{OrderAppIDsAscending}

	bot, session := newFarmingBot(t, web, config)

	bot.Farmer().StartFarming()

	waitFor(t, func() bool {
		return !bot.Farmer().NowFarming() && len(bot.Farmer().GamesToFarm()) == 0
	}, "farming did not run to completion")

	var solo []uint32
	for _, call := range session.playedCalls() {
		if len(call) == 1 {
			solo = append(solo, call[0])
		}
	}

	if len(solo) != 2 || solo[0] != 1000 || solo[1] != 2000 {
		t.Fatalf("expected games farmed in order [1000 2000], got %v", solo)
	}
}

func TestDisconnectEndsFarmingAsStopped(t *testing.T) {
	web := newFakeWebClient()
	web.badges = []BadgeEntry{
		{AppID: 1000, Name: "Endless", RemainingCards: 5},
	}
	web.cardsRemaining[1000] = []uint16{5}

	bot, _ := newFarmingBot(t, web, nil)

	bot.Farmer().StartFarming()

	waitFor(t, bot.Farmer().NowFarming, "farming did not start")

	bot.Farmer().OnDisconnected()

	waitFor(t, func() bool {
		return !bot.Farmer().NowFarming()
	}, "farming did not stop on disconnect")

	if got := len(bot.Farmer().GamesToFarm()); got != 1 {
		t.Errorf("stopped session must keep its queue, got %d games", got)
	}
}

func TestRestrictedFarmingSoloBeforeBatch(t *testing.T) {
	web := newFakeWebClient()
	web.badges = []BadgeEntry{
		{AppID: 1, Name: "Past", Hours: 3.0, RemainingCards: 1},
		{AppID: 2, Name: "Fresh", Hours: 0.5, RemainingCards: 2},
		{AppID: 3, Name: "Newer", Hours: 0.1, RemainingCards: 2},
	}
	web.cardsRemaining[1] = []uint16{0}
	web.cardsRemaining[2] = []uint16{2}
	web.cardsRemaining[3] = []uint16{2}

	config := testBotConfig()
	config.HoursUntilCardDrops = 2.0
	config.FarmingOrders = []string{OrderAppIDsAscending}

	bot, session := newFarmingBot(t, web, config)

	bot.Farmer().StartFarming()

	waitFor(t, func() bool {
		for _, call := range session.playedCalls() {
			if len(call) == 2 {
				return true
			}
		}
		return false
	}, "batch phase never started")

	bot.Farmer().StopFarming()

	calls := session.playedCalls()

	soloSeen := false
	for _, call := range calls {
		if len(call) == 1 && call[0] == 1 {
			soloSeen = true
		}
		if len(call) == 2 {
			if !soloSeen {
				t.Fatal("batch phase ran before the past-threshold game finished")
			}
			if call[0] != 2 || call[1] != 3 {
				t.Fatalf("unexpected batch %v", call)
			}
			return
		}
	}

	t.Fatal("no batch call recorded")
}

func TestPauseBlocksFarmingUntilResume(t *testing.T) {
	web := newFakeWebClient()
	web.badges = []BadgeEntry{
		{AppID: 1000, Name: "Endless", RemainingCards: 5},
	}
	web.cardsRemaining[1000] = []uint16{5}

	bot, _ := newFarmingBot(t, web, nil)

	bot.Farmer().Pause(0)

	bot.Farmer().StartFarming()
	time.Sleep(20 * time.Millisecond)

	if bot.Farmer().NowFarming() {
		t.Fatal("paused farmer must not start")
	}

	bot.Farmer().Resume()

	waitFor(t, bot.Farmer().NowFarming, "farming did not resume")

	bot.Farmer().StopFarming()
}

func TestStatusReadsSafeWhileFarming(t *testing.T) {
	web := newFakeWebClient()
	web.badges = []BadgeEntry{
		{AppID: 1000, Name: "Busy", RemainingCards: 6},
	}
	web.cardsRemaining[1000] = []uint16{5, 4, 3, 2, 1, 0}

	bot, _ := newFarmingBot(t, web, nil)

	bot.Farmer().StartFarming()

	// Hammer the snapshot readers while the farm loop rewrites drop
	// counters; the race detector flags unguarded field access here.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			bot.Actions().Status()
			for _, game := range bot.Farmer().CurrentlyFarming() {
				_ = game.RemainingCards
				_ = game.Hours
			}
			if !bot.Farmer().NowFarming() && len(bot.Farmer().GamesToFarm()) == 0 {
				return
			}
		}
	}()

	waitFor(t, func() bool {
		return !bot.Farmer().NowFarming() && len(bot.Farmer().GamesToFarm()) == 0
	}, "farming did not run to completion")
	<-done
}
