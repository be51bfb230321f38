package main

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeSession scripts login outcomes and records everything the bot
// asks of the SDK. A failed logon is followed by a disconnect, the way
// the real network behaves.
type fakeSession struct {
	mu           sync.Mutex
	events       chan interface{}
	logOns       []LogOnDetails
	played       [][]uint32
	sentMessages []string
	addedFriends []uint64
	loginResults []EResult
	disconnects  int
}

func newFakeSession(results ...EResult) *fakeSession {
	return &fakeSession{
		events:       make(chan interface{}, 64),
		loginResults: results,
	}
}

func (s *fakeSession) emit(event interface{}) {
	s.events <- event
}

func (s *fakeSession) Connect() {
	s.emit(ConnectedEvent{})
}

func (s *fakeSession) Disconnect() {
	s.mu.Lock()
	s.disconnects++
	s.mu.Unlock()

	s.emit(DisconnectedEvent{UserInitiated: true})
}

func (s *fakeSession) LogOn(details LogOnDetails) {
	s.mu.Lock()
	s.logOns = append(s.logOns, details)

	result := ResultOK
	if len(s.loginResults) > 0 {
		result = s.loginResults[0]
		s.loginResults = s.loginResults[1:]
	}
	s.mu.Unlock()

	s.emit(LoggedOnEvent{Result: result, SteamID: 76561198000000001})

	if result != ResultOK {
		s.emit(DisconnectedEvent{})
	}
}

func (s *fakeSession) PlayGames(appIDs []uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]uint32, len(appIDs))
	copy(snapshot, appIDs)
	s.played = append(s.played, snapshot)
}

func (s *fakeSession) SetPersonaOnline() {}

func (s *fakeSession) SendChatMessage(steamID uint64, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentMessages = append(s.sentMessages, message)
}

func (s *fakeSession) AddFriend(steamID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addedFriends = append(s.addedFriends, steamID)
}

func (s *fakeSession) Events() <-chan interface{} {
	return s.events
}

func (s *fakeSession) logOnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logOns)
}

func (s *fakeSession) logOnAt(i int) LogOnDetails {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logOns[i]
}

func (s *fakeSession) playedCalls() [][]uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	calls := make([][]uint32, len(s.played))
	copy(calls, s.played)
	return calls
}

// fakeWebClient serves canned data and records state-changing calls.
type fakeWebClient struct {
	mu sync.Mutex

	badges          []BadgeEntry
	cardsRemaining  map[uint32][]uint16
	appDetails      map[uint32]*AppDetails
	packageContents map[uint32][]uint32
	packageLookups  int
	redeemResults  []*PurchaseResponse
	walletResults  []*PurchaseResponse
	tradeOffers    []TradeOffer
	giftCards      []uint64
	inventory      []InventoryAsset
	confirmations  []Confirmation
	sendConfIDs    []uint64

	parentalLocked bool
	parentalPINs   []string

	redeemedKeys   []string
	walletCodes    []string
	acceptedTrades []uint64
	declinedTrades []uint64
	acceptedGifts  []uint64
	acceptedPasses []uint64
	sentOffers     int
	handledConfs   int
	cardChecks     map[uint32]int
}

func newFakeWebClient() *fakeWebClient {
	return &fakeWebClient{
		cardsRemaining:  make(map[uint32][]uint16),
		appDetails:      make(map[uint32]*AppDetails),
		packageContents: make(map[uint32][]uint32),
		cardChecks:      make(map[uint32]int),
	}
}

func (w *fakeWebClient) RefreshSession(ctx context.Context, steamID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.parentalLocked {
		return ErrParentalLocked
	}
	return nil
}

func (w *fakeWebClient) UnlockParental(ctx context.Context, pin string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.parentalPINs = append(w.parentalPINs, pin)
	w.parentalLocked = false
	return nil
}

func (w *fakeWebClient) GetBadgePage(ctx context.Context, page int) (*BadgePage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := make([]BadgeEntry, len(w.badges))
	copy(entries, w.badges)
	return &BadgePage{Entries: entries, TotalPages: 1}, nil
}

func (w *fakeWebClient) GetGameCardsRemaining(ctx context.Context, appID uint32) (uint16, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.cardChecks[appID]++

	answers := w.cardsRemaining[appID]
	if len(answers) == 0 {
		return 0, nil
	}

	answer := answers[0]
	if len(answers) > 1 {
		w.cardsRemaining[appID] = answers[1:]
	}
	return answer, nil
}

func (w *fakeWebClient) GetAppDetails(ctx context.Context, appID uint32) (*AppDetails, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if details, ok := w.appDetails[appID]; ok {
		return details, nil
	}
	return &AppDetails{AppID: appID, Type: "game", ReleaseState: "released"}, nil
}

func (w *fakeWebClient) GetPackageContents(ctx context.Context, packageID uint32) ([]uint32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.packageLookups++
	return w.packageContents[packageID], nil
}

func (w *fakeWebClient) RedeemKey(ctx context.Context, key string) (*PurchaseResponse, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.redeemedKeys = append(w.redeemedKeys, key)

	if len(w.redeemResults) > 0 {
		response := w.redeemResults[0]
		w.redeemResults = w.redeemResults[1:]
		return response, nil
	}

	return &PurchaseResponse{Result: ResultOK, Detail: PurchaseDetailOK}, nil
}

func (w *fakeWebClient) RedeemWalletCode(ctx context.Context, code string) (*PurchaseResponse, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.walletCodes = append(w.walletCodes, code)

	if len(w.walletResults) > 0 {
		response := w.walletResults[0]
		w.walletResults = w.walletResults[1:]
		return response, nil
	}

	return &PurchaseResponse{Result: ResultOK, Detail: PurchaseDetailOK}, nil
}

func (w *fakeWebClient) GetTradeOffers(ctx context.Context) ([]TradeOffer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	offers := w.tradeOffers
	w.tradeOffers = nil
	return offers, nil
}

func (w *fakeWebClient) AcceptTradeOffer(ctx context.Context, offerID uint64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.acceptedTrades = append(w.acceptedTrades, offerID)
	return true, nil
}

func (w *fakeWebClient) DeclineTradeOffer(ctx context.Context, offerID uint64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.declinedTrades = append(w.declinedTrades, offerID)
	return true, nil
}

func (w *fakeWebClient) GetInventory(ctx context.Context, steamID uint64, appID uint32, contextID uint64) ([]InventoryAsset, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	assets := make([]InventoryAsset, len(w.inventory))
	copy(assets, w.inventory)
	return assets, nil
}

func (w *fakeWebClient) SendTradeOffer(ctx context.Context, targetSteamID uint64, assets []InventoryAsset, token string) ([]uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sentOffers++
	return w.sendConfIDs, nil
}

func (w *fakeWebClient) GetDigitalGiftCards(ctx context.Context) ([]uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	giftCards := make([]uint64, len(w.giftCards))
	copy(giftCards, w.giftCards)
	return giftCards, nil
}

func (w *fakeWebClient) AcceptDigitalGiftCard(ctx context.Context, giftCardID uint64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.acceptedGifts = append(w.acceptedGifts, giftCardID)
	return true, nil
}

func (w *fakeWebClient) AcceptGuestPass(ctx context.Context, guestPassID uint64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.acceptedPasses = append(w.acceptedPasses, guestPassID)
	return true, nil
}

func (w *fakeWebClient) GetConfirmations(ctx context.Context) ([]Confirmation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	confirmations := make([]Confirmation, len(w.confirmations))
	copy(confirmations, w.confirmations)
	return confirmations, nil
}

func (w *fakeWebClient) HandleConfirmations(ctx context.Context, confirmations []Confirmation, accept bool) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handledConfs += len(confirmations)
	return true, nil
}

func (w *fakeWebClient) JoinGroup(ctx context.Context, groupID uint64) error {
	return nil
}

// fakedInput answers credential prompts from a fixed table.
type fakedInput struct {
	answers map[InputType]string
}

func (i *fakedInput) Request(botName string, inputType InputType) string {
	return i.answers[inputType]
}

func newTestSettings(t *testing.T) *Settings {
	t.Helper()

	return &Settings{
		Port:                         "0",
		ConfigDir:                    t.TempDir(),
		LoginLimiterDelay:            time.Millisecond,
		GiftsLimiterDelay:            0,
		ConfirmationsLimiterDelay:    0,
		ConnectionTimeout:            time.Hour,
		FarmingRecheckDelay:          5 * time.Millisecond,
		InvalidCredentialDelay:       5 * time.Millisecond,
		RedeemCooldown:               25 * time.Millisecond,
		IdleFarmingPeriod:            0,
		FileWatchQuietPeriod:         10 * time.Millisecond,
		MaxConnectionsPerHost:        4,
		WebRequestsPerSecond:         1000,
		MaxGamesFarmedConcurrently:   4,
		MaxInvalidCredentialFailures: 3,
		UntrustedAppIDs:              []uint32{440, 570, 730},
		WebAPIBaseURL:                "http://127.0.0.1:0",
	}
}

func newTestApp(t *testing.T, session *fakeSession, web *fakeWebClient) *AppContext {
	t.Helper()

	app := NewAppContext(newTestSettings(t), nil, &fakedInput{})
	app.NewSession = func(botName string, index int) (SteamSession, error) {
		return session, nil
	}
	app.NewWebClient = func(botName string, index int) (WebClient, error) {
		return web, nil
	}

	t.Cleanup(app.Shutdown)
	return app
}

func testBotConfig() *BotConfig {
	return &BotConfig{
		Enabled:       true,
		SteamLogin:    "tester",
		SteamPassword: "hunter2",
	}
}

func newTestBot(t *testing.T, app *AppContext, config *BotConfig) *Bot {
	t.Helper()

	if config == nil {
		config = testBotConfig()
	}

	bot, err := NewBot(app, "alpha", config, 0)
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}

	// Keep test reconnect cycles fast
	bot.reconnectDelay = time.Millisecond

	t.Cleanup(func() { bot.Stop(true) })
	return bot
}

func waitFor(t *testing.T, condition func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatal(message)
}
