package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Connection/backoff constants
const (
	// How often the callback pump re-checks the keep-running flag
	CallbackPollInterval = 500 * time.Millisecond

	InitialReconnectDelay  = 10 * time.Second
	MaxReconnectDelay      = 5 * time.Minute
	ReconnectBackoffFactor = 1.5

	// Longest chat message fragment sent in one piece
	MaxMessageFragmentLength = 2048
)

// ConnectionState is the per-bot connection lifecycle state.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateLoggingOn
	StateLoggedOn
	StateLogonDenied
	StateStopped
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateLoggingOn:
		return "logging_on"
	case StateLoggedOn:
		return "logged_on"
	case StateLogonDenied:
		return "logon_denied"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Bot drives one Steam account: its connection state machine, farming
// scheduler, trade coordinator and background redeemer. Owned by the
// registry; never reused after unregistration.
type Bot struct {
	Name string

	app      *AppContext
	database *BotDatabase
	web      WebClient

	farmer   *CardsFarmer
	trading  *TradeCoordinator
	redeemer *BackgroundRedeemer
	actions  *Actions

	// Proxy session index assigned by the registry
	index int

	config      *BotConfig
	configMutex sync.RWMutex

	session      SteamSession
	sessionMutex sync.Mutex

	keepRunning atomic.Bool
	connected   atomic.Bool
	loggedOn    atomic.Bool

	// One in-flight connection attempt per bot
	connectMutex sync.Mutex
	// Prevents overlapping pump invocations
	pumpMutex sync.Mutex
	// Serializes outbound chat-message fragments
	sendMutex sync.Mutex

	stateMutex sync.Mutex
	state      ConnectionState

	steamID        atomic.Uint64
	accountFlags   atomic.Uint32
	walletBalance  atomic.Int64
	walletCurrency atomic.Value // string
	playingBlocked atomic.Bool

	// Credential state for the next logon attempt
	credMutex     sync.Mutex
	authCode      string
	twoFactorCode string
	requiredInput InputType
	inputRequired bool

	// Consecutive invalid-credential results; past the threshold the
	// bot stops for good
	failureMutex              sync.Mutex
	invalidCredentialFailures int

	// Apps owned through the current license list; nil until the first
	// license list arrives
	ownedMutex sync.RWMutex
	ownedApps  map[uint32]struct{}

	// Delay override for the next reconnect, set by the login-result
	// handler and consumed by the disconnect handler
	nextReconnectDelay time.Duration

	reconnectDelay    time.Duration
	reconnectAttempts int

	watchdogMutex sync.Mutex
	watchdog      *time.Timer

	lifecycleMutex sync.Mutex
	runCtx         context.Context
	runCancel      context.CancelFunc
}

// NewBot constructs a bot from its validated config. The bot is
// created stopped; the registry calls Start.
func NewBot(app *AppContext, name string, config *BotConfig, index int) (*Bot, error) {
	database, err := LoadBotDatabase(app.Settings.BotDatabasePath(name))
	if err != nil {
		return nil, err
	}

	web, err := app.NewWebClient(name, index)
	if err != nil {
		return nil, err
	}

	b := &Bot{
		Name:           name,
		app:            app,
		database:       database,
		web:            web,
		config:         config,
		index:          index,
		state:          StateDisconnected,
		reconnectDelay: InitialReconnectDelay,
	}
	b.walletCurrency.Store("")

	b.farmer = NewCardsFarmer(b)
	if config.Paused {
		b.farmer.paused.Store(true)
	}
	b.trading = NewTradeCoordinator(b)
	b.redeemer = NewBackgroundRedeemer(b)
	b.actions = NewActions(b)

	return b, nil
}

// Actions returns the bot's user-facing action facade.
func (b *Bot) Actions() *Actions {
	return b.actions
}

// Config returns the current config snapshot.
func (b *Bot) Config() *BotConfig {
	b.configMutex.RLock()
	defer b.configMutex.RUnlock()
	return b.config
}

// SetConfig swaps the config snapshot (hot reload path).
func (b *Bot) SetConfig(config *BotConfig) {
	b.configMutex.Lock()
	defer b.configMutex.Unlock()
	b.config = config
}

// Database returns the bot's persisted state.
func (b *Bot) Database() *BotDatabase {
	return b.database
}

// Farmer returns the bot's farming scheduler.
func (b *Bot) Farmer() *CardsFarmer {
	return b.farmer
}

// Trading returns the bot's trade coordinator.
func (b *Bot) Trading() *TradeCoordinator {
	return b.trading
}

// Redeemer returns the bot's background redeemer.
func (b *Bot) Redeemer() *BackgroundRedeemer {
	return b.redeemer
}

// State returns the current connection state.
func (b *Bot) State() ConnectionState {
	b.stateMutex.Lock()
	defer b.stateMutex.Unlock()
	return b.state
}

func (b *Bot) setState(state ConnectionState) {
	b.stateMutex.Lock()
	b.state = state
	b.stateMutex.Unlock()
}

// KeepRunning reports whether the bot wants to stay connected.
func (b *Bot) KeepRunning() bool {
	return b.keepRunning.Load()
}

// IsConnectedAndLoggedOn reports whether the bot can issue SDK calls.
func (b *Bot) IsConnectedAndLoggedOn() bool {
	return b.connected.Load() && b.loggedOn.Load()
}

// SteamID returns the logged-on account ID, 0 before first logon.
func (b *Bot) SteamID() uint64 {
	return b.steamID.Load()
}

// PlayingBlocked reports whether another session holds the library.
func (b *Bot) PlayingBlocked() bool {
	return b.playingBlocked.Load()
}

// RunContext returns the context covering the current run; cancelled
// on Stop.
func (b *Bot) RunContext() context.Context {
	b.lifecycleMutex.Lock()
	defer b.lifecycleMutex.Unlock()

	if b.runCtx == nil {
		return context.Background()
	}
	return b.runCtx
}

// Start launches the bot: callback pump plus first connection attempt.
// No-op if already running.
func (b *Bot) Start() {
	if !b.keepRunning.CompareAndSwap(false, true) {
		return
	}

	LogInfo("Bot %s: Starting...", b.Name)

	b.lifecycleMutex.Lock()
	b.runCtx, b.runCancel = context.WithCancel(b.app.Context())
	b.lifecycleMutex.Unlock()

	session, err := b.app.NewSession(b.Name, b.index)
	if err != nil {
		LogError("Bot %s: Failed to create Steam session: %v", b.Name, err)
		b.keepRunning.Store(false)
		return
	}

	b.sessionMutex.Lock()
	b.session = session
	b.sessionMutex.Unlock()

	go b.pump(session)
	go b.Connect(false)
}

// Stop shuts the bot down. Idempotent. Unless skipShutdownEvent is
// set, a process-wide "anything still running?" check fires afterwards.
func (b *Bot) Stop(skipShutdownEvent bool) {
	if !b.keepRunning.CompareAndSwap(true, false) {
		return
	}

	LogInfo("Bot %s: Stopping...", b.Name)

	b.cancelWatchdog()
	b.farmer.StopFarming()
	b.redeemer.Stop()

	b.lifecycleMutex.Lock()
	if b.runCancel != nil {
		b.runCancel()
	}
	b.lifecycleMutex.Unlock()

	if session := b.currentSession(); session != nil && b.connected.Load() {
		session.Disconnect()
	}

	b.loggedOn.Store(false)
	b.setState(StateStopped)

	if !skipShutdownEvent && b.app.OnLastBotStopped != nil && !b.app.Registry.AnyBotRunning() {
		b.app.OnLastBotStopped()
	}
}

func (b *Bot) currentSession() SteamSession {
	b.sessionMutex.Lock()
	defer b.sessionMutex.Unlock()
	return b.session
}

// Connect issues one connection attempt, pacing it through the shared
// login limiter and arming the connection-failure watchdog. Only one
// attempt can be in flight per bot.
func (b *Bot) Connect(force bool) {
	if !force && (!b.keepRunning.Load() || b.connected.Load()) {
		return
	}

	b.connectMutex.Lock()
	defer b.connectMutex.Unlock()

	if !b.keepRunning.Load() || b.connected.Load() {
		return
	}

	session := b.currentSession()
	if session == nil {
		return
	}

	if err := b.app.LoginLimiter.Wait(b.RunContext()); err != nil {
		return
	}

	LogInfo("Bot %s: Connecting to Steam...", b.Name)
	b.setState(StateConnecting)
	b.armWatchdog()

	session.Connect()
}

// armWatchdog schedules a full bot recycle unless a terminal login
// outcome cancels it first.
func (b *Bot) armWatchdog() {
	b.watchdogMutex.Lock()
	defer b.watchdogMutex.Unlock()

	if b.watchdog != nil {
		b.watchdog.Stop()
	}

	b.watchdog = time.AfterFunc(b.app.Settings.ConnectionTimeout, func() {
		LogWarning("Bot %s: No login outcome within %v, recycling bot", b.Name, b.app.Settings.ConnectionTimeout)
		go b.app.Registry.RecycleBot(b.Name)
	})
}

func (b *Bot) cancelWatchdog() {
	b.watchdogMutex.Lock()
	defer b.watchdogMutex.Unlock()

	if b.watchdog != nil {
		b.watchdog.Stop()
		b.watchdog = nil
	}
}

// pump continuously drains the session's callback queue while the bot
// keeps running or the transport is still connected.
func (b *Bot) pump(session SteamSession) {
	b.pumpMutex.Lock()
	defer b.pumpMutex.Unlock()

	ticker := time.NewTicker(CallbackPollInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-session.Events():
			if !ok {
				return
			}
			b.handleEvent(event)
		case <-ticker.C:
			if !b.keepRunning.Load() && !b.connected.Load() {
				return
			}
		}
	}
}

func (b *Bot) handleEvent(event interface{}) {
	switch e := event.(type) {
	case ConnectedEvent:
		b.onConnected()
	case DisconnectedEvent:
		b.onDisconnected(e.UserInitiated)
	case LoggedOnEvent:
		b.onLoggedOn(e)
	case LoggedOffEvent:
		b.onLoggedOff(e)
	case LoginKeyEvent:
		b.database.SetLoginKey(e.LoginKey)
	case MachineAuthEvent:
		b.database.SetSentryHash(e.Hash)
	case LicenseListEvent:
		b.onLicenseList(e)
	case GuestPassesEvent:
		go b.trading.AcceptGuestPasses(b.RunContext(), e.GuestPassIDs)
	case NotificationsEvent:
		b.onNotifications(e)
	case WalletEvent:
		b.walletBalance.Store(e.Balance)
		b.walletCurrency.Store(e.Currency)
	case ChatMessageEvent:
		go b.handleMessage(e.SenderID, e.Message)
	case FriendRequestEvent:
		b.onFriendRequest(e.SteamID)
	}
}

// onConnected gathers credentials and submits the logon request. The
// watchdog stays disarmed only briefly: a missing login outcome is
// caught by the one armed in Connect.
func (b *Bot) onConnected() {
	if !b.keepRunning.Load() {
		// Stop raced the connect; drop the session instead of logging on
		if session := b.currentSession(); session != nil {
			session.Disconnect()
		}
		return
	}

	LogInfo("Bot %s: Connected to Steam", b.Name)
	b.connected.Store(true)
	b.setState(StateConnected)

	config := b.Config()
	loginKey := b.database.GetLoginKey()

	login := config.SteamLogin
	if login == "" {
		login = b.app.Input.Request(b.Name, InputLogin)
		if login == "" {
			LogWarning("Bot %s: No login provided, stopping", b.Name)
			b.Stop(false)
			return
		}
	}

	password := config.SteamPassword
	if password == "" && loginKey == "" {
		password = b.app.Input.Request(b.Name, InputPassword)
		if password == "" {
			LogWarning("Bot %s: No password provided, stopping", b.Name)
			b.Stop(false)
			return
		}
	}

	b.credMutex.Lock()
	if b.inputRequired {
		required := b.requiredInput
		b.credMutex.Unlock()

		code := b.app.Input.Request(b.Name, required)
		if code == "" {
			LogWarning("Bot %s: Required %s not provided, stopping", b.Name, required)
			b.Stop(false)
			return
		}

		b.credMutex.Lock()
		switch required {
		case InputSteamGuard:
			b.authCode = code
		case InputTwoFactor:
			b.twoFactorCode = code
		}
		b.inputRequired = false
	}

	details := LogOnDetails{
		Username:      login,
		Password:      password,
		AuthCode:      b.authCode,
		TwoFactorCode: b.twoFactorCode,
		LoginKey:      loginKey,
	}
	b.credMutex.Unlock()

	LogInfo("Bot %s: Logging on...", b.Name)
	b.setState(StateLoggingOn)

	if session := b.currentSession(); session != nil {
		session.LogOn(details)
	}
}

// onLoggedOn dispatches on the login result. This is the terminal
// outcome the watchdog waits for.
func (b *Bot) onLoggedOn(e LoggedOnEvent) {
	b.cancelWatchdog()

	switch e.Result {
	case ResultOK:
		LogInfo("Bot %s: Successfully logged on", b.Name)
		b.loggedOn.Store(true)
		b.setState(StateLoggedOn)
		b.steamID.Store(e.SteamID)
		b.accountFlags.Store(e.AccountFlags)

		b.failureMutex.Lock()
		b.invalidCredentialFailures = 0
		b.nextReconnectDelay = 0
		b.failureMutex.Unlock()

		b.reconnectDelay = InitialReconnectDelay
		b.reconnectAttempts = 0

		// One-time codes are spent now
		b.credMutex.Lock()
		b.authCode = ""
		b.twoFactorCode = ""
		b.inputRequired = false
		b.credMutex.Unlock()

		go b.initModules()

	case ResultAccountLogonDenied:
		LogWarning("Bot %s: Logon denied, Steam Guard code required", b.Name)
		b.setState(StateLogonDenied)
		b.setRequiredInput(InputSteamGuard)

	case ResultAccountLoginDeniedNeedTwoFactor:
		LogWarning("Bot %s: Logon denied, 2FA code required", b.Name)
		b.setState(StateLogonDenied)
		b.setRequiredInput(InputTwoFactor)

	case ResultInvalidPassword, ResultTwoFactorCodeMismatch:
		b.onInvalidCredentials(e.Result)

	case ResultRateLimitExceeded:
		LogWarning("Bot %s: Login rate limited, will retry after %v", b.Name, b.app.Settings.InvalidCredentialDelay)
		b.setReconnectDelay(b.app.Settings.InvalidCredentialDelay)

	case ResultLoggedInElsewhere, ResultLogonSessionReplaced:
		LogWarning("Bot %s: Account is being used elsewhere", b.Name)
		b.setReconnectDelay(b.app.Settings.InvalidCredentialDelay)

	case ResultAccountDisabled:
		LogError("Bot %s: Account is disabled, stopping permanently", b.Name)
		b.Stop(false)

	case ResultServiceUnavailable, ResultTryAnotherCM, ResultTimeout, ResultNoConnection:
		LogWarning("Bot %s: Unable to log on: %v", b.Name, e.Result)

	default:
		// Unknown server-side value, retry conservatively
		LogWarning("Bot %s: Unexpected login result: %v", b.Name, e.Result)
	}
}

// onInvalidCredentials clears an expired login key on first failure,
// and stops the bot for good once plain credentials keep failing.
func (b *Bot) onInvalidCredentials(result EResult) {
	if b.database.GetLoginKey() != "" {
		LogInfo("Bot %s: Removing expired login key", b.Name)
		b.database.SetLoginKey("")
		return
	}

	if result == ResultTwoFactorCodeMismatch {
		b.credMutex.Lock()
		b.twoFactorCode = ""
		b.credMutex.Unlock()
	}

	b.failureMutex.Lock()
	b.invalidCredentialFailures++
	failures := b.invalidCredentialFailures
	b.failureMutex.Unlock()

	if failures >= b.app.Settings.MaxInvalidCredentialFailures {
		LogError("Bot %s: %d consecutive credential failures, stopping permanently", b.Name, failures)

		// Clean slate for a manual restart
		b.failureMutex.Lock()
		b.invalidCredentialFailures = 0
		b.failureMutex.Unlock()

		b.Stop(false)
		return
	}

	LogWarning("Bot %s: Invalid credentials (%v), failure %d/%d", b.Name, result, failures, b.app.Settings.MaxInvalidCredentialFailures)
	b.setReconnectDelay(b.app.Settings.InvalidCredentialDelay)
}

func (b *Bot) setRequiredInput(inputType InputType) {
	b.credMutex.Lock()
	b.requiredInput = inputType
	b.inputRequired = true
	b.credMutex.Unlock()
}

func (b *Bot) setReconnectDelay(delay time.Duration) {
	b.failureMutex.Lock()
	b.nextReconnectDelay = delay
	b.failureMutex.Unlock()
}

// initModules runs post-login initialization off the pump goroutine.
func (b *Bot) initModules() {
	ctx := b.RunContext()
	config := b.Config()

	if err := b.web.RefreshSession(ctx, b.SteamID()); err != nil {
		if errors.Is(err, ErrParentalLocked) {
			if !b.unlockParental(ctx) {
				return
			}
		} else {
			LogWarning("Bot %s: Web session refresh failed: %v", b.Name, err)
		}
	}

	session := b.currentSession()
	if session != nil && !config.OfflineFarming {
		session.SetPersonaOnline()
	}

	if config.SteamMasterClanID != 0 {
		if err := b.web.JoinGroup(ctx, config.SteamMasterClanID); err != nil {
			LogWarning("Bot %s: Failed to join master clan: %v", b.Name, err)
		}
	}

	b.trading.CheckTrades(ctx)

	if config.AcceptGifts {
		go b.trading.AcceptDigitalGifts(ctx)
	}

	if b.database.RedeemQueueLength() > 0 {
		go b.redeemer.RunQueue()
	}

	go b.farmer.StartFarming()
}

// unlockParental lifts a Family View lock on the web session, using
// the configured PIN or prompting for one. Returns false when the
// session stays locked.
func (b *Bot) unlockParental(ctx context.Context) bool {
	pin := b.Config().SteamParentalCode
	if pin == "" {
		pin = b.app.Input.Request(b.Name, InputParentalPIN)
	}

	if pin == "" {
		LogWarning("Bot %s: No parental PIN provided, stopping", b.Name)
		b.Stop(false)
		return false
	}

	if err := b.web.UnlockParental(ctx, pin); err != nil {
		LogWarning("Bot %s: Parental unlock failed: %v", b.Name, err)
		return false
	}

	return true
}

// onDisconnected resets transient state and schedules a reconnect
// unless the disconnect was ours.
func (b *Bot) onDisconnected(userInitiated bool) {
	LogInfo("Bot %s: Disconnected from Steam", b.Name)

	b.cancelWatchdog()
	b.connected.Store(false)
	b.loggedOn.Store(false)
	b.playingBlocked.Store(false)

	// Gifts are safe to reconsider on a fresh session
	b.trading.OnDisconnected()
	b.farmer.OnDisconnected()

	if !b.keepRunning.Load() {
		// Stop already recorded the terminal state
		return
	}

	b.setState(StateDisconnected)

	if userInitiated {
		return
	}

	b.failureMutex.Lock()
	delay := b.nextReconnectDelay
	b.nextReconnectDelay = 0
	b.failureMutex.Unlock()

	if delay == 0 {
		delay = b.calculateBackoff()
	}

	LogInfo("Bot %s: Reconnecting in %v (attempt %d)", b.Name, delay, b.reconnectAttempts)

	select {
	case <-time.After(delay):
	case <-b.RunContext().Done():
		return
	}

	b.Connect(true)
}

func (b *Bot) calculateBackoff() time.Duration {
	b.reconnectAttempts++
	if b.reconnectAttempts > 1 {
		b.reconnectDelay = time.Duration(float64(b.reconnectDelay) * ReconnectBackoffFactor)
		if b.reconnectDelay > MaxReconnectDelay {
			b.reconnectDelay = MaxReconnectDelay
		}
	}

	return b.reconnectDelay
}

func (b *Bot) onLoggedOff(e LoggedOffEvent) {
	LogInfo("Bot %s: Logged off of Steam: %v", b.Name, e.Result)
	b.loggedOn.Store(false)

	switch e.Result {
	case ResultLoggedInElsewhere, ResultLogonSessionReplaced:
		b.playingBlocked.Store(true)
		b.setReconnectDelay(b.app.Settings.InvalidCredentialDelay)
	}
}

func (b *Bot) onLicenseList(e LicenseListEvent) {
	LogDebug("Bot %s: License list changed, %d packages", b.Name, len(e.PackageIDs))

	go func() {
		b.resolveOwnedApps(e.PackageIDs)

		// New entitlements may be farmable, recalculate from scratch
		if b.IsConnectedAndLoggedOn() {
			b.farmer.RestartFarming()
		}
	}()
}

// resolveOwnedApps expands owned packages into owned app IDs, served
// from the shared package cache and backfilled from the catalog.
func (b *Bot) resolveOwnedApps(packageIDs []uint32) {
	ctx := b.RunContext()
	owned := make(map[uint32]struct{})

	for _, packageID := range packageIDs {
		var appIDs []uint32

		if db := b.app.GlobalDB; db != nil {
			cached, found, err := db.GetPackageApps(packageID)
			if err != nil {
				LogWarning("Bot %s: Package cache lookup failed for %d: %v", b.Name, packageID, err)
			} else if found {
				appIDs = cached
			}
		}

		if appIDs == nil {
			fetched, err := b.web.GetPackageContents(ctx, packageID)
			if err != nil {
				LogWarning("Bot %s: Package lookup failed for %d: %v", b.Name, packageID, err)
				continue
			}
			appIDs = fetched

			if db := b.app.GlobalDB; db != nil {
				if err := db.SavePackageApps(packageID, appIDs); err != nil {
					LogWarning("Bot %s: Package cache write failed for %d: %v", b.Name, packageID, err)
				}
			}
		}

		for _, appID := range appIDs {
			owned[appID] = struct{}{}
		}
	}

	b.ownedMutex.Lock()
	b.ownedApps = owned
	b.ownedMutex.Unlock()
}

// OwnsApp reports whether the account's license list covers the app.
// Optimistic before the first license list arrives.
func (b *Bot) OwnsApp(appID uint32) bool {
	b.ownedMutex.RLock()
	defer b.ownedMutex.RUnlock()

	if b.ownedApps == nil {
		return true
	}

	_, owned := b.ownedApps[appID]
	return owned
}

func (b *Bot) onNotifications(e NotificationsEvent) {
	ctx := b.RunContext()

	if e.TradeOffers {
		b.trading.CheckTrades(ctx)
	}

	if e.Gifts && b.Config().AcceptGifts {
		go b.trading.AcceptDigitalGifts(ctx)
	}
}

func (b *Bot) onFriendRequest(steamID uint64) {
	if steamID != b.Config().SteamMasterID {
		return
	}

	if session := b.currentSession(); session != nil {
		LogInfo("Bot %s: Accepting friend request from master", b.Name)
		session.AddFriend(steamID)
	}
}

// PlayGames tells the SDK which apps we are idling. An empty list
// stops playing.
func (b *Bot) PlayGames(appIDs []uint32) {
	if session := b.currentSession(); session != nil {
		session.PlayGames(appIDs)
	}
}

// SendChatMessage delivers a message to the given account, splitting
// long messages into fragments that are never interleaved with other
// sends from this bot.
func (b *Bot) SendChatMessage(steamID uint64, message string) {
	if steamID == 0 || message == "" {
		return
	}

	session := b.currentSession()
	if session == nil {
		return
	}

	b.sendMutex.Lock()
	defer b.sendMutex.Unlock()

	for len(message) > 0 {
		fragment := message
		if len(fragment) > MaxMessageFragmentLength {
			fragment = fragment[:MaxMessageFragmentLength]
		}
		message = message[len(fragment):]

		session.SendChatMessage(steamID, fragment)
	}
}

// handleMessage processes a chat message from the master: a bare CD
// key queues and redeems it, a !-prefixed line goes through the
// command dispatcher.
func (b *Bot) handleMessage(steamID uint64, message string) {
	if steamID == 0 || steamID != b.Config().SteamMasterID {
		return
	}

	message = strings.TrimSpace(message)

	if IsValidCdKey(message) {
		b.database.EnqueueRedeemKeys([]RedeemQueueEntry{{Key: message, Name: message}})
		go b.redeemer.RunQueue()
		b.SendChatMessage(steamID, "Key queued for redemption")
		return
	}

	if !strings.HasPrefix(message, "!") {
		return
	}

	response := DispatchCommand(b.app, b, strings.TrimPrefix(message, "!"))
	if response != "" {
		b.SendChatMessage(steamID, response)
	}
}
