package main

import (
	"testing"
)

func TestInvalidCredentialsStopBotPermanently(t *testing.T) {
	session := newFakeSession(ResultInvalidPassword, ResultInvalidPassword, ResultInvalidPassword)
	app := newTestApp(t, session, newFakeWebClient())
	bot := newTestBot(t, app, nil)

	bot.Start()

	waitFor(t, func() bool {
		return session.logOnCount() == 3 && !bot.KeepRunning()
	}, "bot did not stop after repeated credential failures")

	bot.failureMutex.Lock()
	failures := bot.invalidCredentialFailures
	bot.failureMutex.Unlock()

	if failures != 0 {
		t.Errorf("failure counter not reset after stop, got %d", failures)
	}

	if bot.State() != StateStopped {
		t.Errorf("expected stopped state, got %v", bot.State())
	}
}

func TestExpiredLoginKeyClearedBeforeCountingFailures(t *testing.T) {
	session := newFakeSession(ResultInvalidPassword, ResultOK)
	app := newTestApp(t, session, newFakeWebClient())
	bot := newTestBot(t, app, nil)

	bot.Database().SetLoginKey("stale-key")

	bot.Start()

	waitFor(t, func() bool {
		return session.logOnCount() == 2 && bot.IsConnectedAndLoggedOn()
	}, "bot did not recover after clearing the stale login key")

	if got := session.logOnAt(0).LoginKey; got != "stale-key" {
		t.Errorf("first logon should use the cached key, got %q", got)
	}

	if got := session.logOnAt(1).LoginKey; got != "" {
		t.Errorf("second logon should not reuse the cleared key, got %q", got)
	}

	if got := bot.Database().GetLoginKey(); got != "" {
		t.Errorf("stale key should be removed from the database, got %q", got)
	}

	bot.failureMutex.Lock()
	failures := bot.invalidCredentialFailures
	bot.failureMutex.Unlock()

	if failures != 0 {
		t.Errorf("clearing a stale key must not count as a credential failure, got %d", failures)
	}
}

func TestSteamGuardCodePromptedAndReplayed(t *testing.T) {
	session := newFakeSession(ResultAccountLogonDenied, ResultOK)
	app := newTestApp(t, session, newFakeWebClient())
	app.Input = &fakedInput{answers: map[InputType]string{InputSteamGuard: "ABCDE"}}
	bot := newTestBot(t, app, nil)

	bot.Start()

	waitFor(t, func() bool {
		return session.logOnCount() == 2 && bot.IsConnectedAndLoggedOn()
	}, "bot did not log on with the prompted Steam Guard code")

	if got := session.logOnAt(0).AuthCode; got != "" {
		t.Errorf("first logon should carry no auth code, got %q", got)
	}

	if got := session.logOnAt(1).AuthCode; got != "ABCDE" {
		t.Errorf("second logon should carry the prompted code, got %q", got)
	}
}

func TestLicensePackagesResolveThroughSharedCache(t *testing.T) {
	web := newFakeWebClient()
	web.packageContents[77] = []uint32{500, 501}

	bot, _ := newFarmingBot(t, web, nil)
	bot.app.GlobalDB = tempGlobalDatabase(t)

	bot.resolveOwnedApps([]uint32{77})

	if !bot.OwnsApp(500) || bot.OwnsApp(999) {
		t.Fatal("license list not resolved into owned apps")
	}

	// Second resolution is served from the shared cache
	bot.resolveOwnedApps([]uint32{77})

	web.mu.Lock()
	lookups := web.packageLookups
	web.mu.Unlock()

	if lookups != 1 {
		t.Errorf("expected one catalog lookup, got %d", lookups)
	}
}

func TestChatCommandsRestrictedToMaster(t *testing.T) {
	session := newFakeSession(ResultOK)
	app := newTestApp(t, session, newFakeWebClient())

	config := testBotConfig()
	config.SteamMasterID = 0x0110000100000001
	bot := newTestBot(t, app, config)

	bot.Start()

	waitFor(t, bot.IsConnectedAndLoggedOn, "bot did not log on")

	session.emit(ChatMessageEvent{SenderID: 0x0110000100000099, Message: "!status"})
	session.emit(ChatMessageEvent{SenderID: config.SteamMasterID, Message: "!status"})

	waitFor(t, func() bool {
		session.mu.Lock()
		defer session.mu.Unlock()
		return len(session.sentMessages) >= 1
	}, "master command received no reply")

	session.mu.Lock()
	replies := len(session.sentMessages)
	session.mu.Unlock()

	if replies != 1 {
		t.Errorf("expected exactly one reply (master only), got %d", replies)
	}
}

func TestStoppedBotDropsLateConnect(t *testing.T) {
	session := newFakeSession(ResultOK)
	app := newTestApp(t, session, newFakeWebClient())
	bot := newTestBot(t, app, nil)

	// Stop has already run; a connect completing afterwards must not
	// submit a logon
	bot.sessionMutex.Lock()
	bot.session = session
	bot.sessionMutex.Unlock()

	bot.onConnected()

	session.mu.Lock()
	logOns := len(session.logOns)
	disconnects := session.disconnects
	session.mu.Unlock()

	if logOns != 0 {
		t.Errorf("stopped bot submitted %d logon(s)", logOns)
	}
	if disconnects != 1 {
		t.Errorf("expected the late session to be dropped, got %d disconnects", disconnects)
	}
	if bot.connected.Load() {
		t.Error("stopped bot must not record the connection")
	}
}

func TestParentalPINPromptedWhenSessionLocked(t *testing.T) {
	session := newFakeSession(ResultOK)
	web := newFakeWebClient()
	web.parentalLocked = true

	app := newTestApp(t, session, web)
	app.Input = &fakedInput{answers: map[InputType]string{InputParentalPIN: "1234"}}
	bot := newTestBot(t, app, nil)

	bot.Start()

	waitFor(t, func() bool {
		web.mu.Lock()
		defer web.mu.Unlock()
		return len(web.parentalPINs) == 1
	}, "parental unlock not attempted")

	web.mu.Lock()
	pin := web.parentalPINs[0]
	locked := web.parentalLocked
	web.mu.Unlock()

	if pin != "1234" {
		t.Errorf("expected prompted PIN to be submitted, got %q", pin)
	}
	if locked {
		t.Error("session still locked after unlock")
	}
}
