package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// BotRegistry owns every Bot in the process. Bots are registered from
// config files, recycled on watchdog timeouts and unregistered when
// their config disappears. A Bot instance is never reused after
// unregistration.
type BotRegistry struct {
	app *AppContext

	mutex sync.RWMutex
	bots  map[string]*Bot

	// Monotonic counter feeding per-account proxy session indices
	nextIndex int
}

func NewBotRegistry(app *AppContext) *BotRegistry {
	return &BotRegistry{
		app:  app,
		bots: make(map[string]*Bot),
	}
}

// GetBot returns the named bot, nil when unknown.
func (r *BotRegistry) GetBot(name string) *Bot {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.bots[name]
}

// BotNames returns all registered names, sorted.
func (r *BotRegistry) BotNames() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.bots))
	for name := range r.bots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AnyBotRunning reports whether at least one bot still wants to run.
func (r *BotRegistry) AnyBotRunning() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, bot := range r.bots {
		if bot.KeepRunning() {
			return true
		}
	}
	return false
}

// LoadAll scans the config directory and registers every enabled bot.
func (r *BotRegistry) LoadAll() error {
	entries, err := os.ReadDir(r.app.Settings.ConfigDir)
	if err != nil {
		return fmt.Errorf("cannot read config directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name, ok := botNameFromConfigPath(entry.Name())
		if !ok {
			continue
		}

		if err := r.RegisterBot(name); err != nil {
			LogError("Bot %s: Registration failed: %v", name, err)
		}
	}

	r.mutex.RLock()
	count := len(r.bots)
	r.mutex.RUnlock()

	LogInfo("Registered %d bot(s)", count)
	return nil
}

// botNameFromConfigPath maps a config file name to a bot name,
// rejecting non-YAML files and reserved names.
func botNameFromConfigPath(fileName string) (string, bool) {
	base := filepath.Base(fileName)

	ext := filepath.Ext(base)
	if ext != ".yaml" && ext != ".yml" {
		return "", false
	}

	name := strings.TrimSuffix(base, ext)
	if name == "" || strings.HasPrefix(name, ".") {
		return "", false
	}

	return name, true
}

// RegisterBot loads the named bot's config, builds the bot and starts
// it. Disabled configs are skipped silently.
func (r *BotRegistry) RegisterBot(name string) error {
	config, err := LoadBotConfig(r.app.Settings.BotConfigPath(name))
	if err != nil {
		return err
	}

	if !config.Enabled {
		LogInfo("Bot %s: Disabled, skipping", name)
		return nil
	}

	r.mutex.Lock()
	if _, exists := r.bots[name]; exists {
		r.mutex.Unlock()
		return fmt.Errorf("bot %s already registered", name)
	}

	index := r.nextIndex
	r.nextIndex++
	r.mutex.Unlock()

	bot, err := NewBot(r.app, name, config, index)
	if err != nil {
		return err
	}

	r.mutex.Lock()
	r.bots[name] = bot
	r.mutex.Unlock()

	bot.Start()
	return nil
}

// UnregisterBot stops and removes the named bot. The instance is
// discarded, never restarted.
func (r *BotRegistry) UnregisterBot(name string) {
	r.mutex.Lock()
	bot := r.bots[name]
	delete(r.bots, name)
	r.mutex.Unlock()

	if bot == nil {
		return
	}

	bot.Stop(true)
	ClearProxyForAccount(name)
}

// RecycleBot replaces a wedged bot with a freshly constructed one.
// Used by the connection watchdog when a session stops making
// progress.
func (r *BotRegistry) RecycleBot(name string) {
	r.mutex.RLock()
	_, exists := r.bots[name]
	r.mutex.RUnlock()

	if !exists {
		return
	}

	LogWarning("Bot %s: Recycling", name)

	r.UnregisterBot(name)

	if err := r.RegisterBot(name); err != nil {
		LogError("Bot %s: Re-registration after recycle failed: %v", name, err)
	}
}

// OnConfigChanged reloads the named bot's config in place when
// possible, registering or unregistering as its file appears,
// disappears or toggles the enabled flag.
func (r *BotRegistry) OnConfigChanged(name string) {
	path := r.app.Settings.BotConfigPath(name)

	if _, err := os.Stat(path); err != nil {
		LogInfo("Bot %s: Config removed, unregistering", name)
		r.UnregisterBot(name)
		return
	}

	config, err := LoadBotConfig(path)
	if err != nil {
		LogError("Bot %s: Config reload failed, keeping previous config: %v", name, err)
		return
	}

	bot := r.GetBot(name)

	if bot == nil {
		if !config.Enabled {
			return
		}
		if err := r.RegisterBot(name); err != nil {
			LogError("Bot %s: Registration failed: %v", name, err)
		}
		return
	}

	if !config.Enabled {
		LogInfo("Bot %s: Disabled via config, unregistering", name)
		r.UnregisterBot(name)
		return
	}

	LogInfo("Bot %s: Config reloaded", name)
	bot.SetConfig(config)

	// Farming settings may have changed
	if bot.IsConnectedAndLoggedOn() {
		go bot.Farmer().RestartFarming()
	}
}

// StopAll stops every bot without firing the last-bot-stopped event.
func (r *BotRegistry) StopAll() {
	r.mutex.RLock()
	bots := make([]*Bot, 0, len(r.bots))
	for _, bot := range r.bots {
		bots = append(bots, bot)
	}
	r.mutex.RUnlock()

	var wg sync.WaitGroup
	for _, bot := range bots {
		wg.Add(1)
		go func(b *Bot) {
			defer wg.Done()
			b.Stop(true)
		}(bot)
	}
	wg.Wait()
}

// ExpandTargets resolves a targeting expression into bots. Supported
// forms: "all"/"*" for everything, "A..B" for a name range over the
// sorted list, "r!pattern" for a regex, and plain comma-separated
// names. Unknown names are skipped.
func (r *BotRegistry) ExpandTargets(expression string) []*Bot {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil
	}

	if expression == "all" || expression == "*" {
		return r.allBots()
	}

	var bots []*Bot
	seen := make(map[string]struct{})

	appendBot := func(bot *Bot) {
		if bot == nil {
			return
		}
		if _, dup := seen[bot.Name]; dup {
			return
		}
		seen[bot.Name] = struct{}{}
		bots = append(bots, bot)
	}

	for _, part := range strings.Split(expression, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		switch {
		case strings.HasPrefix(part, "r!"):
			pattern, err := regexp.Compile(part[2:])
			if err != nil {
				continue
			}
			for _, bot := range r.allBots() {
				if pattern.MatchString(bot.Name) {
					appendBot(bot)
				}
			}

		case strings.Contains(part, ".."):
			bounds := strings.SplitN(part, "..", 2)
			low, high := strings.TrimSpace(bounds[0]), strings.TrimSpace(bounds[1])
			inRange := low == ""
			for _, bot := range r.allBots() {
				if bot.Name == low {
					inRange = true
				}
				if inRange {
					appendBot(bot)
				}
				if high != "" && bot.Name == high {
					break
				}
			}

		default:
			appendBot(r.GetBot(part))
		}
	}

	return bots
}

func (r *BotRegistry) allBots() []*Bot {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.bots))
	for name := range r.bots {
		names = append(names, name)
	}
	sort.Strings(names)

	bots := make([]*Bot, 0, len(names))
	for _, name := range names {
		bots = append(bots, r.bots[name])
	}
	return bots
}
