package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Farming sort keys accepted in BotConfig.FarmingOrders. Keys earlier
// in the list take precedence; priority-flagged games always sort
// first regardless of keys.
const (
	OrderAppIDsAscending         = "AppIDsAscending"
	OrderAppIDsDescending        = "AppIDsDescending"
	OrderNamesAscending          = "NamesAscending"
	OrderNamesDescending         = "NamesDescending"
	OrderHoursAscending          = "HoursAscending"
	OrderHoursDescending         = "HoursDescending"
	OrderRemainingCardsAscending = "RemainingCardsAscending"
	OrderRemainingCardsDescending = "RemainingCardsDescending"
	OrderBadgeLevelsAscending    = "BadgeLevelsAscending"
	OrderBadgeLevelsDescending   = "BadgeLevelsDescending"
	OrderMarketableAscending     = "MarketableAscending"
	OrderMarketableDescending    = "MarketableDescending"
	OrderRedeemDatesAscending    = "RedeemDatesAscending"
	OrderRedeemDatesDescending   = "RedeemDatesDescending"
	OrderRandom                  = "Random"
	OrderUnordered               = "Unordered"
)

var validFarmingOrders = map[string]bool{
	OrderAppIDsAscending:          true,
	OrderAppIDsDescending:         true,
	OrderNamesAscending:           true,
	OrderNamesDescending:          true,
	OrderHoursAscending:           true,
	OrderHoursDescending:          true,
	OrderRemainingCardsAscending:  true,
	OrderRemainingCardsDescending: true,
	OrderBadgeLevelsAscending:     true,
	OrderBadgeLevelsDescending:    true,
	OrderMarketableAscending:      true,
	OrderMarketableDescending:     true,
	OrderRedeemDatesAscending:     true,
	OrderRedeemDatesDescending:    true,
	OrderRandom:                   true,
	OrderUnordered:                true,
}

// BotConfig is one account's behavior configuration, loaded from
// <BotName>.yaml in the config directory.
type BotConfig struct {
	Enabled       bool   `yaml:"enabled"`
	SteamLogin    string `yaml:"steamLogin"`
	SteamPassword string `yaml:"steamPassword"`

	// Family View PIN; when empty and the account needs one, the bot
	// prompts for it after logon
	SteamParentalCode string `yaml:"steamParentalCode"`

	// Account holding master permissions: chat commands, loot target,
	// auto-accepted trades and friend requests
	SteamMasterID uint64 `yaml:"steamMasterID"`

	// Group joined after logon, 0 disables
	SteamMasterClanID uint64 `yaml:"steamMasterClanID"`

	// Account-wide card-drop unlock threshold in hours. 0 selects the
	// unrestricted one-at-a-time algorithm.
	HoursUntilCardDrops float64 `yaml:"hoursUntilCardDrops"`

	// Ordered list of sort keys applied to the farming queue
	FarmingOrders []string `yaml:"farmingOrders"`

	// When set, only games in the priority set are farmed
	FarmPriorityQueueOnly bool `yaml:"farmPriorityQueueOnly"`

	// Start paused; farming requires an explicit resume
	Paused bool `yaml:"paused"`

	OfflineFarming            bool `yaml:"offlineFarming"`
	AcceptGifts               bool `yaml:"acceptGifts"`
	SendOnFarmingFinished     bool `yaml:"sendOnFarmingFinished"`
	ShutdownOnFarmingFinished bool `yaml:"shutdownOnFarmingFinished"`

	// Trade token appended to outbound offers for non-friend masters
	SteamTradeToken string `yaml:"steamTradeToken"`
}

// LoadBotConfig reads and validates one bot config. A validation
// failure is terminal: the bot must not start half-configured.
func LoadBotConfig(path string) (*BotConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := &BotConfig{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("malformed config %s: %w", filepath.Base(path), err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filepath.Base(path), err)
	}

	return config, nil
}

// Validate rejects configs that would leave a bot partially usable.
func (c *BotConfig) Validate() error {
	if c.Enabled && strings.TrimSpace(c.SteamLogin) == "" {
		return fmt.Errorf("steamLogin is required for enabled bots")
	}

	if c.HoursUntilCardDrops < 0 {
		return fmt.Errorf("hoursUntilCardDrops must not be negative, got %v", c.HoursUntilCardDrops)
	}

	for _, order := range c.FarmingOrders {
		if !validFarmingOrders[order] {
			return fmt.Errorf("unknown farming order %q", order)
		}
	}

	if c.SteamMasterID != 0 && c.SteamMasterID < 0x0110000100000000 {
		return fmt.Errorf("steamMasterID %d is not a valid 64-bit account ID", c.SteamMasterID)
	}

	return nil
}

// SaveYAML atomically writes v as YAML to path.
func SaveYAML(path string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}
