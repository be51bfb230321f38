package main

import (
	"encoding/json"
	"os"
	"sync"
)

// RedeemQueueEntry is one queued key redemption. Keys are unique
// within the queue; entries leave the queue only after their outcome
// reached the audit log.
type RedeemQueueEntry struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// BotDatabase is the mutable per-bot state that survives restarts.
// Every mutation writes the file back out, so there is no separate
// flush step to forget.
type BotDatabase struct {
	mutex sync.Mutex
	path  string

	LoginKey        string             `json:"loginKey,omitempty"`
	SentryHash      []byte             `json:"sentryHash,omitempty"`
	RedeemQueue     []RedeemQueueEntry `json:"redeemQueue,omitempty"`
	IdlingBlacklist map[uint32]bool    `json:"idlingBlacklist,omitempty"`
	IdlingPriority  map[uint32]bool    `json:"idlingPriority,omitempty"`
}

// LoadBotDatabase reads the database at path, creating an empty one if
// the file does not exist. A malformed file is a hard error: running
// with silently dropped state is worse than refusing to start.
func LoadBotDatabase(path string) (*BotDatabase, error) {
	database := &BotDatabase{
		path:            path,
		IdlingBlacklist: make(map[uint32]bool),
		IdlingPriority:  make(map[uint32]bool),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return database, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, database); err != nil {
		return nil, err
	}

	if database.IdlingBlacklist == nil {
		database.IdlingBlacklist = make(map[uint32]bool)
	}
	if database.IdlingPriority == nil {
		database.IdlingPriority = make(map[uint32]bool)
	}

	return database, nil
}

// save writes the database to disk. Callers must hold the mutex.
func (d *BotDatabase) save() {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		LogError("Failed to serialize bot database %s: %v", d.path, err)
		return
	}

	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		LogError("Failed to write bot database %s: %v", d.path, err)
		return
	}

	if err := os.Rename(tmp, d.path); err != nil {
		LogError("Failed to replace bot database %s: %v", d.path, err)
	}
}

// Save persists the current state.
func (d *BotDatabase) Save() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.save()
}

// SetLoginKey stores the session-resume token. An empty key clears it.
func (d *BotDatabase) SetLoginKey(key string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.LoginKey == key {
		return
	}

	d.LoginKey = key
	d.save()
}

// GetLoginKey returns the cached session-resume token, if any.
func (d *BotDatabase) GetLoginKey() string {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.LoginKey
}

// SetSentryHash stores the machine-auth sentry hash.
func (d *BotDatabase) SetSentryHash(hash []byte) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.SentryHash = hash
	d.save()
}

// EnqueueRedeemKeys appends (key, name) pairs, skipping keys already
// queued. Returns how many entries were added.
func (d *BotDatabase) EnqueueRedeemKeys(entries []RedeemQueueEntry) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	known := make(map[string]bool, len(d.RedeemQueue))
	for _, entry := range d.RedeemQueue {
		known[entry.Key] = true
	}

	added := 0
	for _, entry := range entries {
		if entry.Key == "" || known[entry.Key] {
			continue
		}

		known[entry.Key] = true
		d.RedeemQueue = append(d.RedeemQueue, entry)
		added++
	}

	if added > 0 {
		d.save()
	}

	return added
}

// PeekRedeemKey returns the head of the queue without removing it.
func (d *BotDatabase) PeekRedeemKey() (RedeemQueueEntry, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.RedeemQueue) == 0 {
		return RedeemQueueEntry{}, false
	}

	return d.RedeemQueue[0], true
}

// RemoveRedeemKey drops the entry with the given key. Called only
// after the outcome is durably logged.
func (d *BotDatabase) RemoveRedeemKey(key string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	for i, entry := range d.RedeemQueue {
		if entry.Key == key {
			d.RedeemQueue = append(d.RedeemQueue[:i], d.RedeemQueue[i+1:]...)
			d.save()
			return
		}
	}
}

// RedeemQueueLength returns the number of queued entries.
func (d *BotDatabase) RedeemQueueLength() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.RedeemQueue)
}

// IsBlacklisted reports whether the app is excluded from farming.
func (d *BotDatabase) IsBlacklisted(appID uint32) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.IdlingBlacklist[appID]
}

// SetBlacklisted adds or removes an app from the idling blacklist.
func (d *BotDatabase) SetBlacklisted(appID uint32, blacklisted bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.IdlingBlacklist[appID] == blacklisted {
		return
	}

	if blacklisted {
		d.IdlingBlacklist[appID] = true
	} else {
		delete(d.IdlingBlacklist, appID)
	}

	d.save()
}

// IsPriority reports whether the app is in the priority farming set.
func (d *BotDatabase) IsPriority(appID uint32) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.IdlingPriority[appID]
}

// SetPriority adds or removes an app from the priority farming set.
func (d *BotDatabase) SetPriority(appID uint32, priority bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.IdlingPriority[appID] == priority {
		return
	}

	if priority {
		d.IdlingPriority[appID] = true
	} else {
		delete(d.IdlingPriority, appID)
	}

	d.save()
}
