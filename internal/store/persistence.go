package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"geminichat-backend/internal/clock"
	"geminichat-backend/internal/models"
)

const (
	AuthKey     = "auth"
	ChatDataKey = "chatData"
)

// Persistence reads and writes the auth and chatData records. Every save
// overwrites its key in full. A Persistence without a backend accepts all
// calls and stores nothing.
type Persistence struct {
	kv    KVStore
	clock clock.Clock
}

func NewPersistence(kv KVStore, clk clock.Clock) *Persistence {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Persistence{kv: kv, clock: clk}
}

func (p *Persistence) enabled() bool {
	return p != nil && p.kv != nil
}

// SaveAuthData records a successful sign-in for phone.
func (p *Persistence) SaveAuthData(ctx context.Context, phone, countryCode string) error {
	if !p.enabled() {
		return nil
	}
	record := models.AuthRecord{
		Phone:           phone,
		CountryCode:     countryCode,
		IsAuthenticated: true,
		Timestamp:       p.clock.Now().UnixMilli(),
	}
	return p.put(ctx, AuthKey, record)
}

// GetAuthData returns nil, nil when no record is stored.
func (p *Persistence) GetAuthData(ctx context.Context) (*models.AuthRecord, error) {
	if !p.enabled() {
		return nil, nil
	}
	var record models.AuthRecord
	found, err := p.get(ctx, AuthKey, &record)
	if err != nil || !found {
		return nil, err
	}
	return &record, nil
}

func (p *Persistence) ClearAuthData(ctx context.Context) error {
	if !p.enabled() {
		return nil
	}
	return p.kv.Delete(ctx, AuthKey)
}

// IsAuthenticated treats a missing or unreadable record as signed out.
func (p *Persistence) IsAuthenticated(ctx context.Context) bool {
	record, err := p.GetAuthData(ctx)
	if err != nil || record == nil {
		return false
	}
	return record.IsAuthenticated
}

func (p *Persistence) SaveChatData(ctx context.Context, chatrooms []models.Chatroom) error {
	if !p.enabled() {
		return nil
	}
	if chatrooms == nil {
		chatrooms = []models.Chatroom{}
	}
	data := models.ChatData{
		Chatrooms: chatrooms,
		Timestamp: p.clock.Now().UnixMilli(),
	}
	return p.put(ctx, ChatDataKey, data)
}

// GetChatData returns nil, nil when no record is stored.
func (p *Persistence) GetChatData(ctx context.Context) (*models.ChatData, error) {
	if !p.enabled() {
		return nil, nil
	}
	var data models.ChatData
	found, err := p.get(ctx, ChatDataKey, &data)
	if err != nil || !found {
		return nil, err
	}
	return &data, nil
}

func (p *Persistence) ClearChatData(ctx context.Context) error {
	if !p.enabled() {
		return nil
	}
	return p.kv.Delete(ctx, ChatDataKey)
}

func (p *Persistence) put(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := p.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (p *Persistence) get(ctx context.Context, key string, v interface{}) (bool, error) {
	raw, err := p.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrDeserialization, key, err)
	}
	return true, nil
}
