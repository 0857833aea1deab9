// Package character owns the sole CharacterState aggregate and the
// synchronous event bus consumers subscribe to for lifecycle and domain
// update notifications (spec §4.6).
package character

import (
	"sync"

	"go.uber.org/zap"

	"github.com/toolasha/agent/internal/interceptor"
)

// Event names, emitted exactly as named in spec §4.6.
const (
	EventCharacterInitialized = "character_initialized"
	EventCharacterSwitching   = "character_switching"
	EventCharacterUpdated     = "character_updated"
	EventItemsUpdated         = "items_updated"
	EventActionsUpdated       = "actions_updated"
	EventSkillsUpdated        = "skills_updated"
	EventHouseRoomsUpdated    = "house_rooms_updated"
	EventLootLogUpdated       = "loot_log_updated"
	EventNewBattle            = "new_battle"
	EventBattleUnitFetched    = "battle_unit_fetched"
	EventQuestsUpdated        = "quests_updated"
	EventConsumablesUpdated   = "consumables_updated"
	EventProfileShared        = "profile_shared"
	EventChatMessageReceived  = "chat_message_received"
)

// InitializedPayload is the character_initialized event payload.
type InitializedPayload struct {
	State             *CharacterState
	IsCharacterSwitch bool
}

// hubSubscriber is the subset of *interceptor.Hub the manager depends on,
// narrowed to an interface so tests can drive it without a live connection.
type hubSubscriber interface {
	Subscribe(msgType string, fn interceptor.HandlerFunc)
}

// Manager is the sole owner of CharacterState. It subscribes to the
// interceptor hub and is otherwise read-only to consumers (spec §4.6
// "Exposed API (read-only to consumers)").
type Manager struct {
	log *zap.Logger
	bus *bus

	mu         sync.RWMutex
	state      *CharacterState
	clientData *ClientData
}

// New constructs a Manager and subscribes it to every inbound message type
// spec §4.6 names.
func New(hub hubSubscriber, log *zap.Logger) *Manager {
	m := &Manager{log: log, bus: newBus()}

	hub.Subscribe("init_character_data", m.handleInitCharacterData)
	hub.Subscribe("init_client_data", m.handleInitClientData)
	hub.Subscribe("character_updated", m.passthroughHandler(EventCharacterUpdated))
	hub.Subscribe("items_updated", m.handleItemsUpdated)
	hub.Subscribe("actions_updated", m.handleActionsUpdated)
	hub.Subscribe("skills_updated", m.handleSkillsUpdated)
	hub.Subscribe("house_rooms_updated", m.handleHouseRoomsUpdated)
	hub.Subscribe("loot_log_updated", m.passthroughHandler(EventLootLogUpdated))
	hub.Subscribe("new_battle", m.passthroughHandler(EventNewBattle))
	hub.Subscribe("battle_unit_fetched", m.passthroughHandler(EventBattleUnitFetched))
	hub.Subscribe("quests_updated", m.passthroughHandler(EventQuestsUpdated))
	hub.Subscribe("consumables_updated", m.passthroughHandler(EventConsumablesUpdated))
	hub.Subscribe("profile_shared", m.passthroughHandler(EventProfileShared))
	hub.Subscribe("chat_message_received", m.passthroughHandler(EventChatMessageReceived))

	return m
}

func (m *Manager) passthroughHandler(eventName string) interceptor.HandlerFunc {
	return func(_ string, frame map[string]any) {
		m.bus.Emit(eventName, frame)
	}
}

// handleInitCharacterData implements the reconciliation-vs-switch contract
// (spec §4.6 "Inbound message handling").
func (m *Manager) handleInitCharacterData(_ string, frame map[string]any) {
	incoming := buildStateFromFrame(frame)

	m.mu.Lock()
	old := m.state

	switch {
	case old == nil:
		m.state = incoming
		m.mu.Unlock()
		m.bus.Emit(EventCharacterInitialized, InitializedPayload{State: incoming.clone(), IsCharacterSwitch: false})
		return

	case old.CharacterID == incoming.CharacterID:
		m.state = incoming
		m.mu.Unlock()
		m.log.Debug("character: reconciled init_character_data", zap.String("characterId", incoming.CharacterID))
		return

	default:
		m.mu.Unlock()
		m.bus.Emit(EventCharacterSwitching, old.CharacterID)

		m.mu.Lock()
		m.state = incoming
		m.mu.Unlock()
		m.bus.Emit(EventCharacterInitialized, InitializedPayload{State: incoming.clone(), IsCharacterSwitch: true})
		return
	}
}

func (m *Manager) handleInitClientData(_ string, frame map[string]any) {
	cd := buildClientDataFromFrame(frame)
	m.mu.Lock()
	m.clientData = cd
	m.mu.Unlock()
}

// handleItemsUpdated applies replace-by-key merge semantics: key =
// (itemHrid, itemLocationHrid, enhancementLevel), count 0 removes the row
// (spec §4.6 "Merge semantics").
func (m *Manager) handleItemsUpdated(_ string, frame map[string]any) {
	rows, _ := frame["itemsUpdated"].([]any)

	m.mu.Lock()
	if m.state == nil {
		m.mu.Unlock()
		return
	}
	for _, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		key := InventoryKey{
			ItemHrid:         asString(row["itemHrid"]),
			ItemLocationHrid: asString(row["itemLocationHrid"]),
			EnhancementLevel: int(asFloat(row["enhancementLevel"])),
		}
		count := asFloat(row["count"])
		if count == 0 {
			delete(m.state.Inventory, key)
			continue
		}
		m.state.Inventory[key] = InventoryItem{
			ItemHrid:         key.ItemHrid,
			ItemLocationHrid: key.ItemLocationHrid,
			EnhancementLevel: key.EnhancementLevel,
			Count:            count,
		}
	}
	m.mu.Unlock()

	m.bus.Emit(EventItemsUpdated, frame)
}

// handleActionsUpdated replaces the full action queue — the game always
// sends the complete queue, never a delta (spec §4.6).
func (m *Manager) handleActionsUpdated(_ string, frame map[string]any) {
	rows, _ := frame["actions"].([]any)
	actions := make([]Action, 0, len(rows))
	for _, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		actions = append(actions, Action{ActionHrid: asString(row["actionHrid"]), Raw: row})
	}

	m.mu.Lock()
	if m.state != nil {
		m.state.Actions = actions
	}
	m.mu.Unlock()

	m.bus.Emit(EventActionsUpdated, frame)
}

// handleSkillsUpdated patches skills in place.
func (m *Manager) handleSkillsUpdated(_ string, frame map[string]any) {
	rows, _ := frame["skills"].([]any)

	m.mu.Lock()
	if m.state != nil {
		for _, raw := range rows {
			row, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			hrid := asString(row["skillHrid"])
			m.state.Skills[hrid] = SkillLevel{
				SkillHrid:  hrid,
				Level:      int(asFloat(row["level"])),
				Experience: asFloat(row["experience"]),
			}
		}
	}
	m.mu.Unlock()

	m.bus.Emit(EventSkillsUpdated, frame)
}

func (m *Manager) handleHouseRoomsUpdated(_ string, frame map[string]any) {
	rows, _ := frame["houseRoomMap"].(map[string]any)

	m.mu.Lock()
	if m.state != nil {
		for hrid, v := range rows {
			m.state.HouseRooms[hrid] = int(asFloat(v))
		}
	}
	m.mu.Unlock()

	m.bus.Emit(EventHouseRoomsUpdated, frame)
}

// On registers handler for eventName, returning a Handle for removal.
func (m *Manager) On(eventName string, handler EventHandler) Handle {
	return m.bus.On(eventName, handler)
}

// Off removes a handler previously returned by On.
func (m *Manager) Off(eventName string, handle Handle) {
	m.bus.Off(eventName, handle)
}

// Emit lets consumers synthesize events (e.g. test harnesses driving the
// Dungeon Tracker state machine directly).
func (m *Manager) Emit(eventName string, payload any) {
	m.bus.Emit(eventName, payload)
}

// CharacterState returns a defensive copy of the current state, or nil if
// no character has initialized yet.
func (m *Manager) CharacterState() *CharacterState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

func (m *Manager) CurrentCharacterID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return ""
	}
	return m.state.CharacterID
}

func (m *Manager) CurrentCharacterName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return ""
	}
	return m.state.CharacterName
}

func (m *Manager) InitClientData() *ClientData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clientData
}

func (m *Manager) Inventory() map[InventoryKey]InventoryItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil
	}
	return copyInventoryMap(m.state.Inventory)
}

func (m *Manager) Equipment() map[string]InventoryItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil
	}
	return copyMap(m.state.Equipment)
}

func (m *Manager) Skills() map[string]SkillLevel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil
	}
	return copyMap(m.state.Skills)
}

func (m *Manager) CurrentActions() []Action {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil
	}
	return append([]Action(nil), m.state.Actions...)
}

func (m *Manager) HouseRooms() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil
	}
	return copyMap(m.state.HouseRooms)
}

func (m *Manager) HouseRoomLevel(roomHrid string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return 0, false
	}
	v, ok := m.state.HouseRooms[roomHrid]
	return v, ok
}

func (m *Manager) ActionDrinkSlots(actionTypeHrid string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil
	}
	return append([]string(nil), m.state.ActionDrinkSlots[actionTypeHrid]...)
}

func (m *Manager) CommunityBuffLevel(buffHrid string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return 0
	}
	return m.state.CommunityBuffMap[buffHrid]
}

func (m *Manager) AchievementBuffFlatBoost(actionTypeHrid, buffTypeHrid string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return 0
	}
	return m.state.AchievementBuffs[actionTypeHrid][buffTypeHrid]
}

func (m *Manager) ItemDetails(itemHrid string) (ItemDetail, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.clientData == nil {
		return ItemDetail{}, false
	}
	d, ok := m.clientData.ItemDetailMap[itemHrid]
	return d, ok
}

func (m *Manager) ActionDetails(actionHrid string) (ActionDetail, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.clientData == nil {
		return ActionDetail{}, false
	}
	d, ok := m.clientData.ActionDetailMap[actionHrid]
	return d, ok
}

func (m *Manager) MonsterHridFromName(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.clientData == nil {
		return "", false
	}
	hrid, ok := m.clientData.monsterByName[name]
	return hrid, ok
}

func (m *Manager) MonsterSortIndex(hrid string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.clientData == nil {
		return 0, false
	}
	d, ok := m.clientData.MonsterDetailMap[hrid]
	if !ok {
		return 0, false
	}
	return d.SortIndex, true
}
