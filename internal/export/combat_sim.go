// Package export builds the three externally-visible clipboard/URL formats
// spec §6 calls out as a public contract other community tools consume
// ("must be preserved bit-exactly for third-party consumers"): the
// Combat-Sim multi-player export, the Milkonomy export, and the
// character-sheet URL.
//
// Grounded on udisondev-la2go's UserInfo.Write(): a player snapshot
// serialized in an exact, fixed field order because a specific external
// consumer (the game client, there; a companion site, here) depends on
// that order byte-for-byte. The shape here is JSON rather than a binary
// packet, but the discipline is the same — every field is written in the
// order the format's consumers expect, and struct tags pin the JSON key
// names so a Go field rename can never silently change the wire contract.
package export

import "github.com/toolasha/agent/internal/character"

// CombatSimEquipmentRow is one equipped item in a Combat-Sim player export
// (spec §8 "player.equipment contains every currently-equipped item
// (itemLocationHrid, itemHrid, enhancementLevel)").
type CombatSimEquipmentRow struct {
	ItemLocationHrid string `json:"itemLocationHrid"`
	ItemHrid         string `json:"itemHrid"`
	EnhancementLevel int    `json:"enhancementLevel"`
}

// CombatSimAbility is one ability loadout slot (spec §6 "abilities[0..4]
// (slot 0 = special ability)").
type CombatSimAbility struct {
	AbilityHrid string `json:"abilityHrid"`
	Level       int    `json:"level"`
}

// CombatSimPlayer is the Combat-Sim export's per-slot player object (spec
// §6's field list verbatim).
type CombatSimPlayer struct {
	Player struct {
		StaminaLevel      int                     `json:"staminaLevel"`
		IntelligenceLevel int                     `json:"intelligenceLevel"`
		AttackLevel       int                     `json:"attackLevel"`
		MeleeLevel        int                     `json:"meleeLevel"`
		DefenseLevel      int                     `json:"defenseLevel"`
		RangedLevel       int                     `json:"rangedLevel"`
		MagicLevel        int                     `json:"magicLevel"`
		Equipment         []CombatSimEquipmentRow `json:"equipment"`
	} `json:"player"`
	Food         map[string][3]string `json:"food"`
	Drinks       map[string][3]string `json:"drinks"`
	Abilities    [5]CombatSimAbility  `json:"abilities"`
	TriggerMap   map[string]string    `json:"triggerMap"`
	HouseRooms   map[string]int       `json:"houseRooms"`
	Achievements []string             `json:"achievements"`
}

// combatActionType is the action-type key the export's food/drink maps are
// keyed by — combat consumables slot under a single action type regardless
// of which monster is being fought.
const combatActionType = "/action_types/combat"

// combatSkillHrids maps each exported *Level field to the skill hrid
// character.Manager's Skills() keys its state by.
var combatSkillHrids = [...]string{
	"/skills/stamina",
	"/skills/intelligence",
	"/skills/attack",
	"/skills/melee",
	"/skills/defense",
	"/skills/ranged",
	"/skills/magic",
}

// BuildCombatSimPlayer assembles slot "1" of the Combat-Sim export from the
// live character projection.
func BuildCombatSimPlayer(charMgr *character.Manager) CombatSimPlayer {
	var out CombatSimPlayer

	skills := charMgr.Skills()
	levelOf := func(hrid string) int {
		if sk, ok := skills[hrid]; ok {
			return sk.Level
		}
		return 0
	}
	out.Player.StaminaLevel = levelOf(combatSkillHrids[0])
	out.Player.IntelligenceLevel = levelOf(combatSkillHrids[1])
	out.Player.AttackLevel = levelOf(combatSkillHrids[2])
	out.Player.MeleeLevel = levelOf(combatSkillHrids[3])
	out.Player.DefenseLevel = levelOf(combatSkillHrids[4])
	out.Player.RangedLevel = levelOf(combatSkillHrids[5])
	out.Player.MagicLevel = levelOf(combatSkillHrids[6])

	equipment := charMgr.Equipment()
	out.Player.Equipment = make([]CombatSimEquipmentRow, 0, len(equipment))
	for loc, item := range equipment {
		out.Player.Equipment = append(out.Player.Equipment, CombatSimEquipmentRow{
			ItemLocationHrid: loc,
			ItemHrid:         item.ItemHrid,
			EnhancementLevel: item.EnhancementLevel,
		})
	}

	drinkSlots := charMgr.ActionDrinkSlots(combatActionType)
	var drinks [3]string
	for i := 0; i < 3 && i < len(drinkSlots); i++ {
		drinks[i] = drinkSlots[i]
	}
	out.Drinks = map[string][3]string{combatActionType: drinks}
	out.Food = map[string][3]string{combatActionType: {}}

	// Ability loadouts arrive over a message type (battle_consumable_ability_
	// updated) this build doesn't yet subscribe to in character.Manager;
	// until that wiring exists every slot defaults to the documented "no
	// ability equipped" shape rather than being omitted.
	for i := range out.Abilities {
		out.Abilities[i] = CombatSimAbility{AbilityHrid: "", Level: 1}
	}

	out.TriggerMap = map[string]string{}
	out.HouseRooms = charMgr.HouseRooms()
	out.Achievements = []string{}

	return out
}

// BlankCombatSimPlayer is the fixed "BLANK" template every unused slot
// (2 through 5) must equal exactly (spec §6 "Slot template constant must
// match the 'BLANK' template in the source — field names and shape are a
// public contract").
func BlankCombatSimPlayer() CombatSimPlayer {
	var blank CombatSimPlayer
	blank.Food = map[string][3]string{combatActionType: {}}
	blank.Drinks = map[string][3]string{combatActionType: {}}
	for i := range blank.Abilities {
		blank.Abilities[i] = CombatSimAbility{AbilityHrid: "", Level: 1}
	}
	blank.TriggerMap = map[string]string{}
	blank.HouseRooms = map[string]int{}
	blank.Achievements = []string{}
	return blank
}
