package export

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/toolasha/agent/internal/character"
)

// characterSheetSkillOrder is the fixed skill ordering the "skills" URL
// segment lists (spec §6 "fixed ordering documented in the source" —
// general skills first, matching the combat skill order combat-sim export
// uses, since both ultimately read the same Skills() projection).
var characterSheetSkillOrder = append(append([]string{}, combatSkillHrids[:]...), milkonomySkillHrids[:]...)

// BuildCharacterSheetURL assembles the character-sheet link spec §6
// describes: "https://<base>/?urpt=<general>;<skills>;<equipment>;
// <abilities>;<food>;<housing>;<achievements>", each segment a
// comma-separated token list.
func BuildCharacterSheetURL(charMgr *character.Manager, baseURL string) string {
	general := strings.Join([]string{charMgr.CurrentCharacterName()}, ",")
	skills := buildSkillsSegment(charMgr)
	equipment := buildEquipmentSegment(charMgr)
	abilities := buildAbilitiesSegment()
	food := buildFoodSegment()
	housing := buildHousingSegment(charMgr)
	achievements := "" // not tracked by any consumed message type yet

	segments := []string{general, skills, equipment, abilities, food, housing, achievements}
	return fmt.Sprintf("%s/?urpt=%s", strings.TrimRight(baseURL, "/"), strings.Join(segments, ";"))
}

func buildSkillsSegment(charMgr *character.Manager) string {
	skills := charMgr.Skills()
	tokens := make([]string, 0, len(characterSheetSkillOrder))
	for _, hrid := range characterSheetSkillOrder {
		level := 0
		if sk, ok := skills[hrid]; ok {
			level = sk.Level
		}
		tokens = append(tokens, strconv.Itoa(level))
	}
	return strings.Join(tokens, ",")
}

func buildEquipmentSegment(charMgr *character.Manager) string {
	equipment := charMgr.Equipment()
	locs := make([]string, 0, len(equipment))
	for loc := range equipment {
		locs = append(locs, loc)
	}
	sort.Strings(locs)

	tokens := make([]string, 0, len(locs))
	for _, loc := range locs {
		item := equipment[loc]
		tokens = append(tokens, fmt.Sprintf("%s:%d", item.ItemHrid, item.EnhancementLevel))
	}
	return strings.Join(tokens, ",")
}

// buildAbilitiesSegment is empty: ability loadouts are not tracked by
// character.Manager (see the note in BuildCombatSimPlayer, export.go).
func buildAbilitiesSegment() string { return "" }

// buildFoodSegment is empty: consumable loadouts arrive per action type,
// and the character sheet has no single action context to report one for.
func buildFoodSegment() string { return "" }

func buildHousingSegment(charMgr *character.Manager) string {
	rooms := charMgr.HouseRooms()
	locs := make([]string, 0, len(rooms))
	for hrid := range rooms {
		locs = append(locs, hrid)
	}
	sort.Strings(locs)

	tokens := make([]string, 0, len(locs))
	for _, hrid := range locs {
		tokens = append(tokens, fmt.Sprintf("%s:%d", hrid, rooms[hrid]))
	}
	return strings.Join(tokens, ",")
}
