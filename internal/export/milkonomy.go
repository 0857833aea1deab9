package export

import "github.com/toolasha/agent/internal/character"

// milkonomySkillHrids is the fixed set of ten production/gathering skills
// Milkonomy's actionConfigMap is keyed by (spec §6 "keyed by ten skill
// names").
var milkonomySkillHrids = [...]string{
	"/skills/milking",
	"/skills/foraging",
	"/skills/woodcutting",
	"/skills/cheesesmithing",
	"/skills/crafting",
	"/skills/tailoring",
	"/skills/cooking",
	"/skills/brewing",
	"/skills/alchemy",
	"/skills/enhancing",
}

// milkonomyEquipmentSlots is the fixed eight-slot order "specialEquimentMap"
// enumerates (spelling preserved from spec §6 — "sic").
var milkonomyEquipmentSlots = [...]string{
	"/item_locations/head",
	"/item_locations/body",
	"/item_locations/legs",
	"/item_locations/feet",
	"/item_locations/hands",
	"/item_locations/neck",
	"/item_locations/earrings",
	"/item_locations/ring",
}

// milkonomyBuffHrids is the fixed four community buffs the export reports
// (spec §6 "communityBuffMap with four buff entries").
var milkonomyBuffHrids = [...]string{
	"/community_buff_types/production",
	"/community_buff_types/gathering",
	"/community_buff_types/wisdom",
	"/community_buff_types/gourmet",
}

// MilkonomyActionConfig is one skill's current gear/action loadout (spec
// §6 "{ action, playerLevel, tool, legs, body, charm, houseLevel, tea[] }").
type MilkonomyActionConfig struct {
	Action      string   `json:"action"`
	PlayerLevel int      `json:"playerLevel"`
	Tool        string   `json:"tool"`
	Legs        string   `json:"legs"`
	Body        string   `json:"body"`
	Charm       string   `json:"charm"`
	HouseLevel  int      `json:"houseLevel"`
	Tea         []string `json:"tea"`
}

// MilkonomyExport is the single object written to the clipboard for the
// Milkonomy companion site.
type MilkonomyExport struct {
	Name               string                           `json:"name"`
	Color              string                           `json:"color"`
	ActionConfigMap    map[string]MilkonomyActionConfig `json:"actionConfigMap"`
	SpecialEquimentMap map[string]string                `json:"specialEquimentMap"`
	CommunityBuffMap   map[string]int                   `json:"communityBuffMap"`
}

// houseRoomForSkill maps a production skill to the house room hrid whose
// level the Milkonomy config reports, following this game's one-room-per-
// skill house layout.
func houseRoomForSkill(skillHrid string) string {
	return "/house_rooms/" + skillHrid[len("/skills/"):]
}

// BuildMilkonomyExport assembles the Milkonomy export from the live
// character projection. color is left blank — the game never surfaces a
// per-character color through any message type this build consumes.
func BuildMilkonomyExport(charMgr *character.Manager) MilkonomyExport {
	skills := charMgr.Skills()
	equipment := charMgr.Equipment()
	houseRooms := charMgr.HouseRooms()

	actionConfigs := make(map[string]MilkonomyActionConfig, len(milkonomySkillHrids))
	for _, skillHrid := range milkonomySkillHrids {
		level := 0
		if sk, ok := skills[skillHrid]; ok {
			level = sk.Level
		}
		houseLevel := houseRooms[houseRoomForSkill(skillHrid)]
		actionConfigs[skillHrid] = MilkonomyActionConfig{
			PlayerLevel: level,
			HouseLevel:  houseLevel,
			Tea:         []string{},
		}
	}

	specialEquipment := make(map[string]string, len(milkonomyEquipmentSlots))
	for _, loc := range milkonomyEquipmentSlots {
		if item, ok := equipment[loc]; ok {
			specialEquipment[loc] = item.ItemHrid
		} else {
			specialEquipment[loc] = ""
		}
	}

	buffs := make(map[string]int, len(milkonomyBuffHrids))
	for _, buffHrid := range milkonomyBuffHrids {
		buffs[buffHrid] = charMgr.CommunityBuffLevel(buffHrid)
	}

	return MilkonomyExport{
		Name:               charMgr.CurrentCharacterName(),
		ActionConfigMap:    actionConfigs,
		SpecialEquimentMap: specialEquipment,
		CommunityBuffMap:   buffs,
	}
}
