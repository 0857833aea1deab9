package export

import (
	"encoding/json"
	"fmt"

	"github.com/toolasha/agent/internal/character"
)

// combatSimSlots is the fixed five-slot shape of the multi-player export
// (spec §6 "the five numbered slots").
const combatSimSlots = 5

// BuildCombatSimExport returns the clipboard payload for "Combat Sim
// Export": slot "1" is the live character, slots "2".."5" are the fixed
// BLANK template, and every slot value is itself a JSON-encoded string —
// spec §6 "each a JSON-stringified player object" and testable property
// §8 "clipboard contains a JSON string whose top-level keys are '1'-'5'".
func BuildCombatSimExport(charMgr *character.Manager) (map[string]string, error) {
	player, err := json.Marshal(BuildCombatSimPlayer(charMgr))
	if err != nil {
		return nil, fmt.Errorf("marshal combat sim player: %w", err)
	}
	blank, err := json.Marshal(BlankCombatSimPlayer())
	if err != nil {
		return nil, fmt.Errorf("marshal combat sim blank template: %w", err)
	}

	out := make(map[string]string, combatSimSlots)
	out["1"] = string(player)
	for slot := 2; slot <= combatSimSlots; slot++ {
		out[fmt.Sprintf("%d", slot)] = string(blank)
	}
	return out, nil
}
