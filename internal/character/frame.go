package character

// buildStateFromFrame decodes an init_character_data frame into a full
// CharacterState snapshot.
func buildStateFromFrame(frame map[string]any) *CharacterState {
	characterID := asString(frame["characterId"])
	characterName := asString(frame["characterName"])
	state := newCharacterState(characterID, characterName)

	if rows, ok := frame["skills"].([]any); ok {
		for _, raw := range rows {
			row, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			hrid := asString(row["skillHrid"])
			state.Skills[hrid] = SkillLevel{
				SkillHrid:  hrid,
				Level:      int(asFloat(row["level"])),
				Experience: asFloat(row["experience"]),
			}
		}
	}

	if rows, ok := frame["inventoryItems"].([]any); ok {
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
				continue
			}
			state.Inventory[key] = InventoryItem{
				ItemHrid:         key.ItemHrid,
				ItemLocationHrid: key.ItemLocationHrid,
				EnhancementLevel: key.EnhancementLevel,
				Count:            count,
			}
		}
	}

	if rows, ok := frame["equippedItems"].([]any); ok {
		for _, raw := range rows {
			row, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			loc := asString(row["itemLocationHrid"])
			state.Equipment[loc] = InventoryItem{
				ItemHrid:         asString(row["itemHrid"]),
				ItemLocationHrid: loc,
				EnhancementLevel: int(asFloat(row["enhancementLevel"])),
				Count:            1,
			}
		}
	}

	if rows, ok := frame["actions"].([]any); ok {
		for _, raw := range rows {
			row, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			state.Actions = append(state.Actions, Action{ActionHrid: asString(row["actionHrid"]), Raw: row})
		}
	}

	if rooms, ok := frame["houseRoomMap"].(map[string]any); ok {
		for hrid, v := range rooms {
			state.HouseRooms[hrid] = int(asFloat(v))
		}
	}

	if buffs, ok := frame["communityBuffMap"].(map[string]any); ok {
		for hrid, v := range buffs {
			state.CommunityBuffMap[hrid] = int(asFloat(v))
		}
	}

	if party, ok := frame["partyInfo"].(map[string]any); ok {
		members, _ := party["members"].([]any)
		memberIDs := make([]string, 0, len(members))
		for _, mem := range members {
			memberIDs = append(memberIDs, asString(mem))
		}
		state.Party = &PartyInfo{PartyID: asString(party["partyId"]), Members: memberIDs}
	}

	return state
}

// buildClientDataFromFrame decodes an init_client_data frame into the
// static game dictionary (spec §4.6 "getInitClientData()").
func buildClientDataFromFrame(frame map[string]any) *ClientData {
	cd := &ClientData{
		ItemDetailMap:    make(map[string]ItemDetail),
		ActionDetailMap:  make(map[string]ActionDetail),
		MonsterDetailMap: make(map[string]MonsterDetail),
		monsterByName:    make(map[string]string),
	}

	if items, ok := frame["itemDetailMap"].(map[string]any); ok {
		for hrid, raw := range items {
			row, _ := raw.(map[string]any)
			cd.ItemDetailMap[hrid] = ItemDetail{Hrid: hrid, Raw: row}
		}
	}

	if actions, ok := frame["actionDetailMap"].(map[string]any); ok {
		for hrid, raw := range actions {
			row, _ := raw.(map[string]any)
			cd.ActionDetailMap[hrid] = ActionDetail{Hrid: hrid, Raw: row}
		}
	}

	if monsters, ok := frame["monsterDetailMap"].(map[string]any); ok {
		for hrid, raw := range monsters {
			row, _ := raw.(map[string]any)
			name := asString(row["name"])
			sortIndex := int(asFloat(row["sortIndex"]))
			cd.MonsterDetailMap[hrid] = MonsterDetail{Hrid: hrid, Name: name, SortIndex: sortIndex, Raw: row}
			if name != "" {
				cd.monsterByName[name] = hrid
			}
		}
	}

	return cd
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
