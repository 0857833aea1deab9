package profit

import "github.com/toolasha/agent/internal/character"

// itemDictionaryContainers adapts character.Manager's static item
// dictionary to the ContainerBook interface: an openable item's drop
// table lives under its own ItemDetail.Raw["dropTable"], a list of
// {itemHrid, dropRate, minCount, maxCount} rows (the game's wire shape for
// loot tables generally; treated here as reference data, not design).
type itemDictionaryContainers struct {
	chars charDictionary
}

// NewItemDictionaryContainers wraps mgr as a ContainerBook.
func NewItemDictionaryContainers(mgr *character.Manager) ContainerBook {
	return &itemDictionaryContainers{chars: mgr}
}

func (c *itemDictionaryContainers) Drops(containerHrid string) ([]ContainerDrop, bool) {
	detail, ok := c.chars.ItemDetails(containerHrid)
	if !ok {
		return nil, false
	}
	raw, ok := detail.Raw["dropTable"].([]any)
	if !ok || len(raw) == 0 {
		return nil, false
	}

	out := make([]ContainerDrop, 0, len(raw))
	for _, entry := range raw {
		row, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		hrid, _ := row["itemHrid"].(string)
		if hrid == "" {
			continue
		}
		out = append(out, ContainerDrop{
			ItemHrid: hrid,
			DropRate: asFloat(row["dropRate"]),
			MinCount: asFloat(row["minCount"]),
			MaxCount: asFloat(row["maxCount"]),
		})
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}
