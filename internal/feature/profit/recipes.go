package profit

import (
	"github.com/toolasha/agent/internal/character"
	"github.com/toolasha/agent/internal/market"
)

// itemDictionaryRecipes adapts character.Manager's static action dictionary
// to market.RecipeBook: an item's recipe is whichever action produces it as
// its sole output, with the action's inputItems as ingredients (spec §4.5
// "crafting production cost (recursively priced inputs ... + upgrade cost)").
type itemDictionaryRecipes struct {
	chars actionDictionary
}

// actionDictionary narrows character.Manager to the static dictionary
// lookups the recipe adapter needs, for testability.
type actionDictionary interface {
	ItemDetails(itemHrid string) (character.ItemDetail, bool)
	InitClientData() *character.ClientData
}

// NewItemDictionaryRecipes wraps mgr as a market.RecipeBook.
func NewItemDictionaryRecipes(mgr *character.Manager) market.RecipeBook {
	return &itemDictionaryRecipes{chars: mgr}
}

// Recipe finds the action whose outputItems names exactly one output item
// matching hrid and returns that action's inputItems as the ingredient
// list. upgradeCost is read from the action's own upgradeItemHrid/
// upgradeItemCount pair when the upgrade item is the reserved coin item
// (the only case this calculator can price without recursing through the
// market cache itself, which RecipeBook has no access to); any other
// upgrade item is ignored rather than guessed at.
func (r *itemDictionaryRecipes) Recipe(hrid string) (map[string]float64, float64, bool) {
	data := r.chars.InitClientData()
	if data == nil {
		return nil, 0, false
	}

	for _, action := range data.ActionDetailMap {
		outputs := asRows(action.Raw["outputItems"])
		if len(outputs) != 1 || outputs[0].ItemHrid != hrid {
			continue
		}

		inputs := asRows(action.Raw["inputItems"])
		if len(inputs) == 0 {
			return nil, 0, false
		}

		ingredients := make(map[string]float64, len(inputs))
		for _, row := range inputs {
			ingredients[row.ItemHrid] += row.Count
		}

		return ingredients, r.upgradeCost(action), true
	}

	return nil, 0, false
}

func (r *itemDictionaryRecipes) upgradeCost(action character.ActionDetail) float64 {
	upgradeHrid, _ := action.Raw["upgradeItemHrid"].(string)
	if upgradeHrid == "" || upgradeHrid != coinItemHrid {
		return 0
	}
	return asFloat(action.Raw["upgradeItemCount"])
}

// coinItemHrid mirrors internal/market's reserved coin fast path: a coin
// cost can be used directly as an upgradeCost without a recursive price
// lookup RecipeBook has no way to perform.
const coinItemHrid = "/items/coin"
