package profit

import "testing"

func TestItemDictionaryRecipesFindsProducingAction(t *testing.T) {
	mgr, _ := newTestManager(t)
	recipes := NewItemDictionaryRecipes(mgr)

	ingredients, upgradeCost, ok := recipes.Recipe("/items/cheese_sword")
	if !ok {
		t.Fatal("expected recipe to be found")
	}
	if ingredients["/items/cheese"] != 2 {
		t.Fatalf("ingredients[/items/cheese] = %v, want 2", ingredients["/items/cheese"])
	}
	if upgradeCost != 0 {
		t.Fatalf("upgradeCost = %v, want 0 (no upgradeItemHrid on this action)", upgradeCost)
	}
}

func TestItemDictionaryRecipesUnknownItemNotFound(t *testing.T) {
	mgr, _ := newTestManager(t)
	recipes := NewItemDictionaryRecipes(mgr)

	if _, _, ok := recipes.Recipe("/items/does_not_exist"); ok {
		t.Fatal("expected no recipe for an item no action produces")
	}
}
