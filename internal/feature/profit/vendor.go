package profit

import "github.com/toolasha/agent/internal/market"

// itemDictionaryVendor adapts character.Manager's static item dictionary
// to market.VendorBook: an item's shop coin cost is its own
// ItemDetail.Raw["sellPrice"] (spec §4.5 "shop coin cost").
type itemDictionaryVendor struct {
	chars charDictionary
}

// NewItemDictionaryVendor wraps mgr as a market.VendorBook.
func NewItemDictionaryVendor(mgr charDictionary) market.VendorBook {
	return &itemDictionaryVendor{chars: mgr}
}

func (v *itemDictionaryVendor) VendorPrice(hrid string) (float64, bool) {
	detail, ok := v.chars.ItemDetails(hrid)
	if !ok {
		return 0, false
	}
	price := asFloat(detail.Raw["sellPrice"])
	if price <= 0 {
		return 0, false
	}
	return price, true
}
