package catalog

import "fsanano/storefront/internal/model"

type CartLookup interface {
	ItemForProduct(productID int) (model.CartItem, bool)
}

// Card is a product as rendered in a listing or on its detail page. A product
// already in the cart shows quantity controls instead of the add action;
// decrementing from 1 removes the line.
type Card struct {
	Product          model.Product `json:"product"`
	InCart           bool          `json:"in_cart"`
	ItemID           int           `json:"item_id,omitempty"`
	Quantity         int           `json:"quantity,omitempty"`
	CanAdd           bool          `json:"can_add"`
	CanIncrement     bool          `json:"can_increment"`
	DecrementRemoves bool          `json:"decrement_removes"`
}

func NewCard(p model.Product, cart CartLookup) Card {
	c := Card{Product: p}
	if cart != nil {
		if item, ok := cart.ItemForProduct(p.ID); ok {
			c.InCart = true
			c.ItemID = item.ID
			c.Quantity = item.Quantity
			c.CanIncrement = item.Quantity < p.InventoryCount
			c.DecrementRemoves = item.Quantity <= 1
			return c
		}
	}
	c.CanAdd = p.InStock()
	return c
}
