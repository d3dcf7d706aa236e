package pricing

import "github.com/go-faster/errors"

// MaxQuantity bounds the quantity of a single cart line, including merged
// duplicates. It fits the INT4 order_lines.quantity column.
const MaxQuantity = 100_000

var (
	ErrInvalidQuantity  = errors.New("quantity must be greater than 0")
	ErrQuantityTooLarge = errors.New("quantity must be at most 100000")
	ErrEmptyVariation   = errors.New("variation id required")
	ErrLineNotFound     = errors.New("line not in cart")
)

// CartLine is a quantity of one product variation.
type CartLine struct {
	VariationID string
	Quantity    int
}

// Cart is an ordered list of lines where each variation appears at most once.
// Lines keep the position of the first addition of their variation.
type Cart struct {
	lines []CartLine
	index map[string]int
}

// NewCart returns an empty cart.
func NewCart() *Cart {
	return &Cart{index: make(map[string]int)}
}

// Add adds qty units of a variation, merging into an existing line.
func (c *Cart) Add(variationID string, qty int) error {
	if variationID == "" {
		return ErrEmptyVariation
	}
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > MaxQuantity {
		return ErrQuantityTooLarge
	}
	if i, ok := c.index[variationID]; ok {
		if c.lines[i].Quantity > MaxQuantity-qty {
			return ErrQuantityTooLarge
		}
		c.lines[i].Quantity += qty
		return nil
	}
	c.index[variationID] = len(c.lines)
	c.lines = append(c.lines, CartLine{VariationID: variationID, Quantity: qty})
	return nil
}

// Remove takes qty units of a variation out of the cart. The line is dropped
// once its quantity reaches zero.
func (c *Cart) Remove(variationID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	i, ok := c.index[variationID]
	if !ok {
		return ErrLineNotFound
	}
	if c.lines[i].Quantity > qty {
		c.lines[i].Quantity -= qty
		return nil
	}

	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	delete(c.index, variationID)
	for j := i; j < len(c.lines); j++ {
		c.index[c.lines[j].VariationID] = j
	}
	return nil
}

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []CartLine {
	out := make([]CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

// Len returns the number of distinct lines.
func (c *Cart) Len() int { return len(c.lines) }
