package cart

// Line is one product position in an in-progress sale.
type Line struct {
	ProductID      string
	ProductName    string
	Quantity       int
	UnitPriceCents int64
}

func (l Line) SubtotalCents() int64 {
	return int64(l.Quantity) * l.UnitPriceCents
}

// Cart holds the working set of line items for one in-progress sale and
// computes the derived totals. It is pure in-memory state; nothing is
// persisted until checkout. Lines keep insertion order.
type Cart struct {
	lines []Line
}

func New() *Cart {
	return &Cart{lines: make([]Line, 0, 8)}
}

// AddItem appends a new line with quantity 1, or increments the quantity of
// the existing line for the same product.
func (c *Cart) AddItem(productID, productName string, unitPriceCents int64) {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			c.lines[i].Quantity++
			return
		}
	}
	c.lines = append(c.lines, Line{
		ProductID:      productID,
		ProductName:    productName,
		Quantity:       1,
		UnitPriceCents: unitPriceCents,
	})
}

// SetQuantity sets the quantity of the line for productID. A quantity of zero
// or less removes the line. Unknown product ids are ignored.
func (c *Cart) SetQuantity(productID string, quantity int) {
	if quantity <= 0 {
		c.RemoveItem(productID)
		return
	}
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			c.lines[i].Quantity = quantity
			return
		}
	}
}

// RemoveItem drops the line for productID unconditionally.
func (c *Cart) RemoveItem(productID string) {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return
		}
	}
}

func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

// SubtotalCents is the sum of all line subtotals.
func (c *Cart) SubtotalCents() int64 {
	var sum int64
	for _, line := range c.lines {
		sum += line.SubtotalCents()
	}
	return sum
}

// TotalCents is subtotal + tax - discount. No floor is applied: a discount
// larger than subtotal+tax yields a negative total, matching the historical
// behavior of the checkout screen.
func (c *Cart) TotalCents(taxCents, discountCents int64) int64 {
	return c.SubtotalCents() + taxCents - discountCents
}
