package cart

import "testing"

func TestAddItemIncrementsExistingLine(t *testing.T) {
	c := New()
	c.AddItem("p1", "Produto Um", 1000)
	c.AddItem("p1", "Produto Um", 1000)

	lines := c.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0].Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", lines[0].Quantity)
	}
}

func TestSetQuantityZeroRemovesLine(t *testing.T) {
	c := New()
	c.AddItem("p1", "Produto Um", 1000)
	c.AddItem("p2", "Produto Dois", 550)

	c.SetQuantity("p1", 0)

	lines := c.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 line after removal, got %d", len(lines))
	}
	if lines[0].ProductID != "p2" {
		t.Fatalf("expected p2 to remain, got %s", lines[0].ProductID)
	}
}

func TestSubtotalAndTotal(t *testing.T) {
	c := New()
	c.AddItem("p1", "Produto Um", 1000)
	c.SetQuantity("p1", 2)
	c.AddItem("p2", "Produto Dois", 550)

	if got := c.SubtotalCents(); got != 2550 {
		t.Fatalf("expected subtotal 2550, got %d", got)
	}
	if got := c.TotalCents(100, 0); got != 2650 {
		t.Fatalf("expected total 2650, got %d", got)
	}
}

func TestTotalHasNoFloor(t *testing.T) {
	c := New()
	c.AddItem("p1", "Produto Um", 100)

	// A discount larger than the subtotal drives the total negative; the
	// cart does not clamp it.
	if got := c.TotalCents(0, 500); got != -400 {
		t.Fatalf("expected total -400, got %d", got)
	}
}

func TestEmptyCart(t *testing.T) {
	c := New()
	if !c.Empty() {
		t.Fatalf("new cart should be empty")
	}
	if got := c.SubtotalCents(); got != 0 {
		t.Fatalf("expected subtotal 0, got %d", got)
	}

	c.AddItem("p1", "Produto", 100)
	if c.Empty() {
		t.Fatalf("cart with a line should not be empty")
	}
	c.RemoveItem("p1")
	if !c.Empty() {
		t.Fatalf("cart should be empty after removing its only line")
	}
}

func TestLinesReturnsCopy(t *testing.T) {
	c := New()
	c.AddItem("p1", "Produto", 100)

	lines := c.Lines()
	lines[0].Quantity = 99

	if c.Lines()[0].Quantity != 1 {
		t.Fatalf("mutating the returned slice must not affect the cart")
	}
}
