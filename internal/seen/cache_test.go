package seen

import (
	"crypto/rand"
	"testing"
)

func randomNonce() [12]byte {
	var n [12]byte
	rand.Read(n[:])
	return n
}

func TestAddAndHas(t *testing.T) {
	c, err := New(16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	n := randomNonce()

	if c.Has(n) {
		t.Fatal("fresh cache should not have nonce")
	}
	if !c.Add(n) {
		t.Fatal("first Add should report a new nonce")
	}
	if !c.Has(n) {
		t.Fatal("should have nonce after Add")
	}
	if c.Add(n) {
		t.Fatal("second Add should report a duplicate")
	}
}

func TestEviction(t *testing.T) {
	c, _ := New(4)
	first := randomNonce()
	c.Add(first)
	for i := 0; i < 4; i++ {
		c.Add(randomNonce())
	}

	if c.Len() != 4 {
		t.Fatalf("Expected 4 entries, got %d", c.Len())
	}
	if c.Has(first) {
		t.Error("oldest nonce should have been evicted")
	}
}

func TestDefaultSize(t *testing.T) {
	c, err := New(0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for i := 0; i < DefaultSize+10; i++ {
		c.Add(randomNonce())
	}
	if c.Len() != DefaultSize {
		t.Errorf("Expected %d entries, got %d", DefaultSize, c.Len())
	}
}
