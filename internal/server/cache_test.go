package server

import (
	"testing"
	"time"

	"github.com/dcrodman/orion/internal/message"
)

func TestPlayerCache(t *testing.T) {
	c := NewPlayerCache(0)
	if _, ok := c.Get("Ann"); ok {
		t.Fatal("expected an empty cache")
	}

	c.Put("Ann", 4)
	id, ok := c.Get("ANN")
	if !ok || id != 4 {
		t.Errorf("expected case-insensitive lookup to return 4, got %d (found = %v)", id, ok)
	}
}

func TestPlayerCache_Expiry(t *testing.T) {
	c := NewPlayerCache(10 * time.Millisecond)
	c.Put("Ann", message.PlayerID(4))
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get("Ann"); ok {
		t.Error("expected the entry to have expired")
	}
}
