package device

import (
	"errors"
	"slices"
	"testing"

	"github.com/nerrad567/homedash-core/internal/infrastructure/config"
)

func TestNewCatalog(t *testing.T) {
	c, err := NewCatalog(config.DevicesConfig{
		Rooms: []string{"dapur", "tamu", "makan"},
		Fans:  []string{"kamar"},
	})
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	if got := c.Rooms(); !slices.Equal(got, []string{"dapur", "tamu", "makan"}) {
		t.Errorf("Rooms() = %v", got)
	}
	if err := c.Room("dapur"); err != nil {
		t.Errorf("Room(dapur) = %v", err)
	}
	if err := c.Room("garasi"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Room(garasi) = %v, want ErrRoomNotFound", err)
	}
	if err := c.Fan("kamar"); err != nil {
		t.Errorf("Fan(kamar) = %v", err)
	}
	if err := c.Fan("dapur"); !errors.Is(err, ErrFanNotFound) {
		t.Errorf("Fan(dapur) = %v, want ErrFanNotFound", err)
	}

	want := []string{
		"Lampu/dapur", "Lampu/tamu", "Lampu/makan",
		"Kipas/kamar", "Kipas/kecepatankamar",
		"dht22/temperature", "dht22/humidity",
	}
	if got := c.Paths(); !slices.Equal(got, want) {
		t.Errorf("Paths() = %v, want %v", got, want)
	}
}

func TestCatalog_ReturnsCopies(t *testing.T) {
	c, err := NewCatalog(config.DevicesConfig{Rooms: []string{"dapur"}})
	if err != nil {
		t.Fatal(err)
	}
	c.Rooms()[0] = "changed"
	if c.Rooms()[0] != "dapur" {
		t.Error("Rooms() exposed internal state")
	}
}

func TestNewCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DevicesConfig
		want error
	}{
		{"empty room", config.DevicesConfig{Rooms: []string{""}}, ErrInvalidID},
		{"slash in room", config.DevicesConfig{Rooms: []string{"a/b"}}, ErrInvalidID},
		{"wildcard fan", config.DevicesConfig{Fans: []string{"#"}}, ErrInvalidID},
		{"fan colliding with speed path", config.DevicesConfig{Fans: []string{"kecepatankamar"}}, ErrInvalidID},
		{"duplicate room", config.DevicesConfig{Rooms: []string{"dapur", "dapur"}}, ErrDuplicateID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.cfg)
			if !errors.Is(err, tt.want) {
				t.Errorf("NewCatalog() error = %v, want %v", err, tt.want)
			}
		})
	}
}
