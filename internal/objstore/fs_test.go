package objstore

import (
	"context"
	"errors"
	"testing"
)

func TestFSStore_roundTrip(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	key := "skills/acme/widget/SKILL.md"

	if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing object: expected ErrNotFound, got %v", err)
	}
	ok, err := s.Exists(ctx, key)
	if err != nil || ok {
		t.Errorf("Exists before put: %v, %v", ok, err)
	}

	if err := s.Put(ctx, key, []byte("v1")); err != nil {
		t.Fatal(err)
	}
	data, err := s.Get(ctx, key)
	if err != nil || string(data) != "v1" {
		t.Errorf("Get: %q, %v", data, err)
	}
	ok, err = s.Exists(ctx, key)
	if err != nil || !ok {
		t.Errorf("Exists after put: %v, %v", ok, err)
	}

	// Overwrite replaces the object in place.
	if err := s.Put(ctx, key, []byte("v2")); err != nil {
		t.Fatal(err)
	}
	data, _ = s.Get(ctx, key)
	if string(data) != "v2" {
		t.Errorf("after overwrite: %q", data)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete: %v", err)
	}
	// Deleting a missing object is not an error.
	if err := s.Delete(ctx, key); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestFSStore_rejectsEscapingKeys(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, key := range []string{"../outside", "..", "/etc/passwd", "a/../../b", "."} {
		if err := s.Put(ctx, key, []byte("x")); err == nil {
			t.Errorf("Put(%q) accepted", key)
		}
		if _, err := s.Get(ctx, key); err == nil {
			t.Errorf("Get(%q) accepted", key)
		}
	}
}
