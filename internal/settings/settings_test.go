package settings

import (
	"path/filepath"
	"reflect"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetUnsetKey(t *testing.T) {
	s := openTestStore(t)
	v, err := s.Get("missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "" {
		t.Errorf("Get(missing) = %q, want empty", v)
	}
}

func TestSetOverwrites(t *testing.T) {
	s := openTestStore(t)
	if err := s.Set("k", "first"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("k", "second"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := s.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "second" {
		t.Errorf("Get = %q, want second", v)
	}
}

func TestAll(t *testing.T) {
	s := openTestStore(t)
	for k, v := range map[string]string{"a": "1", "b": "2"} {
		if err := s.Set(k, v); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}
	all, err := s.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	want := map[string]string{"a": "1", "b": "2"}
	if !reflect.DeepEqual(all, want) {
		t.Errorf("All = %v, want %v", all, want)
	}
}

func TestFavouritesRoundTrip(t *testing.T) {
	s := openTestStore(t)

	nums, err := s.Favourites()
	if err != nil {
		t.Fatalf("Favourites: %v", err)
	}
	if nums != nil {
		t.Errorf("unset favourites = %v, want nil", nums)
	}

	if err := s.SetFavourites([]string{"1", "44", "16"}); err != nil {
		t.Fatalf("SetFavourites: %v", err)
	}
	nums, err = s.Favourites()
	if err != nil {
		t.Fatalf("Favourites: %v", err)
	}
	if !reflect.DeepEqual(nums, []string{"1", "44", "16"}) {
		t.Errorf("Favourites = %v, want [1 44 16]", nums)
	}
}

func TestNotifierEnabledDefault(t *testing.T) {
	s := openTestStore(t)

	on, err := s.NotifierEnabled(true)
	if err != nil {
		t.Fatalf("NotifierEnabled: %v", err)
	}
	if !on {
		t.Error("unset toggle should fall back to default true")
	}

	if err := s.SetNotifierEnabled(false); err != nil {
		t.Fatalf("SetNotifierEnabled: %v", err)
	}
	on, err = s.NotifierEnabled(true)
	if err != nil {
		t.Fatalf("NotifierEnabled: %v", err)
	}
	if on {
		t.Error("stored false should win over default true")
	}
}
