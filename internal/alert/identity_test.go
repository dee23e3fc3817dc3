package alert

import "testing"

func TestDeriveNotificationIDDeterministic(t *testing.T) {
	ids := []string{
		"evt_1", "evt_2", "a", "", "9f8e7d6c-5b4a-3210-fedc-ba9876543210",
		"wydarzenie-ważne", "会議", "🎉 party",
	}
	for _, id := range ids {
		first := DeriveNotificationID(id)
		for i := 0; i < 3; i++ {
			if got := DeriveNotificationID(id); got != first {
				t.Fatalf("DeriveNotificationID(%q) not stable: %d vs %d", id, got, first)
			}
		}
		if first < 0 {
			t.Fatalf("DeriveNotificationID(%q) = %d, want non-negative", id, first)
		}
	}
}

func TestDeriveNotificationIDDistinguishesSample(t *testing.T) {
	// Collisions are tolerated in general, but a small representative
	// sample should not collide.
	ids := []string{"evt_1", "evt_2", "evt_3", "meeting", "dentist", "standup"}
	seen := make(map[int32]string)
	for _, id := range ids {
		h := DeriveNotificationID(id)
		if prev, ok := seen[h]; ok {
			t.Fatalf("unexpected collision: %q and %q both hash to %d", prev, id, h)
		}
		seen[h] = id
	}
}

func TestDeriveNotificationIDEmpty(t *testing.T) {
	if got := DeriveNotificationID(""); got != 0 {
		t.Fatalf("empty id hashed to %d, want 0", got)
	}
}
