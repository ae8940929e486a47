package session

import "testing"

func TestRegistry_GetPutRemove(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Get("alice"); ok {
		t.Error("Get on empty registry returned a session")
	}

	s := &Session{TenantID: "alice"}
	r.Put("alice", s)

	got, ok := r.Get("alice")
	if !ok || got != s {
		t.Errorf("Get = %v, %v; want stored session", got, ok)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}

	r.Remove("alice")
	if _, ok := r.Get("alice"); ok {
		t.Error("session still present after Remove")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestRegistry_PutReplaces(t *testing.T) {
	r := NewRegistry()
	old := &Session{TenantID: "alice"}
	fresh := &Session{TenantID: "alice"}

	r.Put("alice", old)
	r.Put("alice", fresh)

	got, _ := r.Get("alice")
	if got != fresh {
		t.Error("Put did not replace the existing session")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	r.Put("alice", &Session{TenantID: "alice"})
	r.Put("bob", &Session{TenantID: "bob"})

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("List returned %d sessions, want 2", len(list))
	}
	seen := map[string]bool{}
	for _, s := range list {
		seen[s.TenantID] = true
	}
	if !seen["alice"] || !seen["bob"] {
		t.Errorf("List missing tenants: %v", seen)
	}
}
