package hub

import "testing"

func newClient(id, department string) *Client {
	return &Client{
		ID:           id,
		Send:         make(chan []byte, 4),
		Subscription: Subscription{DepartmentID: department},
	}
}

func drain(c *Client) [][]byte {
	var got [][]byte
	for {
		select {
		case msg := <-c.Send:
			got = append(got, msg)
		default:
			return got
		}
	}
}

func TestBroadcastFiltersByDepartment(t *testing.T) {
	h := New()
	all := newClient("c-all", "")
	cardio := newClient("c-crd", "CRD")
	lab := newClient("c-lab", "LAB")
	h.Register(all)
	h.Register(cardio)
	h.Register(lab)

	h.Broadcast([]byte(`{"type":"ticket.called"}`), Subscription{DepartmentID: "CRD"})

	if got := drain(all); len(got) != 1 {
		t.Fatalf("unscoped client got %d messages, want 1", len(got))
	}
	if got := drain(cardio); len(got) != 1 {
		t.Fatalf("cardio client got %d messages, want 1", len(got))
	}
	if got := drain(lab); len(got) != 0 {
		t.Fatalf("lab client got %d messages, want 0", len(got))
	}
}

func TestBroadcastDropsWhenClientIsSlow(t *testing.T) {
	h := New()
	slow := &Client{ID: "c-slow", Send: make(chan []byte)}
	h.Register(slow)

	// Unbuffered channel with no reader; the broadcast must not block.
	h.Broadcast([]byte(`{}`), Subscription{})

	select {
	case msg := <-slow.Send:
		t.Fatalf("unexpected message %q", msg)
	default:
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h := New()
	client := newClient("c-1", "")
	h.Register(client)
	h.Unregister(client)

	if _, ok := <-client.Send; ok {
		t.Fatal("send channel still open after unregister")
	}
	// A broadcast after unregister must not reach the closed channel.
	h.Broadcast([]byte(`{}`), Subscription{})
}

func TestUpdateSubscription(t *testing.T) {
	h := New()
	client := newClient("c-1", "")
	h.Register(client)
	h.UpdateSubscription(client, Subscription{DepartmentID: "LAB"})

	h.Broadcast([]byte(`{}`), Subscription{DepartmentID: "CRD"})
	if got := drain(client); len(got) != 0 {
		t.Fatalf("got %d messages after resubscribing to LAB, want 0", len(got))
	}
}

func TestParseSubscribe(t *testing.T) {
	tests := []struct {
		name string
		data string
		ok   bool
		dept string
	}{
		{"subscribe", `{"action":"subscribe","department_id":"CRD"}`, true, "CRD"},
		{"unsubscribe", `{"action":"unsubscribe"}`, true, ""},
		{"unknown action", `{"action":"ping"}`, false, ""},
		{"garbage", `not json`, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := ParseSubscribe([]byte(tt.data))
			if ok != tt.ok {
				t.Fatalf("ok=%v, want %v", ok, tt.ok)
			}
			if msg.DepartmentID != tt.dept {
				t.Fatalf("department=%q, want %q", msg.DepartmentID, tt.dept)
			}
		})
	}
}
