package presence

import (
	"testing"
	"time"
)

type sinkRecorder struct {
	expired chan RoomView
}

func newSinkRecorder() *sinkRecorder {
	return &sinkRecorder{expired: make(chan RoomView, 4)}
}

func (r *sinkRecorder) OwnerGraceExpired(room RoomView) {
	r.expired <- room
}

func (r *sinkRecorder) waitExpired(t *testing.T, d time.Duration) (RoomView, bool) {
	t.Helper()
	select {
	case v := <-r.expired:
		return v, true
	case <-time.After(d):
		return RoomView{}, false
	}
}

func TestOwnership_DisconnectPromotesTemporarily(t *testing.T) {
	s := newTestStore()
	s.AddParticipant("r1", "u1", "Alice", "c1")
	s.AddParticipant("r1", "u2", "Bob", "c2")

	res := s.RemoveParticipant("u1", ReasonConnectionLost)

	if res.Room.OwnerID != "u2" {
		t.Fatalf("Bob must be promoted, got %q", res.Room.OwnerID)
	}
	if !res.Room.OwnerTemporary {
		t.Fatalf("promotion after connection loss must be temporary")
	}
}

func TestOwnership_GraceRestore(t *testing.T) {
	s := newTestStore()
	sink := newSinkRecorder()
	s.SetSink(sink)

	s.AddParticipant("r1", "u1", "Alice", "c1")
	s.AddParticipant("r1", "u2", "Bob", "c2")
	s.RemoveParticipant("u1", ReasonConnectionLost)

	// возврат внутри грейс-окна
	res := s.AddParticipant("r1", "u1", "Alice", "c9")

	if !res.OwnerRestored {
		t.Fatalf("rejoin within the grace window must restore ownership")
	}
	if res.Room.OwnerID != "u1" || res.Room.OwnerTemporary {
		t.Fatalf("Alice must be the stable owner again, got %+v", res.Room)
	}

	// таймер отменён: события смены владельца быть не должно
	if _, fired := sink.waitExpired(t, 120*time.Millisecond); fired {
		t.Fatalf("cancelled grace timer must not fire")
	}
}

func TestOwnership_GraceExpiry(t *testing.T) {
	s := newTestStore()
	sink := newSinkRecorder()
	s.SetSink(sink)

	s.AddParticipant("r1", "u1", "Alice", "c1")
	s.AddParticipant("r1", "u2", "Bob", "c2")
	s.RemoveParticipant("u1", ReasonConnectionLost)

	view, fired := sink.waitExpired(t, 300*time.Millisecond)
	if !fired {
		t.Fatalf("grace timer must fire exactly once")
	}
	if view.OwnerID != "u2" || view.OwnerTemporary {
		t.Fatalf("Bob must become the permanent owner, got %+v", view)
	}

	if _, again := sink.waitExpired(t, 120*time.Millisecond); again {
		t.Fatalf("grace timer must not fire twice")
	}

	// опоздавший возврат — обычный join без восстановления
	res := s.AddParticipant("r1", "u1", "Alice", "c9")
	if res.OwnerRestored {
		t.Fatalf("rejoin after expiry must not restore ownership")
	}
	if res.Room.OwnerID != "u2" {
		t.Fatalf("Bob keeps the room, got %q", res.Room.OwnerID)
	}
}

func TestOwnership_TimerIsNoopAfterRoomDeleted(t *testing.T) {
	s := newTestStore()
	sink := newSinkRecorder()
	s.SetSink(sink)

	s.AddParticipant("r1", "u1", "Alice", "c1")
	s.AddParticipant("r1", "u2", "Bob", "c2")
	s.RemoveParticipant("u1", ReasonConnectionLost)

	// комната пустеет до истечения окна — таймер обязан погаснуть
	s.RemoveParticipant("u2", ReasonExplicitLeave)
	if _, ok := s.Room("r1"); ok {
		t.Fatalf("room must be deleted")
	}

	if _, fired := sink.waitExpired(t, 150*time.Millisecond); fired {
		t.Fatalf("timer fired for a deleted room")
	}
}

func TestOwnership_TempOwnerLeaveKeepsGraceWindow(t *testing.T) {
	s := newTestStore()
	sink := newSinkRecorder()
	s.SetSink(sink)

	s.AddParticipant("r1", "u1", "Alice", "c1")
	s.AddParticipant("r1", "u2", "Bob", "c2")
	s.AddParticipant("r1", "u3", "Carol", "c3")
	s.RemoveParticipant("u1", ReasonConnectionLost) // Bob временный владелец

	// явный выход временного держателя не гасит чужое окно
	res := s.RemoveParticipant("u2", ReasonExplicitLeave)
	if res.Room.OwnerID != "u3" || !res.Room.OwnerTemporary {
		t.Fatalf("Carol must take over temporarily, got %+v", res.Room)
	}

	// право Alice на возврат сохранилось
	jr := s.AddParticipant("r1", "u1", "Alice", "c9")
	if !jr.OwnerRestored || jr.Room.OwnerID != "u1" || jr.Room.OwnerTemporary {
		t.Fatalf("Alice must get the room back, got %+v", jr.Room)
	}

	if _, fired := sink.waitExpired(t, 120*time.Millisecond); fired {
		t.Fatalf("restored window must not fire")
	}
}

func TestOwnership_TempOwnerLeaveThenExpiry(t *testing.T) {
	s := newTestStore()
	sink := newSinkRecorder()
	s.SetSink(sink)

	s.AddParticipant("r1", "u1", "Alice", "c1")
	s.AddParticipant("r1", "u2", "Bob", "c2")
	s.AddParticipant("r1", "u3", "Carol", "c3")
	s.RemoveParticipant("u1", ReasonConnectionLost)
	s.RemoveParticipant("u2", ReasonExplicitLeave)

	view, fired := sink.waitExpired(t, 300*time.Millisecond)
	if !fired {
		t.Fatalf("window outlives the departed temporary holder and must fire")
	}
	if view.OwnerID != "u3" || view.OwnerTemporary {
		t.Fatalf("Carol must become the permanent owner, got %+v", view)
	}
}

func TestOwnership_SecondDisconnectReplacesGraceWindow(t *testing.T) {
	s := newTestStore()
	sink := newSinkRecorder()
	s.SetSink(sink)

	s.AddParticipant("r1", "u1", "Alice", "c1")
	s.AddParticipant("r1", "u2", "Bob", "c2")
	s.AddParticipant("r1", "u3", "Carol", "c3")

	s.RemoveParticipant("u1", ReasonConnectionLost) // Bob временный владелец
	s.RemoveParticipant("u2", ReasonConnectionLost) // Carol временный владелец, окно перезапущено

	view, fired := sink.waitExpired(t, 300*time.Millisecond)
	if !fired {
		t.Fatalf("replacement grace timer must fire")
	}
	if view.OwnerID != "u3" {
		t.Fatalf("Carol must end up as owner, got %q", view.OwnerID)
	}

	// окно принадлежит u2: возврат Alice уже ничего не восстанавливает
	res := s.AddParticipant("r1", "u1", "Alice", "c9")
	if res.OwnerRestored {
		t.Fatalf("Alice's window was replaced, no restore expected")
	}
}
