package presence

import "time"

// Передача владения комнатой.
//
// Первый вошедший в пустую комнату сразу становится владельцем. При явном
// выходе владельца старейший из оставшихся получает владение насовсем.
// При обрыве соединения преемник помечается временным, а за прежним
// владельцем на грейс-период сохраняется право вернуться: обрыв чаще всего
// транзиентный (перезагрузка вкладки, сетевой сбой), и наказывать за него
// постоянной сменой владельца не нужно.

// assignOrRestoreOwnerLocked выполняется внутри AddParticipant под общим
// локом: назначение владельца пустой комнаты и join не должны разъезжаться
// между двумя почти одновременными входами.
func (s *Store) assignOrRestoreOwnerLocked(r *room, userID string) (restored bool) {
	if r.owner.id == "" {
		r.owner = ownerState{id: userID}
		return false
	}
	if r.owner.temporary && r.grace.prevOwnerID == userID {
		// прежний владелец успел вернуться: откат без события смены владельца
		s.cancelGraceLocked(r)
		r.owner = ownerState{id: userID}
		return true
	}
	return false
}

func (s *Store) reassignOwnerLocked(r *room, departedID string, reason LeaveReason) {
	next := r.oldestParticipant()

	if reason == ReasonExplicitLeave {
		if r.owner.temporary && r.grace.timer != nil {
			// уходит временный держатель, а окно принадлежит прежнему
			// владельцу: его право на возврат сохраняется, меняется только
			// временный преемник
			r.owner = ownerState{id: next, temporary: true}
			return
		}
		s.cancelGraceLocked(r)
		r.owner = ownerState{id: next}
		return
	}

	// одно грейс-окно на комнату: новый обрыв вытесняет предыдущее
	s.cancelGraceLocked(r)
	r.owner = ownerState{id: next, temporary: true}
	r.grace.prevOwnerID = departedID
	gen := r.grace.generation
	roomID := r.id
	r.grace.timer = s.afterGrace(func() { s.expireGrace(roomID, gen) })
}

// expireGrace — колбэк таймера. Комнаты может уже не быть, а окно могло
// быть отменено или перезапущено; generation отсекает такие срабатывания.
func (s *Store) expireGrace(roomID string, gen uint64) {
	s.mu.Lock()
	r, ok := s.rooms[roomID]
	if !ok || r.grace.timer == nil || r.grace.generation != gen {
		s.mu.Unlock()
		return
	}
	r.owner.temporary = false
	r.grace.prevOwnerID = ""
	r.grace.timer = nil
	r.grace.generation++

	view := r.view()
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		sink.OwnerGraceExpired(view)
	}
}

func (s *Store) afterGrace(f func()) *time.Timer {
	return time.AfterFunc(s.gracePeriod, f)
}

func (s *Store) cancelGraceLocked(r *room) {
	if r.grace.timer != nil {
		r.grace.timer.Stop()
	}
	r.grace.timer = nil
	r.grace.prevOwnerID = ""
	r.grace.generation++
}
