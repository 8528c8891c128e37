package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cwrk-planet/focus-service/internal/domain"
	"github.com/cwrk-planet/focus-service/internal/presence"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRoomRepo struct {
	mock.Mock
}

func (m *mockRoomRepo) FindRoom(ctx context.Context, id string) (*domain.RoomRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RoomRecord), args.Error(1)
}

func (m *mockRoomRepo) UpsertRoom(ctx context.Context, rec *domain.RoomRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) Append(ctx context.Context, rec *domain.SessionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

type fakePresence struct {
	view    presence.RoomView
	ok      bool
	marked  bool
	cleared bool
}

func (f *fakePresence) Room(string) (presence.RoomView, bool) { return f.view, f.ok }

func (f *fakePresence) MarkSessionStarted(string, time.Time, time.Duration) (presence.RoomView, bool) {
	f.marked = true
	return f.view, f.ok
}

func (f *fakePresence) ClearSession(string) (presence.RoomView, bool) {
	f.cleared = true
	return f.view, f.ok
}

func liveRoom(start time.Time, active bool, participants ...presence.Participant) presence.RoomView {
	v := presence.RoomView{
		ID:            "r1",
		Name:          "Deep Work",
		OwnerID:       "u1",
		Participants:  participants,
		SessionActive: active,
		Status:        domain.RoomStatusWaiting,
	}
	if active {
		v.SessionStart = start
		v.Status = domain.RoomStatusActive
	}
	return v
}

func TestStartSession_InvalidArgument(t *testing.T) {
	c := NewCoordinator(new(mockRoomRepo), new(mockSessionRepo), &fakePresence{})

	_, err := c.StartSession(context.Background(), "", time.Now(), time.Minute)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = c.StartSession(context.Background(), "r1", time.Now(), 0)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestStartSession_CreatesDurableRecordLazily(t *testing.T) {
	rooms := new(mockRoomRepo)
	sessions := new(mockSessionRepo)
	start := time.Now()
	p := &fakePresence{
		ok: true,
		view: liveRoom(time.Time{}, false,
			presence.Participant{UserID: "u1", DisplayName: "Alice", JoinedAt: start.Add(-time.Minute)},
			presence.Participant{UserID: "u2", DisplayName: "Bob", JoinedAt: start.Add(-time.Second)},
		),
	}

	rooms.On("FindRoom", mock.Anything, "r1").Return(nil, domain.ErrRoomNotFound)
	rooms.On("UpsertRoom", mock.Anything, mock.MatchedBy(func(rec *domain.RoomRecord) bool {
		return rec.ID == "r1" &&
			rec.Name == "Deep Work" &&
			rec.OwnerID == "u1" &&
			len(rec.Participants) == 2 &&
			rec.IsSessionActive &&
			rec.Status == domain.RoomStatusActive &&
			rec.Duration == 25*time.Minute
	})).Return(nil)

	c := NewCoordinator(rooms, sessions, p)
	res, err := c.StartSession(context.Background(), "r1", start, 25*time.Minute)

	require.NoError(t, err)
	require.True(t, res.IsNewSession)
	require.Equal(t, start, res.SessionStart)
	require.Equal(t, 25*time.Minute, res.Duration)
	require.True(t, p.marked, "durable write confirmed, memory must be mirrored")
	rooms.AssertExpectations(t)
}

func TestStartSession_IdempotentWhenActive(t *testing.T) {
	rooms := new(mockRoomRepo)
	start := time.Now().Add(-10 * time.Minute)
	rooms.On("FindRoom", mock.Anything, "r1").Return(&domain.RoomRecord{
		ID:                 "r1",
		IsSessionActive:    true,
		RecentSessionStart: start,
		Duration:           50 * time.Minute,
		Status:             domain.RoomStatusActive,
	}, nil)

	p := &fakePresence{ok: true, view: liveRoom(start, true)}
	c := NewCoordinator(rooms, new(mockSessionRepo), p)

	res, err := c.StartSession(context.Background(), "r1", time.Now(), time.Hour)

	require.NoError(t, err)
	require.False(t, res.IsNewSession, "racing caller must be told the session is already running")
	require.Equal(t, start, res.SessionStart)
	require.Equal(t, 50*time.Minute, res.Duration)
	require.False(t, p.marked, "existing timer must not be altered")
	rooms.AssertNotCalled(t, "UpsertRoom", mock.Anything, mock.Anything)
}

func TestStartSession_NoLiveRoom(t *testing.T) {
	rooms := new(mockRoomRepo)
	rooms.On("FindRoom", mock.Anything, "r1").Return(nil, domain.ErrRoomNotFound)

	c := NewCoordinator(rooms, new(mockSessionRepo), &fakePresence{ok: false})
	_, err := c.StartSession(context.Background(), "r1", time.Now(), time.Minute)

	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestStartSession_PersistFailureLeavesMemoryUntouched(t *testing.T) {
	rooms := new(mockRoomRepo)
	rooms.On("FindRoom", mock.Anything, "r1").Return(nil, domain.ErrRoomNotFound)
	rooms.On("UpsertRoom", mock.Anything, mock.Anything).Return(errors.New("pg down"))

	p := &fakePresence{ok: true, view: liveRoom(time.Time{}, false,
		presence.Participant{UserID: "u1", DisplayName: "Alice"})}
	c := NewCoordinator(rooms, new(mockSessionRepo), p)

	_, err := c.StartSession(context.Background(), "r1", time.Now(), time.Minute)

	require.ErrorIs(t, err, domain.ErrPersistence)
	require.False(t, p.marked, "write-then-mirror: no mirror on failed write")
}

func TestEndSession_NoActiveSession(t *testing.T) {
	rooms := new(mockRoomRepo)
	rooms.On("FindRoom", mock.Anything, "r1").Return(nil, domain.ErrRoomNotFound)

	c := NewCoordinator(rooms, new(mockSessionRepo), &fakePresence{})
	_, err := c.EndSession(context.Background(), "r1", time.Now())
	require.ErrorIs(t, err, domain.ErrNoActiveSession)

	rooms2 := new(mockRoomRepo)
	rooms2.On("FindRoom", mock.Anything, "r1").Return(&domain.RoomRecord{ID: "r1", IsSessionActive: false}, nil)
	c2 := NewCoordinator(rooms2, new(mockSessionRepo), &fakePresence{})
	_, err = c2.EndSession(context.Background(), "r1", time.Now())
	require.ErrorIs(t, err, domain.ErrNoActiveSession)
}

func TestEndSession_ClipsMidSessionJoiners(t *testing.T) {
	t0 := time.Now().Truncate(time.Second)
	end := t0.Add(65 * time.Second)

	rooms := new(mockRoomRepo)
	sessions := new(mockSessionRepo)
	rooms.On("FindRoom", mock.Anything, "r1").Return(&domain.RoomRecord{
		ID:                 "r1",
		Name:               "Deep Work",
		IsSessionActive:    true,
		RecentSessionStart: t0,
		Duration:           time.Hour,
		Status:             domain.RoomStatusActive,
	}, nil)

	var appended []*domain.SessionRecord
	sessions.On("Append", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		appended = append(appended, args.Get(1).(*domain.SessionRecord))
	})
	rooms.On("UpsertRoom", mock.Anything, mock.MatchedBy(func(rec *domain.RoomRecord) bool {
		return !rec.IsSessionActive && rec.Status == domain.RoomStatusEnded && len(rec.SessionIDs) == 2
	})).Return(nil)

	p := &fakePresence{ok: true, view: liveRoom(t0, true,
		presence.Participant{UserID: "u1", DisplayName: "Alice", JoinedAt: t0.Add(-time.Hour)},
		presence.Participant{UserID: "u2", DisplayName: "Bob", JoinedAt: t0.Add(5 * time.Second)},
	)}
	c := NewCoordinator(rooms, sessions, p)

	res, err := c.EndSession(context.Background(), "r1", end)
	require.NoError(t, err)
	require.True(t, res.Ended)
	require.Equal(t, int64(65), res.DurationSec)
	require.True(t, p.cleared)

	require.Len(t, appended, 2)
	require.Equal(t, int64(65), appended[0].DurationSec, "full-time participant is credited for the whole session")
	require.Equal(t, int64(60), appended[1].DurationSec, "mid-session joiner is credited only for presence")
	require.Equal(t, t0.Add(5*time.Second), appended[1].StartTime)
	require.Equal(t, domain.SessionStatusCompleted, appended[1].Status)
	rooms.AssertExpectations(t)
}

func TestEndSession_ClampsNegativeDurations(t *testing.T) {
	t0 := time.Now()
	end := t0.Add(10 * time.Second)

	rooms := new(mockRoomRepo)
	sessions := new(mockSessionRepo)
	rooms.On("FindRoom", mock.Anything, "r1").Return(&domain.RoomRecord{
		ID: "r1", IsSessionActive: true, RecentSessionStart: t0, Status: domain.RoomStatusActive,
	}, nil)
	rooms.On("UpsertRoom", mock.Anything, mock.Anything).Return(nil)

	var appended []*domain.SessionRecord
	sessions.On("Append", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		appended = append(appended, args.Get(1).(*domain.SessionRecord))
	})

	// участник «из будущего»: joinedAt позже endTime
	p := &fakePresence{ok: true, view: liveRoom(t0, true,
		presence.Participant{UserID: "u1", DisplayName: "Alice", JoinedAt: end.Add(time.Minute)},
	)}
	c := NewCoordinator(rooms, sessions, p)

	_, err := c.EndSession(context.Background(), "r1", end)
	require.NoError(t, err)
	require.Len(t, appended, 1)
	require.Equal(t, int64(0), appended[0].DurationSec, "record stays valid but zero-length")
}

func TestEndSession_AggregatesAppendFailures(t *testing.T) {
	t0 := time.Now()

	rooms := new(mockRoomRepo)
	sessions := new(mockSessionRepo)
	rooms.On("FindRoom", mock.Anything, "r1").Return(&domain.RoomRecord{
		ID: "r1", IsSessionActive: true, RecentSessionStart: t0, Status: domain.RoomStatusActive,
	}, nil)

	sessions.On("Append", mock.Anything, mock.MatchedBy(func(r *domain.SessionRecord) bool {
		return r.UserID == "u1"
	})).Return(errors.New("insert failed"))
	sessions.On("Append", mock.Anything, mock.MatchedBy(func(r *domain.SessionRecord) bool {
		return r.UserID == "u2"
	})).Return(nil)

	rooms.On("UpsertRoom", mock.Anything, mock.MatchedBy(func(rec *domain.RoomRecord) bool {
		// комната всё равно переходит в ended; записан только успешный id
		return !rec.IsSessionActive && rec.Status == domain.RoomStatusEnded && len(rec.SessionIDs) == 1
	})).Return(nil)

	p := &fakePresence{ok: true, view: liveRoom(t0, true,
		presence.Participant{UserID: "u1", DisplayName: "Alice", JoinedAt: t0},
		presence.Participant{UserID: "u2", DisplayName: "Bob", JoinedAt: t0},
	)}
	c := NewCoordinator(rooms, sessions, p)

	res, err := c.EndSession(context.Background(), "r1", t0.Add(time.Minute))

	require.ErrorIs(t, err, domain.ErrPersistence)
	require.True(t, res.Ended, "transport must be told the room did transition")
	require.True(t, p.cleared, "lifecycle transition must complete despite one lost record")
	rooms.AssertExpectations(t)
}

func TestEndSession_UpsertFailureKeepsLiveState(t *testing.T) {
	t0 := time.Now()

	rooms := new(mockRoomRepo)
	sessions := new(mockSessionRepo)
	rooms.On("FindRoom", mock.Anything, "r1").Return(&domain.RoomRecord{
		ID: "r1", IsSessionActive: true, RecentSessionStart: t0, Status: domain.RoomStatusActive,
	}, nil)
	sessions.On("Append", mock.Anything, mock.Anything).Return(nil)
	rooms.On("UpsertRoom", mock.Anything, mock.Anything).Return(errors.New("pg down"))

	p := &fakePresence{ok: true, view: liveRoom(t0, true,
		presence.Participant{UserID: "u1", DisplayName: "Alice", JoinedAt: t0},
	)}
	c := NewCoordinator(rooms, sessions, p)

	res, err := c.EndSession(context.Background(), "r1", t0.Add(time.Minute))

	require.ErrorIs(t, err, domain.ErrPersistence)
	require.False(t, res.Ended, "session is still running, transport must not report success")
	require.False(t, p.cleared, "write-then-mirror: live session fields stay on failed write")
}
