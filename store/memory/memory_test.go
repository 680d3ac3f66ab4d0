package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/gymdesk/generic"
	"github.com/warp/gymdesk/store/memory"
	"github.com/warp/gymdesk/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) generic.TxStore { return memory.New() })
}

func TestMemory_DuplicateReportsOwner(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	day := generic.NewDate(2024, time.January, 15)

	require.NoError(t, s.InsertMember(ctx, generic.Member{ID: "m-1", Name: "Ana", Phone: "300", JoinDate: day}))

	var dup *generic.DuplicatePhoneError
	require.ErrorAs(t, s.InsertMember(ctx, generic.Member{ID: "m-2", Name: "Eva", Phone: "300"}), &dup)
	assert.Equal(t, generic.MemberID("m-1"), dup.ExistingMemberID)

	checkedIn := day.StartIn(time.UTC).Add(12 * time.Hour)
	require.NoError(t, s.InsertAttendance(ctx, generic.Attendance{ID: "a-1", MemberID: "m-1", CheckedInAt: checkedIn, Day: day}))

	var already *generic.AlreadyCheckedInError
	require.ErrorAs(t, s.InsertAttendance(ctx, generic.Attendance{ID: "a-2", MemberID: "m-1", Day: day}), &already)
	assert.True(t, checkedIn.Equal(already.ExistingAt))
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	exp := generic.NewDate(2024, time.January, 31)
	require.NoError(t, s.InsertMember(ctx, generic.Member{ID: "m-1", Phone: "300", PlanExpiration: &exp}))

	got, err := s.GetMember(ctx, "m-1")
	require.NoError(t, err)
	*got.PlanExpiration = got.PlanExpiration.AddDays(100)

	again, err := s.GetMember(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-31", again.PlanExpiration.String())
}
