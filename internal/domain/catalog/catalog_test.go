package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/hrm-scheduler/internal/domain/catalog"
	apperrors "github.com/target/hrm-scheduler/internal/errors"
)

func TestDefault_BuildsAndOrdersDependencies(t *testing.T) {
	c := catalog.Default()

	order := c.TopologicalOrder()
	pos := make(map[catalog.JobName]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	for _, d := range c.List() {
		for _, dep := range d.Dependencies {
			assert.Less(t, pos[dep], pos[d.Name], "%s must come after %s", d.Name, dep)
		}
	}
	assert.Len(t, order, len(c.List()))
}

func TestDefault_ListKeepsDeclarationOrder(t *testing.T) {
	c := catalog.Default()
	list := c.List()
	require.NotEmpty(t, list)
	assert.Equal(t, catalog.ConfigActivation, list[0].Name)
	for _, d := range list {
		assert.NotNil(t, d.Dependencies, "%s dependencies should be non-nil for JSON", d.Name)
		assert.NotEmpty(t, d.Description)
	}
}

func TestDefault_ScheduledEntriesAreGroups(t *testing.T) {
	c := catalog.Default()
	scheduled := c.Scheduled()
	require.Len(t, scheduled, 4)
	for _, d := range scheduled {
		assert.True(t, d.IsGroup(), "%s", d.Name)
	}
}

func TestNew_RejectsCycle(t *testing.T) {
	_, err := catalog.New([]catalog.Definition{
		{Name: "A", Dependencies: []catalog.JobName{"C"}},
		{Name: "B", Dependencies: []catalog.JobName{"A"}},
		{Name: "C", Dependencies: []catalog.JobName{"B"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestNew_RejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		defs []catalog.Definition
		want string
	}{
		{
			name: "unknown dependency",
			defs: []catalog.Definition{{Name: "A", Dependencies: []catalog.JobName{"MISSING"}}},
			want: "unknown job",
		},
		{
			name: "self dependency",
			defs: []catalog.Definition{{Name: "A", Dependencies: []catalog.JobName{"A"}}},
			want: "itself",
		},
		{
			name: "duplicate",
			defs: []catalog.Definition{{Name: "A"}, {Name: "A"}},
			want: "duplicate",
		},
		{
			name: "nested group",
			defs: []catalog.Definition{
				{Name: "A"},
				{Name: "G1", Members: []catalog.Member{{Name: "A"}}},
				{Name: "G2", Members: []catalog.Member{{Name: "G1"}}},
			},
			want: "nests group",
		},
		{
			name: "group runs dependent first",
			defs: []catalog.Definition{
				{Name: "A"},
				{Name: "B", Dependencies: []catalog.JobName{"A"}},
				{Name: "G", Members: []catalog.Member{{Name: "B"}, {Name: "A"}}},
			},
			want: "before its dependency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.New(tt.defs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNew_DefaultsParamKind(t *testing.T) {
	c, err := catalog.New([]catalog.Definition{{Name: "A"}})
	require.NoError(t, err)
	d, ok := c.Get("A")
	require.True(t, ok)
	assert.Equal(t, catalog.ParamsNone, d.Params)
}

func TestParse(t *testing.T) {
	c := catalog.Default()

	tests := []struct {
		in   string
		want catalog.JobName
	}{
		{"DAILY_ATTENDANCE_ENTRY", catalog.DailyAttendanceEntry},
		{" daily_attendance_entry ", catalog.DailyAttendanceEntry},
		{"MANUAL_LEAVE_ACCRUAL", catalog.LeaveAccrual},
	}
	for _, tt := range tests {
		got, err := c.Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := c.Parse("NOPE")
	assert.True(t, apperrors.IsParametersInvalid(err))
	_, err = c.Parse("")
	assert.True(t, apperrors.IsParametersInvalid(err))
}

func TestJobName_RunNames(t *testing.T) {
	assert.Equal(t, []string{"LEAVE_ACCRUAL", "MANUAL_LEAVE_ACCRUAL"}, catalog.LeaveAccrual.RunNames())
	assert.Equal(t, "MANUAL_LEAVE_ACCRUAL", catalog.LeaveAccrual.LogName(true))
	assert.Equal(t, "LEAVE_ACCRUAL", catalog.LeaveAccrual.LogName(false))
}

func TestDefault_Groups(t *testing.T) {
	groups := catalog.Default().Groups()
	names := make([]catalog.JobName, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
		assert.Equal(t, catalog.TypeGroup, g.Type)
	}
	assert.Equal(t, []catalog.JobName{
		catalog.MidnightJobs, catalog.MonthlyJobs, catalog.YearlyJobs, catalog.ExpiryAlerts,
	}, names)
}
